// Package services holds application services that sit between storage and
// the engine, such as runtime settings management.
package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// Settings keys as stored in the settings table.
const (
	KeyEnableContext         = "enable_context"
	KeyABTestSkipPercent     = "ab_test_skip_percent"
	KeySimilarityThreshold   = "similarity_threshold"
	KeyTimeWindowDays        = "time_window_days"
	KeyPatternRecalcInterval = "pattern_recalc_interval"
)

// defaultRefreshInterval is how often the service re-reads the settings
// table when running.
const defaultRefreshInterval = 30 * time.Second

// SettingsService loads runtime settings from the settings table and serves
// immutable snapshots. A snapshot taken at the start of a request stays
// consistent for that request even if settings change mid-flight.
type SettingsService struct {
	store           storage.SettingsStore
	refreshInterval time.Duration

	mu      sync.RWMutex
	current types.Settings

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSettingsService creates a service over the given settings store. The
// initial snapshot is the defaults; call Refresh or Start to load stored
// values.
func NewSettingsService(store storage.SettingsStore) (*SettingsService, error) {
	if store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	return &SettingsService{
		store:           store,
		refreshInterval: defaultRefreshInterval,
		current:         types.DefaultSettings(),
	}, nil
}

// Snapshot returns the current settings by value.
func (s *SettingsService) Snapshot() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh re-reads the settings table and swaps in a new snapshot. Unknown
// keys are ignored; malformed or out-of-range values fall back to the
// default for that key with a logged warning. A storage failure keeps the
// previous snapshot.
func (s *SettingsService) Refresh(ctx context.Context) error {
	stored, err := s.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	next := parseSettings(stored)

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// Set writes one setting and refreshes the snapshot.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: unknown settings key %q", storage.ErrInvalidInput, key)
	}
	if err := s.store.SaveSetting(ctx, key, value); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Start loads the stored settings and launches the periodic refresh loop.
func (s *SettingsService) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.started {
		return fmt.Errorf("settings service already started")
	}

	if err := s.Refresh(ctx); err != nil {
		// Defaults remain in effect until the table becomes readable.
		log.Printf("settings: WARNING initial load failed, using defaults: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop cancels the refresh loop.
func (s *SettingsService) Stop() {
	s.lifecycle.Lock()
	if !s.started {
		s.lifecycle.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.lifecycle.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *SettingsService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("settings: WARNING refresh failed, keeping previous snapshot: %v", err)
			}
		}
	}
}

func validKey(key string) bool {
	switch key {
	case KeyEnableContext, KeyABTestSkipPercent, KeySimilarityThreshold,
		KeyTimeWindowDays, KeyPatternRecalcInterval:
		return true
	}
	return false
}

// parseSettings builds a snapshot from stored key/value pairs, falling back
// to the default for any key that is missing or malformed.
func parseSettings(stored map[string]string) types.Settings {
	settings := types.DefaultSettings()

	if raw, ok := stored[KeyEnableContext]; ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			settings.EnableContext = v
		} else {
			log.Printf("settings: WARNING invalid %s=%q, using default %v",
				KeyEnableContext, raw, settings.EnableContext)
		}
	}

	if raw, ok := stored[KeyABTestSkipPercent]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 && v <= 100 {
			settings.ABTestSkipPercent = v
		} else {
			log.Printf("settings: WARNING invalid %s=%q, using default %d",
				KeyABTestSkipPercent, raw, settings.ABTestSkipPercent)
		}
	}

	if raw, ok := stored[KeySimilarityThreshold]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= -1 && v <= 1 {
			settings.SimilarityThreshold = v
		} else {
			log.Printf("settings: WARNING invalid %s=%q, using default %g",
				KeySimilarityThreshold, raw, settings.SimilarityThreshold)
		}
	}

	if raw, ok := stored[KeyTimeWindowDays]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v >= 1 {
			settings.TimeWindowDays = v
		} else {
			log.Printf("settings: WARNING invalid %s=%q, using default %d",
				KeyTimeWindowDays, raw, settings.TimeWindowDays)
		}
	}

	if raw, ok := stored[KeyPatternRecalcInterval]; ok {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			settings.PatternRecalcInterval = v
		} else {
			log.Printf("settings: WARNING invalid %s=%q, using default %v",
				KeyPatternRecalcInterval, raw, settings.PatternRecalcInterval)
		}
	}

	return settings
}
