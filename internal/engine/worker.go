package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
)

// maxConcurrentRecalcs bounds how many cameras are recalculated in parallel
// during one sweep.
const maxConcurrentRecalcs = 4

// PatternWorker periodically recalculates activity patterns for every known
// camera. Pattern recalculation is the only writer of the pattern tables;
// the composer's timing checks only read them.
type PatternWorker struct {
	events   storage.EventStore
	analyzer *PatternAnalyzer
	interval time.Duration
	window   int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPatternWorker creates a worker that sweeps all cameras every interval.
func NewPatternWorker(events storage.EventStore, analyzer *PatternAnalyzer, interval time.Duration, windowDays int) (*PatternWorker, error) {
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("pattern analyzer is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}
	if windowDays <= 0 {
		windowDays = DefaultPatternWindowDays
	}
	return &PatternWorker{
		events:   events,
		analyzer: analyzer,
		interval: interval,
		window:   windowDays,
	}, nil
}

// Start launches the background sweep loop. It is an error to start a worker
// twice without stopping it.
func (w *PatternWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("pattern worker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	w.wg.Add(1)
	go w.run(runCtx)

	log.Printf("pattern worker: started (interval %v, window %d days)", w.interval, w.window)
	return nil
}

// Stop cancels the sweep loop and waits for any in-flight sweep to finish.
func (w *PatternWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	log.Println("pattern worker: stopped")
}

func (w *PatternWorker) run(ctx context.Context) {
	defer w.wg.Done()

	// First sweep runs immediately so freshly started instances have
	// patterns before the first tick.
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep recalculates stale patterns for every camera with recorded events.
// Per-camera failures are logged and do not abort the sweep.
func (w *PatternWorker) sweep(ctx context.Context) {
	started := time.Now()

	cameraIDs, err := w.events.ListCameraIDs(ctx)
	if err != nil {
		log.Printf("pattern worker: ERROR listing cameras: %v", err)
		return
	}
	if len(cameraIDs) == 0 {
		return
	}

	// Skip patterns refreshed within the last half-interval so overlapping
	// deployments do not recalculate the same camera back to back.
	minAge := w.interval / 2

	sem := make(chan struct{}, maxConcurrentRecalcs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	recalculated := 0

	for _, cameraID := range cameraIDs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			did, err := w.analyzer.RecalculateStale(ctx, id, w.window, minAge)
			if err != nil {
				log.Printf("pattern worker: ERROR recalculating camera %s: %v", id, err)
				return
			}
			if did {
				mu.Lock()
				recalculated++
				mu.Unlock()
			}
		}(cameraID)
	}
	wg.Wait()

	log.Printf("pattern worker: sweep complete, %d/%d cameras recalculated in %v",
		recalculated, len(cameraIDs), time.Since(started))
}
