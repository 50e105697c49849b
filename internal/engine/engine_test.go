package engine

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/hindsight/pkg/types"
)

// fakeStore composes the per-concern fakes into the full storage interface.
type fakeStore struct {
	*fakeEventStore
	*fakeEmbeddingStore
	*fakeEntityStore
	*fakePatternStore
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fakeEventStore:     newFakeEventStore(),
		fakeEmbeddingStore: newFakeEmbeddingStore(),
		fakeEntityStore:    newFakeEntityStore(),
		fakePatternStore:   newFakePatternStore(),
	}
}

func (f *fakeStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeStore) SaveSetting(ctx context.Context, key, value string) error {
	return nil
}

func (f *fakeStore) Close() error { return nil }

func startedEngine(t *testing.T, store *fakeStore, settings types.Settings) *Engine {
	t.Helper()
	eng, err := NewEngine(store, staticSettings{snapshot: settings}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })
	return eng
}

func TestEnrichDescription_RecordsEventAndEmbedding(t *testing.T) {
	store := newFakeStore()
	eng := startedEngine(t, store, testSettings())

	event := &types.Event{ID: "evt-1", CameraID: "cam-1", Timestamp: time.Now()}
	result, err := eng.EnrichDescription(context.Background(), event,
		[]float32{1, 0, 0}, types.EntityTypePerson, "Describe the scene.")
	if err != nil {
		t.Fatalf("EnrichDescription: %v", err)
	}

	if _, ok := store.fakeEmbeddingStore.embeddings["evt-1"]; !ok {
		t.Error("embedding should be persisted")
	}
	if len(store.fakeEventStore.timestamps["cam-1"]) != 1 {
		t.Error("event should be recorded")
	}
	if result.Match == nil || !result.Match.IsNew {
		t.Error("first detection should create a new entity")
	}
	if result.Build.Prompt == "" {
		t.Error("build should always return a usable prompt")
	}
}

func TestEnrichDescription_NoEntityTypeSkipsMatching(t *testing.T) {
	store := newFakeStore()
	eng := startedEngine(t, store, testSettings())

	event := &types.Event{ID: "evt-1", CameraID: "cam-1", Timestamp: time.Now()}
	result, err := eng.EnrichDescription(context.Background(), event,
		[]float32{1, 0, 0}, "", "Describe the scene.")
	if err != nil {
		t.Fatalf("EnrichDescription: %v", err)
	}
	if result.Match != nil {
		t.Error("no entity type means no matching")
	}
	if len(store.fakeEntityStore.entities) != 0 {
		t.Error("no entity should be created without a type")
	}
}

func TestEnrichDescription_RequiresStartedEngine(t *testing.T) {
	eng, err := NewEngine(newFakeStore(), staticSettings{snapshot: testSettings()}, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	event := &types.Event{ID: "evt-1", CameraID: "cam-1", Timestamp: time.Now()}
	if _, err := eng.EnrichDescription(context.Background(), event, []float32{1}, "", "p"); err == nil {
		t.Error("unstarted engine should refuse ingestion")
	}
}

func TestEnrichDescription_RepeatVisitorGetsEntityContext(t *testing.T) {
	store := newFakeStore()
	eng := startedEngine(t, store, testSettings())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		event := &types.Event{
			ID:        "evt-" + string(rune('a'+i)),
			CameraID:  "cam-1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := eng.EnrichDescription(ctx, event, []float32{1, 0, 0}, types.EntityTypePerson, "Describe."); err != nil {
			t.Fatalf("EnrichDescription: %v", err)
		}
	}

	event := &types.Event{ID: "evt-final", CameraID: "cam-1", Timestamp: time.Now()}
	result, err := eng.EnrichDescription(ctx, event, []float32{1, 0, 0}, types.EntityTypePerson, "Describe.")
	if err != nil {
		t.Fatalf("EnrichDescription: %v", err)
	}
	if result.Match == nil || result.Match.IsNew {
		t.Fatal("repeat visitor should match the existing entity")
	}
	if result.Match.Entity.OccurrenceCount != 4 {
		t.Errorf("expected occurrence count 4, got %d", result.Match.Entity.OccurrenceCount)
	}
	if result.Build.Bundle.EntityContext == nil {
		t.Error("established visitor should contribute entity context")
	}
}
