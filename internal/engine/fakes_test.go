package engine

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// fakeEmbeddingStore serves canned embeddings and candidates.
type fakeEmbeddingStore struct {
	embeddings map[string]*types.EventEmbedding
	candidates []types.EmbeddingCandidate
	listErr    error
	getErr     error
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{embeddings: make(map[string]*types.EventEmbedding)}
}

func (f *fakeEmbeddingStore) StoreEmbedding(ctx context.Context, embedding *types.EventEmbedding) error {
	f.embeddings[embedding.EventID] = embedding
	return nil
}

func (f *fakeEmbeddingStore) GetEmbedding(ctx context.Context, eventID string) (*types.EventEmbedding, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	emb, ok := f.embeddings[eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return emb, nil
}

func (f *fakeEmbeddingStore) ListCandidates(ctx context.Context, cameraID string, since time.Time, excludeEventID string, limit int) ([]types.EmbeddingCandidate, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.candidates, nil
}

// fakeEntityStore keeps entities in memory.
type fakeEntityStore struct {
	mu       sync.Mutex
	entities map[string]*types.Entity
	links    []*types.EntityEventLink

	createErr error
	linkErr   error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{entities: make(map[string]*types.Entity)}
}

func (f *fakeEntityStore) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entity
	f.entities[entity.ID] = &copied
	return nil
}

func (f *fakeEntityStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *entity
	return &copied, nil
}

func (f *fakeEntityStore) ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Entity
	for _, entity := range f.entities {
		if entity.Type == entityType {
			copied := *entity
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeEntityStore) ApplyMatch(ctx context.Context, entityID string, update storage.EntityMatchUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	entity.RepresentativeVector = update.RepresentativeVector
	entity.LastSeenAt = update.LastSeenAt
	entity.OccurrenceCount++
	return nil
}

func (f *fakeEntityStore) LinkEntityEvent(ctx context.Context, link *types.EntityEventLink) (bool, error) {
	if f.linkErr != nil {
		return false, f.linkErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.links {
		if existing.EventID == link.EventID && existing.EntityID == link.EntityID {
			return false, nil
		}
	}
	f.links = append(f.links, link)
	return true, nil
}

func (f *fakeEntityStore) CountEntityLinks(ctx context.Context, entityID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, link := range f.links {
		if link.EntityID == entityID {
			count++
		}
	}
	return count, nil
}

// fakeEventStore serves canned timestamps per camera.
type fakeEventStore struct {
	mu         sync.Mutex
	timestamps map[string][]time.Time
	listErr    error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{timestamps: make(map[string][]time.Time)}
}

func (f *fakeEventStore) RecordEvent(ctx context.Context, event *types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timestamps[event.CameraID] = append(f.timestamps[event.CameraID], event.Timestamp)
	return nil
}

func (f *fakeEventStore) ListEventTimestamps(ctx context.Context, cameraID string, since time.Time) ([]time.Time, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, ts := range f.timestamps[cameraID] {
		if !ts.Before(since) {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListCameraIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.timestamps {
		ids = append(ids, id)
	}
	return ids, nil
}

// fakePatternStore keeps one pattern per camera.
type fakePatternStore struct {
	mu       sync.Mutex
	patterns map[string]*types.CameraActivityPattern
	getErr   error
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{patterns: make(map[string]*types.CameraActivityPattern)}
}

func (f *fakePatternStore) UpsertPattern(ctx context.Context, pattern *types.CameraActivityPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *pattern
	f.patterns[pattern.CameraID] = &copied
	return nil
}

func (f *fakePatternStore) GetPattern(ctx context.Context, cameraID string) (*types.CameraActivityPattern, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pattern, ok := f.patterns[cameraID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *pattern
	return &copied, nil
}

// staticSettings is a SettingsProvider with a fixed snapshot.
type staticSettings struct {
	snapshot types.Settings
}

func (s staticSettings) Snapshot() types.Settings { return s.snapshot }
