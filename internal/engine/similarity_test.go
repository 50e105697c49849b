package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/scrypster/hindsight/pkg/types"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.5, 0.5, 0.5}
	score := CosineSimilarity(v, v)
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("identical vectors should score 1.0, got %f", score)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	score := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(score) > 1e-9 {
		t.Errorf("orthogonal vectors should score 0, got %f", score)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	score := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(score+1.0) > 1e-9 {
		t.Errorf("opposite vectors should score -1.0, got %f", score)
	}
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.2}
	b := []float32{0.6, 1.4, 0.4} // a scaled by 2
	score := CosineSimilarity(a, b)
	if math.Abs(score-1.0) > 1e-6 {
		t.Errorf("scaled vectors should score 1.0, got %f", score)
	}
}

func TestBatchCosineSimilarity_MismatchedLengthScoresZero(t *testing.T) {
	scores := BatchCosineSimilarity([]float32{1, 0}, [][]float32{{1, 0, 0}})
	if scores[0] != 0 {
		t.Errorf("mismatched-length candidate should score 0, got %f", scores[0])
	}
}

func TestBatchCosineSimilarity_ZeroVectorScoresZero(t *testing.T) {
	scores := BatchCosineSimilarity([]float32{1, 0}, [][]float32{{0, 0}})
	if scores[0] != 0 {
		t.Errorf("zero candidate should score 0, got %f", scores[0])
	}

	scores = BatchCosineSimilarity([]float32{0, 0}, [][]float32{{1, 0}})
	if scores[0] != 0 {
		t.Errorf("zero query should score 0, got %f", scores[0])
	}
}

func TestBatchCosineSimilarity_ManyCandidates(t *testing.T) {
	query := []float32{1, 2, 3}
	candidates := [][]float32{
		{1, 2, 3},
		{0, 0, 0},
		{-1, -2, -3},
	}
	scores := BatchCosineSimilarity(query, candidates)
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	if math.Abs(scores[0]-1.0) > 1e-6 || scores[1] != 0 || math.Abs(scores[2]+1.0) > 1e-6 {
		t.Errorf("unexpected scores: %v", scores)
	}
}

func TestFindSimilar_MissingEmbeddingReturnsEmpty(t *testing.T) {
	store := newFakeEmbeddingStore()
	eng, err := NewSimilarityEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSimilarityEngine: %v", err)
	}

	matches, err := eng.FindSimilar(context.Background(), SimilarOptions{
		EventID:    "evt-unknown",
		CameraID:   "cam-1",
		WindowDays: 30,
	})
	if err != nil {
		t.Fatalf("FindSimilar should not error on missing embedding: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected empty result, got %d matches", len(matches))
	}
}

func TestFindSimilar_SortsByScoreThenRecency(t *testing.T) {
	store := newFakeEmbeddingStore()
	store.embeddings["evt-q"] = &types.EventEmbedding{EventID: "evt-q", Vector: []float32{1, 0}}

	now := time.Now()
	store.candidates = []types.EmbeddingCandidate{
		{EventID: "evt-old-exact", Vector: []float32{1, 0}, OccurredAt: now.Add(-48 * time.Hour)},
		{EventID: "evt-new-exact", Vector: []float32{2, 0}, OccurredAt: now.Add(-1 * time.Hour)},
		{EventID: "evt-partial", Vector: []float32{1, 1}, OccurredAt: now.Add(-2 * time.Hour)},
	}

	eng, err := NewSimilarityEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSimilarityEngine: %v", err)
	}

	matches, err := eng.FindSimilar(context.Background(), SimilarOptions{
		EventID:    "evt-q",
		CameraID:   "cam-1",
		WindowDays: 30,
	})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	// Both exact matches score 1.0; the newer one wins the tie.
	if matches[0].EventID != "evt-new-exact" {
		t.Errorf("expected evt-new-exact first, got %s", matches[0].EventID)
	}
	if matches[1].EventID != "evt-old-exact" {
		t.Errorf("expected evt-old-exact second, got %s", matches[1].EventID)
	}
	if matches[2].EventID != "evt-partial" {
		t.Errorf("expected evt-partial last, got %s", matches[2].EventID)
	}
}

func TestFindSimilar_AppliesThresholdAndLimit(t *testing.T) {
	store := newFakeEmbeddingStore()
	store.embeddings["evt-q"] = &types.EventEmbedding{EventID: "evt-q", Vector: []float32{1, 0}}

	now := time.Now()
	store.candidates = []types.EmbeddingCandidate{
		{EventID: "evt-a", Vector: []float32{1, 0}, OccurredAt: now},
		{EventID: "evt-b", Vector: []float32{1, 0.1}, OccurredAt: now},
		{EventID: "evt-far", Vector: []float32{0, 1}, OccurredAt: now},
	}

	eng, err := NewSimilarityEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSimilarityEngine: %v", err)
	}

	matches, err := eng.FindSimilar(context.Background(), SimilarOptions{
		EventID:       "evt-q",
		CameraID:      "cam-1",
		WindowDays:    30,
		Limit:         1,
		MinSimilarity: 0.7,
	})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected limit of 1 match, got %d", len(matches))
	}
	if matches[0].EventID != "evt-a" {
		t.Errorf("expected best match evt-a, got %s", matches[0].EventID)
	}
}

func TestFindSimilar_RejectsInvalidOptions(t *testing.T) {
	eng, err := NewSimilarityEngine(newFakeEmbeddingStore(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewSimilarityEngine: %v", err)
	}

	if _, err := eng.FindSimilar(context.Background(), SimilarOptions{WindowDays: 30}); err == nil {
		t.Error("expected error for missing event ID")
	}
	if _, err := eng.FindSimilar(context.Background(), SimilarOptions{EventID: "evt-q"}); err == nil {
		t.Error("expected error for zero window")
	}
}

func BenchmarkBatchCosineSimilarity_10k(b *testing.B) {
	const dim = 512
	query := make([]float32, dim)
	for i := range query {
		query[i] = float32(i%7) * 0.13
	}
	candidates := make([][]float32, 10000)
	for i := range candidates {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32((i+j)%11) * 0.07
		}
		candidates[i] = v
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BatchCosineSimilarity(query, candidates)
	}
}
