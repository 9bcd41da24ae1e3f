package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/marcusb/corpusd/internal/domain"
)

// unitVec builds a 3-dimensional unit vector whose cosine against [1,0,0]
// equals x.
func unitVec(x float64) domain.Vector {
	y := math.Sqrt(1 - x*x)
	return domain.Vector{float32(x), float32(y), 0}
}

func seedSimilarityCorpus(store *fakeRecordStore) {
	store.add(
		&domain.DataRecord{
			ID: "target", ProjectID: "p-1", Type: domain.RecordTypeTask,
			Content: "deploy the search cluster", Embedding: domain.Vector{1, 0, 0},
		},
		&domain.DataRecord{
			ID: "near", ProjectID: "p-1", Type: domain.RecordTypeTask,
			Content: "deploy the search cluster to staging", Embedding: unitVec(0.9),
		},
		&domain.DataRecord{
			ID: "far", ProjectID: "p-1", Type: domain.RecordTypeTask,
			Content: "order more coffee beans", Embedding: unitVec(0.1),
		},
		&domain.DataRecord{
			ID: "mid", ProjectID: "p-1", Type: domain.RecordTypeTask,
			Content: "restart the search cluster", Embedding: unitVec(0.5),
		},
		// Same project, wrong type: never a candidate.
		&domain.DataRecord{
			ID: "feedback", ProjectID: "p-1", Type: domain.RecordTypeFeedback,
			Content: "great deployment notes", Embedding: unitVec(0.95),
		},
		// Right type, other project: never a candidate.
		&domain.DataRecord{
			ID: "other-project", ProjectID: "p-2", Type: domain.RecordTypeTask,
			Content: "deploy the search cluster", Embedding: unitVec(0.99),
		},
		// Not vectorized yet: skipped.
		&domain.DataRecord{
			ID: "unembedded", ProjectID: "p-1", Type: domain.RecordTypeTask,
			Content: "pending record",
		},
	)
}

func TestFindSimilarRanking(t *testing.T) {
	store := newFakeRecordStore()
	seedSimilarityCorpus(store)
	svc := NewSimilarityService(store, &fakeCompleter{}, SimilarityConfig{})

	matches, err := svc.FindSimilar(context.Background(), "target", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Record.ID != "near" || matches[1].Record.ID != "mid" {
		t.Fatalf("order = %s, %s; want near, mid", matches[0].Record.ID, matches[1].Record.ID)
	}
	if math.Abs(matches[0].Similarity-0.9) > 1e-5 {
		t.Errorf("near similarity = %f, want 0.9", matches[0].Similarity)
	}
	if math.Abs(matches[1].Similarity-0.5) > 1e-5 {
		t.Errorf("mid similarity = %f, want 0.5", matches[1].Similarity)
	}
}

func TestFindSimilarRequiresEmbedding(t *testing.T) {
	store := newFakeRecordStore()
	seedSimilarityCorpus(store)
	svc := NewSimilarityService(store, &fakeCompleter{}, SimilarityConfig{})

	_, err := svc.FindSimilar(context.Background(), "unembedded", 2)
	if !errors.Is(err, domain.ErrNoEmbedding) {
		t.Fatalf("err = %v, want ErrNoEmbedding", err)
	}

	_, err = svc.FindSimilar(context.Background(), "missing", 2)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchRerankFiltersAndReorders(t *testing.T) {
	store := newFakeRecordStore()
	seedSimilarityCorpus(store)

	// The judge promotes the vector-mid candidate and drops the vector-near
	// one below the threshold.
	completer := &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		return `Here are my scores:
[{"id": "mid", "score": 95, "reason": "same system and action"},
 {"id": "near", "score": 40, "reason": "different environment"},
 {"id": "far", "score": 5, "reason": "unrelated"}]`, nil
	}}
	svc := NewSimilarityService(store, completer, SimilarityConfig{RerankThreshold: 60})

	ranked, err := svc.Search(context.Background(), "target", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
	if ranked[0].Record.ID != "mid" || ranked[0].Relevance != 95 {
		t.Errorf("top result = %s (%d), want mid (95)", ranked[0].Record.ID, ranked[0].Relevance)
	}

	// The ranked result is cached on the target record.
	target, _ := store.GetByID(context.Background(), "target")
	if target.SimilarityAnalysis == nil {
		t.Error("expected similarity snapshot to be cached")
	}
}

func TestSearchFallsBackWhenRerankFails(t *testing.T) {
	store := newFakeRecordStore()
	seedSimilarityCorpus(store)

	completer := &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		return "", fmt.Errorf("gateway down")
	}}
	svc := NewSimilarityService(store, completer, SimilarityConfig{})

	ranked, err := svc.Search(context.Background(), "target", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want vector top-2 fallback", len(ranked))
	}
	if ranked[0].Record.ID != "near" || ranked[1].Record.ID != "mid" {
		t.Errorf("fallback order = %s, %s; want near, mid", ranked[0].Record.ID, ranked[1].Record.ID)
	}
	if ranked[0].Relevance != 0 {
		t.Errorf("fallback relevance = %d, want 0", ranked[0].Relevance)
	}
}

func TestSearchServesCachedSnapshot(t *testing.T) {
	store := newFakeRecordStore()
	seedSimilarityCorpus(store)

	calls := 0
	completer := &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		calls++
		return `[{"id": "near", "score": 90, "reason": "close match"}]`, nil
	}}
	svc := NewSimilarityService(store, completer, SimilarityConfig{})

	if _, err := svc.Search(context.Background(), "target", 2, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(context.Background(), "target", 2, false); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("completer called %d times, want cached second read", calls)
	}

	if _, err := svc.Search(context.Background(), "target", 2, true); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("completer called %d times, want force to refresh", calls)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Vector
		want float64
	}{
		{"identical", domain.Vector{1, 2, 3}, domain.Vector{1, 2, 3}, 1},
		{"orthogonal", domain.Vector{1, 0}, domain.Vector{0, 1}, 0},
		{"opposite", domain.Vector{1, 0}, domain.Vector{-1, 0}, -1},
		{"zero magnitude", domain.Vector{0, 0}, domain.Vector{1, 0}, 0},
		{"length mismatch", domain.Vector{1, 0}, domain.Vector{1, 0, 0}, 0},
		{"both empty", domain.Vector{}, domain.Vector{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}
