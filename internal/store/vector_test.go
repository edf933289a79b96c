package store

import (
	"context"
	"testing"

	"github.com/Najia-afk/aria-core/pkg/types"
)

func TestVectorMemoriesPutSemanticRejectsMissingEmbedding(t *testing.T) {
	v, err := NewVectorMemories(NewMemoryStore().Memories(), VectorConfig{})
	if err != nil {
		t.Fatalf("NewVectorMemories() error = %v", err)
	}
	err = v.PutSemantic(context.Background(), &types.SemanticMemory{ID: "mem-1", Content: "no vector"})
	if err == nil {
		t.Fatal("expected an error for a semantic memory with no embedding")
	}
}

func TestVectorMemoriesSearchSemanticFindsNearestNeighbor(t *testing.T) {
	v, err := NewVectorMemories(NewMemoryStore().Memories(), VectorConfig{})
	if err != nil {
		t.Fatalf("NewVectorMemories() error = %v", err)
	}
	ctx := context.Background()

	if err := v.PutSemantic(ctx, &types.SemanticMemory{
		ID: "mem-dark", Content: "the user prefers dark mode", Category: "preference",
		Importance: 0.9, Embedding: []float32{1, 0, 0},
	}); err != nil {
		t.Fatalf("PutSemantic() error = %v", err)
	}
	if err := v.PutSemantic(ctx, &types.SemanticMemory{
		ID: "mem-food", Content: "the user likes spicy food", Category: "preference",
		Importance: 0.3, Embedding: []float32{0, 1, 0},
	}); err != nil {
		t.Fatalf("PutSemantic() error = %v", err)
	}

	got, err := v.SearchSemantic(ctx, []float32{1, 0, 0}, 1, 0, "")
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem-dark" {
		t.Fatalf("expected mem-dark as the nearest neighbor, got %+v", got)
	}
}

func TestVectorMemoriesSearchSemanticFiltersByMinImportance(t *testing.T) {
	v, err := NewVectorMemories(NewMemoryStore().Memories(), VectorConfig{})
	if err != nil {
		t.Fatalf("NewVectorMemories() error = %v", err)
	}
	ctx := context.Background()
	if err := v.PutSemantic(ctx, &types.SemanticMemory{
		ID: "mem-low", Content: "trivial detail", Importance: 0.1, Embedding: []float32{1, 0, 0},
	}); err != nil {
		t.Fatalf("PutSemantic() error = %v", err)
	}

	got, err := v.SearchSemantic(ctx, []float32{1, 0, 0}, 5, 0.5, "")
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected the low-importance memory to be filtered out, got %+v", got)
	}
}

func TestVectorMemoriesSearchSemanticZeroKReturnsNil(t *testing.T) {
	v, err := NewVectorMemories(NewMemoryStore().Memories(), VectorConfig{})
	if err != nil {
		t.Fatalf("NewVectorMemories() error = %v", err)
	}
	got, err := v.SearchSemantic(context.Background(), []float32{1, 0, 0}, 0, 0, "")
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for k<=0, got %+v", got)
	}
}
