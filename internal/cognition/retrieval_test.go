package cognition

import (
	"context"
	"testing"
	"time"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

func TestContentHashIsStableAndDistinct(t *testing.T) {
	if contentHash("same") != contentHash("same") {
		t.Error("expected identical input to hash identically")
	}
	if contentHash("a") == contentHash("b") {
		t.Error("expected distinct input to hash distinctly")
	}
}

func TestBudgetWorkingMemoryOrdersByRecencyAndCapsByBudget(t *testing.T) {
	now := time.Now()
	items := []*types.WorkingMemoryItem{
		{Key: "old", Value: "a value that is reasonably long for its slot", AccessedAt: now.Add(-time.Hour)},
		{Key: "new", Value: "a value that is reasonably long for its slot too", AccessedAt: now},
	}
	cfg := RetrievalConfig{WorkingMemoryTokenBudget: 10, CharsPerToken: 4} // 40 chars total budget

	ranked := budgetWorkingMemory(items, cfg)
	if len(ranked) == 0 {
		t.Fatal("expected at least the most recent item to fit")
	}
	first, ok := ranked[0].Payload.(*types.WorkingMemoryItem)
	if !ok || first.Key != "new" {
		t.Errorf("expected the most recently accessed item first, got %+v", ranked[0].Payload)
	}
}

func TestBudgetWorkingMemoryDedupesByContentHash(t *testing.T) {
	now := time.Now()
	items := []*types.WorkingMemoryItem{
		{Key: "a", Value: "duplicate text", AccessedAt: now},
		{Key: "b", Value: "duplicate text", AccessedAt: now.Add(-time.Minute)},
	}
	cfg := RetrievalConfig{WorkingMemoryTokenBudget: 1000, CharsPerToken: 4}
	ranked := budgetWorkingMemory(items, cfg)
	if len(ranked) != 1 {
		t.Errorf("expected duplicate values to be deduplicated, got %d items", len(ranked))
	}
}

func TestRetrieveWithoutEmbeddingClientUsesWorkingMemoryOnly(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := st.Memories().PutWorking(ctx, &types.WorkingMemoryItem{
		SessionID: "sess-1", Key: "topic", Value: "deploying the new release",
		AccessedAt: time.Now(),
	}); err != nil {
		t.Fatalf("PutWorking() error = %v", err)
	}

	got, err := retrieve(ctx, st.Memories(), nil, "", DefaultRetrievalConfig(), "sess-1", "")
	if err != nil {
		t.Fatalf("retrieve() error = %v", err)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 retrieved item, got %d", len(got.Items))
	}
	if got.Items[0].Sources[0] != "memory" {
		t.Errorf("expected the memory source, got %v", got.Items[0].Sources)
	}
}

func TestRetrieveMergesSemanticWithEmbeddingClient(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := st.Memories().PutSemantic(ctx, &types.SemanticMemory{
		ID: "mem-1", Content: "the user prefers dark mode", Importance: 0.9,
		Embedding: []float32{0.1, 0.2, 0.3},
	}); err != nil {
		t.Fatalf("PutSemantic() error = %v", err)
	}

	client := &fakeModelClient{}
	client.chatResp = &types.ChatResponse{}
	embedClient := &embeddingStubClient{vector: []float32{0.1, 0.2, 0.3}}

	got, err := retrieve(ctx, st.Memories(), embedClient, "text-embedding-3-small", DefaultRetrievalConfig(), "sess-1", "what theme do I like?")
	if err != nil {
		t.Fatalf("retrieve() error = %v", err)
	}
	if len(got.Items) == 0 {
		t.Fatal("expected at least one merged item from the semantic search")
	}
}

type embeddingStubClient struct {
	vector []float32
}

func (e *embeddingStubClient) ChatCompletion(ctx context.Context, req types.ChatRequest, costCeilingUSD float64) (*types.ChatResponse, error) {
	return &types.ChatResponse{}, nil
}

func (e *embeddingStubClient) Embeddings(ctx context.Context, req types.EmbeddingRequest) ([][]float32, error) {
	return [][]float32{e.vector}, nil
}
