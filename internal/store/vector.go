package store

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// VectorConfig configures the embedded chromem-go index backing
// VectorMemories.
type VectorConfig struct {
	// PersistPath, when set, gob-persists the index to disk so semantic
	// memory survives a restart without a round trip through Postgres.
	PersistPath string
	Compress    bool
}

// VectorMemories decorates an inner Memories implementation, routing
// PutSemantic/SearchSemantic through a chromem-go collection while every
// other operation (working memory, session summarization) passes through
// unchanged. The inner store remains the system of record for content and
// metadata; the chromem-go index also keeps each memory's content,
// category and importance, which is what SearchSemantic returns.
type VectorMemories struct {
	Memories
	db         *chromem.DB
	collection *chromem.Collection
}

const semanticCollection = "semantic_memory"

// NewVectorMemories wraps inner with a chromem-go-backed semantic index.
func NewVectorMemories(inner Memories, cfg VectorConfig) (*VectorMemories, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, errs.Unavailable("open vector index: %v", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are supplied by the model router (§4.6), never computed
	// in-process, so the collection's embedding func is never invoked.
	identity := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("semantic memory requires a precomputed embedding")
	}
	col, err := db.GetOrCreateCollection(semanticCollection, nil, identity)
	if err != nil {
		return nil, errs.Internal(err, "create semantic memory collection")
	}

	return &VectorMemories{Memories: inner, db: db, collection: col}, nil
}

func (v *VectorMemories) PutSemantic(ctx context.Context, mem *types.SemanticMemory) error {
	if err := v.Memories.PutSemantic(ctx, mem); err != nil {
		return err
	}
	if len(mem.Embedding) == 0 {
		return errs.Validation("semantic memory %q has no embedding", mem.ID)
	}
	meta := map[string]string{
		"category":   mem.Category,
		"importance": fmt.Sprintf("%.4f", mem.Importance),
	}
	doc := chromem.Document{
		ID:        mem.ID,
		Content:   mem.Content,
		Metadata:  meta,
		Embedding: mem.Embedding,
	}
	if err := v.collection.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return errs.Internal(err, "index semantic memory")
	}
	return nil
}

// SearchSemantic queries the chromem-go index for the k nearest neighbors of
// embedding. The index document already carries content and metadata
// (populated at PutSemantic time), so results are reconstructed directly
// from it rather than round-tripping through the underlying store.
func (v *VectorMemories) SearchSemantic(ctx context.Context, embedding []float32, k int, minImportance float64, category string) ([]*types.SemanticMemory, error) {
	if k <= 0 {
		return nil, nil
	}
	var filter map[string]string
	if category != "" {
		filter = map[string]string{"category": category}
	}

	n := k
	if count := v.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := v.collection.QueryEmbedding(ctx, embedding, n, filter, nil)
	if err != nil {
		return nil, errs.Internal(err, "query semantic memory index")
	}

	out := make([]*types.SemanticMemory, 0, len(results))
	for _, r := range results {
		importance := parseImportance(r.Metadata["importance"])
		if importance < minImportance {
			continue
		}
		out = append(out, &types.SemanticMemory{
			ID:         r.ID,
			Content:    r.Content,
			Category:   r.Metadata["category"],
			Importance: importance,
		})
	}
	return out, nil
}

func parseImportance(s string) float64 {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return v
}
