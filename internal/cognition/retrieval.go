package cognition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/Najia-afk/aria-core/internal/memory"
	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// RetrievalConfig tunes §4.5 step 3.
type RetrievalConfig struct {
	// WorkingMemoryTokenBudget caps how much working-memory context is
	// pulled in, estimated at CharsPerToken chars/token (default 2000).
	WorkingMemoryTokenBudget int
	CharsPerToken            int
	// SemanticK is how many semantic-memory candidates to request.
	SemanticK int
	// SemanticMinImportance filters low-importance semantic memories.
	SemanticMinImportance float64
	// WorkingMemoryLookbackHours bounds SummarizeSession's window.
	WorkingMemoryLookbackHours int
}

// DefaultRetrievalConfig matches the spec's stated defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		WorkingMemoryTokenBudget:   2000,
		CharsPerToken:              4,
		SemanticK:                  10,
		SemanticMinImportance:      0.0,
		WorkingMemoryLookbackHours: 24,
	}
}

// RetrievedContext is the merged, deduplicated result of §4.5 step 3.
type RetrievedContext struct {
	Items []memory.Fused
}

// contentHash identifies a retrieved item for cross-source deduplication
// (§4.5 step 3: "duplicates are content-hashed and dropped").
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// retrieve pulls working-memory context capped by a token budget and,
// when client, embedModel and queryText are all set, a semantic search
// against long-term memory, then
// merges both by Reciprocal Rank Fusion (internal/memory.Merge).
func retrieve(ctx context.Context, memories store.Memories, client ModelClient, embedModel string, cfg RetrievalConfig, sessionID, queryText string) (RetrievedContext, error) {
	lists := make(map[string][]memory.RankedItem)

	workingItems, err := memories.SummarizeSession(ctx, sessionID, cfg.WorkingMemoryLookbackHours)
	if err != nil {
		return RetrievedContext{}, err
	}
	lists["memory"] = budgetWorkingMemory(workingItems, cfg)

	if client != nil && embedModel != "" && queryText != "" {
		embeddings, err := client.Embeddings(ctx, types.EmbeddingRequest{Model: embedModel, Input: []string{queryText}})
		if err == nil && len(embeddings) > 0 {
			semantic, err := memories.SearchSemantic(ctx, embeddings[0], cfg.SemanticK, cfg.SemanticMinImportance, "")
			if err == nil {
				items := make([]memory.RankedItem, 0, len(semantic))
				seen := make(map[string]struct{})
				for _, m := range semantic {
					h := contentHash(m.Content)
					if _, dup := seen[h]; dup {
						continue
					}
					seen[h] = struct{}{}
					items = append(items, memory.RankedItem{ID: h, Source: "semantic", Payload: m})
				}
				lists["semantic"] = items
			}
		}
	}

	weights := map[string]float64{
		"semantic": memory.WeightSemantic,
		"graph":    memory.WeightGraph,
		"memory":   memory.WeightMemory,
	}
	fused := memory.Merge(lists, weights)
	return RetrievedContext{Items: fused}, nil
}

// budgetWorkingMemory ranks working-memory items by recency (most recently
// touched first, matching SummarizeSession's intent) and keeps only as
// many as fit inside the configured token budget, content-hashing each
// item's value for cross-source dedup.
func budgetWorkingMemory(items []*types.WorkingMemoryItem, cfg RetrievalConfig) []memory.RankedItem {
	charsPerToken := cfg.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	budgetChars := cfg.WorkingMemoryTokenBudget * charsPerToken

	sorted := make([]*types.WorkingMemoryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AccessedAt.After(sorted[j].AccessedAt) })

	out := make([]memory.RankedItem, 0, len(sorted))
	used := 0
	seen := make(map[string]struct{})
	for _, item := range sorted {
		text := renderWorkingValue(item)
		if used+len(text) > budgetChars && used > 0 {
			break
		}
		h := contentHash(text)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, memory.RankedItem{ID: h, Source: "memory", Payload: item})
		used += len(text)
	}
	return out
}

func renderWorkingValue(item *types.WorkingMemoryItem) string {
	if s, ok := item.Value.(string); ok {
		return s
	}
	return item.Key
}
