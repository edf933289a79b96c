// Package memory implements reciprocal rank fusion across semantic, graph,
// and working-memory retrieval sources (spec §4.4/§4.5). Content-hash
// deduplication and tiered compression are not in this package; they live
// in internal/cognition (retrieval.go, compression.go). Grounded on the
// teacher's internal/memory/backend/pgvector/backend.go, whose
// searchHybrid method documents and implements RRF(d) = sum(1/(k+rank))
// for combining vector and BM25 rankings with k=60 — generalized here from
// two SQL-side rankings to three Go-side ranked lists (semantic, graph,
// working memory) merged in application code, since the core's store
// facade exposes each source as a separate call rather than one hybrid
// SQL query.
package memory

import "sort"

// RRFK is the Reciprocal Rank Fusion damping constant (§4.5), matching the
// teacher's pgvector hybrid search (`1.0 / (60 + rank)`).
const RRFK = 60

// Default per-source weights (§4.5): semantic memory is trusted most,
// the knowledge graph next, raw working memory least.
const (
	WeightSemantic = 1.0
	WeightGraph    = 0.8
	WeightMemory   = 0.6
)

// RankedItem is one candidate from a single retrieval source, already in
// that source's own rank order (index 0 = best).
type RankedItem struct {
	ID      string
	Source  string
	Payload any
}

// Fused is a merged result: the combined RRF score and the first payload
// seen for ID across the contributing sources.
type Fused struct {
	ID      string
	Score   float64
	Payload any
	Sources []string
}

// Merge combines ranked lists from multiple sources into one list ordered
// by descending combined RRF score. weights maps source name to its
// contribution weight; a source absent from weights defaults to 1.0.
func Merge(lists map[string][]RankedItem, weights map[string]float64) []Fused {
	scores := make(map[string]float64)
	payloads := make(map[string]any)
	sources := make(map[string][]string)
	order := make([]string, 0)

	for source, items := range lists {
		weight, ok := weights[source]
		if !ok {
			weight = 1.0
		}
		for rank, item := range items {
			contribution := weight * (1.0 / float64(RRFK+rank+1))
			if _, seen := scores[item.ID]; !seen {
				order = append(order, item.ID)
				payloads[item.ID] = item.Payload
			}
			scores[item.ID] += contribution
			sources[item.ID] = append(sources[item.ID], source)
		}
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		out = append(out, Fused{ID: id, Score: scores[id], Payload: payloads[id], Sources: sources[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
