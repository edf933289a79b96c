package cognition

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Compression tier sizes (§4.5 "Memory compression").
const (
	RawTierSize    = 20  // most recent items, hot, never compressed
	RecentTierSize = 100 // next N items, compressed to ~30% of text

	RecentCompressionRatio  = 0.3
	ArchiveCompressionRatio = 0.1

	// CompressionTriggerCount is the §4.5 step-8 raw-memory window size
	// that enqueues a compression pass.
	CompressionTriggerCount = 100

	// ImportanceSelectFraction is the top fraction of scored items kept
	// for summarization.
	ImportanceSelectFraction = 0.3
)

// Importance weight coefficients (§4.5 "Memory compression").
const (
	weightRecency     = 0.4
	weightSignificance = 0.3
	weightCategory    = 0.2
	weightLength      = 0.1
)

// categoryWeights assigns a significance-by-category prior used in the
// importance score's category term. Unlisted categories default to 0.5.
var categoryWeights = map[string]float64{
	"decision":  1.0,
	"goal":      0.9,
	"sentiment": 0.4,
	"checkpoint": 0.1,
	"fact":      0.7,
}

// scoreImportance computes the §4.5 importance score for a single working
// memory item relative to the newest and oldest items in its batch (for
// recency normalization) and the longest item (for length normalization).
func scoreImportance(item *types.WorkingMemoryItem, oldest, newest time.Time, maxLen int) float64 {
	recency := 0.5
	if span := newest.Sub(oldest); span > 0 {
		recency = float64(item.CreatedAt.Sub(oldest)) / float64(span)
	}

	significance := item.Importance // caller-assigned 0..1 estimate

	catWeight, ok := categoryWeights[item.Category]
	if !ok {
		catWeight = 0.5
	}

	lengthNorm := 0.0
	if maxLen > 0 {
		lengthNorm = float64(len(renderWorkingValue(item))) / float64(maxLen)
	}

	return weightRecency*recency + weightSignificance*significance + weightCategory*catWeight + weightLength*lengthNorm
}

// Summarizer asks the router to compress a batch of text with strict
// instructions to preserve named entities, numbers, and decisions (§4.5
// "Memory compression"). Grounded on the teacher's
// compaction.Summarizer/GenerateSummary interface, adapted from
// multi-chunk message summarization to a flat batch of working-memory
// item values since the core's compression unit is a memory item, not a
// conversation turn.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string, targetRatio float64) (string, error)
}

// RouterSummarizer implements Summarizer via the model router client.
type RouterSummarizer struct {
	Client ModelClient
	Model  string
}

func (s *RouterSummarizer) Summarize(ctx context.Context, texts []string, targetRatio float64) (string, error) {
	if s.Client == nil || s.Model == "" {
		return "", errs.Configuration("no summarization model configured")
	}
	var body string
	for i, t := range texts {
		body += fmt.Sprintf("[%d] %s\n", i+1, t)
	}
	prompt := fmt.Sprintf(
		"Summarize the following memory items to about %.0f%% of their original length. "+
			"Preserve all named entities, numbers, and decisions exactly. Do not invent details.\n\n%s",
		targetRatio*100, body)

	resp, err := s.Client.ChatCompletion(ctx, types.ChatRequest{
		Model:    s.Model,
		Messages: []types.ChatMessage{{Role: "user", Content: prompt}},
	}, 0)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Compressor runs the §4.5 tiered compression pass.
type Compressor struct {
	memories   store.Memories
	summarizer Summarizer
	now        func() time.Time
}

// NewCompressor builds a Compressor over the memories store and a
// summarizer (typically *RouterSummarizer).
func NewCompressor(memories store.Memories, summarizer Summarizer, now func() time.Time) *Compressor {
	if now == nil {
		now = time.Now
	}
	return &Compressor{memories: memories, summarizer: summarizer, now: now}
}

// Run compresses items beyond the raw tier: the next RecentTierSize items
// compress to RecentCompressionRatio, everything older compresses to
// ArchiveCompressionRatio. Within each tier, only the top
// ImportanceSelectFraction by importance score are summarized (the rest
// are left marked uncompressed until a later pass catches them, matching
// the spec's "picks the top 30%" step without silently dropping the
// remainder).
func (c *Compressor) Run(ctx context.Context, sessionID string, items []*types.WorkingMemoryItem) error {
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	if len(items) <= RawTierSize {
		return nil // nothing beyond the hot tier yet
	}
	recent := items[RawTierSize:]
	var recentTier, archiveTier []*types.WorkingMemoryItem
	if len(recent) > RecentTierSize {
		recentTier = recent[:RecentTierSize]
		archiveTier = recent[RecentTierSize:]
	} else {
		recentTier = recent
	}

	if len(recentTier) > 0 {
		if err := c.compressTier(ctx, sessionID, recentTier, RecentCompressionRatio, "compressed_recent"); err != nil {
			return err
		}
	}
	if len(archiveTier) > 0 {
		if err := c.compressTier(ctx, sessionID, archiveTier, ArchiveCompressionRatio, "compressed_archive"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compressor) compressTier(ctx context.Context, sessionID string, tier []*types.WorkingMemoryItem, ratio float64, category string) error {
	if len(tier) == 0 {
		return nil
	}

	oldest, newest := tier[0].CreatedAt, tier[0].CreatedAt
	maxLen := 0
	for _, it := range tier {
		if it.CreatedAt.Before(oldest) {
			oldest = it.CreatedAt
		}
		if it.CreatedAt.After(newest) {
			newest = it.CreatedAt
		}
		if l := len(renderWorkingValue(it)); l > maxLen {
			maxLen = l
		}
	}

	type scored struct {
		item  *types.WorkingMemoryItem
		score float64
	}
	ranked := make([]scored, len(tier))
	for i, it := range tier {
		ranked[i] = scored{item: it, score: scoreImportance(it, oldest, newest, maxLen)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	keep := int(float64(len(ranked)) * ImportanceSelectFraction)
	if keep == 0 && len(ranked) > 0 {
		keep = 1
	}
	selected := ranked[:keep]

	texts := make([]string, len(selected))
	for i, s := range selected {
		texts[i] = renderWorkingValue(s.item)
	}

	summaryText, err := c.summarizer.Summarize(ctx, texts, ratio)
	if err != nil {
		return errs.Internal(err, "summarize %s tier for session %q", category, sessionID)
	}

	summaryID := uuid.NewString()
	if err := c.memories.PutSemantic(ctx, &types.SemanticMemory{
		ID:        summaryID,
		Content:   summaryText,
		Category:  category,
		CreatedAt: c.now(),
	}); err != nil {
		return errs.Internal(err, "persist %s summary for session %q", category, sessionID)
	}

	for _, s := range selected {
		s.item.Compressed = true
		s.item.SummaryID = summaryID
		if err := c.memories.PutWorking(ctx, s.item); err != nil {
			return errs.Internal(err, "mark working memory item %q compressed", s.item.Key)
		}
	}
	return nil
}
