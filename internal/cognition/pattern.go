package cognition

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Pattern recognition thresholds (§4.5 "Pattern recognition").
const (
	PatternWindowDays         = 30
	FrequencyThreshold        = 5    // occurrences in the window
	GrowthRateThreshold       = 2.0  // recent-half vs historical-half ratio
	TemporalConcentrationMax  = 0.3  // fraction of a topic's hits in one hour bucket
	KnowledgeGapRepeatMinimum = 3    // repeated unanswered questions
)

var questionPattern = regexp.MustCompile(`\?\s*$`)

// topicPattern extracts a coarse keyword: the longest word in the text,
// lowercased. A real deployment would plug in a proper topic extractor;
// this is the cheap heuristic the spec calls for ("keyword + regex +
// category heuristics") with no teacher precedent to imitate more closely.
func topicPattern(text string) string {
	best := ""
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 3 && len(w) > len(best) {
			best = w
		}
	}
	return best
}

// topicSample is one occurrence of a topic, used for frequency/growth/
// temporal analysis.
type topicSample struct {
	topic     string
	at        time.Time
	isUnanswered bool
}

// RecognizePatterns scans activities over PatternWindowDays and emits
// Pattern records for topics whose frequency, growth rate, repeated
// unanswered questions, or time-of-day concentration cross the spec's
// thresholds (§4.5 "Pattern recognition"). This is a batch job, invoked by
// the heartbeat scheduler, not per-message.
func RecognizePatterns(ctx context.Context, activities store.Activities, patterns store.Patterns, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	windowStart := now().AddDate(0, 0, -PatternWindowDays)

	var samples []topicSample
	cursor := ""
	for {
		page, err := activities.List(ctx, store.ActivityFilter{Since: windowStart}, store.Pagination{Cursor: cursor, Limit: 200})
		if err != nil {
			return err
		}
		for _, a := range page.Items {
			text, _ := a.Details["text"].(string)
			if text == "" {
				continue
			}
			topic := topicPattern(text)
			if topic == "" {
				continue
			}
			samples = append(samples, topicSample{
				topic:        topic,
				at:           a.CreatedAt,
				isUnanswered: questionPattern.MatchString(strings.TrimSpace(text)),
			})
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	byTopic := make(map[string][]topicSample)
	for _, s := range samples {
		byTopic[s.topic] = append(byTopic[s.topic], s)
	}

	for topic, occ := range byTopic {
		sort.Slice(occ, func(i, j int) bool { return occ[i].at.Before(occ[j].at) })

		var emitted []*types.Pattern
		if len(occ) >= FrequencyThreshold {
			emitted = append(emitted, newPattern(topic, "frequency", occ, now(), confidenceFromCount(len(occ), FrequencyThreshold)))
		}
		if growth := growthRate(occ, now()); growth >= GrowthRateThreshold {
			emitted = append(emitted, newPattern(topic, "emerging_interest", occ, now(), confidenceFromCount(int(growth), int(GrowthRateThreshold))))
		}
		if unanswered := countUnanswered(occ); unanswered >= KnowledgeGapRepeatMinimum {
			emitted = append(emitted, newPattern(topic, "knowledge_gap", occ, now(), confidenceFromCount(unanswered, KnowledgeGapRepeatMinimum)))
		}
		if conc := hourConcentration(occ); conc > TemporalConcentrationMax {
			emitted = append(emitted, newPattern(topic, "temporal", occ, now(), conc))
		}

		for _, p := range emitted {
			if err := patterns.Upsert(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func newPattern(topic, template string, occ []topicSample, now time.Time, confidence float64) *types.Pattern {
	examples := make([]string, 0, 3)
	for i := len(occ) - 1; i >= 0 && len(examples) < 3; i-- {
		examples = append(examples, occ[i].topic)
	}
	if confidence > 1 {
		confidence = 1
	}
	return &types.Pattern{
		ID:         uuid.NewString(),
		Signature:  topic + ":" + template,
		Template:   template,
		Examples:   examples,
		Confidence: confidence,
		UsageCount: len(occ),
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

func confidenceFromCount(count, threshold int) float64 {
	if threshold <= 0 {
		return 1
	}
	v := float64(count) / float64(threshold) / 2
	if v > 1 {
		return 1
	}
	return v
}

// growthRate compares occurrences in the most recent half of the window
// against the historical half, guarding divide-by-zero by treating a zero
// historical count as "no growth signal" (returns 0, below threshold).
func growthRate(occ []topicSample, now time.Time) float64 {
	mid := now.AddDate(0, 0, -PatternWindowDays/2)
	var recent, historical int
	for _, s := range occ {
		if s.at.After(mid) {
			recent++
		} else {
			historical++
		}
	}
	if historical == 0 {
		return 0
	}
	return float64(recent) / float64(historical)
}

func countUnanswered(occ []topicSample) int {
	n := 0
	for _, s := range occ {
		if s.isUnanswered {
			n++
		}
	}
	return n
}

// hourConcentration returns the fraction of occurrences that fall within
// the single most common hour-of-day bucket (§4.5: "time-of-day
// concentration > 30%").
func hourConcentration(occ []topicSample) float64 {
	if len(occ) == 0 {
		return 0
	}
	buckets := make(map[int]int)
	for _, s := range occ {
		buckets[s.at.Hour()]++
	}
	max := 0
	for _, n := range buckets {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(len(occ))
}
