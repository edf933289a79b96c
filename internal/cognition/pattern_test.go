package cognition

import (
	"context"
	"testing"
	"time"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

func TestTopicPatternPicksLongestWord(t *testing.T) {
	if got := topicPattern("how do I configure deployment pipelines?"); got != "deployment" && got != "pipelines" && got != "configure" {
		t.Errorf("expected a plausible long keyword, got %q", got)
	}
	if got := topicPattern("a an is"); got != "" {
		t.Errorf("expected no keyword from only short words, got %q", got)
	}
}

func TestHourConcentration(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	occ := []topicSample{
		{at: base}, {at: base}, {at: base},
		{at: base.Add(10 * time.Hour)},
	}
	if got := hourConcentration(occ); got != 0.75 {
		t.Errorf("expected 3/4 = 0.75 concentration, got %v", got)
	}
}

func TestHourConcentrationEmpty(t *testing.T) {
	if got := hourConcentration(nil); got != 0 {
		t.Errorf("expected 0 for no occurrences, got %v", got)
	}
}

func TestGrowthRateNoHistoricalIsZero(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	occ := []topicSample{{at: now}}
	if got := growthRate(occ, now); got != 0 {
		t.Errorf("expected 0 growth with no historical occurrences, got %v", got)
	}
}

func TestCountUnanswered(t *testing.T) {
	occ := []topicSample{{isUnanswered: true}, {isUnanswered: false}, {isUnanswered: true}}
	if got := countUnanswered(occ); got != 2 {
		t.Errorf("expected 2 unanswered, got %d", got)
	}
}

func TestRecognizePatternsEmitsFrequencyPattern(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	for i := 0; i < FrequencyThreshold+2; i++ {
		err := st.Activities().Append(ctx, &types.Activity{
			ID:        "act-" + string(rune('a'+i)),
			Action:    "message",
			Details:   map[string]any{"text": "how do I configure deployment pipelines"},
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := RecognizePatterns(ctx, st.Activities(), st.Patterns(), func() time.Time { return now }); err != nil {
		t.Fatalf("RecognizePatterns() error = %v", err)
	}

	page, err := st.Patterns().List(ctx, store.Pagination{Limit: 50})
	if err != nil {
		t.Fatalf("Patterns().List() error = %v", err)
	}
	if len(page.Items) == 0 {
		t.Fatal("expected at least one pattern to be emitted for a frequently repeated topic")
	}
	found := false
	for _, p := range page.Items {
		if p.Template == "frequency" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a frequency-template pattern, got %+v", page.Items)
	}
}

func TestRecognizePatternsIgnoresActivitiesOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	for i := 0; i < FrequencyThreshold+2; i++ {
		err := st.Activities().Append(ctx, &types.Activity{
			ID:        "old-" + string(rune('a'+i)),
			Action:    "message",
			Details:   map[string]any{"text": "ancient unrelated conversation topic"},
			CreatedAt: now.AddDate(0, 0, -PatternWindowDays-5),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := RecognizePatterns(ctx, st.Activities(), st.Patterns(), func() time.Time { return now }); err != nil {
		t.Fatalf("RecognizePatterns() error = %v", err)
	}
	page, err := st.Patterns().List(ctx, store.Pagination{Limit: 50})
	if err != nil {
		t.Fatalf("Patterns().List() error = %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected no patterns from activities outside the window, got %d", len(page.Items))
	}
}

func TestRecognizePatternsSkipsActivitiesWithoutText(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := st.Activities().Append(ctx, &types.Activity{ID: "a1", Action: "ping", CreatedAt: now}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := RecognizePatterns(ctx, st.Activities(), st.Patterns(), func() time.Time { return now }); err != nil {
		t.Fatalf("RecognizePatterns() error = %v", err)
	}
}
