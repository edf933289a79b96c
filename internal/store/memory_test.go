package store

import (
	"context"
	"testing"
	"time"

	"github.com/Najia-afk/aria-core/pkg/types"
)

// TestGoalsListOrdersByPriorityThenCreatedAtDescending exercises §8 scenario
// 1 directly: G1(pri=3), G2(pri=1), G3(pri=1, +1s), G4(pri=5) must list as
// [G3, G2, G1, G4] — priority ascending, created_at descending as tie-break.
func TestGoalsListOrdersByPriorityThenCreatedAtDescending(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()
	goals := []*types.Goal{
		{GoalID: "G1", Priority: 3, CreatedAt: base, UpdatedAt: base},
		{GoalID: "G2", Priority: 1, CreatedAt: base, UpdatedAt: base},
		{GoalID: "G3", Priority: 1, CreatedAt: base.Add(time.Second), UpdatedAt: base},
		{GoalID: "G4", Priority: 5, CreatedAt: base, UpdatedAt: base},
	}
	for _, g := range goals {
		if err := s.Goals().Create(context.Background(), g); err != nil {
			t.Fatalf("Create(%s) error = %v", g.GoalID, err)
		}
	}

	page, err := s.Goals().List(context.Background(), GoalFilter{}, Pagination{Limit: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var gotIDs []string
	for _, g := range page.Items {
		gotIDs = append(gotIDs, g.GoalID)
	}
	want := []string{"G3", "G2", "G1", "G4"}
	if len(gotIDs) != len(want) {
		t.Fatalf("List() returned %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("List() returned %v, want %v", gotIDs, want)
		}
	}
}

// TestGoalsListCursorResumesInPriorityOrder checks that pagination across a
// GoalCursor boundary continues from the correct spot rather than falling
// back to created_at ordering.
func TestGoalsListCursorResumesInPriorityOrder(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()
	goals := []*types.Goal{
		{GoalID: "G1", Priority: 3, CreatedAt: base, UpdatedAt: base},
		{GoalID: "G2", Priority: 1, CreatedAt: base, UpdatedAt: base},
		{GoalID: "G3", Priority: 1, CreatedAt: base.Add(time.Second), UpdatedAt: base},
		{GoalID: "G4", Priority: 5, CreatedAt: base, UpdatedAt: base},
	}
	for _, g := range goals {
		if err := s.Goals().Create(context.Background(), g); err != nil {
			t.Fatalf("Create(%s) error = %v", g.GoalID, err)
		}
	}

	first, err := s.Goals().List(context.Background(), GoalFilter{}, Pagination{Limit: 2})
	if err != nil {
		t.Fatalf("List() first page error = %v", err)
	}
	if first.NextCursor == "" {
		t.Fatal("expected a next cursor after the first page")
	}
	second, err := s.Goals().List(context.Background(), GoalFilter{}, Pagination{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("List() second page error = %v", err)
	}
	if len(second.Items) != 2 || second.Items[0].GoalID != "G1" || second.Items[1].GoalID != "G4" {
		t.Fatalf("List() second page = %+v, want [G1, G4]", second.Items)
	}
	if second.NextCursor != "" {
		t.Error("expected no next cursor once all goals are exhausted")
	}
}
