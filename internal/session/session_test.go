package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

func newTestManager(st *store.MemoryStore) *Manager {
	return New(st.Sessions(), st.Memories(), st.Activities())
}

func TestCreateAssignsKindAndActiveState(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(st)

	s, err := m.Create(context.Background(), types.SessionMain, "agent-1", "")
	require.NoError(t, err)
	assert.Equal(t, types.SessionMain, s.Kind)
	assert.Equal(t, types.SessionActive, s.State)
	assert.NotEmpty(t, s.SessionID)
}

func TestDeleteRefusesProtectedMainSession(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(st)

	s, err := m.Create(context.Background(), types.SessionMain, "agent-1", "")
	require.NoError(t, err)

	err = m.Delete(context.Background(), s.SessionID)
	require.Error(t, err)
	assert.Equal(t, errs.KindProtected, errs.KindOf(err))
}

func TestDeleteRemovesNonMainSessionAndCancelsInFlightWork(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(st)

	s, err := m.Create(context.Background(), types.SessionSubagent, "agent-1", "parent")
	require.NoError(t, err)

	cancelled := false
	_, cancel := context.WithCancel(context.Background())
	m.RegisterCancel(s.SessionID, func() { cancelled = true; cancel() })

	require.NoError(t, m.Delete(context.Background(), s.SessionID))
	assert.True(t, cancelled)

	after, err := m.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionPruned, after.State)
}

func TestRecordMessageCheckpointsEveryNMessages(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(st)
	m.checkpointEvery = 3

	s, err := m.Create(context.Background(), types.SessionMain, "agent-1", "")
	require.NoError(t, err)

	checkpointed, err := m.RecordMessage(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.False(t, checkpointed)

	checkpointed, err = m.RecordMessage(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.False(t, checkpointed)

	checkpointed, err = m.RecordMessage(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.True(t, checkpointed)

	item, err := st.Memories().GetWorking(context.Background(), s.SessionID, "checkpoint:last")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", item.Category)
}

func TestPruneSweepsStaleNonProtectedSessionsOnly(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	m := New(st.Sessions(), st.Memories(), st.Activities(), WithNow(func() time.Time { return now }))
	ctx := context.Background()

	staleSubagent, err := m.Create(ctx, types.SessionSubagent, "agent-1", "parent")
	require.NoError(t, err)
	staleSubagent.LastActiveAt = now.Add(-48 * time.Hour)
	require.NoError(t, st.Sessions().Upsert(ctx, staleSubagent))

	freshSubagent, err := m.Create(ctx, types.SessionSubagent, "agent-1", "parent")
	require.NoError(t, err)
	freshSubagent.LastActiveAt = now.Add(-time.Minute)
	require.NoError(t, st.Sessions().Upsert(ctx, freshSubagent))

	staleMain, err := m.Create(ctx, types.SessionMain, "agent-1", "")
	require.NoError(t, err)
	staleMain.LastActiveAt = now.Add(-48 * time.Hour)
	require.NoError(t, st.Sessions().Upsert(ctx, staleMain))

	pruned, err := m.Prune(ctx, 24*60)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	after, err := m.Get(ctx, staleSubagent.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionPruned, after.State)

	after, err = m.Get(ctx, freshSubagent.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, after.State, "a session younger than the cutoff must not be pruned")

	after, err = m.Get(ctx, staleMain.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, after.State, "a protected main session must be excluded from the sweep")
}

func TestPruneReturnsZeroWhenNothingIsStale(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(st)
	ctx := context.Background()

	s, err := m.Create(ctx, types.SessionSubagent, "agent-1", "parent")
	require.NoError(t, err)

	pruned, err := m.Prune(ctx, 24*60)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	after, err := m.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, after.State)
}

func TestReconcilePrefersFreshCacheWithinWindow(t *testing.T) {
	st := store.NewMemoryStore()
	// memorySessions.ListActiveWithin windows against the real wall clock,
	// so the fixture times must be anchored to it rather than an injected
	// clock.
	now := time.Now()
	m := New(st.Sessions(), st.Memories(), st.Activities(), WithNow(func() time.Time { return now }))

	stored := &types.Session{
		SessionID:    "s1",
		Kind:         types.SessionMain,
		AgentID:      "agent-1",
		CreatedAt:    now.Add(-time.Hour),
		LastActiveAt: now.Add(-30 * time.Second),
		State:        types.SessionActive,
	}
	require.NoError(t, st.Sessions().Upsert(context.Background(), stored))

	cached := &types.Session{
		SessionID:    "s1",
		Kind:         types.SessionMain,
		AgentID:      "agent-1",
		CreatedAt:    stored.CreatedAt,
		LastActiveAt: now, // fresher than store, within the 1 minute window
		State:        types.SessionActive,
	}

	merged, err := m.Reconcile(context.Background(), []*types.Session{cached})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, now, merged[0].LastActiveAt)
}

func TestReconcileFallsBackToStoreOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	m := New(st.Sessions(), st.Memories(), st.Activities(), WithNow(func() time.Time { return now }))

	stored := &types.Session{
		SessionID:    "s1",
		Kind:         types.SessionMain,
		AgentID:      "agent-1",
		CreatedAt:    now.Add(-time.Hour),
		LastActiveAt: now,
		State:        types.SessionActive,
	}
	require.NoError(t, st.Sessions().Upsert(context.Background(), stored))

	cached := &types.Session{
		SessionID:    "s1",
		Kind:         types.SessionMain,
		AgentID:      "agent-1",
		CreatedAt:    stored.CreatedAt,
		LastActiveAt: now.Add(-10 * time.Minute), // stale cache
		State:        types.SessionActive,
	}

	merged, err := m.Reconcile(context.Background(), []*types.Session{cached})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, now, merged[0].LastActiveAt)
}
