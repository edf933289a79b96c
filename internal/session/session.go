// Package session implements the session manager described in spec §4.4:
// the four-kind session taxonomy (main/subagent/cron/run), the protection
// invariant that forbids deleting a main session, working-memory
// checkpointing every N messages, startup reconciliation between an
// in-memory cache and the durable store, and a deletion flow that cancels
// in-flight work before marking the session pruned and leaving an audit
// trail.
//
// Grounded on the teacher's internal/sessions package: store.go (CRUD
// surface shape), expiry.go (a nowFunc-injectable, config-driven checker
// pattern, reused here for reconciliation's time-window comparison), and
// compaction.go (trigger-on-threshold bookkeeping, reused here for the
// checkpoint-every-N-messages counter). The teacher's hierarchical session
// keys and multi-strategy compaction are generalized down to this core's
// simpler ParentSessionID field and its own cognition-pipeline-driven
// compression (internal/cognition), since session.Manager only owns session
// lifecycle, not message compaction.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// DefaultCheckpointEvery matches §4.4's default working-memory checkpoint
// cadence.
const DefaultCheckpointEvery = 5

// DefaultReconcileWindow is the §4.4 startup reconciliation threshold: a
// cached session fresher than this wins over the store; at or beyond it,
// the store (the more durable source) wins.
const DefaultReconcileWindow = time.Minute

// Manager owns session lifecycle: creation, liveness tracking, checkpoint
// triggers, and deletion (subject to the protection invariant).
type Manager struct {
	mu sync.Mutex

	sessions   store.Sessions
	memories   store.Memories
	activities store.Activities

	now             func() time.Time
	checkpointEvery int
	reconcileWindow time.Duration

	counters map[string]int                // sessionID -> messages since last checkpoint
	cancels  map[string]context.CancelFunc // sessionID -> in-flight work canceller
}

// Option configures a Manager at construction time.
type Option func(*Manager)

func WithNow(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

func WithCheckpointEvery(n int) Option {
	return func(m *Manager) { m.checkpointEvery = n }
}

func WithReconcileWindow(d time.Duration) Option {
	return func(m *Manager) { m.reconcileWindow = d }
}

// New builds a Manager backed by the store facade's session, memory, and
// activity sub-stores.
func New(sessions store.Sessions, memories store.Memories, activities store.Activities, opts ...Option) *Manager {
	m := &Manager{
		sessions:        sessions,
		memories:        memories,
		activities:      activities,
		now:             time.Now,
		checkpointEvery: DefaultCheckpointEvery,
		reconcileWindow: DefaultReconcileWindow,
		counters:        make(map[string]int),
		cancels:         make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session of the given kind, optionally parented to an
// existing session (subagent/run sessions usually are; main sessions
// usually are not).
func (m *Manager) Create(ctx context.Context, kind types.SessionKind, agentID, parentSessionID string) (*types.Session, error) {
	if agentID == "" {
		return nil, errs.Configuration("agent id is required to create a session")
	}
	now := m.now()
	s := &types.Session{
		SessionID:       uuid.NewString(),
		Kind:            kind,
		ParentSessionID: parentSessionID,
		AgentID:         agentID,
		CreatedAt:       now,
		LastActiveAt:    now,
		State:           types.SessionActive,
	}
	if err := m.sessions.Upsert(ctx, s); err != nil {
		return nil, errs.Internal(err, "create session")
	}
	return s, nil
}

// Get fetches a session's current persisted state.
func (m *Manager) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	s, err := m.sessions.FetchState(ctx, sessionID)
	if err != nil {
		return nil, errs.Internal(err, "fetch session %q", sessionID)
	}
	return s, nil
}

// Touch refreshes a session's LastActiveAt without counting toward a
// checkpoint (e.g. on a lightweight liveness probe).
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.LastActiveAt = m.now()
	if err := m.sessions.Upsert(ctx, s); err != nil {
		return errs.Internal(err, "touch session %q", sessionID)
	}
	return nil
}

// RegisterCancel records the cancellation function for a session's
// in-flight work, so Delete can stop it before marking the session pruned.
func (m *Manager) RegisterCancel(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[sessionID] = cancel
}

// RecordMessage bumps a session's message counter and, once it reaches
// checkpointEvery, persists a working-memory checkpoint marker and resets
// the counter. The returned bool reports whether a checkpoint fired.
func (m *Manager) RecordMessage(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	m.counters[sessionID]++
	count := m.counters[sessionID]
	m.mu.Unlock()

	if err := m.Touch(ctx, sessionID); err != nil {
		return false, err
	}

	if count < m.checkpointEvery {
		return false, nil
	}

	if err := m.checkpoint(ctx, sessionID); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.counters[sessionID] = 0
	m.mu.Unlock()
	return true, nil
}

func (m *Manager) checkpoint(ctx context.Context, sessionID string) error {
	item := &types.WorkingMemoryItem{
		Key:        "checkpoint:last",
		Value:      m.now().Format(time.RFC3339),
		Category:   "checkpoint",
		Importance: 0.2,
		CreatedAt:  m.now(),
		AccessedAt: m.now(),
		SessionID:  sessionID,
	}
	if err := m.memories.PutWorking(ctx, item); err != nil {
		return errs.Internal(err, "checkpoint session %q", sessionID)
	}
	return nil
}

// Delete enforces the protection invariant (§4.4: a main session can never
// be deleted), cancels any registered in-flight work, marks the session
// pruned in the store (the session row and its working memory are kept),
// and leaves an audit activity row.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Protected() {
		return errs.Protected("session %q is a protected main session and cannot be deleted", sessionID)
	}

	m.mu.Lock()
	cancel, hasCancel := m.cancels[sessionID]
	delete(m.cancels, sessionID)
	delete(m.counters, sessionID)
	m.mu.Unlock()
	if hasCancel && cancel != nil {
		cancel()
	}

	if err := m.sessions.MarkPruned(ctx, sessionID); err != nil {
		return errs.Internal(err, "delete session %q", sessionID)
	}

	_ = m.activities.Append(ctx, &types.Activity{
		ID:        uuid.NewString(),
		Action:    "session_deleted",
		Details:   map[string]any{"session_id": sessionID, "kind": string(s.Kind)},
		SessionID: sessionID,
		CreatedAt: m.now(),
	})
	return nil
}

// Prune sweeps sessions whose LastActiveAt is older than maxAgeMinutes,
// marking each non-protected one pruned via the store (§4.4's
// prune(max_age_minutes)). A protected main session is excluded from the
// sweep entirely, matching Delete's protection invariant, rather than being
// attempted and counted as a failure. It returns how many sessions were
// pruned.
func (m *Manager) Prune(ctx context.Context, maxAgeMinutes int) (int, error) {
	cutoff := m.now().Add(-time.Duration(maxAgeMinutes) * time.Minute)
	stale, err := m.sessions.ListStaleBefore(ctx, cutoff)
	if err != nil {
		return 0, errs.Internal(err, "list stale sessions for prune")
	}

	pruned := 0
	for _, s := range stale {
		if s.Protected() {
			continue
		}
		if err := m.sessions.MarkPruned(ctx, s.SessionID); err != nil {
			return pruned, errs.Internal(err, "prune session %q", s.SessionID)
		}
		m.mu.Lock()
		delete(m.counters, s.SessionID)
		delete(m.cancels, s.SessionID)
		m.mu.Unlock()
		_ = m.activities.Append(ctx, &types.Activity{
			ID:        uuid.NewString(),
			Action:    "session_pruned",
			Details:   map[string]any{"session_id": s.SessionID, "kind": string(s.Kind)},
			SessionID: s.SessionID,
			CreatedAt: m.now(),
		})
		pruned++
	}
	return pruned, nil
}

// Reconcile merges a cached (in-memory) snapshot of recently active
// sessions against the store's view on startup (§4.4). For each session
// known to both sides, the cache wins if it is fresher than
// reconcileWindow relative to the store's LastActiveAt; otherwise the
// store (the durable source of truth) wins. Sessions known only to the
// store are passed through unchanged; sessions known only to the cache are
// dropped, since the store is authoritative for what exists.
func (m *Manager) Reconcile(ctx context.Context, cached []*types.Session) ([]*types.Session, error) {
	fromStore, err := m.sessions.ListActiveWithin(ctx, 24*60)
	if err != nil {
		return nil, errs.Internal(err, "list active sessions for reconciliation")
	}

	cachedByID := make(map[string]*types.Session, len(cached))
	for _, s := range cached {
		cachedByID[s.SessionID] = s
	}

	out := make([]*types.Session, 0, len(fromStore))
	for _, storeSess := range fromStore {
		cachedSess, ok := cachedByID[storeSess.SessionID]
		if !ok {
			out = append(out, storeSess)
			continue
		}
		diff := cachedSess.LastActiveAt.Sub(storeSess.LastActiveAt)
		if diff < 0 {
			diff = -diff
		}
		if diff < m.reconcileWindow && cachedSess.LastActiveAt.After(storeSess.LastActiveAt) {
			out = append(out, cachedSess)
			if err := m.sessions.Upsert(ctx, cachedSess); err != nil {
				return nil, errs.Internal(err, "persist reconciled session %q", cachedSess.SessionID)
			}
			continue
		}
		out = append(out, storeSess)
	}
	return out, nil
}
