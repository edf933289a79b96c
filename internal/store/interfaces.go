// Package store is the typed facade over the persistent store described in
// spec §4.7. Skills must not speak the database protocol directly; every
// persistent access in the core flows through the Store interface.
package store

import (
	"context"
	"time"

	"github.com/Najia-afk/aria-core/pkg/types"
)

// GoalFilter narrows Goals.List.
type GoalFilter struct {
	Status      types.GoalStatus
	SprintID    string
	BoardColumn string
}

// ActivityFilter narrows Activities.List.
type ActivityFilter struct {
	SessionID string
	Action    string
	Since     time.Time
}

// InvocationFilter narrows SkillInvocations.List.
type InvocationFilter struct {
	Skill     string
	SessionID string
	Success   *bool
}

// Goals groups goal-board persistence operations.
type Goals interface {
	Create(ctx context.Context, g *types.Goal) error
	Get(ctx context.Context, id string) (*types.Goal, error)
	List(ctx context.Context, filter GoalFilter, page Pagination) (Page[*types.Goal], error)
	UpdateStatus(ctx context.Context, id string, status types.GoalStatus) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	MoveBoard(ctx context.Context, id, column string, position int) error
}

// Activities groups the append-only activity log operations.
type Activities interface {
	Append(ctx context.Context, a *types.Activity) error
	List(ctx context.Context, filter ActivityFilter, page Pagination) (Page[*types.Activity], error)
}

// Memories groups working-memory and semantic-memory operations.
type Memories interface {
	PutWorking(ctx context.Context, item *types.WorkingMemoryItem) error
	GetWorking(ctx context.Context, sessionID, key string) (*types.WorkingMemoryItem, error)
	TouchWorking(ctx context.Context, sessionID, key string) error
	PruneWorking(ctx context.Context, sessionID string, olderThan time.Duration) (int, error)

	PutSemantic(ctx context.Context, m *types.SemanticMemory) error
	SearchSemantic(ctx context.Context, embedding []float32, k int, minImportance float64, category string) ([]*types.SemanticMemory, error)

	// SummarizeSession returns working-memory items touched within the last
	// hoursBack hours, for compaction and compression (§4.5).
	SummarizeSession(ctx context.Context, sessionID string, hoursBack int) ([]*types.WorkingMemoryItem, error)
}

// Sessions groups session persistence operations.
type Sessions interface {
	Upsert(ctx context.Context, s *types.Session) error
	ListActiveWithin(ctx context.Context, minutes int) ([]*types.Session, error)
	// ListStaleBefore returns active sessions last touched before cutoff,
	// the candidate set for session.Manager.Prune (§4.4's prune(max_age_minutes)).
	ListStaleBefore(ctx context.Context, cutoff time.Time) ([]*types.Session, error)
	MarkPruned(ctx context.Context, sessionID string) error
	FetchState(ctx context.Context, sessionID string) (*types.Session, error)
}

// SkillInvocations groups tool-invocation audit persistence.
type SkillInvocations interface {
	Append(ctx context.Context, inv *types.ToolInvocation) error
	List(ctx context.Context, filter InvocationFilter, page Pagination) (Page[*types.ToolInvocation], error)
}

// Knowledge groups knowledge-graph persistence and traversal.
type Knowledge interface {
	UpsertEntity(ctx context.Context, e *types.KnowledgeEntity) error
	UpsertRelation(ctx context.Context, r *types.KnowledgeRelation) error
	Traverse(ctx context.Context, start string, maxDepth int, relationType string) ([]*types.KnowledgeEntity, []*types.KnowledgeRelation, error)
	// ClearAutoGenerated hard-deletes every auto_generated=true entity and
	// relation (§9 open question, resolved as hard-delete), so re-sync is
	// idempotent (§8 "Idempotent knowledge sync").
	ClearAutoGenerated(ctx context.Context) error
}

// Jobs groups scheduled-job persistence (operational state only; the
// schedule/command declaration's source of truth is config — §9).
type Jobs interface {
	Upsert(ctx context.Context, j *types.ScheduledJob) error
	List(ctx context.Context) ([]*types.ScheduledJob, error)
	MarkLastRun(ctx context.Context, jobID string, at time.Time, lastErr string) error
}

// Patterns groups persistence for the §4.5 pattern recognition batch job's
// output (§3 "Pattern"). §4.7 does not name this group explicitly, but §3
// defines Pattern as a stored analysis result, so the facade needs
// somewhere to put it; this mirrors the shape of the other append/list
// sub-interfaces rather than inventing a new access pattern.
type Patterns interface {
	Upsert(ctx context.Context, p *types.Pattern) error
	List(ctx context.Context, page Pagination) (Page[*types.Pattern], error)
}

// Store is the complete facade. Every field is independently swappable so
// components can depend on just the sub-interface they need.
type Store interface {
	Goals() Goals
	Activities() Activities
	Memories() Memories
	Sessions() Sessions
	SkillInvocations() SkillInvocations
	Knowledge() Knowledge
	Jobs() Jobs
	Patterns() Patterns

	// Close releases any underlying resources (DB pool, vector index).
	Close() error
}
