package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// PoolConfig configures the Postgres connection pool (grounded on the
// teacher's storage.CockroachConfig: same fields, same defaults).
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig mirrors the teacher's DefaultCockroachConfig.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore is the production Store backend (§6 schema).
type PostgresStore struct {
	db *sql.DB

	goals      *pgGoals
	activities *pgActivities
	memories   *pgMemories
	sessions   *pgSessions
	invocs     *pgInvocations
	knowledge  *pgKnowledge
	jobs       *pgJobs
	patterns   *pgPatterns
}

// NewPostgresStore opens a connection pool against dsn and verifies
// connectivity with a bounded ping, the way the teacher's
// NewCockroachStoresFromDSN does.
func NewPostgresStore(dsn string, cfg *PoolConfig) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errs.Configuration("store dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errs.Unavailable("open store connection: %v", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Unavailable("ping store: %v", err)
	}

	return &PostgresStore{
		db:         db,
		goals:      &pgGoals{db: db},
		activities: &pgActivities{db: db},
		memories:   &pgMemories{db: db},
		sessions:   &pgSessions{db: db},
		invocs:     &pgInvocations{db: db},
		knowledge:  &pgKnowledge{db: db},
		jobs:       &pgJobs{db: db},
		patterns:   &pgPatterns{db: db},
	}, nil
}

func (s *PostgresStore) Goals() Goals                       { return s.goals }
func (s *PostgresStore) Activities() Activities             { return s.activities }
func (s *PostgresStore) Memories() Memories                 { return s.memories }
func (s *PostgresStore) Sessions() Sessions                 { return s.sessions }
func (s *PostgresStore) SkillInvocations() SkillInvocations { return s.invocs }
func (s *PostgresStore) Knowledge() Knowledge                { return s.knowledge }
func (s *PostgresStore) Jobs() Jobs                         { return s.jobs }
func (s *PostgresStore) Patterns() Patterns                 { return s.patterns }
func (s *PostgresStore) Close() error                       { return s.db.Close() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// buildCursorClause appends the (created_at, id) keyset predicate and
// ORDER/LIMIT to base, which callers build as "... WHERE 1=1 [AND ...]" so a
// trailing "AND" is always well-formed. It requests one extra row so the
// caller can tell whether a further page remains (packPage trims it back).
func buildCursorClause(base string, args []any, p Pagination) (string, []any, int, error) {
	cursor, err := DecodeCursor(p.Cursor)
	if err != nil {
		return "", nil, 0, errs.Validation("malformed pagination cursor: %v", err)
	}
	limit := p.limitOrDefault()
	q := base
	if p.Cursor != "" {
		args = append(args, cursor.CreatedAt, cursor.ID)
		q += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", len(args))
	return q, args, limit, nil
}

// buildGoalCursorClause is Goals.List's own keyset predicate and ORDER/LIMIT,
// distinct from buildCursorClause: §3's Goal invariants order goals by
// priority ascending with created_at descending as tie-break, not by the
// facade's general (created_at, id) order, so the keyset comparison can't
// use a simple row-value "> (a, b)" trick (created_at sorts the opposite
// direction from priority/id).
func buildGoalCursorClause(base string, args []any, p Pagination) (string, []any, int, error) {
	cursor, err := DecodeGoalCursor(p.Cursor)
	if err != nil {
		return "", nil, 0, errs.Validation("malformed pagination cursor: %v", err)
	}
	limit := p.limitOrDefault()
	q := base
	if p.Cursor != "" {
		args = append(args, cursor.Priority, cursor.CreatedAt, cursor.ID)
		pPos, cPos, iPos := len(args)-2, len(args)-1, len(args)
		q += fmt.Sprintf(
			" AND (priority > $%d OR (priority = $%d AND created_at < $%d) OR (priority = $%d AND created_at = $%d AND id > $%d))",
			pPos, pPos, cPos, pPos, cPos, iPos,
		)
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(" ORDER BY priority ASC, created_at DESC, id ASC LIMIT $%d", len(args))
	return q, args, limit, nil
}

// packGoalPage mirrors packPage but keys the next cursor off (priority,
// created_at, id), matching buildGoalCursorClause's ordering.
func packGoalPage(items []*types.Goal, limit int) Page[*types.Goal] {
	page := Page[*types.Goal]{}
	if len(items) > limit {
		last := items[limit-1]
		page.NextCursor = GoalCursor{Priority: last.Priority, CreatedAt: last.CreatedAt, ID: last.GoalID}.Encode()
		items = items[:limit]
	}
	page.Items = items
	return page
}

// --- Goals -----------------------------------------------------------------

type pgGoals struct{ db *sql.DB }

func (g *pgGoals) Create(ctx context.Context, goal *types.Goal) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO goals (goal_id, title, description, status, priority, progress, due_at,
			parent_goal_id, sprint_id, board_column, position, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		goal.GoalID, goal.Title, goal.Description, goal.Status, goal.Priority, goal.Progress,
		nullTime(goal.DueAt), nullString(goal.ParentGoalID), nullString(goal.SprintID),
		nullString(goal.BoardColumn), goal.Position, goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Duplicate("goal %q already exists", goal.GoalID)
		}
		return errs.Internal(err, "create goal")
	}
	return nil
}

func (g *pgGoals) scanGoal(row interface {
	Scan(dest ...any) error
}) (*types.Goal, error) {
	var goal types.Goal
	var dueAt, completedAt sql.NullTime
	var parentID, sprintID, column sql.NullString
	if err := row.Scan(
		&goal.GoalID, &goal.Title, &goal.Description, &goal.Status, &goal.Priority, &goal.Progress,
		&dueAt, &parentID, &sprintID, &column, &goal.Position, &goal.CreatedAt, &completedAt, &goal.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("goal not found")
		}
		return nil, errs.Internal(err, "scan goal")
	}
	goal.DueAt = timePtr(dueAt)
	goal.CompletedAt = timePtr(completedAt)
	goal.ParentGoalID = parentID.String
	goal.SprintID = sprintID.String
	goal.BoardColumn = column.String
	return &goal, nil
}

const goalColumns = `goal_id, title, description, status, priority, progress, due_at,
	parent_goal_id, sprint_id, board_column, position, created_at, completed_at, updated_at`

func (g *pgGoals) Get(ctx context.Context, id string) (*types.Goal, error) {
	row := g.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE goal_id = $1`, id)
	return g.scanGoal(row)
}

func (g *pgGoals) List(ctx context.Context, filter GoalFilter, page Pagination) (Page[*types.Goal], error) {
	base := `SELECT ` + goalColumns + ` FROM goals WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SprintID != "" {
		args = append(args, filter.SprintID)
		base += fmt.Sprintf(" AND sprint_id = $%d", len(args))
	}
	if filter.BoardColumn != "" {
		args = append(args, filter.BoardColumn)
		base += fmt.Sprintf(" AND board_column = $%d", len(args))
	}

	// §3 Goal invariants: priority ascending, created_at descending as
	// tie-break, not the facade's general (created_at, id) order, so Goals
	// gets its own cursor clause rather than buildCursorClause.
	q, args, limit, err := buildGoalCursorClause(base, args, page)
	if err != nil {
		return Page[*types.Goal]{}, err
	}
	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Page[*types.Goal]{}, errs.Internal(err, "list goals")
	}
	defer rows.Close()

	var items []*types.Goal
	for rows.Next() {
		goal, err := g.scanGoal(rows)
		if err != nil {
			return Page[*types.Goal]{}, err
		}
		items = append(items, goal)
	}
	if err := rows.Err(); err != nil {
		return Page[*types.Goal]{}, errs.Internal(err, "list goals")
	}
	return packGoalPage(items, limit), nil
}

func (g *pgGoals) UpdateStatus(ctx context.Context, id string, status types.GoalStatus) error {
	var completedAt any
	if status == types.GoalCompleted {
		completedAt = time.Now()
	}
	res, err := g.db.ExecContext(ctx, `
		UPDATE goals SET status = $1, completed_at = $2, updated_at = now() WHERE goal_id = $3
	`, status, completedAt, id)
	if err != nil {
		return errs.Internal(err, "update goal status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("goal %q not found", id)
	}
	return nil
}

func (g *pgGoals) UpdateProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return errs.Validation("progress must be within 0..100")
	}
	res, err := g.db.ExecContext(ctx, `
		UPDATE goals SET progress = $1, updated_at = now() WHERE goal_id = $2
	`, progress, id)
	if err != nil {
		return errs.Internal(err, "update goal progress")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("goal %q not found", id)
	}
	return nil
}

func (g *pgGoals) MoveBoard(ctx context.Context, id, column string, position int) error {
	res, err := g.db.ExecContext(ctx, `
		UPDATE goals SET board_column = $1, position = $2, updated_at = now() WHERE goal_id = $3
	`, column, position, id)
	if err != nil {
		return errs.Internal(err, "move goal")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("goal %q not found", id)
	}
	return nil
}

// packPage trims the fetch-one-extra result of buildCursorClause back down to
// limit items and derives NextCursor from the trailing item.
func packPage[T any](items []T, limit int, key func(T) (time.Time, string)) Page[T] {
	page := Page[T]{}
	if len(items) > limit {
		ca, id := key(items[limit-1])
		page.NextCursor = Cursor{CreatedAt: ca, ID: id}.Encode()
		items = items[:limit]
	}
	page.Items = items
	return page
}

// --- Activities --------------------------------------------------------------

type pgActivities struct{ db *sql.DB }

func (a *pgActivities) Append(ctx context.Context, act *types.Activity) error {
	details, err := json.Marshal(act.Details)
	if err != nil {
		return errs.Internal(err, "marshal activity details")
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO activities (id, action, details, session_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, act.ID, act.Action, details, nullString(act.SessionID), act.CreatedAt)
	if err != nil {
		return errs.Internal(err, "append activity")
	}
	return nil
}

func (a *pgActivities) List(ctx context.Context, filter ActivityFilter, page Pagination) (Page[*types.Activity], error) {
	base := `SELECT id, action, details, session_id, created_at FROM activities WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		base += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		base += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		base += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	q, args, limit, err := buildCursorClause(base, args, page)
	if err != nil {
		return Page[*types.Activity]{}, err
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Page[*types.Activity]{}, errs.Internal(err, "list activities")
	}
	defer rows.Close()

	var items []*types.Activity
	for rows.Next() {
		var act types.Activity
		var details []byte
		var sessionID sql.NullString
		if err := rows.Scan(&act.ID, &act.Action, &details, &sessionID, &act.CreatedAt); err != nil {
			return Page[*types.Activity]{}, errs.Internal(err, "scan activity")
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &act.Details)
		}
		act.SessionID = sessionID.String
		items = append(items, &act)
	}
	if err := rows.Err(); err != nil {
		return Page[*types.Activity]{}, errs.Internal(err, "list activities")
	}
	return packPage(items, limit, func(it *types.Activity) (time.Time, string) { return it.CreatedAt, it.ID }), nil
}

// --- Memories ----------------------------------------------------------------

type pgMemories struct{ db *sql.DB }

func (m *pgMemories) PutWorking(ctx context.Context, item *types.WorkingMemoryItem) error {
	value, err := json.Marshal(item.Value)
	if err != nil {
		return errs.Internal(err, "marshal working memory value")
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO working_memory (session_id, key, value, category, importance, created_at,
			accessed_at, access_count, compressed, summary_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id, key) DO UPDATE
		SET value = excluded.value, category = excluded.category, importance = excluded.importance,
			accessed_at = excluded.accessed_at, access_count = excluded.access_count,
			compressed = excluded.compressed, summary_id = excluded.summary_id
	`, item.SessionID, item.Key, value, item.Category, item.Importance, item.CreatedAt,
		item.AccessedAt, item.AccessCount, item.Compressed, nullString(item.SummaryID))
	if err != nil {
		return errs.Internal(err, "put working memory")
	}
	return nil
}

func (m *pgMemories) scanWorking(row interface{ Scan(dest ...any) error }) (*types.WorkingMemoryItem, error) {
	var item types.WorkingMemoryItem
	var value []byte
	var summaryID sql.NullString
	if err := row.Scan(&item.SessionID, &item.Key, &value, &item.Category, &item.Importance,
		&item.CreatedAt, &item.AccessedAt, &item.AccessCount, &item.Compressed, &summaryID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("working memory item not found")
		}
		return nil, errs.Internal(err, "scan working memory")
	}
	_ = json.Unmarshal(value, &item.Value)
	item.SummaryID = summaryID.String
	return &item, nil
}

const workingColumns = `session_id, key, value, category, importance, created_at, accessed_at, access_count, compressed, summary_id`

func (m *pgMemories) GetWorking(ctx context.Context, sessionID, key string) (*types.WorkingMemoryItem, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+workingColumns+` FROM working_memory WHERE session_id = $1 AND key = $2`, sessionID, key)
	return m.scanWorking(row)
}

func (m *pgMemories) TouchWorking(ctx context.Context, sessionID, key string) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE working_memory SET accessed_at = now(), access_count = access_count + 1
		WHERE session_id = $1 AND key = $2
	`, sessionID, key)
	if err != nil {
		return errs.Internal(err, "touch working memory")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("working memory item not found")
	}
	return nil
}

func (m *pgMemories) PruneWorking(ctx context.Context, sessionID string, olderThan time.Duration) (int, error) {
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM working_memory WHERE session_id = $1 AND accessed_at < $2 AND compressed = false
	`, sessionID, time.Now().Add(-olderThan))
	if err != nil {
		return 0, errs.Internal(err, "prune working memory")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (m *pgMemories) PutSemantic(ctx context.Context, mem *types.SemanticMemory) error {
	metadata, err := json.Marshal(mem.Metadata)
	if err != nil {
		return errs.Internal(err, "marshal semantic memory metadata")
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO semantic_memory (id, content, category, importance, metadata, embedding, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET content = excluded.content, category = excluded.category, importance = excluded.importance,
			metadata = excluded.metadata, embedding = excluded.embedding
	`, mem.ID, mem.Content, mem.Category, mem.Importance, metadata, pq.Array(mem.Embedding), mem.CreatedAt)
	if err != nil {
		return errs.Internal(err, "put semantic memory")
	}
	return nil
}

// SearchSemantic delegates vector ranking to the embedded-search extension
// (pgvector's <-> operator) when available. The Postgres backend stores
// embeddings as a float array and leaves the nearest-neighbor query to the
// schema's installed operator class; callers that need an operator-free
// fallback should use the chromem-go-backed VectorMemories (vector.go).
func (m *pgMemories) SearchSemantic(ctx context.Context, embedding []float32, k int, minImportance float64, category string) ([]*types.SemanticMemory, error) {
	base := `SELECT id, content, category, importance, metadata, created_at FROM semantic_memory
		WHERE importance >= $1`
	args := []any{minImportance}
	if category != "" {
		args = append(args, category)
		base += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, pq.Array(embedding), k)
	base += fmt.Sprintf(" ORDER BY embedding <-> $%d LIMIT $%d", len(args)-1, len(args))

	rows, err := m.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, errs.Internal(err, "search semantic memory")
	}
	defer rows.Close()

	var out []*types.SemanticMemory
	for rows.Next() {
		var mem types.SemanticMemory
		var metadata []byte
		if err := rows.Scan(&mem.ID, &mem.Content, &mem.Category, &mem.Importance, &metadata, &mem.CreatedAt); err != nil {
			return nil, errs.Internal(err, "scan semantic memory")
		}
		_ = json.Unmarshal(metadata, &mem.Metadata)
		out = append(out, &mem)
	}
	return out, rows.Err()
}

func (m *pgMemories) SummarizeSession(ctx context.Context, sessionID string, hoursBack int) ([]*types.WorkingMemoryItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+workingColumns+` FROM working_memory
		WHERE session_id = $1 AND accessed_at > $2
		ORDER BY created_at ASC
	`, sessionID, time.Now().Add(-time.Duration(hoursBack)*time.Hour))
	if err != nil {
		return nil, errs.Internal(err, "summarize session")
	}
	defer rows.Close()

	var out []*types.WorkingMemoryItem
	for rows.Next() {
		item, err := m.scanWorking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// --- Sessions ------------------------------------------------------------

type pgSessions struct{ db *sql.DB }

func (s *pgSessions) Upsert(ctx context.Context, sess *types.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, kind, parent_session_id, agent_id, created_at, last_active_at, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id) DO UPDATE
		SET last_active_at = excluded.last_active_at, state = excluded.state
	`, sess.SessionID, sess.Kind, nullString(sess.ParentSessionID), sess.AgentID,
		sess.CreatedAt, sess.LastActiveAt, sess.State)
	if err != nil {
		return errs.Internal(err, "upsert session")
	}
	return nil
}

func (s *pgSessions) ListActiveWithin(ctx context.Context, minutes int) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, parent_session_id, agent_id, created_at, last_active_at, state
		FROM sessions WHERE state = $1 AND last_active_at > $2
		ORDER BY last_active_at DESC
	`, types.SessionActive, time.Now().Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		return nil, errs.Internal(err, "list active sessions")
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *pgSessions) ListStaleBefore(ctx context.Context, cutoff time.Time) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, parent_session_id, agent_id, created_at, last_active_at, state
		FROM sessions WHERE state = $1 AND last_active_at < $2
		ORDER BY last_active_at ASC
	`, types.SessionActive, cutoff)
	if err != nil {
		return nil, errs.Internal(err, "list stale sessions")
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row interface{ Scan(dest ...any) error }) (*types.Session, error) {
	var sess types.Session
	var parentID sql.NullString
	if err := row.Scan(&sess.SessionID, &sess.Kind, &parentID, &sess.AgentID,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.State); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("session not found")
		}
		return nil, errs.Internal(err, "scan session")
	}
	sess.ParentSessionID = parentID.String
	return &sess, nil
}

func (s *pgSessions) MarkPruned(ctx context.Context, sessionID string) error {
	sess, err := s.FetchState(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Protected() {
		return errs.Protected("session %q is protected and cannot be pruned", sessionID)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET state = $1 WHERE session_id = $2`, types.SessionPruned, sessionID)
	if err != nil {
		return errs.Internal(err, "mark session pruned")
	}
	return nil
}

func (s *pgSessions) FetchState(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, kind, parent_session_id, agent_id, created_at, last_active_at, state
		FROM sessions WHERE session_id = $1
	`, sessionID)
	return scanSession(row)
}

// --- SkillInvocations ----------------------------------------------------

type pgInvocations struct{ db *sql.DB }

func (i *pgInvocations) Append(ctx context.Context, inv *types.ToolInvocation) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO skill_invocations (id, skill, tool, args_hash, success, latency_ms, tokens,
			error, session_id, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, inv.ID, inv.Skill, inv.Tool, inv.ArgsHash, inv.Success, inv.LatencyMs, inv.Tokens,
		inv.Error, nullString(inv.SessionID), inv.StartedAt, inv.EndedAt)
	if err != nil {
		return errs.Internal(err, "append skill invocation")
	}
	return nil
}

func (i *pgInvocations) List(ctx context.Context, filter InvocationFilter, page Pagination) (Page[*types.ToolInvocation], error) {
	base := `SELECT id, skill, tool, args_hash, success, latency_ms, tokens, error, session_id,
		started_at, ended_at FROM skill_invocations WHERE 1=1`
	var args []any
	if filter.Skill != "" {
		args = append(args, filter.Skill)
		base += fmt.Sprintf(" AND skill = $%d", len(args))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		base += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		base += fmt.Sprintf(" AND success = $%d", len(args))
	}

	// The cursor column for invocations is started_at, not created_at, so
	// buildCursorClause's generic "created_at" clause doesn't apply here;
	// invocations are ordered and paginated on started_at directly.
	cursor, err := DecodeCursor(page.Cursor)
	if err != nil {
		return Page[*types.ToolInvocation]{}, errs.Validation("malformed pagination cursor: %v", err)
	}
	limit := page.limitOrDefault()
	if page.Cursor != "" {
		args = append(args, cursor.CreatedAt, cursor.ID)
		base += fmt.Sprintf(" AND (started_at, id) > ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	base += fmt.Sprintf(" ORDER BY started_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := i.db.QueryContext(ctx, base, args...)
	if err != nil {
		return Page[*types.ToolInvocation]{}, errs.Internal(err, "list skill invocations")
	}
	defer rows.Close()

	var items []*types.ToolInvocation
	for rows.Next() {
		var inv types.ToolInvocation
		var sessionID sql.NullString
		var tokens sql.NullInt64
		if err := rows.Scan(&inv.ID, &inv.Skill, &inv.Tool, &inv.ArgsHash, &inv.Success, &inv.LatencyMs,
			&tokens, &inv.Error, &sessionID, &inv.StartedAt, &inv.EndedAt); err != nil {
			return Page[*types.ToolInvocation]{}, errs.Internal(err, "scan skill invocation")
		}
		if tokens.Valid {
			v := int(tokens.Int64)
			inv.Tokens = &v
		}
		inv.SessionID = sessionID.String
		items = append(items, &inv)
	}
	if err := rows.Err(); err != nil {
		return Page[*types.ToolInvocation]{}, errs.Internal(err, "list skill invocations")
	}
	return packPage(items, limit, func(it *types.ToolInvocation) (time.Time, string) { return it.StartedAt, it.ID }), nil
}

// --- Knowledge ---------------------------------------------------------------

type pgKnowledge struct{ db *sql.DB }

func (k *pgKnowledge) UpsertEntity(ctx context.Context, e *types.KnowledgeEntity) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return errs.Internal(err, "marshal entity properties")
	}
	_, err = k.db.ExecContext(ctx, `
		INSERT INTO knowledge_entities (id, name, entity_type, properties, auto_generated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, entity_type = excluded.entity_type, properties = excluded.properties,
			auto_generated = excluded.auto_generated
	`, e.ID, e.Name, e.EntityType, props, e.AutoGenerated, e.CreatedAt)
	if err != nil {
		return errs.Internal(err, "upsert knowledge entity")
	}
	return nil
}

func (k *pgKnowledge) UpsertRelation(ctx context.Context, r *types.KnowledgeRelation) error {
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return errs.Internal(err, "marshal relation properties")
	}
	_, err = k.db.ExecContext(ctx, `
		INSERT INTO knowledge_relations (id, from_id, to_id, relation_type, properties, auto_generated)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET from_id = excluded.from_id, to_id = excluded.to_id, relation_type = excluded.relation_type,
			properties = excluded.properties, auto_generated = excluded.auto_generated
	`, r.ID, r.FromID, r.ToID, r.RelationType, props, r.AutoGenerated)
	if err != nil {
		return errs.Internal(err, "upsert knowledge relation")
	}
	return nil
}

// Traverse walks the graph with a recursive CTE bounded by maxDepth, the
// Postgres-native equivalent of the in-memory BFS in memory.go.
func (k *pgKnowledge) Traverse(ctx context.Context, start string, maxDepth int, relationType string) ([]*types.KnowledgeEntity, []*types.KnowledgeRelation, error) {
	rows, err := k.db.QueryContext(ctx, `
		WITH RECURSIVE walk(id, depth) AS (
			SELECT $1::text, 0
			UNION ALL
			SELECT CASE WHEN r.from_id = walk.id THEN r.to_id ELSE r.from_id END, walk.depth + 1
			FROM knowledge_relations r
			JOIN walk ON walk.id IN (r.from_id, r.to_id)
			WHERE walk.depth < $2 AND ($3 = '' OR r.relation_type = $3)
		)
		SELECT DISTINCT id FROM walk
	`, start, maxDepth, relationType)
	if err != nil {
		return nil, nil, errs.Internal(err, "traverse knowledge graph")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, errs.Internal(err, "scan traversal id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, errs.Internal(err, "traverse knowledge graph")
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	entityRows, err := k.db.QueryContext(ctx, `
		SELECT id, name, entity_type, properties, auto_generated, created_at
		FROM knowledge_entities WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, nil, errs.Internal(err, "fetch traversed entities")
	}
	defer entityRows.Close()
	var entities []*types.KnowledgeEntity
	for entityRows.Next() {
		var e types.KnowledgeEntity
		var props []byte
		if err := entityRows.Scan(&e.ID, &e.Name, &e.EntityType, &props, &e.AutoGenerated, &e.CreatedAt); err != nil {
			return nil, nil, errs.Internal(err, "scan traversed entity")
		}
		_ = json.Unmarshal(props, &e.Properties)
		entities = append(entities, &e)
	}

	relRows, err := k.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, relation_type, properties, auto_generated
		FROM knowledge_relations WHERE from_id = ANY($1) OR to_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, nil, errs.Internal(err, "fetch traversed relations")
	}
	defer relRows.Close()
	var relations []*types.KnowledgeRelation
	for relRows.Next() {
		var r types.KnowledgeRelation
		var props []byte
		if err := relRows.Scan(&r.ID, &r.FromID, &r.ToID, &r.RelationType, &props, &r.AutoGenerated); err != nil {
			return nil, nil, errs.Internal(err, "scan traversed relation")
		}
		_ = json.Unmarshal(props, &r.Properties)
		relations = append(relations, &r)
	}
	return entities, relations, nil
}

func (k *pgKnowledge) ClearAutoGenerated(ctx context.Context) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Internal(err, "begin clear auto-generated knowledge")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_relations WHERE auto_generated = true`); err != nil {
		return errs.Internal(err, "clear auto-generated relations")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entities WHERE auto_generated = true`); err != nil {
		return errs.Internal(err, "clear auto-generated entities")
	}
	if err := tx.Commit(); err != nil {
		return errs.Internal(err, "commit clear auto-generated knowledge")
	}
	return nil
}

// --- Jobs ----------------------------------------------------------------

type pgJobs struct{ db *sql.DB }

func (j *pgJobs) Upsert(ctx context.Context, job *types.ScheduledJob) error {
	args, err := json.Marshal(job.Command.Args)
	if err != nil {
		return errs.Internal(err, "marshal job command args")
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (job_id, schedule, skill, tool, composite, args, delivery, enabled, last_run_at, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (job_id) DO UPDATE
		SET schedule = excluded.schedule, skill = excluded.skill, tool = excluded.tool,
			composite = excluded.composite, args = excluded.args, delivery = excluded.delivery,
			enabled = excluded.enabled
	`, job.JobID, job.Schedule, job.Command.Skill, job.Command.Tool, job.Command.Composite, args,
		job.Delivery, job.Enabled, nullTime(job.LastRunAt), job.LastError)
	if err != nil {
		return errs.Internal(err, "upsert scheduled job")
	}
	return nil
}

func (j *pgJobs) List(ctx context.Context) ([]*types.ScheduledJob, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT job_id, schedule, skill, tool, composite, args, delivery, enabled, last_run_at, last_error
		FROM scheduled_jobs ORDER BY job_id ASC
	`)
	if err != nil {
		return nil, errs.Internal(err, "list scheduled jobs")
	}
	defer rows.Close()

	var out []*types.ScheduledJob
	for rows.Next() {
		var job types.ScheduledJob
		var args []byte
		var lastRunAt sql.NullTime
		if err := rows.Scan(&job.JobID, &job.Schedule, &job.Command.Skill, &job.Command.Tool,
			&job.Command.Composite, &args, &job.Delivery, &job.Enabled, &lastRunAt, &job.LastError); err != nil {
			return nil, errs.Internal(err, "scan scheduled job")
		}
		_ = json.Unmarshal(args, &job.Command.Args)
		job.LastRunAt = timePtr(lastRunAt)
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (j *pgJobs) MarkLastRun(ctx context.Context, jobID string, at time.Time, lastErr string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET last_run_at = $1, last_error = $2 WHERE job_id = $3
	`, at, lastErr, jobID)
	if err != nil {
		return errs.Internal(err, "mark job last run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("job %q not found", jobID)
	}
	return nil
}

// --- Patterns --------------------------------------------------------------

type pgPatterns struct{ db *sql.DB }

func (p *pgPatterns) Upsert(ctx context.Context, pat *types.Pattern) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO patterns (id, signature, template, examples, confidence, usage_count, success_rate, created_at, last_used_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE
		SET signature = excluded.signature, template = excluded.template, examples = excluded.examples,
			confidence = excluded.confidence, usage_count = excluded.usage_count,
			success_rate = excluded.success_rate, last_used_at = excluded.last_used_at
	`, pat.ID, pat.Signature, pat.Template, pq.Array(pat.Examples), pat.Confidence, pat.UsageCount,
		pat.SuccessRate, pat.CreatedAt, pat.LastUsedAt)
	if err != nil {
		return errs.Internal(err, "upsert pattern")
	}
	return nil
}

func (p *pgPatterns) List(ctx context.Context, page Pagination) (Page[*types.Pattern], error) {
	base := `SELECT id, signature, template, examples, confidence, usage_count, success_rate, created_at, last_used_at FROM patterns WHERE 1=1`
	q, args, limit, err := buildCursorClause(base, nil, page)
	if err != nil {
		return Page[*types.Pattern]{}, err
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Page[*types.Pattern]{}, errs.Internal(err, "list patterns")
	}
	defer rows.Close()

	var items []*types.Pattern
	for rows.Next() {
		var pat types.Pattern
		if err := rows.Scan(&pat.ID, &pat.Signature, &pat.Template, pq.Array(&pat.Examples),
			&pat.Confidence, &pat.UsageCount, &pat.SuccessRate, &pat.CreatedAt, &pat.LastUsedAt); err != nil {
			return Page[*types.Pattern]{}, errs.Internal(err, "scan pattern")
		}
		items = append(items, &pat)
	}
	if err := rows.Err(); err != nil {
		return Page[*types.Pattern]{}, errs.Internal(err, "list patterns")
	}
	return packPage(items, limit, func(it *types.Pattern) (time.Time, string) { return it.CreatedAt, it.ID }), nil
}
