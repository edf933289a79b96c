package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// paginate applies cursor pagination to a slice already sorted ascending by
// (createdAt, id). It returns at most p.Limit items strictly after the
// cursor position, plus the next cursor when more remain.
func paginate[T any](items []T, createdAt func(T) time.Time, id func(T) string, p Pagination) (Page[T], error) {
	cursor, err := DecodeCursor(p.Cursor)
	if err != nil {
		return Page[T]{}, errs.Validation("malformed pagination cursor: %v", err)
	}
	limit := p.limitOrDefault()

	start := 0
	if p.Cursor != "" {
		start = sort.Search(len(items), func(i int) bool {
			ca := createdAt(items[i])
			if ca.After(cursor.CreatedAt) {
				return true
			}
			if ca.Equal(cursor.CreatedAt) {
				return id(items[i]) > cursor.ID
			}
			return false
		})
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	page := Page[T]{Items: append([]T{}, items[start:end]...)}
	if end < len(items) {
		last := items[end-1]
		page.NextCursor = Cursor{CreatedAt: createdAt(last), ID: id(last)}.Encode()
	}
	return page, nil
}

// MemoryStore is an in-process Store backend: every sub-interface is backed
// by a mutex-guarded map plus clone-on-read, the pattern the teacher uses
// for its job store. Intended for tests and single-process development, not
// for production durability.
type MemoryStore struct {
	goals      *memoryGoals
	activities *memoryActivities
	memories   *memoryMemories
	sessions   *memorySessions
	invocs     *memoryInvocations
	knowledge  *memoryKnowledge
	jobs       *memoryJobs
	patterns   *memoryPatterns
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		goals:      &memoryGoals{byID: make(map[string]*types.Goal)},
		activities: &memoryActivities{items: nil},
		memories: &memoryMemories{
			working:  make(map[string]map[string]*types.WorkingMemoryItem),
			semantic: make(map[string]*types.SemanticMemory),
		},
		sessions: &memorySessions{byID: make(map[string]*types.Session)},
		invocs:   &memoryInvocations{items: nil},
		knowledge: &memoryKnowledge{
			entities:  make(map[string]*types.KnowledgeEntity),
			relations: make(map[string]*types.KnowledgeRelation),
		},
		jobs:     &memoryJobs{byID: make(map[string]*types.ScheduledJob)},
		patterns: &memoryPatterns{byID: make(map[string]*types.Pattern)},
	}
}

func (s *MemoryStore) Goals() Goals                       { return s.goals }
func (s *MemoryStore) Activities() Activities             { return s.activities }
func (s *MemoryStore) Memories() Memories                 { return s.memories }
func (s *MemoryStore) Sessions() Sessions                 { return s.sessions }
func (s *MemoryStore) SkillInvocations() SkillInvocations { return s.invocs }
func (s *MemoryStore) Knowledge() Knowledge                { return s.knowledge }
func (s *MemoryStore) Jobs() Jobs                         { return s.jobs }
func (s *MemoryStore) Patterns() Patterns                 { return s.patterns }
func (s *MemoryStore) Close() error                       { return nil }

// --- Goals ---------------------------------------------------------------

type memoryGoals struct {
	mu   sync.RWMutex
	byID map[string]*types.Goal
}

func cloneGoal(g *types.Goal) *types.Goal {
	if g == nil {
		return nil
	}
	clone := *g
	return &clone
}

func (m *memoryGoals) Create(ctx context.Context, g *types.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[g.GoalID]; exists {
		return errs.Duplicate("goal %q already exists", g.GoalID)
	}
	m.byID[g.GoalID] = cloneGoal(g)
	return nil
}

func (m *memoryGoals) Get(ctx context.Context, id string) (*types.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, errs.NotFound("goal %q not found", id)
	}
	return cloneGoal(g), nil
}

func (m *memoryGoals) List(ctx context.Context, filter GoalFilter, page Pagination) (Page[*types.Goal], error) {
	m.mu.RLock()
	all := make([]*types.Goal, 0, len(m.byID))
	for _, g := range m.byID {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.SprintID != "" && g.SprintID != filter.SprintID {
			continue
		}
		if filter.BoardColumn != "" && g.BoardColumn != filter.BoardColumn {
			continue
		}
		all = append(all, cloneGoal(g))
	}
	m.mu.RUnlock()

	// §3 Goal invariants: priority ascending, created_at descending as
	// tie-break, matching §8 scenario 1's expected ordering.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].GoalID < all[j].GoalID
	})
	return paginateGoals(all, page)
}

// paginateGoals cursor-paginates a priority-then-created_at-descending
// ordered slice of goals, using GoalCursor rather than the facade's general
// (created_at, id) Cursor.
func paginateGoals(all []*types.Goal, p Pagination) (Page[*types.Goal], error) {
	cursor, err := DecodeGoalCursor(p.Cursor)
	if err != nil {
		return Page[*types.Goal]{}, errs.Validation("malformed pagination cursor: %v", err)
	}
	limit := p.limitOrDefault()

	start := 0
	if p.Cursor != "" {
		start = sort.Search(len(all), func(i int) bool {
			g := all[i]
			if g.Priority != cursor.Priority {
				return g.Priority > cursor.Priority
			}
			if !g.CreatedAt.Equal(cursor.CreatedAt) {
				return g.CreatedAt.Before(cursor.CreatedAt)
			}
			return g.GoalID > cursor.ID
		})
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := Page[*types.Goal]{Items: append([]*types.Goal{}, all[start:end]...)}
	if end < len(all) {
		last := all[end-1]
		page.NextCursor = GoalCursor{Priority: last.Priority, CreatedAt: last.CreatedAt, ID: last.GoalID}.Encode()
	}
	return page, nil
}

func (m *memoryGoals) UpdateStatus(ctx context.Context, id string, status types.GoalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.byID[id]
	if !ok {
		return errs.NotFound("goal %q not found", id)
	}
	g.Status = status
	g.UpdatedAt = time.Now()
	if status == types.GoalCompleted {
		now := time.Now()
		g.CompletedAt = &now
	} else {
		g.CompletedAt = nil
	}
	return nil
}

func (m *memoryGoals) UpdateProgress(ctx context.Context, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.byID[id]
	if !ok {
		return errs.NotFound("goal %q not found", id)
	}
	if progress < 0 || progress > 100 {
		return errs.Validation("progress must be within 0..100")
	}
	g.Progress = progress
	g.UpdatedAt = time.Now()
	return nil
}

func (m *memoryGoals) MoveBoard(ctx context.Context, id, column string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.byID[id]
	if !ok {
		return errs.NotFound("goal %q not found", id)
	}
	g.BoardColumn = column
	g.Position = position
	g.UpdatedAt = time.Now()
	return nil
}

// --- Activities ------------------------------------------------------------

type memoryActivities struct {
	mu    sync.RWMutex
	items []*types.Activity
}

func (m *memoryActivities) Append(ctx context.Context, a *types.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.items = append(m.items, &clone)
	return nil
}

func (m *memoryActivities) List(ctx context.Context, filter ActivityFilter, page Pagination) (Page[*types.Activity], error) {
	m.mu.RLock()
	all := make([]*types.Activity, 0, len(m.items))
	for _, a := range m.items {
		if filter.SessionID != "" && a.SessionID != filter.SessionID {
			continue
		}
		if filter.Action != "" && a.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
			continue
		}
		clone := *a
		all = append(all, &clone)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, func(a *types.Activity) time.Time { return a.CreatedAt }, func(a *types.Activity) string { return a.ID }, page)
}

// --- Memories ---------------------------------------------------------------

type memoryMemories struct {
	mu       sync.RWMutex
	working  map[string]map[string]*types.WorkingMemoryItem // sessionID -> key -> item
	semantic map[string]*types.SemanticMemory
}

func (m *memoryMemories) PutWorking(ctx context.Context, item *types.WorkingMemoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.working[item.SessionID]
	if !ok {
		bucket = make(map[string]*types.WorkingMemoryItem)
		m.working[item.SessionID] = bucket
	}
	clone := *item
	bucket[item.Key] = &clone
	return nil
}

func (m *memoryMemories) GetWorking(ctx context.Context, sessionID, key string) (*types.WorkingMemoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.working[sessionID]
	if !ok {
		return nil, errs.NotFound("working memory item not found")
	}
	item, ok := bucket[key]
	if !ok {
		return nil, errs.NotFound("working memory item not found")
	}
	clone := *item
	return &clone, nil
}

func (m *memoryMemories) TouchWorking(ctx context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.working[sessionID]
	if !ok {
		return errs.NotFound("working memory item not found")
	}
	item, ok := bucket[key]
	if !ok {
		return errs.NotFound("working memory item not found")
	}
	item.AccessedAt = time.Now()
	item.AccessCount++
	return nil
}

func (m *memoryMemories) PruneWorking(ctx context.Context, sessionID string, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.working[sessionID]
	if !ok {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	pruned := 0
	for k, item := range bucket {
		if item.AccessedAt.Before(cutoff) && !item.Compressed {
			delete(bucket, k)
			pruned++
		}
	}
	return pruned, nil
}

func (m *memoryMemories) PutSemantic(ctx context.Context, mem *types.SemanticMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *mem
	m.semantic[mem.ID] = &clone
	return nil
}

// SearchSemantic ranks by cosine similarity to embedding, filtered by
// minImportance and category, returning the top k. This in-memory
// implementation exists for tests; production search is delegated to the
// vector-backed Memories in vector.go.
func (m *memoryMemories) SearchSemantic(ctx context.Context, embedding []float32, k int, minImportance float64, category string) ([]*types.SemanticMemory, error) {
	m.mu.RLock()
	type scored struct {
		mem   *types.SemanticMemory
		score float64
	}
	var candidates []scored
	for _, mem := range m.semantic {
		if mem.Importance < minImportance {
			continue
		}
		if category != "" && mem.Category != category {
			continue
		}
		candidates = append(candidates, scored{mem: mem, score: cosineSimilarity(embedding, mem.Embedding)})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]*types.SemanticMemory, 0, k)
	for _, c := range candidates[:k] {
		clone := *c.mem
		out = append(out, &clone)
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *memoryMemories) SummarizeSession(ctx context.Context, sessionID string, hoursBack int) ([]*types.WorkingMemoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.working[sessionID]
	if !ok {
		return nil, nil
	}
	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour)
	out := make([]*types.WorkingMemoryItem, 0, len(bucket))
	for _, item := range bucket {
		if item.AccessedAt.After(cutoff) {
			clone := *item
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Sessions ----------------------------------------------------------------

type memorySessions struct {
	mu   sync.RWMutex
	byID map[string]*types.Session
}

func (m *memorySessions) Upsert(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.byID[s.SessionID] = &clone
	return nil
}

func (m *memorySessions) ListActiveWithin(ctx context.Context, minutes int) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	var out []*types.Session
	for _, s := range m.byID {
		if s.State == types.SessionActive && s.LastActiveAt.After(cutoff) {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (m *memorySessions) ListStaleBefore(ctx context.Context, cutoff time.Time) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Session
	for _, s := range m.byID {
		if s.State == types.SessionActive && s.LastActiveAt.Before(cutoff) {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	return out, nil
}

func (m *memorySessions) MarkPruned(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return errs.NotFound("session %q not found", sessionID)
	}
	if s.Protected() {
		return errs.Protected("session %q is protected and cannot be pruned", sessionID)
	}
	s.State = types.SessionPruned
	return nil
}

func (m *memorySessions) FetchState(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return nil, errs.NotFound("session %q not found", sessionID)
	}
	clone := *s
	return &clone, nil
}

// --- SkillInvocations ----------------------------------------------------

type memoryInvocations struct {
	mu    sync.RWMutex
	items []*types.ToolInvocation
}

func (m *memoryInvocations) Append(ctx context.Context, inv *types.ToolInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *inv
	m.items = append(m.items, &clone)
	return nil
}

func (m *memoryInvocations) List(ctx context.Context, filter InvocationFilter, page Pagination) (Page[*types.ToolInvocation], error) {
	m.mu.RLock()
	all := make([]*types.ToolInvocation, 0, len(m.items))
	for _, inv := range m.items {
		if filter.Skill != "" && inv.Skill != filter.Skill {
			continue
		}
		if filter.SessionID != "" && inv.SessionID != filter.SessionID {
			continue
		}
		if filter.Success != nil && inv.Success != *filter.Success {
			continue
		}
		clone := *inv
		all = append(all, &clone)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.Before(all[j].StartedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, func(i *types.ToolInvocation) time.Time { return i.StartedAt }, func(i *types.ToolInvocation) string { return i.ID }, page)
}

// --- Knowledge ---------------------------------------------------------------

type memoryKnowledge struct {
	mu        sync.RWMutex
	entities  map[string]*types.KnowledgeEntity
	relations map[string]*types.KnowledgeRelation
}

func (m *memoryKnowledge) UpsertEntity(ctx context.Context, e *types.KnowledgeEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *e
	m.entities[e.ID] = &clone
	return nil
}

func (m *memoryKnowledge) UpsertRelation(ctx context.Context, r *types.KnowledgeRelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	m.relations[r.ID] = &clone
	return nil
}

func (m *memoryKnowledge) Traverse(ctx context.Context, start string, maxDepth int, relationType string) ([]*types.KnowledgeEntity, []*types.KnowledgeRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visitedEntities := map[string]bool{start: true}
	frontier := []string{start}
	var outEntities []*types.KnowledgeEntity
	var outRelations []*types.KnowledgeRelation

	if e, ok := m.entities[start]; ok {
		clone := *e
		outEntities = append(outEntities, &clone)
	}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, r := range m.relations {
				if relationType != "" && r.RelationType != relationType {
					continue
				}
				var neighbor string
				switch id {
				case r.FromID:
					neighbor = r.ToID
				case r.ToID:
					neighbor = r.FromID
				default:
					continue
				}
				rc := *r
				outRelations = append(outRelations, &rc)
				if !visitedEntities[neighbor] {
					visitedEntities[neighbor] = true
					next = append(next, neighbor)
					if e, ok := m.entities[neighbor]; ok {
						clone := *e
						outEntities = append(outEntities, &clone)
					}
				}
			}
		}
		frontier = next
	}
	return outEntities, outRelations, nil
}

func (m *memoryKnowledge) ClearAutoGenerated(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entities {
		if e.AutoGenerated {
			delete(m.entities, id)
		}
	}
	for id, r := range m.relations {
		if r.AutoGenerated {
			delete(m.relations, id)
		}
	}
	return nil
}

// --- Jobs ----------------------------------------------------------------

type memoryJobs struct {
	mu   sync.RWMutex
	byID map[string]*types.ScheduledJob
}

func (m *memoryJobs) Upsert(ctx context.Context, j *types.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *j
	m.byID[j.JobID] = &clone
	return nil
}

func (m *memoryJobs) List(ctx context.Context) ([]*types.ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.ScheduledJob, 0, len(m.byID))
	for _, j := range m.byID {
		clone := *j
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (m *memoryJobs) MarkLastRun(ctx context.Context, jobID string, at time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[jobID]
	if !ok {
		return errs.NotFound("job %q not found", jobID)
	}
	t := at
	j.LastRunAt = &t
	j.LastError = lastErr
	return nil
}

type memoryPatterns struct {
	mu   sync.RWMutex
	byID map[string]*types.Pattern
}

func (m *memoryPatterns) Upsert(ctx context.Context, p *types.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.byID[p.ID] = &clone
	return nil
}

func (m *memoryPatterns) List(ctx context.Context, page Pagination) (Page[*types.Pattern], error) {
	m.mu.RLock()
	items := make([]*types.Pattern, 0, len(m.byID))
	for _, p := range m.byID {
		clone := *p
		items = append(items, &clone)
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return paginate(items, func(p *types.Pattern) time.Time { return p.CreatedAt }, func(p *types.Pattern) string { return p.ID }, page)
}
