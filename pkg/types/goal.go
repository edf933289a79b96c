package types

import "time"

// GoalStatus is the lifecycle state of a goal (§3).
type GoalStatus string

const (
	GoalActive      GoalStatus = "active"
	GoalInProgress  GoalStatus = "in_progress"
	GoalCompleted   GoalStatus = "completed"
	GoalPaused      GoalStatus = "paused"
)

// Goal tracks a unit of self-directed work on the agent's board (§3).
//
// Invariants: CompletedAt is non-nil iff Status == GoalCompleted; ordering
// within a board column is by Position; priority ordering is ascending
// (lower number first) with CreatedAt descending as tie-break.
type Goal struct {
	GoalID        string     `json:"goal_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        GoalStatus `json:"status"`
	Priority      int        `json:"priority"` // 1=highest .. 5=lowest
	Progress      int        `json:"progress"` // 0..100
	DueAt         *time.Time `json:"due_at,omitempty"`
	ParentGoalID  string     `json:"parent_goal_id,omitempty"`
	SprintID      string     `json:"sprint_id,omitempty"`
	BoardColumn   string     `json:"board_column,omitempty"`
	Position      int        `json:"position"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// KnowledgeEntity is a node in the knowledge graph (§3).
type KnowledgeEntity struct {
	ID            string         `json:"id"` // uuid
	Name          string         `json:"name"`
	EntityType    string         `json:"entity_type"`
	Properties    map[string]any `json:"properties,omitempty"`
	AutoGenerated bool           `json:"auto_generated,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// KnowledgeRelation is an edge in the knowledge graph (§3).
type KnowledgeRelation struct {
	ID           string         `json:"id"`
	FromID       string         `json:"from_id"`
	ToID         string         `json:"to_id"`
	RelationType string         `json:"relation_type"`
	Properties   map[string]any `json:"properties,omitempty"`
	AutoGenerated bool          `json:"auto_generated,omitempty"`
}

// Pattern is a stored analysis result from the pattern recognition batch job
// (§3, §4.5).
type Pattern struct {
	ID          string    `json:"id"`
	Signature   string    `json:"signature"`
	Template    string    `json:"template"`
	Examples    []string  `json:"examples,omitempty"`
	Confidence  float64   `json:"confidence"` // 0..1
	UsageCount  int       `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// ScheduledJob is a declarative periodic job (§3, §4.3).
type Delivery string

const (
	DeliveryAnnounce  Delivery = "announce"
	DeliveryNone      Delivery = "none"
	DeliveryErrorOnly Delivery = "error_only"
)

type ScheduledJob struct {
	JobID      string    `json:"job_id"`
	Schedule   string    `json:"schedule"`
	Command    Command   `json:"command"`
	Delivery   Delivery  `json:"delivery"`
	Enabled    bool      `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Command names a skill.tool invocation (or a named composite handler) and
// its arguments.
type Command struct {
	Skill     string         `json:"skill,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Composite string         `json:"composite,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
}
