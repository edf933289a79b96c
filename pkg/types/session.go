package types

import "time"

// SessionKind distinguishes the four session taxonomies (§4.4).
type SessionKind string

const (
	SessionMain     SessionKind = "main"
	SessionSubagent SessionKind = "subagent"
	SessionCron     SessionKind = "cron"
	SessionRun      SessionKind = "run"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionPruned    SessionState = "pruned"
)

// Session is a unit of conversational state (§3).
type Session struct {
	SessionID       string       `json:"session_id"`
	Kind            SessionKind  `json:"kind"`
	ParentSessionID string       `json:"parent_session_id,omitempty"`
	AgentID         string       `json:"agent_id"`
	CreatedAt       time.Time    `json:"created_at"`
	LastActiveAt    time.Time    `json:"last_active_at"`
	State           SessionState `json:"state"`
}

// Protected reports whether the session is protected from deletion (§4.4).
func (s *Session) Protected() bool {
	return s.Kind == SessionMain
}

// WorkingMemoryItem is a short-lived, per-session key/value tuple (§3).
type WorkingMemoryItem struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Category    string    `json:"category,omitempty"`
	Importance  float64   `json:"importance"` // 0..1
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
	SessionID   string    `json:"session_id,omitempty"`

	// Compressed marks a raw item as having been folded into a summary
	// rather than deleted (§4.5 memory compression).
	Compressed bool   `json:"compressed,omitempty"`
	SummaryID  string `json:"summary_id,omitempty"`
}

// SemanticMemory is a long-term, embedding-searchable memory (§3).
type SemanticMemory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Category   string         `json:"category,omitempty"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"-"` // opaque to the core; router-supplied
	CreatedAt  time.Time      `json:"created_at"`
}

// Activity is an append-only log entry (§3).
type Activity struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
