package types

import "time"

// AgentRole is the persona role an agent plays (§3 Agent).
type AgentRole string

const (
	RoleCoordinator AgentRole = "coordinator"
	RoleCoder       AgentRole = "coder"
	RoleAnalyst     AgentRole = "analyst"
	RoleCreator     AgentRole = "creator"
	RoleMemory      AgentRole = "memory"
)

// Agent is a persona definition used by the coordinator for routing and
// delegation (§3, §4.2).
type Agent struct {
	AgentID        string    `json:"agent_id"`
	Role           AgentRole `json:"role"`
	AllowedSkills  []string  `json:"allowed_skills"`
	PrimaryModel   string    `json:"primary_model"`
	FallbackModel  string    `json:"fallback_model"`
	FocusTags      []string  `json:"focus_tags"`
	Pheromone      float64   `json:"pheromone"`
	LastUpdateAt   time.Time `json:"last_update_at"`

	// History of the last N delegated invocations, used to compute
	// recent_speed_norm / cost_efficiency_norm (§4.2). Bounded to
	// HistoryWindow entries (default 20), oldest evicted first.
	History []InvocationOutcome `json:"history,omitempty"`
}

// InvocationOutcome is one sample in an agent's rolling performance window.
type InvocationOutcome struct {
	Success    bool      `json:"success"`
	LatencyMs  int64     `json:"latency_ms"`
	CostUSD    float64   `json:"cost_usd"`
	At         time.Time `json:"at"`
}

// HasSkill reports whether the agent is allowed to use the named skill.
func (a *Agent) HasSkill(name string) bool {
	for _, s := range a.AllowedSkills {
		if s == name {
			return true
		}
	}
	return false
}

// HasAllSkills reports whether allowed_skills is a superset of required.
func (a *Agent) HasAllSkills(required []string) bool {
	for _, r := range required {
		if !a.HasSkill(r) {
			return false
		}
	}
	return true
}

// HasAnyFocus reports whether the agent's focus tags intersect hints.
func (a *Agent) HasAnyFocus(hints []string) bool {
	if len(hints) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a.FocusTags))
	for _, t := range a.FocusTags {
		set[t] = struct{}{}
	}
	for _, h := range hints {
		if _, ok := set[h]; ok {
			return true
		}
	}
	return false
}

// Task is a unit of work the coordinator routes to an agent (§4.2).
type Task struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	FocusHints      []string `json:"focus_hints,omitempty"`
	RequiredSkills  []string `json:"required_skills,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
}
