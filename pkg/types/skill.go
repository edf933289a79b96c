package types

import "time"

// SkillLayer is the architectural tier of a skill (§4.1, §9 design note:
// the source oscillated between 0-4 and 1-5 numbering; this module commits
// to the 0-based kernel/gateway/core/domain/orchestration numbering).
type SkillLayer int

const (
	LayerKernel        SkillLayer = 0
	LayerGateway       SkillLayer = 1
	LayerCore          SkillLayer = 2
	LayerDomain        SkillLayer = 3
	LayerOrchestration SkillLayer = 4
)

// SkillStatus is the lifecycle state of a registered skill.
type SkillStatus string

const (
	StatusAvailable   SkillStatus = "available"
	StatusUnavailable SkillStatus = "unavailable"
	StatusRateLimited SkillStatus = "rate_limited"
	StatusError       SkillStatus = "error"
)

// ToolParam describes a single declared parameter of a tool.
type ToolParam struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // "string", "number", "boolean", "object", "array"
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ToolDescriptor is a tool exposed by a skill: name, parameter schema,
// description. Tool names are unique within a skill (§3 invariant).
type ToolDescriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []ToolParam `json:"params" yaml:"params"`
}

// RequiredParams returns the names of required parameters, for schema
// mismatch detection at registration time.
func (t ToolDescriptor) RequiredParams() []string {
	out := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// SkillDescriptor is the stable, read-only view of a registered skill
// returned by Registry.List / Registry.Get.
type SkillDescriptor struct {
	Name          string            `json:"name"`
	Layer         SkillLayer        `json:"layer"`
	Status        SkillStatus       `json:"status"`
	Config        map[string]string `json:"config,omitempty"`
	Tools         []ToolDescriptor  `json:"tools"`
	MaxPerMinute  int               `json:"max_per_minute"`
}

// ToolInvocation is the append-only audit row for a single skill invocation
// (§3 "Tool invocation record").
type ToolInvocation struct {
	ID         string     `json:"id"`
	Skill      string     `json:"skill"`
	Tool       string     `json:"tool"`
	ArgsHash   string     `json:"args_hash"`
	Success    bool       `json:"success"`
	LatencyMs  int64      `json:"latency_ms"`
	Tokens     *int       `json:"tokens,omitempty"`
	Error      string     `json:"error,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
}
