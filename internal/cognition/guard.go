package cognition

import (
	"strings"
)

// GuardPolicy configures the §4.5 step-1 boundary check: a rule-based
// input guard that rejects or sanitizes a message before anything else
// runs.
type GuardPolicy struct {
	// Blocklist is a set of lowercase substrings that trigger an outright
	// refusal when present anywhere in the message.
	Blocklist []string
	// MaxLength rejects messages longer than this many runes (0 = no
	// limit).
	MaxLength int
	// RefusalMessage is returned verbatim when the guard rejects a
	// message (§4.5: "on reject, return a fixed refusal").
	RefusalMessage string
}

// DefaultGuardPolicy is permissive: no blocklist, no length cap, a generic
// refusal message for when a deployment adds rules later.
func DefaultGuardPolicy() GuardPolicy {
	return GuardPolicy{
		RefusalMessage: "I can't help with that request.",
	}
}

// Guard is the input guard instance for a pipeline.
type Guard struct {
	policy GuardPolicy
}

// NewGuard builds a Guard from policy.
func NewGuard(policy GuardPolicy) *Guard {
	return &Guard{policy: policy}
}

// Verdict is the result of a boundary check.
type Verdict struct {
	Allowed   bool
	Sanitized string
	Reason    string
}

// Check evaluates text against the guard's policy. A rejected message
// carries Allowed=false and the policy's fixed refusal message is the
// caller's responsibility to surface (§4.5 step 1).
func (g *Guard) Check(text string) Verdict {
	if g.policy.MaxLength > 0 && len([]rune(text)) > g.policy.MaxLength {
		return Verdict{Allowed: false, Reason: "message exceeds maximum length"}
	}
	lower := strings.ToLower(text)
	for _, term := range g.policy.Blocklist {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return Verdict{Allowed: false, Reason: "message matched a blocked term"}
		}
	}
	return Verdict{Allowed: true, Sanitized: strings.TrimSpace(text)}
}
