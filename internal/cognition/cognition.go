// Package cognition implements the cognition pipeline described in spec
// §4.5: the main control loop that turns one inbound user message (or one
// heartbeat tick) into a boundary check, a sentiment scan, memory
// retrieval, agent selection, a skill plan, persistence, and a compression
// trigger.
//
// Grounded on the teacher's internal/agent.AgenticLoop (loop.go): a
// phase-tagged state machine driving a single conversational turn end to
// end, streaming ResponseChunks and erroring with a phase-tagged LoopError.
// This package generalizes that shape from the teacher's LLM-tool-call
// loop to the spec's fixed eight-step pipeline, and its failover.go
// (FailoverOrchestrator: try primary, retry once, fail over to the next
// provider on a retryable/rate-limited error) for the model routing
// policy's primary-then-fallback behavior in budget.go.
package cognition

import (
	"time"

	"github.com/Najia-afk/aria-core/internal/coordinator"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Step names the pipeline phase an error or activity row belongs to,
// mirroring the teacher's LoopPhase tagging.
type Step string

const (
	StepBoundary   Step = "boundary"
	StepSentiment  Step = "sentiment"
	StepRetrieval  Step = "retrieval"
	StepSelection  Step = "selection"
	StepPlan       Step = "plan"
	StepInvocation Step = "invocation"
	StepPersist    Step = "persist"
	StepCompress   Step = "compress"
)

// Inbound is one user message or heartbeat tick entering the pipeline.
type Inbound struct {
	SessionID string
	AgentHint string // optional: caller-suggested agent_id, advisory only
	Text      string
}

// Outcome is what Process returns: the assistant-visible reply plus the
// bookkeeping a caller (gateway, scheduler) may want to log.
type Outcome struct {
	Reply       string
	Tone        Tone
	Sentiment   Sentiment
	AgentID     string
	SkillCalls  []coordinator.SkillCall
	Refused     bool
	Step        Step // last step reached; StepPersist on a clean run
	Compression bool // true if a compression job was enqueued this call
}

// Tone is the §4.5 step-2 tone classification derived from sentiment.
type Tone string

const (
	ToneEmpathetic Tone = "empathetic"
	ToneStepByStep Tone = "step_by_step"
	ToneCelebratory Tone = "celebratory"
	ToneNeutral     Tone = "neutral"
)

// PlanStep is one entry of a skill plan (§4.5 step 5): an explicit,
// declared invocation with a success predicate, not an implicit callback.
type PlanStep struct {
	Call     coordinator.SkillCall
	Critical bool
	// Predicate reports whether data satisfies this step's success
	// condition. Nil means "no error" is sufficient.
	Predicate func(data any) bool
}

// Planner produces the skill plan for a task (§4.5 step 5), given the
// retrieved memory context from step 3. The default implementation used
// by Pipeline is a no-op planner (zero skill calls); real deployments
// supply one derived from the agent's handler.
type Planner interface {
	Plan(task types.Task, sentiment Sentiment, ctx RetrievedContext) []PlanStep
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(task types.Task, sentiment Sentiment, ctx RetrievedContext) []PlanStep

func (f PlannerFunc) Plan(task types.Task, sentiment Sentiment, ctx RetrievedContext) []PlanStep {
	return f(task, sentiment, ctx)
}

// NoopPlanner never proposes any skill calls.
var NoopPlanner Planner = PlannerFunc(func(types.Task, Sentiment, RetrievedContext) []PlanStep { return nil })

func nowOrDefault(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return time.Now
}
