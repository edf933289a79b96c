// Package coordinator implements the agent coordinator described in spec
// §4.2: capability/focus-based agent selection scored by pheromone plus
// rolling performance, pheromone reinforcement with time-decay-on-read,
// and delegate/broadcast task-fanout primitives. Grounded on the teacher's
// internal/multiagent/capability_router.go (health-aware, load-aware agent
// scoring and selection) and orchestrator.go (register/list/delegate
// shape), generalized from the teacher's static "healthy/unhealthy" signal
// to the spec's continuous pheromone score and from a flat health map to a
// per-agent rolling invocation-outcome window.
package coordinator

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Najia-afk/aria-core/internal/metrics"
	"github.com/Najia-afk/aria-core/internal/registry"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Pheromone tuning constants (§4.2, §9 resolved: decay applied on read by
// interpolating continuously from LastUpdateAt rather than on a ticker).
const (
	PheromoneColdStart  = 0.5
	PheromoneDailyDecay = 0.95
	PheromoneReward     = 0.1
	PheromonePenalty    = 0.05

	// HistoryWindow bounds the rolling performance sample used for
	// recent_speed_norm / cost_efficiency_norm.
	HistoryWindow = 20

	weightPheromone      = 0.6
	weightSpeed          = 0.3
	weightCostEfficiency = 0.1
)

// Invoker is the subset of the skill registry the coordinator needs to run
// a task's skill plan. Delegation calls through this interface rather than
// depending on registry.Registry's full surface.
type Invoker interface {
	Invoke(ctx context.Context, skill, tool string, args json.RawMessage, sessionID string) (any, error)
}

var _ Invoker = (*registry.Registry)(nil)

// Result is the outcome handed back by Delegate/Broadcast. Data is the last
// successfully-executed step's result; Steps preserves every step's outcome
// in execution order so callers can inspect a partially-completed plan.
type Result struct {
	AgentID   string
	Data      any
	Steps     []StepResult
	Err       error
	LatencyMs int64
	CostUSD   float64
}

// Coordinator owns the agent roster and routes tasks to the best-scoring
// eligible agent, updating pheromone after every delegated task.
type Coordinator struct {
	mu     sync.RWMutex
	agents map[string]*types.Agent

	invoker Invoker
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an empty Coordinator.
func New(invoker Invoker, opts ...Option) *Coordinator {
	c := &Coordinator{
		agents:  make(map[string]*types.Agent),
		invoker: invoker,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithMetrics attaches a Metrics recorder; pheromone gauges are sampled on
// every RecordOutcome call when set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// RegisterAgent adds or replaces an agent in the roster. A freshly
// registered agent with a zero pheromone is given the cold-start value.
func (c *Coordinator) RegisterAgent(a *types.Agent) error {
	if a.AgentID == "" {
		return errs.Configuration("agent id is required")
	}
	if a.Pheromone == 0 {
		a.Pheromone = PheromoneColdStart
	}
	if a.LastUpdateAt.IsZero() {
		a.LastUpdateAt = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *a
	c.agents[a.AgentID] = &cp
	return nil
}

// ListAgents returns a snapshot of the roster with pheromone decayed to
// the current time (read-time decay, not stored).
func (c *Coordinator) ListAgents() []*types.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		cp := *a
		cp.Pheromone = decayedPheromone(a, c.now())
		out = append(out, &cp)
	}
	return out
}

// decayedPheromone interpolates exponential decay toward 0 from
// a.LastUpdateAt to now, at PheromoneDailyDecay per 24h.
func decayedPheromone(a *types.Agent, now time.Time) float64 {
	elapsedDays := now.Sub(a.LastUpdateAt).Hours() / 24
	if elapsedDays <= 0 {
		return clip01(a.Pheromone)
	}
	decayed := a.Pheromone * math.Pow(PheromoneDailyDecay, elapsedDays)
	return clip01(decayed)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Select implements §4.2's selection algorithm: filter by required
// skills, narrow by focus hints when that narrowing is non-empty, score
// survivors, and pick the max with the tie-break rule (most recent
// success, then alphabetical agent_id).
func (c *Coordinator) Select(task types.Task) (*types.Agent, error) {
	candidates := c.ListAgents()

	eligible := make([]*types.Agent, 0, len(candidates))
	for _, a := range candidates {
		if a.HasAllSkills(task.RequiredSkills) {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return nil, errs.NotFound("no agent has the required skills %v", task.RequiredSkills)
	}

	if focused := filterByFocus(eligible, task.FocusHints); len(focused) > 0 {
		eligible = focused
	}

	now := c.now()
	best := eligible[0]
	bestScore := score(best, now)
	for _, a := range eligible[1:] {
		s := score(a, now)
		switch {
		case s > bestScore:
			best, bestScore = a, s
		case s == bestScore:
			best = tieBreak(best, a)
		}
	}
	return best, nil
}

func filterByFocus(agents []*types.Agent, hints []string) []*types.Agent {
	if len(hints) == 0 {
		return nil
	}
	var out []*types.Agent
	for _, a := range agents {
		if a.HasAnyFocus(hints) {
			out = append(out, a)
		}
	}
	return out
}

func tieBreak(a, b *types.Agent) *types.Agent {
	aLast, aOK := lastSuccessAt(a)
	bLast, bOK := lastSuccessAt(b)
	switch {
	case aOK && bOK && !aLast.Equal(bLast):
		if aLast.After(bLast) {
			return a
		}
		return b
	case aOK != bOK:
		if aOK {
			return a
		}
		return b
	}
	if a.AgentID <= b.AgentID {
		return a
	}
	return b
}

func lastSuccessAt(a *types.Agent) (time.Time, bool) {
	for i := len(a.History) - 1; i >= 0; i-- {
		if a.History[i].Success {
			return a.History[i].At, true
		}
	}
	return time.Time{}, false
}

// score computes pheromone*0.6 + recent_speed_norm*0.3 + cost_efficiency_norm*0.1.
func score(a *types.Agent, now time.Time) float64 {
	pheromone := decayedPheromone(a, now)
	speed, cost := performanceNorms(a.History)
	return pheromone*weightPheromone + speed*weightSpeed + cost*weightCostEfficiency
}

// performanceNorms derives recent_speed_norm and cost_efficiency_norm in
// [0,1] from the last HistoryWindow samples: faster and cheaper scores
// higher, relative to the slowest/costliest sample in the window.
func performanceNorms(history []types.InvocationOutcome) (speed, cost float64) {
	window := history
	if len(window) > HistoryWindow {
		window = window[len(window)-HistoryWindow:]
	}
	if len(window) == 0 {
		return 0.5, 0.5
	}

	maxLatency, maxCost := 0.0, 0.0
	for _, o := range window {
		if f := float64(o.LatencyMs); f > maxLatency {
			maxLatency = f
		}
		if o.CostUSD > maxCost {
			maxCost = o.CostUSD
		}
	}

	var speedSum, costSum float64
	for _, o := range window {
		if maxLatency > 0 {
			speedSum += 1 - float64(o.LatencyMs)/maxLatency
		} else {
			speedSum += 1
		}
		if maxCost > 0 {
			costSum += 1 - o.CostUSD/maxCost
		} else {
			costSum += 1
		}
	}
	n := float64(len(window))
	return speedSum / n, costSum / n
}

// RecordOutcome appends a sample to the agent's rolling performance window
// (bounded to HistoryWindow) and applies the pheromone reinforcement rule.
func (c *Coordinator) RecordOutcome(agentID string, success bool, latencyMs int64, costUSD float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[agentID]
	if !ok {
		return errs.NotFound("agent %q not found", agentID)
	}

	now := c.now()
	decayed := decayedPheromone(a, now)
	if success {
		decayed += PheromoneReward
	} else {
		decayed -= PheromonePenalty
	}
	a.Pheromone = clip01(decayed)
	a.LastUpdateAt = now

	a.History = append(a.History, types.InvocationOutcome{
		Success:   success,
		LatencyMs: latencyMs,
		CostUSD:   costUSD,
		At:        now,
	})
	if len(a.History) > HistoryWindow {
		a.History = a.History[len(a.History)-HistoryWindow:]
	}
	if c.metrics != nil {
		c.metrics.SetPheromone(a.AgentID, a.Pheromone)
	}
	return nil
}

// SkillCall is one step of a delegated task's skill plan. Critical marks a
// step whose failure aborts the rest of the plan (§4.5 step 6); a failed
// non-critical step is recorded but does not stop subsequent steps.
// Predicate, when set, reports whether a step's result counts as success
// beyond "the call returned no error" (cognition.PlanStep.Predicate is
// threaded through to here).
type SkillCall struct {
	Skill     string
	Tool      string
	Args      json.RawMessage
	Critical  bool
	Predicate func(data any) bool
}

// StepResult is one delegated call's outcome, preserved in execution order
// so a caller can see which steps of a partially-completed plan ran and
// which one aborted it.
type StepResult struct {
	Call SkillCall
	Data any
	Err  error
}

// Delegate selects the best agent for task, invokes each skill call in
// order, and records the aggregate outcome against the selected agent's
// pheromone score. A failed non-critical step does not stop the plan; a
// failed critical step aborts it, and Result.Err/Data reflect the plan's
// accumulated partial result up to and including the aborting step (§4.5
// step 6).
func (c *Coordinator) Delegate(ctx context.Context, task types.Task, plan []SkillCall) (*Result, error) {
	agent, err := c.Select(task)
	if err != nil {
		return nil, err
	}

	start := c.now()
	var data any
	var abortErr error
	steps := make([]StepResult, 0, len(plan))
	for _, step := range plan {
		stepData, callErr := c.invoker.Invoke(ctx, step.Skill, step.Tool, step.Args, task.SessionID)
		if callErr == nil && step.Predicate != nil && !step.Predicate(stepData) {
			callErr = errs.Validation("predicate failed for skill %q tool %q", step.Skill, step.Tool)
		}
		steps = append(steps, StepResult{Call: step, Data: stepData, Err: callErr})
		if callErr == nil {
			data = stepData
			continue
		}
		if step.Critical {
			abortErr = callErr
			break
		}
	}
	latency := c.now().Sub(start).Milliseconds()

	_ = c.RecordOutcome(agent.AgentID, abortErr == nil, latency, 0)

	return &Result{AgentID: agent.AgentID, Data: data, Steps: steps, Err: abortErr, LatencyMs: latency}, nil
}

// Broadcast fans a task out to every registered agent and collects one
// Result per agent. Used sparingly (e.g. health checks, §4.2).
func (c *Coordinator) Broadcast(ctx context.Context, plan []SkillCall, sessionID string) []*Result {
	agents := c.ListAgents()
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })

	results := make([]*Result, 0, len(agents))
	for _, a := range agents {
		start := c.now()
		var data any
		var callErr error
		for _, step := range plan {
			data, callErr = c.invoker.Invoke(ctx, step.Skill, step.Tool, step.Args, sessionID)
			if callErr != nil {
				break
			}
		}
		latency := c.now().Sub(start).Milliseconds()
		_ = c.RecordOutcome(a.AgentID, callErr == nil, latency, 0)
		results = append(results, &Result{AgentID: a.AgentID, Data: data, Err: callErr, LatencyMs: latency})
	}
	return results
}
