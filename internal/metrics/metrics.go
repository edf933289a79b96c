// Package metrics centralizes this core's Prometheus instrumentation.
// Grounded on the teacher's internal/observability.Metrics: one struct of
// promauto-registered CounterVec/HistogramVec/GaugeVec fields plus small
// Record* convenience methods, generalized from the teacher's
// channel/webhook/HTTP-gateway metric set to this core's own concerns —
// skill invocations (§4.1), rate-limit rejections (§4.1), pheromone score
// (§4.2), scheduler job outcomes (§4.3), and the cognition pipeline and
// router client (§4.5, §4.6) — since this core has no HTTP gateway or
// channel fan-out of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide instrumentation surface. Construct once at
// startup and pass (or wire via options) into the registry, coordinator,
// scheduler, and cognition pipeline.
type Metrics struct {
	// SkillInvocations counts registry.Invoke calls by skill, tool, and
	// outcome (success|error); rate-limit rejections are counted in
	// RateLimitRejections instead.
	SkillInvocations *prometheus.CounterVec

	// SkillInvocationDuration measures invoke latency in seconds.
	SkillInvocationDuration *prometheus.HistogramVec

	// RateLimitRejections counts token-bucket rejections by skill (§4.1).
	RateLimitRejections *prometheus.CounterVec

	// AgentPheromone is a gauge of each agent's current (decayed) score
	// (§4.2), sampled on every RecordOutcome.
	AgentPheromone *prometheus.GaugeVec

	// SchedulerJobRuns counts heartbeat job executions by job id and
	// outcome (succeeded|failed) (§4.3).
	SchedulerJobRuns *prometheus.CounterVec

	// SchedulerJobDuration measures job execution time in seconds.
	SchedulerJobDuration *prometheus.HistogramVec

	// CognitionPipelineDuration measures one Process call end to end.
	CognitionPipelineDuration *prometheus.HistogramVec

	// CognitionStepFailures counts pipeline step failures by step name
	// (§4.5: boundary|sentiment|retrieval|selection|plan|invocation|
	// persist).
	CognitionStepFailures *prometheus.CounterVec

	// RouterRequests counts model router calls by model and status
	// (success|rate_limited|retryable|incompatible_model|error) (§4.6).
	RouterRequests *prometheus.CounterVec

	// RouterRequestDuration measures router call latency in seconds.
	RouterRequestDuration *prometheus.HistogramVec

	// RouterTokensUsed tracks prompt/completion token consumption.
	RouterTokensUsed *prometheus.CounterVec

	// RouterCostUSD tracks estimated spend by model.
	RouterCostUSD *prometheus.CounterVec

	// ActiveSessions is a gauge of live sessions by kind (§4.4).
	ActiveSessions *prometheus.GaugeVec
}

// New creates and registers every metric against the default registry.
// Call once at process startup.
func New() *Metrics {
	return &Metrics{
		SkillInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_skill_invocations_total",
				Help: "Total skill invocations by skill, tool, and outcome",
			},
			[]string{"skill", "tool", "outcome"},
		),
		SkillInvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_skill_invocation_duration_seconds",
				Help:    "Duration of skill invocations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"skill", "tool"},
		),
		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_rate_limit_rejections_total",
				Help: "Total invocations rejected by a skill's token bucket",
			},
			[]string{"skill"},
		),
		AgentPheromone: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aria_agent_pheromone",
				Help: "Current decayed pheromone score per agent",
			},
			[]string{"agent_id"},
		),
		SchedulerJobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_scheduler_job_runs_total",
				Help: "Total heartbeat job runs by job id and outcome",
			},
			[]string{"job_id", "outcome"},
		),
		SchedulerJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_scheduler_job_duration_seconds",
				Help:    "Duration of heartbeat job runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"job_id"},
		),
		CognitionPipelineDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_cognition_pipeline_duration_seconds",
				Help:    "Duration of a full cognition pipeline Process call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),
		CognitionStepFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_cognition_step_failures_total",
				Help: "Pipeline failures by the step they occurred in",
			},
			[]string{"step"},
		),
		RouterRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_router_requests_total",
				Help: "Total model router calls by model and status",
			},
			[]string{"model", "status"},
		),
		RouterRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aria_router_request_duration_seconds",
				Help:    "Duration of model router calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		RouterTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_router_tokens_total",
				Help: "Total tokens used by model and type (prompt|completion)",
			},
			[]string{"model", "type"},
		),
		RouterCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aria_router_cost_usd_total",
				Help: "Estimated model router spend in USD",
			},
			[]string{"model"},
		),
		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aria_active_sessions",
				Help: "Current number of active sessions by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordInvocation records a skill invocation's outcome and latency.
func (m *Metrics) RecordInvocation(skill, tool, outcome string, seconds float64) {
	m.SkillInvocations.WithLabelValues(skill, tool, outcome).Inc()
	m.SkillInvocationDuration.WithLabelValues(skill, tool).Observe(seconds)
}

// RecordRateLimitRejection increments the rejection counter for skill.
func (m *Metrics) RecordRateLimitRejection(skill string) {
	m.RateLimitRejections.WithLabelValues(skill).Inc()
}

// SetPheromone records an agent's current decayed pheromone score.
func (m *Metrics) SetPheromone(agentID string, score float64) {
	m.AgentPheromone.WithLabelValues(agentID).Set(score)
}

// RecordJobRun records a scheduler job's outcome and duration.
func (m *Metrics) RecordJobRun(jobID, outcome string, seconds float64) {
	m.SchedulerJobRuns.WithLabelValues(jobID, outcome).Inc()
	m.SchedulerJobDuration.WithLabelValues(jobID).Observe(seconds)
}

// RecordPipeline records one cognition pipeline Process call.
func (m *Metrics) RecordPipeline(outcome string, seconds float64) {
	m.CognitionPipelineDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordStepFailure increments the failure counter for the given step.
func (m *Metrics) RecordStepFailure(step string) {
	m.CognitionStepFailures.WithLabelValues(step).Inc()
}

// RecordRouterCall records a model router call's outcome, latency, token
// usage, and estimated cost.
func (m *Metrics) RecordRouterCall(model, status string, seconds float64, promptTokens, completionTokens int, costUSD float64) {
	m.RouterRequests.WithLabelValues(model, status).Inc()
	m.RouterRequestDuration.WithLabelValues(model).Observe(seconds)
	if promptTokens > 0 {
		m.RouterTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.RouterTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		m.RouterCostUSD.WithLabelValues(model).Add(costUSD)
	}
}

// SetActiveSessions sets the active session gauge for kind.
func (m *Metrics) SetActiveSessions(kind string, n int) {
	m.ActiveSessions.WithLabelValues(kind).Set(float64(n))
}
