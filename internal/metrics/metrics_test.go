package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// New() registers against the default registry; tests exercise the
// Record*/Set* wiring against isolated registries instead of calling New()
// directly, matching the teacher's own metrics_test.go approach.

func TestRecordInvocation(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_skill_invocations_total", Help: "test"},
		[]string{"skill", "tool", "outcome"},
	)
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_skill_invocation_duration_seconds", Help: "test", Buckets: []float64{0.1, 1, 10}},
		[]string{"skill", "tool"},
	)
	registry.MustRegister(counter, histogram)

	m := &Metrics{SkillInvocations: counter, SkillInvocationDuration: histogram}
	m.RecordInvocation("memory.search", "query", "success", 0.25)
	m.RecordInvocation("memory.search", "query", "success", 0.5)
	m.RecordInvocation("memory.search", "query", "rate_limited", 0.0)

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
	if count := testutil.CollectAndCount(histogram); count != 1 {
		t.Errorf("expected 1 histogram series, got %d", count)
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_rate_limit_rejections_total", Help: "test"},
		[]string{"skill"},
	)
	registry.MustRegister(counter)

	m := &Metrics{RateLimitRejections: counter}
	m.RecordRateLimitRejection("memory.search")
	m.RecordRateLimitRejection("memory.search")

	expected := `
		# HELP test_rate_limit_rejections_total test
		# TYPE test_rate_limit_rejections_total counter
		test_rate_limit_rejections_total{skill="memory.search"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestSetPheromone(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "test_agent_pheromone", Help: "test"},
		[]string{"agent_id"},
	)
	registry.MustRegister(gauge)

	m := &Metrics{AgentPheromone: gauge}
	m.SetPheromone("agent-1", 1.4)
	m.SetPheromone("agent-1", 0.9)

	expected := `
		# HELP test_agent_pheromone test
		# TYPE test_agent_pheromone gauge
		test_agent_pheromone{agent_id="agent-1"} 0.9
	`
	if err := testutil.CollectAndCompare(gauge, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordJobRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_scheduler_job_runs_total", Help: "test"},
		[]string{"job_id", "outcome"},
	)
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_scheduler_job_duration_seconds", Help: "test", Buckets: []float64{1, 10, 60}},
		[]string{"job_id"},
	)
	registry.MustRegister(counter, histogram)

	m := &Metrics{SchedulerJobRuns: counter, SchedulerJobDuration: histogram}
	m.RecordJobRun("daily-digest", "succeeded", 3.2)
	m.RecordJobRun("daily-digest", "failed", 0.1)

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 outcome series, got %d", count)
	}
}

func TestRecordRouterCall(t *testing.T) {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_router_requests_total", Help: "test"},
		[]string{"model", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_router_request_duration_seconds", Help: "test", Buckets: []float64{1, 5, 30}},
		[]string{"model"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_router_tokens_total", Help: "test"},
		[]string{"model", "type"},
	)
	cost := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_router_cost_usd_total", Help: "test"},
		[]string{"model"},
	)
	registry.MustRegister(requests, duration, tokens, cost)

	m := &Metrics{RouterRequests: requests, RouterRequestDuration: duration, RouterTokensUsed: tokens, RouterCostUSD: cost}
	m.RecordRouterCall("claude-3-haiku", "success", 1.1, 420, 180, 0.003)

	if count := testutil.CollectAndCount(tokens); count != 2 {
		t.Errorf("expected prompt and completion token series, got %d", count)
	}
	if got := testutil.ToFloat64(cost.WithLabelValues("claude-3-haiku")); got != 0.003 {
		t.Errorf("expected cost 0.003, got %v", got)
	}
}

func TestSetActiveSessions(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "test_active_sessions", Help: "test"},
		[]string{"kind"},
	)
	registry.MustRegister(gauge)

	m := &Metrics{ActiveSessions: gauge}
	m.SetActiveSessions("main", 1)
	m.SetActiveSessions("ephemeral", 4)

	if got := testutil.ToFloat64(gauge.WithLabelValues("ephemeral")); got != 4 {
		t.Errorf("expected 4 ephemeral sessions, got %v", got)
	}
}
