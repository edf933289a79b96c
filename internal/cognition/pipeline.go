package cognition

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Najia-afk/aria-core/internal/coordinator"
	"github.com/Najia-afk/aria-core/internal/metrics"
	"github.com/Najia-afk/aria-core/internal/session"
	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// Config tunes a Pipeline's behavior.
type Config struct {
	Guard            GuardPolicy
	Retrieval        RetrievalConfig
	SentimentModel   string // model name used for the sentiment fallback
	EmbeddingModel   string
	CompressionEvery int // raw-memory window size that triggers compression (default 100)
}

// DefaultConfig matches the spec's stated defaults (§4.5).
func DefaultConfig() Config {
	return Config{
		Guard:            DefaultGuardPolicy(),
		Retrieval:        DefaultRetrievalConfig(),
		CompressionEvery: CompressionTriggerCount,
	}
}

// Pipeline is the §4.5 main control loop: one Process call handles one
// inbound message end to end. Grounded on the teacher's AgenticLoop.Run
// (internal/agent/loop.go): a linear phase sequence that records which
// phase it reached on error, generalized from the teacher's streamed
// tool-call loop to the spec's fixed eight-step pipeline.
type Pipeline struct {
	cfg Config

	guard       *Guard
	modelClient ModelClient
	modelRouter *ModelRouter
	coordinator *coordinator.Coordinator
	planner     Planner
	compressor  *Compressor

	store   store.Store
	sess    *session.Manager
	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithNow(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}

func WithPlanner(planner Planner) Option {
	return func(p *Pipeline) { p.planner = planner }
}

func WithCompressor(c *Compressor) Option {
	return func(p *Pipeline) { p.compressor = c }
}

// WithMetrics attaches a Metrics recorder; pipeline duration and per-step
// failures are recorded when set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New builds a Pipeline wired to the store facade, session manager, agent
// coordinator, and model router client.
func New(st store.Store, sess *session.Manager, coord *coordinator.Coordinator, client ModelClient, modelRouter *ModelRouter, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		guard:       NewGuard(cfg.Guard),
		modelClient: client,
		modelRouter: modelRouter,
		coordinator: coord,
		planner:     NoopPlanner,
		store:       st,
		sess:        sess,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the eight-step pipeline (§4.5) for one inbound message.
func (p *Pipeline) Process(ctx context.Context, in Inbound) (*Outcome, error) {
	start := p.now()
	out, err := p.process(ctx, in)
	if p.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
			p.metrics.RecordStepFailure(string(out.Step))
		} else if out.Refused {
			outcome = "refused"
		}
		p.metrics.RecordPipeline(outcome, p.now().Sub(start).Seconds())
	}
	return out, err
}

func (p *Pipeline) process(ctx context.Context, in Inbound) (*Outcome, error) {
	out := &Outcome{Step: StepBoundary}

	// 1. Boundary check.
	verdict := p.guard.Check(in.Text)
	if !verdict.Allowed {
		out.Refused = true
		out.Reply = p.cfg.Guard.RefusalMessage
		p.appendActivity(ctx, in.SessionID, "message_refused", map[string]any{"reason": verdict.Reason})
		return out, nil
	}
	text := verdict.Sanitized

	// 2. Sentiment scan.
	out.Step = StepSentiment
	sentiment, err := classifySentiment(ctx, p.modelClient, p.cfg.SentimentModel, text)
	if err != nil {
		p.logger.Warn("sentiment classification failed, continuing with lexicon estimate", "error", err)
	}
	out.Sentiment = sentiment
	out.Tone = ToneFor(sentiment)
	if p.store != nil {
		_ = p.store.Memories().PutWorking(ctx, &types.WorkingMemoryItem{
			Key:        "sentiment:" + uuid.NewString(),
			Value:      sentiment,
			Category:   "sentiment",
			Importance: 0.4,
			CreatedAt:  p.now(),
			AccessedAt: p.now(),
			SessionID:  in.SessionID,
		})
	}

	// 3. Memory retrieval.
	out.Step = StepRetrieval
	var retrieved RetrievedContext
	if p.store != nil {
		retrieved, err = retrieve(ctx, p.store.Memories(), p.modelClient, p.cfg.EmbeddingModel, p.cfg.Retrieval, in.SessionID, text)
		if err != nil {
			p.logger.Warn("memory retrieval failed, continuing without context", "error", err)
		}
	}

	// 4. Focus / agent selection.
	out.Step = StepSelection
	task := types.Task{
		ID:         uuid.NewString(),
		Description: text,
		SessionID:  in.SessionID,
	}
	var agent *types.Agent
	if p.coordinator != nil {
		agent, err = p.coordinator.Select(task)
		if err != nil {
			return out, err
		}
		out.AgentID = agent.AgentID
	}

	// 5. Skill plan.
	out.Step = StepPlan
	plan := p.planner.Plan(task, sentiment, retrieved)

	// 6. Invocation. Each step's Critical/Predicate travels with its Call so
	// Delegate can continue past a failed non-critical step and only abort
	// (returning the plan's accumulated partial result) on a failed critical
	// one (§4.5 step 6).
	out.Step = StepInvocation
	var planResult any
	if p.coordinator != nil && len(plan) > 0 {
		calls := make([]coordinator.SkillCall, len(plan))
		for i, step := range plan {
			calls[i] = step.Call
			calls[i].Critical = step.Critical
			calls[i].Predicate = step.Predicate
		}
		out.SkillCalls = calls
		result, derr := p.coordinator.Delegate(ctx, task, calls)
		if derr != nil {
			return out, derr
		}
		planResult = result.Data
		if result.Err != nil {
			// Delegate only sets Err when the step that failed was
			// critical; planResult still carries whatever prior steps
			// produced.
			return out, result.Err
		}
	}

	// 7. Persist.
	out.Step = StepPersist
	if err := p.persist(ctx, in, text, sentiment, planResult); err != nil {
		return out, err
	}

	// 8. Compression trigger.
	if p.compressor != nil && p.store != nil {
		threshold := p.cfg.CompressionEvery
		if threshold <= 0 {
			threshold = CompressionTriggerCount
		}
		items, err := p.store.Memories().SummarizeSession(ctx, in.SessionID, 24*30)
		if err == nil && len(items) > threshold {
			if err := p.compressor.Run(ctx, in.SessionID, items); err != nil {
				p.logger.Error("compression pass failed", "session_id", in.SessionID, "error", err)
			} else {
				out.Compression = true
			}
		}
	}

	out.Reply = planResultToReply(planResult)
	return out, nil
}

func planResultToReply(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	return ""
}

func (p *Pipeline) persist(ctx context.Context, in Inbound, text string, sentiment Sentiment, reply any) error {
	if _, err := p.sess.RecordMessage(ctx, in.SessionID); err != nil {
		return errs.Internal(err, "record message for session %q", in.SessionID)
	}
	p.appendActivity(ctx, in.SessionID, "message_processed", map[string]any{
		"text":    text,
		"tone":    string(ToneFor(sentiment)),
		"reply":   reply,
	})
	return nil
}

func (p *Pipeline) appendActivity(ctx context.Context, sessionID, action string, details map[string]any) {
	if p.store == nil {
		return
	}
	if err := p.store.Activities().Append(ctx, &types.Activity{
		ID:        uuid.NewString(),
		Action:    action,
		Details:   details,
		SessionID: sessionID,
		CreatedAt: p.now(),
	}); err != nil {
		p.logger.Error("failed to append activity", "action", action, "error", err)
	}
}
