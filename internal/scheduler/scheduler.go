package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Najia-afk/aria-core/internal/delivery"
	"github.com/Najia-afk/aria-core/internal/metrics"
	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// State is a job's position in the §4.3 state machine:
// idle -> due -> running -> {succeeded, failed} -> idle.
type State string

const (
	StateIdle      State = "idle"
	StateDue       State = "due"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// DefaultTickInterval governs how often the dispatch loop checks for due
// jobs; minute-granularity idempotency keys tolerate a much coarser poll
// than this, but a short interval keeps per-job drift small.
const DefaultTickInterval = 15 * time.Second

// DefaultHardTimeout bounds a single job execution (§4.3).
const DefaultHardTimeout = 120 * time.Second

// Invoker runs a skill.tool command. Decoupled from registry.Registry's
// full surface, mirroring internal/coordinator's Invoker.
type Invoker interface {
	Invoke(ctx context.Context, skill, tool string, args json.RawMessage, sessionID string) (any, error)
}

// CompositeHandler runs a named, non-skill job command (e.g. a built-in
// maintenance task), grounded on the teacher's WithCustomHandler.
type CompositeHandler func(ctx context.Context, job *types.ScheduledJob) (any, error)

type runtimeJob struct {
	job      *types.ScheduledJob
	schedule Schedule
	state    State

	nextRun         time.Time
	lastIdempotency time.Time // scheduled minute of the last execution started
	lastState       State     // last terminal state reached, for introspection
}

// Scheduler dispatches due ScheduledJobs against skills (via Invoker) or
// named composite handlers, persisting last-run state through store.Jobs
// and announcing outcomes per each job's delivery policy.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*runtimeJob

	store      store.Jobs
	activities store.Activities
	invoker    Invoker
	announcer  delivery.Announcer
	composite  map[string]CompositeHandler
	metrics    *metrics.Metrics

	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration
	hardTimeout  time.Duration

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithNow(fn func() time.Time) Option {
	return func(s *Scheduler) { s.now = fn }
}

func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

func WithHardTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.hardTimeout = d }
}

func WithAnnouncer(a delivery.Announcer) Option {
	return func(s *Scheduler) { s.announcer = a }
}

func WithCompositeHandler(name string, fn CompositeHandler) Option {
	return func(s *Scheduler) { s.composite[name] = fn }
}

// WithActivities wires the activity log so announce/error_only deliveries
// persist an "announce"-tagged activity row (§4.3) in addition to (or
// instead of, when unconfigured) the external channel. Without this option
// the scheduler still runs jobs and records last-run state, it just cannot
// satisfy the announce delivery policy's activity-row half.
func WithActivities(a store.Activities) Option {
	return func(s *Scheduler) { s.activities = a }
}

// WithMetrics attaches a Metrics recorder; each job run's outcome and
// duration are recorded when set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New builds a Scheduler. jobStore and invoker are required; everything
// else has a sane default (no-op announcer, DefaultTickInterval,
// DefaultHardTimeout, slog.Default()).
func New(jobStore store.Jobs, invoker Invoker, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:         make(map[string]*runtimeJob),
		store:        jobStore,
		invoker:      invoker,
		announcer:    delivery.NoopAnnouncer{},
		composite:    make(map[string]CompositeHandler),
		logger:       slog.Default(),
		now:          time.Now,
		tickInterval: DefaultTickInterval,
		hardTimeout:  DefaultHardTimeout,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches every job from the store, parses its schedule, and computes
// its initial next-run time with the catch-up bound applied relative to
// the job's LastRunAt (or "now" for a job that has never run).
func (s *Scheduler) Load(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return errs.Internal(err, "list scheduled jobs")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, j := range records {
		sched, err := Parse(j.Schedule)
		if err != nil {
			s.logger.Error("skipping job with invalid schedule", "job_id", j.JobID, "error", err)
			continue
		}
		from := now
		if j.LastRunAt != nil {
			from = *j.LastRunAt
		}
		s.jobs[j.JobID] = &runtimeJob{
			job:      j,
			schedule: sched,
			state:    StateIdle,
			nextRun:  sched.Next(from),
		}
	}
	return nil
}

// RegisterJob adds or replaces a job in both the in-memory roster and the
// store, parsing its schedule up front so a malformed schedule is rejected
// at registration time rather than at its first due tick.
func (s *Scheduler) RegisterJob(ctx context.Context, j *types.ScheduledJob) error {
	sched, err := Parse(j.Schedule)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, j); err != nil {
		return errs.Internal(err, "upsert scheduled job %q", j.JobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.now()
	if j.LastRunAt != nil {
		from = *j.LastRunAt
	}
	s.jobs[j.JobID] = &runtimeJob{job: j, schedule: sched, state: StateIdle, nextRun: sched.Next(from)}
	return nil
}

// UnregisterJob removes a job from the in-memory roster only; it remains
// in the store (callers that want hard deletion should disable it via
// RegisterJob with Enabled=false and then remove it from the store
// themselves, since store.Jobs has no Delete method).
func (s *Scheduler) UnregisterJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Jobs returns a snapshot of the registered jobs' current state.
func (s *Scheduler) Jobs() []*types.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.ScheduledJob, 0, len(s.jobs))
	for _, rj := range s.jobs {
		cp := *rj.job
		out = append(out, &cp)
	}
	return out
}

// JobState reports a registered job's current state and the outcome of its
// last completed run (StateIdle with no prior run until the first tick).
func (s *Scheduler) JobState(jobID string) (current, last State, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.jobs[jobID]
	if !ok {
		return "", "", false
	}
	return rj.state, rj.lastState, true
}

// Start runs the dispatch loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errs.Configuration("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop signals the dispatch loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

// RunOnce runs every currently-due job synchronously and returns how many
// ran. Intended for tests and for a "heartbeat tick" CLI subcommand.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	due := make([]*runtimeJob, 0)
	for _, rj := range s.jobs {
		if !rj.job.Enabled {
			continue
		}
		if rj.state != StateIdle {
			continue
		}
		if now.Before(rj.nextRun) {
			continue
		}
		slot := ScheduledMinute(rj.nextRun)
		if !rj.lastIdempotency.IsZero() && rj.lastIdempotency.Equal(slot) {
			// Already executed for this scheduled slot; advance without
			// re-running (guards against a slow tick racing a fast one).
			rj.nextRun = rj.schedule.Next(now)
			continue
		}
		rj.state = StateDue
		due = append(due, rj)
	}
	s.mu.Unlock()

	// §4.3: jobs due simultaneously dispatch in last_run_at order, a job
	// that has never run (nil LastRunAt) sorting first as the oldest-due.
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].job.LastRunAt, due[j].job.LastRunAt
		switch {
		case a == nil && b == nil:
			return due[i].job.JobID < due[j].job.JobID
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return due[i].job.JobID < due[j].job.JobID
		}
	})

	for _, rj := range due {
		s.runJob(ctx, rj, now)
	}
	return len(due)
}

func (s *Scheduler) runJob(ctx context.Context, rj *runtimeJob, scheduledAt time.Time) {
	s.mu.Lock()
	rj.state = StateRunning
	slot := ScheduledMinute(rj.nextRun)
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.hardTimeout)
	defer cancel()

	started := s.now()
	result, err := s.execute(runCtx, rj.job)

	s.mu.Lock()
	rj.lastIdempotency = slot
	now := s.now()
	if err != nil {
		rj.lastState = StateFailed
	} else {
		rj.lastState = StateSucceeded
	}
	rj.nextRun = rj.schedule.Next(now)
	rj.state = StateIdle
	s.mu.Unlock()

	if s.metrics != nil {
		outcome := "succeeded"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.RecordJobRun(rj.job.JobID, outcome, now.Sub(started).Seconds())
	}

	lastErr := ""
	if err != nil {
		lastErr = err.Error()
		s.logger.Error("scheduled job failed", "job_id", rj.job.JobID, "error", err)
	} else {
		s.logger.Info("scheduled job succeeded", "job_id", rj.job.JobID)
	}
	if markErr := s.store.MarkLastRun(ctx, rj.job.JobID, now, lastErr); markErr != nil {
		s.logger.Error("failed to persist job run", "job_id", rj.job.JobID, "error", markErr)
	}

	s.deliver(ctx, rj.job, result, err)
}

func (s *Scheduler) execute(ctx context.Context, job *types.ScheduledJob) (any, error) {
	cmd := job.Command
	if cmd.Composite != "" {
		handler, ok := s.composite[cmd.Composite]
		if !ok {
			return nil, errs.Configuration("no composite handler registered for %q", cmd.Composite)
		}
		return handler(ctx, job)
	}
	if cmd.Skill == "" || cmd.Tool == "" {
		return nil, errs.Configuration("job %q command has neither a composite handler nor a skill.tool", job.JobID)
	}
	args, err := json.Marshal(cmd.Args)
	if err != nil {
		return nil, errs.Internal(err, "marshal job %q args", job.JobID)
	}
	return s.invoker.Invoke(ctx, cmd.Skill, cmd.Tool, args, fmt.Sprintf("cron:%s", job.JobID))
}

// deliver implements the §4.3 delivery policies. "none" persists nothing
// beyond the job's last-run state already written by runJob. "announce"
// writes an activity row tagged "announce" and, if an external channel is
// configured, publishes to it too. "error_only" does the same but only when
// the run failed — on success it behaves like "none".
func (s *Scheduler) deliver(ctx context.Context, job *types.ScheduledJob, result any, runErr error) {
	switch job.Delivery {
	case types.DeliveryNone, "":
		return
	case types.DeliveryErrorOnly:
		if runErr == nil {
			return
		}
	case types.DeliveryAnnounce:
		// always announce
	default:
		return
	}

	payload := map[string]any{
		"job_id": job.JobID,
		"result": result,
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}

	if s.activities != nil {
		if err := s.activities.Append(ctx, &types.Activity{
			ID:        uuid.NewString(),
			Action:    "announce",
			Details:   payload,
			SessionID: fmt.Sprintf("cron:%s", job.JobID),
			CreatedAt: s.now(),
		}); err != nil {
			s.logger.Error("failed to persist announce activity", "job_id", job.JobID, "error", err)
		}
	}

	subject := fmt.Sprintf("aria.jobs.%s", job.JobID)
	if err := s.announcer.Announce(ctx, subject, payload); err != nil {
		s.logger.Error("failed to announce job outcome", "job_id", job.JobID, "error", err)
	}
}
