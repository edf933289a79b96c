package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/pkg/types"
)

type stubInvoker struct {
	calls int
	err   error
}

func (s *stubInvoker) Invoke(ctx context.Context, skill, tool string, args json.RawMessage, sessionID string) (any, error) {
	s.calls++
	return "done", s.err
}

// orderInvoker records the job id (smuggled through sessionID as
// "cron:<job_id>") for every invocation, in the order Invoke was called.
type orderInvoker struct {
	order []string
}

func (o *orderInvoker) Invoke(ctx context.Context, skill, tool string, args json.RawMessage, sessionID string) (any, error) {
	o.order = append(o.order, sessionID)
	return "done", nil
}

type stubAnnouncer struct {
	subjects []string
	payloads []any
}

func (a *stubAnnouncer) Announce(ctx context.Context, subject string, payload any) error {
	a.subjects = append(a.subjects, subject)
	a.payloads = append(a.payloads, payload)
	return nil
}

func TestParseEveryShorthand(t *testing.T) {
	sched, err := Parse("every 5m")
	require.NoError(t, err)
	assert.Equal(t, KindEvery, sched.Kind)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(5*time.Minute), sched.Next(base))
}

func TestParseCronDescriptor(t *testing.T) {
	sched, err := Parse("@hourly")
	require.NoError(t, err)
	assert.Equal(t, KindCron, sched.Kind)

	base := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	next := sched.Next(base)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not a schedule")
	require.Error(t, err)
}

func newTestJob(id, schedule string) *types.ScheduledJob {
	return &types.ScheduledJob{
		JobID:    id,
		Schedule: schedule,
		Command:  types.Command{Skill: "health", Tool: "ping"},
		Delivery: types.DeliveryAnnounce,
		Enabled:  true,
	}
}

// dueNowJob returns a job whose LastRunAt is far enough in the past that
// it is already due under the real wall clock, for tests that don't
// override WithNow.
func dueNowJob(id, schedule string) *types.ScheduledJob {
	past := time.Now().Add(-24 * time.Hour)
	j := newTestJob(id, schedule)
	j.LastRunAt = &past
	return j
}

func TestRunOnceExecutesDueJobAndAdvancesNextRun(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}
	ann := &stubAnnouncer{}

	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sch := New(st.Jobs(), inv, WithNow(func() time.Time { return frozen }), WithAnnouncer(ann))

	require.NoError(t, sch.RegisterJob(context.Background(), newTestJob("heartbeat", "every 1m")))

	// A freshly registered job's first occurrence is one interval out, not
	// immediate, so nothing should be due yet.
	ran := sch.RunOnce(context.Background())
	assert.Equal(t, 0, ran)

	frozen = frozen.Add(1 * time.Minute)
	ran = sch.RunOnce(context.Background())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, inv.calls)
	require.Len(t, ann.subjects, 1)
	assert.Equal(t, "aria.jobs.heartbeat", ann.subjects[0])

	_, last, ok := sch.JobState("heartbeat")
	require.True(t, ok)
	assert.Equal(t, StateSucceeded, last)

	ran = sch.RunOnce(context.Background())
	assert.Equal(t, 0, ran, "job should not be due again immediately after running")
}

// TestRunOnceDispatchesSimultaneouslyDueJobsInLastRunAtOrder is the §4.3
// regression: when several jobs are due on the same tick, they must
// dispatch oldest-last_run_at-first, not in the scheduler's unordered
// internal map order.
func TestRunOnceDispatchesSimultaneouslyDueJobsInLastRunAtOrder(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &orderInvoker{}

	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sch := New(st.Jobs(), inv, WithNow(func() time.Time { return frozen }))

	newest := newTestJob("newest", "every 1m")
	newest.LastRunAt = timePtr(frozen.Add(-3 * time.Minute))
	middle := newTestJob("middle", "every 1m")
	middle.LastRunAt = timePtr(frozen.Add(-5 * time.Minute))
	oldest := newTestJob("oldest", "every 1m")
	oldest.LastRunAt = timePtr(frozen.Add(-10 * time.Minute))

	// Register out of order to prove the dispatch order isn't an accident of
	// registration order either.
	for _, j := range []*types.ScheduledJob{newest, oldest, middle} {
		require.NoError(t, sch.RegisterJob(context.Background(), j))
	}

	ran := sch.RunOnce(context.Background())
	require.Equal(t, 3, ran)
	require.Equal(t, []string{
		"cron:oldest",
		"cron:middle",
		"cron:newest",
	}, inv.order)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}
	job := newTestJob("disabled", "every 1m")
	job.Enabled = false

	sch := New(st.Jobs(), inv)
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	ran := sch.RunOnce(context.Background())
	assert.Equal(t, 0, ran)
	assert.Equal(t, 0, inv.calls)
}

func TestRunOnceMarksFailureAndErrorOnlyDeliversOnFailure(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{err: errors.New("boom")}
	ann := &stubAnnouncer{}

	job := dueNowJob("flaky", "every 1m")
	job.Delivery = types.DeliveryErrorOnly

	sch := New(st.Jobs(), inv, WithAnnouncer(ann))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	ran := sch.RunOnce(context.Background())
	assert.Equal(t, 1, ran)
	require.Len(t, ann.subjects, 1, "error_only delivery must still announce on failure")

	_, last, ok := sch.JobState("flaky")
	require.True(t, ok)
	assert.Equal(t, StateFailed, last)

	jobs, err := st.Jobs().List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "boom", jobs[0].LastError)
}

func TestDeliveryNonePolicySkipsAnnouncement(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}
	ann := &stubAnnouncer{}

	job := dueNowJob("silent", "every 1m")
	job.Delivery = types.DeliveryNone

	sch := New(st.Jobs(), inv, WithAnnouncer(ann))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	sch.RunOnce(context.Background())
	assert.Empty(t, ann.subjects)
}

func TestErrorOnlyPolicySkipsAnnouncementOnSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}
	ann := &stubAnnouncer{}

	job := dueNowJob("quiet-success", "every 1m")
	job.Delivery = types.DeliveryErrorOnly

	sch := New(st.Jobs(), inv, WithAnnouncer(ann))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	sch.RunOnce(context.Background())
	assert.Empty(t, ann.subjects)
}

func TestCatchUpFiresAtMostOnceAfterRestart(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}

	// LastRunAt is far enough in the past that an "every 1m" schedule has
	// missed many occurrences; Load must still only consider the job due
	// once, not replay every missed minute.
	longAgo := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	job := newTestJob("stale", "every 1m")
	job.LastRunAt = &longAgo
	require.NoError(t, st.Jobs().Upsert(context.Background(), job))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sch := New(st.Jobs(), inv, WithNow(func() time.Time { return now }))
	require.NoError(t, sch.Load(context.Background()))

	ran := sch.RunOnce(context.Background())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, inv.calls)
}

func TestAnnounceDeliveryWithActivitiesPersistsAnnounceRow(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}

	job := dueNowJob("heartbeat-row", "every 1m")
	job.Delivery = types.DeliveryAnnounce

	sch := New(st.Jobs(), inv, WithActivities(st.Activities()))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	ran := sch.RunOnce(context.Background())
	assert.Equal(t, 1, ran)

	page, err := st.Activities().List(context.Background(), store.ActivityFilter{SessionID: "cron:heartbeat-row"}, store.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "announce", page.Items[0].Action)
	assert.Equal(t, "heartbeat-row", page.Items[0].Details["job_id"])
}

func TestErrorOnlyDeliveryWithActivitiesSkipsRowOnSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}

	job := dueNowJob("quiet-row", "every 1m")
	job.Delivery = types.DeliveryErrorOnly

	sch := New(st.Jobs(), inv, WithActivities(st.Activities()))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	sch.RunOnce(context.Background())

	page, err := st.Activities().List(context.Background(), store.ActivityFilter{SessionID: "cron:quiet-row"}, store.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "a successful error_only run must not persist an announce row")
}

func TestCompositeHandlerRunsInsteadOfInvoker(t *testing.T) {
	st := store.NewMemoryStore()
	inv := &stubInvoker{}
	called := false

	job := dueNowJob("maintenance", "every 1m")
	job.Command = types.Command{Composite: "prune-working-memory"}

	sch := New(st.Jobs(), inv, WithCompositeHandler("prune-working-memory", func(ctx context.Context, j *types.ScheduledJob) (any, error) {
		called = true
		return nil, nil
	}))
	require.NoError(t, sch.RegisterJob(context.Background(), job))

	sch.RunOnce(context.Background())
	assert.True(t, called)
	assert.Equal(t, 0, inv.calls)
}
