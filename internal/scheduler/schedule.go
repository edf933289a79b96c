// Package scheduler implements the heartbeat scheduler described in spec
// §4.3: cron-like recurring jobs with a bounded job state machine, an
// idempotency key that survives duplicate ticks, a one-occurrence catch-up
// bound after a restart, and announce/none/error_only delivery policies.
// Grounded on the teacher's internal/cron/schedule.go (robfig/cron/v3
// parsing, Kind dispatch) and internal/cron/scheduler.go (functional-option
// construction, ticker-driven dispatch loop), generalized to the spec's
// schedule grammar (cron expressions, @hourly/@daily/@weekly descriptors,
// and a bare "every <duration>" shorthand) instead of the teacher's
// structured CronScheduleConfig.
package scheduler

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Najia-afk/aria-core/pkg/errs"
)

// Kind distinguishes the two schedule grammars the core accepts.
type Kind string

const (
	KindCron  Kind = "cron"
	KindEvery Kind = "every"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed, immutable recurrence rule.
type Schedule struct {
	Kind     Kind
	Expr     string
	Interval time.Duration // KindEvery only

	cronSchedule cron.Schedule // KindCron only
}

// Parse accepts either a standard (or @hourly/@daily/@weekly/@every
// descriptor-form) cron expression, or a "every <duration>" shorthand such
// as "every 5m" or "every 2h" (§4.3).
func Parse(expr string) (Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Schedule{}, errs.Configuration("schedule expression is required")
	}

	if rest, ok := strings.CutPrefix(trimmed, "every "); ok {
		interval, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return Schedule{}, errs.Configuration("invalid every-schedule %q: %v", expr, err)
		}
		if interval <= 0 {
			return Schedule{}, errs.Configuration("every-schedule %q must be positive", expr)
		}
		return Schedule{Kind: KindEvery, Expr: trimmed, Interval: interval}, nil
	}

	parsed, err := cronParser.Parse(trimmed)
	if err != nil {
		return Schedule{}, errs.Configuration("invalid cron schedule %q: %v", expr, err)
	}
	return Schedule{Kind: KindCron, Expr: trimmed, cronSchedule: parsed}, nil
}

// Next returns the first occurrence strictly after after. Catch-up bound
// (§4.3) falls out of how callers use Next: the scheduler always advances
// from "now" after running a job rather than from the last scheduled
// occurrence, so a long-stopped job fires once on restart and resumes its
// cadence from there instead of replaying every missed tick.
func (s Schedule) Next(after time.Time) time.Time {
	if s.Kind == KindEvery {
		return after.Add(s.Interval)
	}
	return s.cronSchedule.Next(after)
}

// ScheduledMinute is the idempotency key's time component (§4.3): a job is
// considered to have "already run for this slot" if it has run for the
// minute in which it became due.
func ScheduledMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
