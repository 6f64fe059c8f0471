package task

import (
	"context"
	"fmt"
	"time"

	"taskgate/internal/cond"
	"taskgate/internal/period"
)

// SetExecution conjoins a "has not run in the current cycle" predicate,
// derived from the cadence expression, into the start condition. This is
// how "run once per day" is expressed without a dedicated state field:
// eligibility is recomputed from the log on every evaluation.
func (t *Task) SetExecution(expr string) error {
	per, err := period.FromCadence(expr)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.name, err)
	}
	t.execution = expr
	t.conjoinStart(t.notRanWithin(per))
	return nil
}

// Between restricts starts to a daily HH:MM window, at most once per
// window. Returns the task for chaining.
func (t *Task) Between(start, end string) (*Task, error) {
	per, err := period.NewBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.name, err)
	}
	t.conjoinStart(t.oncePerWindow(per))
	return t, nil
}

// Every restricts starts to once per sliding duration window.
func (t *Task) Every(d time.Duration) *Task {
	t.conjoinStart(t.notRanWithin(period.Past(d)))
	return t
}

// In restricts starts to a named weekday or month, once per occurrence.
func (t *Task) In(name string) (*Task, error) {
	per, err := period.NewIn(name)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.name, err)
	}
	t.conjoinStart(t.oncePerWindow(per))
	return t, nil
}

// From restricts the task to a single start at or after the given instant.
func (t *Task) From(at time.Time) *Task {
	t.conjoinStart(t.oncePerWindow(period.From(at)))
	return t
}

// InCycle restricts starts to once per cycle of a cadence expression.
func (t *Task) InCycle(expr string) (*Task, error) {
	per, err := period.FromCadence(expr)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.name, err)
	}
	t.conjoinStart(t.notRanWithin(per))
	return t, nil
}

func (t *Task) notRanWithin(per period.Period) cond.Condition {
	return cond.Not{C: &cond.Ran{Task: t.name, Log: t.log, Within: per}}
}

// oncePerWindow allows one start per window and none outside it. The
// cadence periods are active at every instant so notRanWithin suffices
// for them; calendar and clock windows have gaps that must block starts.
func (t *Task) oncePerWindow(per period.Period) cond.Condition {
	return cond.All{cond.Active{Within: per}, t.notRanWithin(per)}
}

// conjoinStart ANDs an additional constraint into the start condition.
// The default always-true start is replaced rather than accumulated.
func (t *Task) conjoinStart(c cond.Condition) {
	if _, alwaysTrue := t.startCond.(cond.True); alwaysTrue {
		t.startCond = c
		return
	}
	t.startCond = cond.And(t.startCond, c)
}

// Period derives the maximum time window carried by the start condition
// tree, falling back to the unconstrained interval.
func (t *Task) Period() period.Period {
	return cond.PeriodOf(t.startCond)
}

// NextStart estimates the next instant the task could be started: now if
// the start condition already holds, else the opening of the period's
// next window after the most recent run. Best effort for display and ops;
// the dispatch loop decides when execution actually happens.
func (t *Task) NextStart(ctx context.Context, now time.Time) (time.Time, error) {
	ok, err := t.startCond.Evaluate(ctx, now)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return now, nil
	}
	ran := &cond.Ran{Task: t.name, Log: t.log}
	last, err := ran.LastRun(ctx)
	if err != nil {
		return time.Time{}, err
	}
	after := last
	if after.IsZero() {
		after = now
	}
	return t.Period().Next(after).Start, nil
}
