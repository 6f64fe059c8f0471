package cond

import (
	"context"
	"fmt"
	"time"

	"taskgate/internal/period"
	"taskgate/internal/statuslog"
)

// Ran holds when the subject task has a run record inside the period's
// window active at the evaluation instant, or anywhere in its history when
// no period is set. Task and Log may be left unset and bound later.
type Ran struct {
	Task   string
	Log    statuslog.Reader
	Within period.Period
}

func (c *Ran) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	if c.Log == nil {
		return false, fmt.Errorf("occurrence condition has no status log bound")
	}
	if c.Task == "" {
		return false, fmt.Errorf("occurrence condition has no task bound")
	}
	recs, err := c.Log.All(ctx, c.Task)
	if err != nil {
		return false, err
	}
	if c.Within == nil {
		for _, rec := range recs {
			if rec.Action == statuslog.ActionRun {
				return true, nil
			}
		}
		return false, nil
	}
	w, active := c.Within.Window(at)
	if !active {
		return false, nil
	}
	for _, rec := range recs {
		if rec.Action == statuslog.ActionRun && w.Contains(rec.Time) {
			return true, nil
		}
	}
	return false, nil
}

// Bind fills the subject task and log if they are still unset.
func (c *Ran) Bind(taskName string, log statuslog.Reader) {
	if c.Task == "" {
		c.Task = taskName
	}
	if c.Log == nil {
		c.Log = log
	}
}

// Period returns the window the occurrence is scoped to, or nil when the
// condition spans the whole history.
func (c *Ran) Period() period.Period {
	return c.Within
}

// Active holds while the period's window covers the evaluation instant.
// It carries no task subject; combined with a negated occurrence it gates
// starts to the window itself.
type Active struct {
	Within period.Period
}

func (c Active) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	_, ok := c.Within.Window(at)
	return ok, nil
}

func (c Active) Period() period.Period {
	return c.Within
}

// LastRun returns the time of the most recent run record for the bound
// task, or the zero time when it has never run.
func (c *Ran) LastRun(ctx context.Context) (time.Time, error) {
	if c.Log == nil || c.Task == "" {
		return time.Time{}, fmt.Errorf("occurrence condition is not bound")
	}
	recs, err := c.Log.All(ctx, c.Task)
	if err != nil {
		return time.Time{}, err
	}
	var last time.Time
	for _, rec := range recs {
		if rec.Action == statuslog.ActionRun && rec.Time.After(last) {
			last = rec.Time
		}
	}
	return last, nil
}
