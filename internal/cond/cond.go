// Package cond defines the boolean conditions that gate task eligibility
// and the combinators that compose them.
package cond

import (
	"context"
	"time"

	"taskgate/internal/period"
	"taskgate/internal/statuslog"
)

// Condition is a composable predicate evaluated at a point in time.
type Condition interface {
	Evaluate(ctx context.Context, at time.Time) (bool, error)
}

// Bindable conditions reference a task implicitly and accept the task they
// belong to once it is known. Implementations must only fill fields that
// are still unset.
type Bindable interface {
	Bind(taskName string, log statuslog.Reader)
}

// PeriodBearing conditions carry a time window constraining when they can
// hold.
type PeriodBearing interface {
	Period() period.Period
}

// True always holds.
type True struct{}

func (True) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	return true, nil
}

// False never holds.
type False struct{}

func (False) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	return false, nil
}

// All holds when every subcondition holds. An empty All holds.
type All []Condition

func (c All) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	for _, sub := range c {
		ok, err := sub.Evaluate(ctx, at)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Any holds when at least one subcondition holds. An empty Any does not.
type Any []Condition

func (c Any) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	for _, sub := range c {
		ok, err := sub.Evaluate(ctx, at)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not inverts a condition.
type Not struct {
	C Condition
}

func (c Not) Evaluate(ctx context.Context, at time.Time) (bool, error) {
	ok, err := c.C.Evaluate(ctx, at)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// And conjoins two conditions, flattening nested All values so repeated
// refinement accumulates into one conjunction instead of a deep tree.
func And(a, b Condition) Condition {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := All{}
	if as, ok := a.(All); ok {
		out = append(out, as...)
	} else {
		out = append(out, a)
	}
	if bs, ok := b.(All); ok {
		out = append(out, bs...)
	} else {
		out = append(out, b)
	}
	return out
}

// Bind walks the condition tree and hands the owning task to every
// Bindable leaf that has not been bound to a subject yet.
func Bind(c Condition, taskName string, log statuslog.Reader) {
	switch v := c.(type) {
	case nil:
	case All:
		for _, sub := range v {
			Bind(sub, taskName, log)
		}
	case Any:
		for _, sub := range v {
			Bind(sub, taskName, log)
		}
	case Not:
		Bind(v.C, taskName, log)
	default:
		if b, ok := c.(Bindable); ok {
			b.Bind(taskName, log)
		}
	}
}

// PeriodOf derives the time window carried by a condition tree. A
// period-bearing root wins; AND folds children to their intersection, OR
// to their union (the widest, which never under-constrains eligibility);
// anything else falls back to the unconstrained interval.
func PeriodOf(c Condition) period.Period {
	switch v := c.(type) {
	case All:
		// All-time children do not narrow an intersection.
		return foldPeriods(v, period.Intersect, true)
	case Any:
		// One all-time child widens the whole union to all time.
		return foldPeriods(v, period.Union, false)
	case Not:
		return PeriodOf(v.C)
	default:
		if p, ok := c.(PeriodBearing); ok {
			if per := p.Period(); per != nil {
				return per
			}
		}
		return period.Static{}
	}
}

func foldPeriods(subs []Condition, combine func(a, b period.Period) period.Period, skipStatic bool) period.Period {
	var acc period.Period
	for _, sub := range subs {
		per := PeriodOf(sub)
		if _, static := per.(period.Static); static {
			if skipStatic {
				continue
			}
			return period.Static{}
		}
		if acc == nil {
			acc = per
		} else {
			acc = combine(acc, per)
		}
	}
	if acc == nil {
		return period.Static{}
	}
	return acc
}
