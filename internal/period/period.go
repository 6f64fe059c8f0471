// Package period provides the time-window arithmetic behind cadence
// expressions: recurring cycles, sliding windows, and daily/calendar
// intervals, each exposed as a sequence of windows over time.
package period

import (
	"fmt"
	"strings"
	"time"
)

// distantFuture stands in for an unbounded right edge.
var distantFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Window is a bounded span of time. Containment is inclusive of both
// edges so that an occurrence stamped exactly at a window boundary is
// never lost between two adjacent windows.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Period is a possibly-recurring time window. None of the implementations
// mutate after construction, so a Period may be shared freely.
type Period interface {
	// Window returns the window active at t, if any.
	Window(t time.Time) (Window, bool)
	// Next returns the first window opening strictly after t.
	Next(t time.Time) Window
}

// Static is the unconstrained all-time interval. It is the conservative
// fallback when no tighter period can be determined.
type Static struct{}

func (Static) Window(t time.Time) (Window, bool) {
	return Window{Start: time.Time{}, End: distantFuture}, true
}

func (Static) Next(t time.Time) Window {
	return Window{Start: t, End: distantFuture}
}

// Past is a sliding window reaching back a fixed duration from the
// evaluation instant.
type Past time.Duration

func (p Past) Window(t time.Time) (Window, bool) {
	return Window{Start: t.Add(-time.Duration(p)), End: t}, true
}

func (p Past) Next(t time.Time) Window {
	return Window{Start: t.Add(time.Duration(p)), End: distantFuture}
}

// From is active from a fixed instant onwards.
type From time.Time

func (p From) Window(t time.Time) (Window, bool) {
	start := time.Time(p)
	if t.Before(start) {
		return Window{}, false
	}
	return Window{Start: start, End: distantFuture}, true
}

func (p From) Next(t time.Time) Window {
	start := time.Time(p)
	if t.Before(start) {
		return Window{Start: start, End: distantFuture}
	}
	return Window{Start: distantFuture, End: distantFuture}
}

// Between is a daily time-of-day window. End at or before start means the
// window wraps past midnight.
type Between struct {
	start dayOffset
	end   dayOffset
}

type dayOffset time.Duration

// NewBetween parses two "HH:MM" instants into a daily window.
func NewBetween(start, end string) (Between, error) {
	s, err := parseClock(start)
	if err != nil {
		return Between{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Between{}, err
	}
	return Between{start: s, end: e}, nil
}

func parseClock(value string) (dayOffset, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return dayOffset(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute), nil
}

func (b Between) wraps() bool {
	return b.end <= b.start
}

// windowFrom builds the window whose opening lies on the given day.
func (b Between) windowFrom(day time.Time) Window {
	start := day.Add(time.Duration(b.start))
	end := day.Add(time.Duration(b.end))
	if b.wraps() {
		end = end.Add(24 * time.Hour)
	}
	return Window{Start: start, End: end}
}

func (b Between) Window(t time.Time) (Window, bool) {
	day := t.Truncate(24 * time.Hour)
	for _, candidate := range []time.Time{day.Add(-24 * time.Hour), day} {
		if w := b.windowFrom(candidate); w.Contains(t) {
			return w, true
		}
	}
	return Window{}, false
}

func (b Between) Next(t time.Time) Window {
	day := t.Truncate(24 * time.Hour)
	for i := 0; i < 3; i++ {
		w := b.windowFrom(day.Add(time.Duration(i) * 24 * time.Hour))
		if w.Start.After(t) {
			return w
		}
	}
	return Window{}
}

// In is a recurring calendar window named by a weekday or a month.
type In struct {
	weekday time.Weekday
	month   time.Month
	isMonth bool
}

// NewIn parses a weekday or month name ("monday", "january", ...).
func NewIn(name string) (In, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == key {
			return In{weekday: d}, nil
		}
	}
	for m := time.January; m <= time.December; m++ {
		if strings.ToLower(m.String()) == key {
			return In{month: m, isMonth: true}, nil
		}
	}
	return In{}, fmt.Errorf("unknown calendar period %q", name)
}

func (p In) Window(t time.Time) (Window, bool) {
	if p.isMonth {
		if t.Month() != p.month {
			return Window{}, false
		}
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, true
	}
	if t.Weekday() != p.weekday {
		return Window{}, false
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Window{Start: start, End: start.AddDate(0, 0, 1)}, true
}

func (p In) Next(t time.Time) Window {
	if p.isMonth {
		year, month := t.Year(), t.Month()
		start := time.Date(year, p.month, 1, 0, 0, 0, 0, t.Location())
		if month >= p.month {
			start = start.AddDate(1, 0, 0)
		}
		return Window{Start: start, End: start.AddDate(0, 1, 0)}
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for i := 1; i <= 7; i++ {
		candidate := day.AddDate(0, 0, i)
		if candidate.Weekday() == p.weekday {
			return Window{Start: candidate, End: candidate.AddDate(0, 0, 1)}
		}
	}
	return Window{}
}

// Intersect combines two periods into one active only when both are. For
// a condition tree AND-ing period-bearing leaves this yields the tightest
// common window.
func Intersect(a, b Period) Period {
	return intersection{a: a, b: b}
}

type intersection struct {
	a, b Period
}

func (p intersection) Window(t time.Time) (Window, bool) {
	wa, ok := p.a.Window(t)
	if !ok {
		return Window{}, false
	}
	wb, ok := p.b.Window(t)
	if !ok {
		return Window{}, false
	}
	w := Window{Start: laterOf(wa.Start, wb.Start), End: earlierOf(wa.End, wb.End)}
	if w.End.Before(w.Start) {
		return Window{}, false
	}
	return w, true
}

func (p intersection) Next(t time.Time) Window {
	cursor := t
	for i := 0; i < 64; i++ {
		na := p.a.Next(cursor)
		nb := p.b.Next(cursor)
		candidate := earlierOf(na.Start, nb.Start)
		if candidate.IsZero() || !candidate.After(cursor) {
			break
		}
		if w, ok := p.Window(candidate); ok {
			return w
		}
		cursor = candidate
	}
	return Window{Start: distantFuture, End: distantFuture}
}

// Union combines two periods into one active when either is. This is the
// widening fold used for OR-combined conditions.
func Union(a, b Period) Period {
	return union{a: a, b: b}
}

type union struct {
	a, b Period
}

func (p union) Window(t time.Time) (Window, bool) {
	wa, aok := p.a.Window(t)
	wb, bok := p.b.Window(t)
	switch {
	case aok && bok:
		return Window{Start: earlierOf(wa.Start, wb.Start), End: laterOf(wa.End, wb.End)}, true
	case aok:
		return wa, true
	case bok:
		return wb, true
	}
	return Window{}, false
}

func (p union) Next(t time.Time) Window {
	na := p.a.Next(t)
	nb := p.b.Next(t)
	if na.IsZero() || (!nb.IsZero() && nb.Start.Before(na.Start)) {
		return nb
	}
	return na
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
