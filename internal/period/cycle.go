package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron ensures the expression is a valid 5-field cron definition and
// returns the underlying schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Cycle is a recurring period whose windows are delimited by consecutive
// ticks of a cron schedule: each window spans one tick to the next.
type Cycle struct {
	expr  string
	sched cron.Schedule
}

// NewCycle builds a Cycle from a 5-field cron expression.
func NewCycle(expr string) (Cycle, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return Cycle{}, err
	}
	return Cycle{expr: expr, sched: sched}, nil
}

// Expr returns the cron expression the cycle was built from.
func (c Cycle) Expr() string {
	return c.expr
}

// maxProbe bounds the backwards search for the tick opening the current
// window. Yearly-ish schedules are the sparsest 5-field cron allows.
const maxProbe = 400 * 24 * time.Hour

func (c Cycle) Window(t time.Time) (Window, bool) {
	// cron schedules only expose the next tick, so find the tick opening
	// the window containing t by probing backwards until a tick lands in
	// (probe, t], then walking forward to the last such tick.
	probe := time.Hour
	for probe <= maxProbe {
		tick := c.sched.Next(t.Add(-probe))
		if !tick.After(t) {
			for {
				next := c.sched.Next(tick)
				if next.After(t) {
					return Window{Start: tick, End: next}, true
				}
				tick = next
			}
		}
		probe *= 2
	}
	return Window{}, false
}

func (c Cycle) Next(t time.Time) Window {
	start := c.sched.Next(t)
	return Window{Start: start, End: c.sched.Next(start)}
}

// NextOccurrences returns the next n window openings strictly after base.
func NextOccurrences(p Period, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	cursor := base
	for i := 0; i < n; i++ {
		w := p.Next(cursor)
		if w.IsZero() || !w.Start.After(cursor) {
			break
		}
		times = append(times, w.Start)
		cursor = w.Start
	}
	return times
}
