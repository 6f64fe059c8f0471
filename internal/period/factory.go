package period

import (
	"fmt"
	"strings"
	"time"
)

// Cron expressions backing the named cadences. Each cadence's windows run
// from one tick to the next, so "daily" means the calendar day, not a
// 24-hour sliding window.
var namedCadences = map[string]string{
	"minutely": "* * * * *",
	"hourly":   "0 * * * *",
	"daily":    "0 0 * * *",
	"weekly":   "0 0 * * 1",
	"monthly":  "0 0 1 * *",
}

// FromCadence maps a human cadence expression to a period. Accepted forms:
// a named cadence ("daily"), a Go duration string ("90m" meaning a sliding
// past window), or a 5-field cron expression.
func FromCadence(expr string) (Period, error) {
	key := strings.ToLower(strings.TrimSpace(expr))
	if key == "" {
		return nil, fmt.Errorf("empty cadence expression")
	}
	if cronExpr, ok := namedCadences[key]; ok {
		return NewCycle(cronExpr)
	}
	if d, err := time.ParseDuration(key); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("cadence duration must be positive, got %q", expr)
		}
		return Past(d), nil
	}
	cycle, err := NewCycle(expr)
	if err != nil {
		return nil, fmt.Errorf("unrecognized cadence %q: %w", expr, err)
	}
	return cycle, nil
}
