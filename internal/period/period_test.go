package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_ContainsIsInclusive(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(time.Hour)}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(time.Hour)))
	assert.True(t, w.Contains(start.Add(30*time.Minute)))
	assert.False(t, w.Contains(start.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(start.Add(time.Hour+time.Nanosecond)))
}

func TestPast_SlidingWindow(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := Past(2 * time.Hour)

	w, ok := p.Window(at)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(at.Add(-2*time.Hour)))
	assert.True(t, w.End.Equal(at))

	next := p.Next(at)
	assert.True(t, next.Start.Equal(at.Add(2*time.Hour)))
}

func TestBetween_DayWindow(t *testing.T) {
	b, err := NewBetween("09:00", "17:00")
	require.NoError(t, err)

	noon := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w, ok := b.Window(noon)
	require.True(t, ok)
	assert.Equal(t, 9, w.Start.Hour())
	assert.Equal(t, 17, w.End.Hour())

	_, ok = b.Window(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	next := b.Next(noon)
	assert.True(t, next.Start.Equal(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)))
}

func TestBetween_WrapsMidnight(t *testing.T) {
	b, err := NewBetween("22:00", "06:00")
	require.NoError(t, err)

	// 02:00 belongs to the window that opened the previous evening.
	at := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	w, ok := b.Window(at)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)))
	assert.True(t, w.End.Equal(time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)))
}

func TestBetween_RejectsBadClock(t *testing.T) {
	_, err := NewBetween("25:00", "09:00")
	assert.Error(t, err)
}

func TestIn_Weekday(t *testing.T) {
	p, err := NewIn("monday")
	require.NoError(t, err)

	monday := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	w, ok := p.Window(monday)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.End.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))

	tuesday := monday.AddDate(0, 0, 1)
	_, ok = p.Window(tuesday)
	assert.False(t, ok)

	next := p.Next(tuesday)
	assert.True(t, next.Start.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)))
}

func TestIn_Month(t *testing.T) {
	p, err := NewIn("january")
	require.NoError(t, err)

	_, ok := p.Window(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	w, ok := p.Window(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.True(t, w.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	next := p.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, next.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIn_RejectsUnknownName(t *testing.T) {
	_, err := NewIn("someday")
	assert.Error(t, err)
}

func TestCycle_DailyWindow(t *testing.T) {
	c, err := NewCycle("0 0 * * *")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	w, ok := c.Window(at)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.End.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))

	next := c.Next(at)
	assert.True(t, next.Start.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, next.End.Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))
}

func TestCycle_SparseSchedule(t *testing.T) {
	// First of January only: the window search has to probe far back.
	c, err := NewCycle("0 0 1 1 *")
	require.NoError(t, err)

	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	w, ok := c.Window(at)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.End.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseCron_RejectsDescriptors(t *testing.T) {
	_, err := ParseCron("@daily")
	assert.Error(t, err)

	_, err = ParseCron("not a cron")
	assert.Error(t, err)
}

func TestFromCadence(t *testing.T) {
	tests := []struct {
		name string
		expr string
		ok   bool
	}{
		{"named daily", "daily", true},
		{"named hourly", "Hourly", true},
		{"duration", "90m", true},
		{"cron", "*/5 * * * *", true},
		{"empty", "", false},
		{"negative duration", "-5m", false},
		{"garbage", "whenever", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromCadence(tt.expr)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestFromCadence_DurationIsSliding(t *testing.T) {
	p, err := FromCadence("2h")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w, ok := p.Window(at)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(at.Add(-2*time.Hour)))
	assert.True(t, w.End.Equal(at))
}

func TestIntersect(t *testing.T) {
	daily, err := NewCycle("0 0 * * *")
	require.NoError(t, err)
	office, err := NewBetween("09:00", "17:00")
	require.NoError(t, err)

	p := Intersect(daily, office)

	noon := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w, ok := p.Window(noon)
	require.True(t, ok)
	assert.Equal(t, 9, w.Start.Hour())
	assert.Equal(t, 17, w.End.Hour())

	_, ok = p.Window(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	next := p.Next(noon)
	assert.True(t, next.Start.Equal(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)))
}

func TestUnion(t *testing.T) {
	morning, err := NewBetween("06:00", "09:00")
	require.NoError(t, err)
	evening, err := NewBetween("18:00", "21:00")
	require.NoError(t, err)

	p := Union(morning, evening)

	_, ok := p.Window(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	w, ok := p.Window(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 6, w.Start.Hour())

	next := p.Next(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, 18, next.Start.Hour())
}

func TestNextOccurrences(t *testing.T) {
	c, err := NewCycle("0 * * * *")
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	times := NextOccurrences(c, base, 3)
	require.Len(t, times, 3)
	assert.True(t, times[0].Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, times[1].Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
	assert.True(t, times[2].Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}
