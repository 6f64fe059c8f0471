package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskgate/internal/cond"
	"taskgate/internal/statuslog"
	"taskgate/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func setup(t *testing.T, opts Options) (*Scheduler, *task.Registry, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	reg := task.NewRegistry(statuslog.NewMemory(), testLogger())
	reg.SetClock(clock.Now)
	if opts.Clock == nil {
		opts.Clock = clock.Now
	}
	return New(reg, testLogger(), opts), reg, clock
}

func waitForStatus(t *testing.T, tk *task.Task, want statuslog.Action) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, err := tk.Status(context.Background())
		return err == nil && status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTick_DispatchesOncePerCycle(t *testing.T) {
	s, reg, clock := setup(t, Options{})
	ctx := context.Background()

	var runs atomic.Int32
	tk, err := task.New(ctx, reg, "reports", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		runs.Add(1)
		return nil, nil
	}), task.Options{Execution: "daily"})
	require.NoError(t, err)

	s.Tick(ctx)
	waitForStatus(t, tk, statuslog.ActionSuccess)
	assert.Equal(t, int32(1), runs.Load())

	// Same day: the cycle is spent, further ticks are no-ops.
	s.Tick(ctx)
	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	// A tick on the next day opens a fresh cycle.
	clock.now = clock.now.AddDate(0, 0, 1)
	s.Tick(ctx)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestTick_SkipsTaskWithFalseRunCond(t *testing.T) {
	s, reg, _ := setup(t, Options{})
	ctx := context.Background()

	_, err := task.New(ctx, reg, "gated", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		t.Fatal("must not run")
		return nil, nil
	}), task.Options{RunCond: cond.False{}})
	require.NoError(t, err)

	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
}

func TestTick_EndConditionTerminates(t *testing.T) {
	s, reg, _ := setup(t, Options{})
	ctx := context.Background()

	tk, err := task.New(ctx, reg, "endless", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), task.Options{EndCond: cond.True{}})
	require.NoError(t, err)

	s.Tick(ctx)
	waitForStatus(t, tk, statuslog.ActionRun)

	s.Tick(ctx)
	waitForStatus(t, tk, statuslog.ActionTerminate)
}

func TestTick_TimeoutTerminates(t *testing.T) {
	s, reg, _ := setup(t, Options{})
	ctx := context.Background()

	tk, err := task.New(ctx, reg, "slow", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), task.Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	s.Tick(ctx)
	waitForStatus(t, tk, statuslog.ActionTerminate)
}

func TestRunNow(t *testing.T) {
	s, reg, _ := setup(t, Options{})
	ctx := context.Background()

	release := make(chan struct{})
	tk, err := task.New(ctx, reg, "manual", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		<-release
		return nil, nil
	}), task.Options{StartCond: cond.False{}})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(ctx, "manual"))
	waitForStatus(t, tk, statuslog.ActionRun)

	// In flight: a second trigger is refused.
	err = s.RunNow(ctx, "manual")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	waitForStatus(t, tk, statuslog.ActionSuccess)

	err = s.RunNow(ctx, "ghost")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestEligible_OrdersByPriority(t *testing.T) {
	s, reg, clock := setup(t, Options{})
	ctx := context.Background()

	for _, spec := range []struct {
		name     string
		priority int
	}{
		{"low", 1},
		{"high", 10},
		{"mid", 5},
	} {
		_, err := task.New(ctx, reg, spec.name, task.Func(func(ctx context.Context, params map[string]any) (any, error) {
			return nil, nil
		}), task.Options{Priority: spec.priority})
		require.NoError(t, err)
	}

	out := s.eligible(ctx, clock.Now())
	require.Len(t, out, 3)
	assert.Equal(t, "high", out[0].Name())
	assert.Equal(t, "mid", out[1].Name())
	assert.Equal(t, "low", out[2].Name())
}

func TestWorkerPool_RelaysRecordsToSharedLog(t *testing.T) {
	shared := statuslog.NewMemory()
	relay := statuslog.NewRelay(shared)

	clock := &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	reg := task.NewRegistry(shared, testLogger())
	reg.SetClock(clock.Now)
	s := New(reg, testLogger(), Options{Workers: 2, LogWriter: relay.Writer(), Clock: clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)
	go s.Run(ctx)

	tk, err := task.New(ctx, reg, "pooled", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	}), task.Options{})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), "pooled"))
	waitForStatus(t, tk, statuslog.ActionSuccess)

	recs, err := shared.All(context.Background(), "pooled")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, statuslog.ActionRun, recs[0].Action)
	assert.Equal(t, statuslog.ActionSuccess, recs[1].Action)
}
