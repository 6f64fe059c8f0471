// Package scheduler drives registered tasks: it polls their conditions
// and invokes eligible ones, optionally through a worker pool whose log
// writes are funneled into a single-writer relay.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"taskgate/internal/statuslog"
	"taskgate/internal/task"
)

// ErrAlreadyRunning is returned when a manual trigger hits a task that is
// currently in flight.
var ErrAlreadyRunning = errors.New("task is already running")

const defaultInterval = time.Second

// Options configures the dispatch loop.
type Options struct {
	// Interval between condition polls. Defaults to one second.
	Interval time.Duration
	// Workers enables a fixed-size worker pool when positive; zero runs
	// each eligible task on its own goroutine.
	Workers int
	// LogWriter, when set, receives the log records of dispatched runs
	// instead of the shared log. Pair it with a statuslog.Relay so one
	// listener owns the physical log.
	LogWriter statuslog.Writer
	// Clock overrides the time source. Test seam.
	Clock func() time.Time
}

type job struct {
	t      *task.Task
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler polls start and run conditions for every registered task and
// executes those that are eligible. It cancels running tasks whose end
// condition holds or whose timeout has elapsed; the task guard records
// the resulting terminate entry.
type Scheduler struct {
	reg       *task.Registry
	logger    *slog.Logger
	interval  time.Duration
	workers   int
	logWriter statuslog.Writer
	now       func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc

	jobs chan job
	wg   sync.WaitGroup
}

// New constructs a scheduler over the given registry.
func New(reg *task.Registry, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		reg:       reg,
		logger:    logger,
		interval:  interval,
		workers:   opts.Workers,
		logWriter: opts.LogWriter,
		now:       now,
		running:   make(map[string]context.CancelFunc),
	}
	if s.workers > 0 {
		s.jobs = make(chan job, s.workers*2)
	}
	return s
}

// Run polls until ctx is canceled, then waits for in-flight tasks.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.workers > 0 {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(ctx, i)
		}
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full poll: end conditions of running tasks first, then
// start/run conditions of idle ones, in descending priority order.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	for _, t := range s.reg.Tasks() {
		cancel, inFlight := s.runningCancel(t.Name())
		if !inFlight {
			continue
		}
		end, err := t.EndCond().Evaluate(ctx, now)
		if err != nil {
			s.logger.Error("evaluate end condition", "task", t.Name(), "err", err)
			continue
		}
		if end {
			s.logger.Info("end condition met, terminating", "task", t.Name())
			cancel()
		}
	}

	for _, t := range s.eligible(ctx, now) {
		if err := s.launch(ctx, t); err != nil {
			s.logger.Error("launch task", "task", t.Name(), "err", err)
		}
	}
}

// RunNow dispatches the task immediately, bypassing its start condition.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	t, err := s.reg.Lookup(name)
	if err != nil {
		return err
	}
	return s.launch(ctx, t)
}

func (s *Scheduler) eligible(ctx context.Context, now time.Time) []*task.Task {
	var out []*task.Task
	for _, t := range s.reg.Tasks() {
		if _, inFlight := s.runningCancel(t.Name()); inFlight {
			continue
		}
		start, err := t.StartCond().Evaluate(ctx, now)
		if err != nil {
			s.logger.Error("evaluate start condition", "task", t.Name(), "err", err)
			continue
		}
		if !start {
			continue
		}
		run, err := t.RunCond().Evaluate(ctx, now)
		if err != nil {
			s.logger.Error("evaluate run condition", "task", t.Name(), "err", err)
			continue
		}
		if run {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() > out[j].Priority() })
	return out
}

func (s *Scheduler) launch(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	if _, inFlight := s.running[t.Name()]; inFlight {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, t.Name())
	}
	runCtx, cancel := context.WithCancel(ctx)
	if timeout := t.Timeout(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	s.running[t.Name()] = cancel
	s.mu.Unlock()

	j := job{t: t, ctx: runCtx, cancel: cancel}
	if s.jobs != nil {
		select {
		case s.jobs <- j:
		default:
			s.finish(j)
			return fmt.Errorf("worker queue full, skipping %s", t.Name())
		}
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(j)
	}()
	return nil
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.logger.Debug("worker picked up task", "worker", id, "task", j.t.Name())
			s.execute(j)
		}
	}
}

func (s *Scheduler) execute(j job) {
	defer s.finish(j)
	t := j.t
	if s.logWriter != nil {
		t = t.Isolated(s.logWriter)
	}
	if _, err := t.Execute(j.ctx, nil); err != nil {
		s.logger.Error("task run failed", "task", t.Name(), "err", err)
	}
}

func (s *Scheduler) finish(j job) {
	j.cancel()
	s.mu.Lock()
	delete(s.running, j.t.Name())
	s.mu.Unlock()
}

func (s *Scheduler) runningCancel(name string) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.running[name]
	return cancel, ok
}
