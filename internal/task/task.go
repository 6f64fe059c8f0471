// Package task implements the schedulable unit of work: an action gated
// by start/run/end conditions, with every lifecycle event appended to a
// status log and the task's status always derived from that log.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taskgate/internal/cond"
	"taskgate/internal/statuslog"
)

// Outcome is the value handed to the finish hook.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Action is the invocable unit of work bound to a task.
type Action interface {
	Run(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a plain function into an Action.
type Func func(ctx context.Context, params map[string]any) (any, error)

func (f Func) Run(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Options configures a task at construction time. The zero value gives a
// task that is always eligible to start and never forced to end.
type Options struct {
	StartCond cond.Condition
	RunCond   cond.Condition
	EndCond   cond.Condition

	// Execution is a cadence expression ("daily", "30m", "0 9 * * 1-5").
	// When set, a "has not run in the current cycle" predicate is
	// conjoined into the start condition.
	Execution string

	// Timeout and Priority are scheduling hints for the dispatch loop;
	// the task itself does not act on them.
	Timeout  time.Duration
	Priority int

	OnSuccess func(output any)
	OnFailure func(err error)
	OnFinish  func(outcome Outcome)

	// Log overrides the registry's status log for this task.
	Log statuslog.Log
}

// Task is a declarative unit of schedulable work. Its status is never
// stored on the instance; every read re-derives it from the status log,
// so processes sharing a log observe consistent state.
type Task struct {
	name   string
	action Action

	startCond cond.Condition
	runCond   cond.Condition
	endCond   cond.Condition

	execution string
	timeout   time.Duration
	priority  int

	onSuccess func(output any)
	onFailure func(err error)
	onFinish  func(outcome Outcome)

	log    statuslog.Log
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a task, registers it under name, and applies crash
// recovery: a task whose latest record is still "run" was interrupted
// mid-execution in a prior process lifetime, so a crash_release record is
// appended (the action is not re-invoked).
//
// An empty name is defaulted to a generated unique one.
func New(ctx context.Context, reg *Registry, name string, action Action, opts Options) (*Task, error) {
	if name == "" {
		name = uuid.New().String()
	}
	t := &Task{
		name:      name,
		action:    action,
		startCond: opts.StartCond,
		runCond:   opts.RunCond,
		endCond:   opts.EndCond,
		timeout:   opts.Timeout,
		priority:  opts.Priority,
		onSuccess: opts.OnSuccess,
		onFailure: opts.OnFailure,
		onFinish:  opts.OnFinish,
		log:       opts.Log,
		logger:    reg.logger,
		now:       reg.now,
	}
	if t.startCond == nil {
		t.startCond = cond.True{}
	}
	if t.runCond == nil {
		t.runCond = cond.True{}
	}
	if t.endCond == nil {
		t.endCond = cond.False{}
	}
	if t.log == nil {
		t.log = reg.log
	}
	if opts.Execution != "" {
		if err := t.SetExecution(opts.Execution); err != nil {
			return nil, err
		}
	}
	t.bindConditions()

	if err := reg.Register(t); err != nil {
		return nil, err
	}

	status, err := t.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read status of %s: %w", t.name, err)
	}
	if status == statuslog.ActionRun {
		t.logger.Warn("task previously crashed unexpectedly, releasing", "task", t.name)
		if err := t.appendRecord(ctx, statuslog.LevelWarning, statuslog.ActionCrashRelease,
			fmt.Sprintf("task %s previously crashed unexpectedly", t.name), ""); err != nil {
			return nil, fmt.Errorf("release crashed task %s: %w", t.name, err)
		}
	}
	return t, nil
}

// bindConditions makes this task the implicit subject of every occurrence
// predicate in its condition trees that does not have one yet.
func (t *Task) bindConditions() {
	for _, c := range []cond.Condition{t.startCond, t.runCond, t.endCond} {
		cond.Bind(c, t.name, t.log)
	}
}

// Name returns the unique task name.
func (t *Task) Name() string { return t.name }

// Priority returns the scheduling priority hint.
func (t *Task) Priority() int { return t.priority }

// Timeout returns the execution deadline hint, zero when unset.
func (t *Task) Timeout() time.Duration { return t.timeout }

// Execution returns the cadence expression, empty when unset.
func (t *Task) Execution() string { return t.execution }

// StartCond returns the condition gating when the task may start.
func (t *Task) StartCond() cond.Condition { return t.startCond }

// RunCond returns the condition that must hold for the task to run.
func (t *Task) RunCond() cond.Condition { return t.runCond }

// EndCond returns the condition forcing a running task to end.
func (t *Task) EndCond() cond.Condition { return t.endCond }

// Status returns the action tag of the task's most recent log record, or
// the empty string when the task has never been logged.
func (t *Task) Status(ctx context.Context) (statuslog.Action, error) {
	rec, err := t.log.Latest(ctx, t.name)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.Action, nil
}

// IsRunning reports whether the latest log record marks the task running.
func (t *Task) IsRunning(ctx context.Context) (bool, error) {
	status, err := t.Status(ctx)
	if err != nil {
		return false, err
	}
	return status == statuslog.ActionRun, nil
}

// History returns every log record for the task, oldest first.
func (t *Task) History(ctx context.Context) ([]statuslog.Record, error) {
	return t.log.All(ctx, t.name)
}

// Execute runs the action under the guarded logging protocol: a run
// record first, then on return either a success record and the success
// hook, or a fail record (carrying the error text) and the failure hook
// with the error re-surfaced to the caller. Cancellation of ctx is
// recorded as terminate instead of fail. The finish hook runs exactly
// once on every exit path. Hook panics are not isolated.
func (t *Task) Execute(ctx context.Context, params map[string]any) (any, error) {
	if err := t.LogRunning(ctx); err != nil {
		return nil, err
	}
	outcome := OutcomeFailed
	defer func() {
		if t.onFinish != nil {
			t.onFinish(outcome)
		}
	}()

	output, err := t.action.Run(ctx, params)
	if err != nil {
		// Log writes must survive the cancellation that may have caused
		// the failure.
		logCtx := context.WithoutCancel(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if logErr := t.LogTermination(logCtx, err.Error()); logErr != nil {
				return nil, errors.Join(err, logErr)
			}
			return nil, fmt.Errorf("task %s terminated: %w", t.name, err)
		}
		if logErr := t.LogFailure(logCtx, err); logErr != nil {
			return nil, errors.Join(err, logErr)
		}
		if t.onFailure != nil {
			t.onFailure(err)
		}
		return nil, fmt.Errorf("task %s failed: %w", t.name, err)
	}

	if err := t.LogSuccess(ctx); err != nil {
		return nil, err
	}
	outcome = OutcomeSucceeded
	if t.onSuccess != nil {
		t.onSuccess(output)
	}
	return output, nil
}

// LogRunning appends a run record.
func (t *Task) LogRunning(ctx context.Context) error {
	return t.appendRecord(ctx, statuslog.LevelInfo, statuslog.ActionRun,
		fmt.Sprintf("running %s", t.name), "")
}

// LogSuccess appends a success record.
func (t *Task) LogSuccess(ctx context.Context) error {
	return t.appendRecord(ctx, statuslog.LevelInfo, statuslog.ActionSuccess,
		fmt.Sprintf("task %s succeeded", t.name), "")
}

// LogFailure appends a fail record carrying the failure's description.
func (t *Task) LogFailure(ctx context.Context, cause error) error {
	return t.appendRecord(ctx, statuslog.LevelError, statuslog.ActionFail,
		fmt.Sprintf("task %s failed", t.name), cause.Error())
}

// LogTermination appends a terminate record.
func (t *Task) LogTermination(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "unknown reason"
	}
	return t.appendRecord(ctx, statuslog.LevelInfo, statuslog.ActionTerminate,
		fmt.Sprintf("task %s terminated due to: %s", t.name, reason), "")
}

// LogRecord appends an externally produced record as-is. Task copies
// executed in a worker hand their buffered records back through this so
// that status queries against the original task reflect the worker's run.
func (t *Task) LogRecord(ctx context.Context, rec statuslog.Record) error {
	return t.log.Append(ctx, rec)
}

// Isolated returns a copy of the task whose log writes go to w while
// reads stay on the owner's log. Used when a task crosses into a worker
// that must not write the shared log directly.
func (t *Task) Isolated(w statuslog.Writer) *Task {
	clone := *t
	clone.log = statuslog.Combined{Reader: t.log, Writer: w}
	return &clone
}

func (t *Task) appendRecord(ctx context.Context, level statuslog.Level, action statuslog.Action, message, excText string) error {
	return t.log.Append(ctx, statuslog.Record{
		Time:     t.now(),
		Level:    level,
		Action:   action,
		TaskName: t.name,
		Message:  message,
		ExcText:  excText,
	})
}
