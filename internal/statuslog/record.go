package statuslog

import (
	"context"
	"time"
)

// Action tags what a status log record means for the task that emitted it.
type Action string

const (
	ActionRun          Action = "run"
	ActionSuccess      Action = "success"
	ActionFail         Action = "fail"
	ActionTerminate    Action = "terminate"
	ActionCrashRelease Action = "crash_release"
)

// Level mirrors the severity a record was emitted with.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Record is one append-only status log entry. The field tuple
// (Time, Level, Action, TaskName, ExcText) is the durable contract
// other tooling may read.
type Record struct {
	Time     time.Time `json:"time"`
	Level    Level     `json:"level"`
	Action   Action    `json:"action"`
	TaskName string    `json:"task_name"`
	Message  string    `json:"message,omitempty"`
	ExcText  string    `json:"exc_text,omitempty"`
}

// Writer appends records to a log destination.
type Writer interface {
	Append(ctx context.Context, rec Record) error
}

// Reader queries records for a single task.
type Reader interface {
	// Latest returns the most recent record for the task, or nil if the
	// task has never been logged.
	Latest(ctx context.Context, taskName string) (*Record, error)
	// All returns every record for the task, oldest first.
	All(ctx context.Context, taskName string) ([]Record, error)
}

// Log is a full read/write status log.
type Log interface {
	Reader
	Writer
}

// Combined pairs an independent reader and writer into one Log. Used for
// worker clones whose writes go through a relay while reads stay on the
// owner's log.
type Combined struct {
	Reader
	Writer
}
