package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"taskgate/internal/statuslog"
)

var (
	// ErrDuplicateName is returned when a task name is already registered.
	ErrDuplicateName = errors.New("task name already registered")
	// ErrTaskNotFound is returned when looking up an unknown task.
	ErrTaskNotFound = errors.New("task not found")
)

// Registry maps task names to task instances and enforces name uniqueness.
// It also carries the shared status log, logger, and clock handed to tasks
// constructed against it.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	log    statuslog.Log
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry backed by the given status log.
func NewRegistry(log statuslog.Log, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tasks:  make(map[string]*Task),
		log:    log,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the registry's time source. Tasks constructed after
// the call stamp their records with it. Test seam.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Log returns the registry's status log.
func (r *Registry) Log() statuslog.Log {
	return r.log
}

// Register adds a task under its name. The first registration of a name
// wins; later ones fail with ErrDuplicateName and leave it intact.
func (r *Registry) Register(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, t.name)
	}
	r.tasks[t.name] = t
	return nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t, nil
}

// Tasks returns all registered tasks ordered by name.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
