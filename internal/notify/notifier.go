// Package notify delivers out-of-band alerts about task outcomes, wired
// into task failure hooks by the daemon.
package notify

import (
	"context"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Multi fans a notification out to several notifiers, returning the
// first error encountered.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Send(ctx context.Context, title, body string) error {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			return err
		}
	}
	return nil
}

// NoOp does nothing.
type NoOp struct{}

func (NoOp) Send(ctx context.Context, title, body string) error {
	return nil
}
