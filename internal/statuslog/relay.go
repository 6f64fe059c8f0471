package statuslog

import (
	"context"
)

// Relay funnels records from many concurrent writers into a single
// goroutine that owns the destination log. Most log backends are not safe
// for concurrent multi-writer access, so workers queue their records here
// and one listener applies them in arrival order. Per-task ordering is
// preserved because the queue is a single FIFO channel.
type Relay struct {
	dst  Writer
	ch   chan Record
	done chan struct{}
}

// NewRelay creates a relay in front of dst. Run must be started before
// writers are used.
func NewRelay(dst Writer) *Relay {
	return &Relay{
		dst:  dst,
		ch:   make(chan Record, 256),
		done: make(chan struct{}),
	}
}

// Run applies queued records until ctx is canceled, then drains what is
// already queued before returning.
func (r *Relay) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case rec := <-r.ch:
			if err := r.dst.Append(ctx, rec); err != nil {
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.ch:
					if err := r.dst.Append(context.Background(), rec); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// Done is closed once Run has returned and the queue has been drained.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Writer returns a Writer whose appends are queued for the relay.
func (r *Relay) Writer() Writer {
	return relayWriter{r}
}

type relayWriter struct {
	relay *Relay
}

func (w relayWriter) Append(ctx context.Context, rec Record) error {
	select {
	case w.relay.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
