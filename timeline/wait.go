package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/cantina-os/core/bus"
)

// ErrStepTimeout is returned when timeout elapses before a matching event
// arrives.
var ErrStepTimeout = errors.New("timeline: step timed out waiting for its completion event")

// awaiter is a subscription armed before the request that triggers its
// reply is emitted, so a collaborator that answers synchronously (as any
// in-process stub or a fast native plugin might) can never complete the
// round trip before the executor starts listening for it.
type awaiter struct {
	ch     chan bus.Payload
	cancel func()
}

// arm subscribes to topic before the caller emits whatever event triggers
// the reply; call wait on the result after emitting.
func (e *Executor) arm(topic bus.Topic, match func(bus.Payload) bool) *awaiter {
	ch := make(chan bus.Payload, 1)
	cancel := e.Bus.Subscribe(topic, e.Name, func(ev *bus.Event) {
		if match(ev.Payload) {
			select {
			case ch <- ev.Payload:
			default:
			}
		}
	})
	return &awaiter{ch: ch, cancel: cancel}
}

func (a *awaiter) wait(ctx context.Context, timeout time.Duration) (bus.Payload, error) {
	defer a.cancel()
	select {
	case p := <-a.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrStepTimeout
	}
}
