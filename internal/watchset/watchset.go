// Package watchset implements a replay-safe watch abstraction: an ordered
// collection of Handles that are advanced together for a bounded time
// budget per tick.
//
// Each Handle owns a background goroutine that reads off the underlying
// k8s.io/apimachinery watch.Interface and buffers events on a channel;
// Start only ever runs on the caller's goroutine (the controller's single
// scheduler thread) and is the sole place event callbacks execute, so
// plugin/controller state is never touched off the scheduler thread even
// though the stream itself is read concurrently.
package watchset

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/watch"
)

// WatchFunc (re)establishes a watch.Interface resuming from resourceVersion
// ("" for a fresh watch). It is called once at Handle construction and
// again whenever the underlying stream closes.
type WatchFunc func(ctx context.Context, resourceVersion string) (watch.Interface, error)

// EventCallback processes one watch.Event. It runs synchronously inside
// Start, on the scheduler thread.
type EventCallback func(watch.Event)

// Handle advances one watch stream for a caller-supplied time budget.
type Handle struct {
	watchFn WatchFunc
	cb      EventCallback
	lastRV  string

	current watch.Interface
	events  chan watch.Event
	errCh   chan error
	stopped atomic.Bool
}

const eventBufferSize = 256

// NewHandle creates a Handle, performing the initial connect synchronously
// so construction errors surface immediately rather than on the first
// Start call.
func NewHandle(ctx context.Context, watchFn WatchFunc, initialResourceVersion string, cb EventCallback) (*Handle, error) {
	h := &Handle{
		watchFn: watchFn,
		cb:      cb,
		lastRV:  initialResourceVersion,
		events:  make(chan watch.Event, eventBufferSize),
		errCh:   make(chan error, 1),
	}
	if err := h.connect(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) connect(ctx context.Context) error {
	w, err := h.watchFn(ctx, h.lastRV)
	if err != nil {
		return err
	}
	h.current = w
	go h.pump()
	return nil
}

// pump drains the raw watch.Interface into the buffered events channel. It
// runs on its own goroutine for the lifetime of the underlying stream; when
// the stream closes (expired resourceVersion, connection reset) it
// reconnects using the last observed resourceVersion. A reconnect failure
// is reported once on errCh and Start propagates it as fatal, since a
// transport error here means the stream can no longer be trusted.
func (h *Handle) pump() {
	for ev := range h.current.ResultChan() {
		if accessor, err := apimeta.Accessor(ev.Object); err == nil {
			if rv := accessor.GetResourceVersion(); rv != "" {
				h.lastRV = rv
			}
		}
		select {
		case h.events <- ev:
		default:
			// Buffer full: the scheduler thread is falling behind. Drop the
			// event rather than block the pump goroutine; the next full
			// resync (ADDED/MODIFIED replay from a fresh watch) recovers
			// any state lost here.
		}
	}
	if h.stopped.Load() {
		return
	}
	if err := h.connect(context.Background()); err != nil {
		select {
		case h.errCh <- fmt.Errorf("watch reconnect failed: %w", err):
		default:
		}
	}
}

// Start drains buffered events for up to budget, invoking the callback for
// each. It keeps waiting for further events until budget has elapsed, even
// when the buffer is empty, and never blocks past budget. A reconnect
// failure observed during this call is returned as an error.
func (h *Handle) Start(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-h.errCh:
			return err
		case ev := <-h.events:
			h.cb(ev)
		case <-time.After(remaining):
			return nil
		}
	}
}

// Stop tears down the underlying stream. Safe to call once.
func (h *Handle) Stop() {
	h.stopped.Store(true)
	if h.current != nil {
		h.current.Stop()
	}
}

// Set is an ordered collection of Handles advanced together each tick.
type Set struct {
	handles []*Handle
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Add appends h to the set, in registration order.
func (s *Set) Add(h *Handle) {
	s.handles = append(s.handles, h)
}

// Remove drops h from the set and stops its underlying stream.
func (s *Set) Remove(h *Handle) {
	for i, existing := range s.handles {
		if existing == h {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			h.Stop()
			return
		}
	}
}

// Len reports the number of handles currently registered.
func (s *Set) Len() int { return len(s.handles) }

// Advance gives each handle, in order, an equal share of what is left of
// the overall budget: the budget is a ceiling on the whole call, not per
// handle, and every handle gets time to drain its buffered events.
func (s *Set) Advance(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for i, h := range s.handles {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		share := remaining / time.Duration(len(s.handles)-i)
		if err := h.Start(ctx, share); err != nil {
			return err
		}
	}
	return nil
}
