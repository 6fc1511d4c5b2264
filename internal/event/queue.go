package event

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/eiscreen/internal/logger"
)

// Queue owns the handler table and the payloads of injected events.
type Queue struct {
	mu       sync.Mutex
	buffer   Buffer
	handlers map[Type]Handler
	pending  map[uint32]Event
	nextID   uint32
}

// NewQueue returns a queue backed by a SimpleBuffer.
func NewQueue() *Queue {
	return &Queue{
		buffer:   NewSimpleBuffer(),
		handlers: make(map[Type]Handler),
		pending:  make(map[uint32]Event),
	}
}

// AdoptBuffer replaces the platform buffer. Passing nil restores a
// SimpleBuffer. Injected events still queued in the old buffer are
// re-posted to the new one.
func (q *Queue) AdoptBuffer(b Buffer) {
	if b == nil {
		b = NewSimpleBuffer()
	}

	q.mu.Lock()
	old := q.buffer
	q.buffer = b
	q.mu.Unlock()

	for !old.IsEmpty() {
		kind, id := old.GetEvent()
		if kind == UserKind {
			b.AddEvent(id)
		}
	}
}

// AdoptHandler installs the handler for t, replacing any previous one.
func (q *Queue) AdoptHandler(t Type, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

// RemoveHandler drops the handler for t.
func (q *Queue) RemoveHandler(t Type) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, t)
}

// AddEvent stores the payload and posts its id to the buffer. Safe from
// any goroutine.
func (q *Queue) AddEvent(e Event) {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.pending[id] = e
	b := q.buffer
	q.mu.Unlock()

	if !b.AddEvent(id) {
		q.mu.Lock()
		delete(q.pending, id)
		q.mu.Unlock()
		logger.Warnf("Event buffer rejected %s event", e.Type)
	}
}

func (q *Queue) currentBuffer() Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffer
}

// Loop runs the dispatch loop until a Quit event is dispatched or ctx is
// cancelled. A Quit event is not an error.
func (q *Queue) Loop(ctx context.Context) error {
	// Cancellation posts a Quit so a waiter blocked in the buffer wakes up.
	stop := context.AfterFunc(ctx, func() {
		q.AddEvent(Event{Type: Quit})
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Only block on an empty buffer. A single wakeup may cover several
		// queued entries.
		b := q.currentBuffer()
		if b.IsEmpty() {
			if err := b.WaitForEvent(ctx, -1); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warnf("Waiting for events failed: %v", err)
				continue
			}
			if b.IsEmpty() {
				continue
			}
		}

		e, ok := q.next(b)
		if !ok {
			continue
		}
		if e.Type == Quit {
			logger.Debug("Dispatch loop received quit")
			q.dispatch(e)
			return nil
		}
		q.dispatch(e)
	}
}

// DispatchPending dispatches every event currently buffered without
// blocking. It returns false if a Quit event was seen.
func (q *Queue) DispatchPending() bool {
	b := q.currentBuffer()
	for !b.IsEmpty() {
		e, ok := q.next(b)
		if !ok {
			continue
		}
		q.dispatch(e)
		if e.Type == Quit {
			return false
		}
	}
	return true
}

func (q *Queue) next(b Buffer) (Event, bool) {
	kind, id := b.GetEvent()
	switch kind {
	case SystemKind:
		return Event{Type: System}, true
	case UserKind:
		q.mu.Lock()
		e, ok := q.pending[id]
		delete(q.pending, id)
		q.mu.Unlock()
		if !ok {
			logger.Debugf("Dropping unknown event id %d", id)
		}
		return e, ok
	default:
		return Event{}, false
	}
}

func (q *Queue) dispatch(e Event) {
	q.mu.Lock()
	h := q.handlers[e.Type]
	q.mu.Unlock()

	if h == nil {
		if e.Type != Quit {
			logger.Debugf("No handler for %s event", e.Type)
		}
		return
	}
	h(e)
}
