package event

import (
	"context"
	"sync"
	"time"
)

// Kind is the tag of an entry pulled out of a Buffer.
type Kind int

const (
	// None means the buffer was empty.
	None Kind = iota
	// SystemKind carries no payload; the consumer drains the platform source itself.
	SystemKind
	// UserKind carries the id passed to AddEvent.
	UserKind
)

// QueueTimer is an opaque handle returned by Buffer.NewTimer.
type QueueTimer struct{}

// Buffer is the platform half of the dispatch loop.
type Buffer interface {
	// WaitForEvent blocks until an entry may be available, the timeout
	// elapses or ctx is cancelled. A zero timeout polls, a negative one
	// blocks indefinitely.
	WaitForEvent(ctx context.Context, timeout time.Duration) error
	// GetEvent dequeues the next entry in FIFO order.
	GetEvent() (Kind, uint32)
	// AddEvent enqueues an injected entry and wakes any waiter. Safe from
	// any goroutine.
	AddEvent(id uint32) bool
	// IsEmpty reports whether the buffer is empty right now.
	IsEmpty() bool
	NewTimer(d time.Duration, oneShot bool) *QueueTimer
	DeleteTimer(*QueueTimer)
}

// SimpleBuffer is a Buffer without a platform source. It is the default
// buffer of a Queue until a platform buffer is adopted.
type SimpleBuffer struct {
	mu    sync.Mutex
	ids   []uint32
	ready chan struct{}
}

func NewSimpleBuffer() *SimpleBuffer {
	return &SimpleBuffer{ready: make(chan struct{}, 1)}
}

func (b *SimpleBuffer) WaitForEvent(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.IsEmpty() {
		return nil
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ready:
	case <-expired:
	}
	return ctx.Err()
}

func (b *SimpleBuffer) GetEvent() (Kind, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ids) == 0 {
		return None, 0
	}
	id := b.ids[0]
	b.ids = b.ids[1:]
	return UserKind, id
}

func (b *SimpleBuffer) AddEvent(id uint32) bool {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

func (b *SimpleBuffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids) == 0
}

func (b *SimpleBuffer) NewTimer(time.Duration, bool) *QueueTimer { return &QueueTimer{} }

func (b *SimpleBuffer) DeleteTimer(*QueueTimer) {}
