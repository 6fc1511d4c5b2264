//go:build linux

// Package eibuffer bridges a descriptor-based input event source into the
// event dispatch loop.
//
// The source's own events are never copied: every time its descriptor
// becomes readable a single System marker is queued and the consumer
// drains the source from the System handler. Injected events share the
// same FIFO and wake the poller through a self-pipe.
package eibuffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/eiscreen/internal/event"
	"github.com/bnema/eiscreen/internal/logger"
	"golang.org/x/sys/unix"
)

// Source is the external event source polled by the buffer.
type Source interface {
	// Fd returns the descriptor that becomes readable when the source has
	// data. A negative value means the source is not connected yet.
	Fd() int
}

type entry struct {
	system bool
	id     uint32
}

// Buffer implements event.Buffer for a Source.
type Buffer struct {
	source Source

	mu    sync.Mutex
	queue []entry

	pipeR int
	pipeW int

	closeOnce sync.Once
}

var _ event.Buffer = (*Buffer)(nil)

// New creates the wake pipe. Close releases it.
func New(source Source) (*Buffer, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}

	return &Buffer{
		source: source,
		pipeR:  fds[0],
		pipeW:  fds[1],
	}, nil
}

// Close releases the wake pipe. The source is not owned by the buffer.
func (b *Buffer) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if e := unix.Close(b.pipeR); e != nil {
			err = e
		}
		if e := unix.Close(b.pipeW); e != nil && err == nil {
			err = e
		}
	})
	return err
}

// pollTimeout converts a wait duration to poll(2) milliseconds, -1 being
// "block forever".
func pollTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int(d / time.Millisecond)
}

// WaitForEvent polls the source and the wake pipe. Cancellation is checked
// before and after the poll; a blocked poll is only interrupted by data on
// either descriptor, so cancelling callers should also call AddEvent or
// Wake.
func (b *Buffer) WaitForEvent(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	const (
		sourceIdx = iota
		pipeIdx
		pollCount
	)

	fds := make([]unix.PollFd, pollCount)
	fds[sourceIdx] = unix.PollFd{Fd: int32(b.source.Fd()), Events: unix.POLLIN}
	fds[pipeIdx] = unix.PollFd{Fd: int32(b.pipeR), Events: unix.POLLIN}

	n, err := unix.Poll(fds, pollTimeout(timeout))
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("poll failed: %w", err)
	}

	if n > 0 {
		if fds[sourceIdx].Revents&unix.POLLIN != 0 {
			b.mu.Lock()
			b.queue = append(b.queue, entry{system: true})
			b.mu.Unlock()
		}
		// The pipe only exists to wake us up, its contents are meaningless.
		if fds[pipeIdx].Revents&unix.POLLIN != 0 {
			b.drainPipe()
		}
	}

	return ctx.Err()
}

func (b *Buffer) drainPipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(b.pipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// GetEvent dequeues the oldest entry.
func (b *Buffer) GetEvent() (event.Kind, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return event.None, 0
	}
	e := b.queue[0]
	b.queue = b.queue[1:]

	if e.system {
		return event.SystemKind, 0
	}
	return event.UserKind, e.id
}

// AddEvent queues an injected entry and tickles the wake pipe.
func (b *Buffer) AddEvent(id uint32) bool {
	b.mu.Lock()
	b.queue = append(b.queue, entry{id: id})
	b.mu.Unlock()

	b.Wake()
	return true
}

// Wake interrupts a blocked WaitForEvent without queueing anything.
func (b *Buffer) Wake() {
	// EAGAIN means the pipe is full, which already guarantees a wakeup.
	if _, err := unix.Write(b.pipeW, []byte{'!'}); err != nil && err != unix.EAGAIN {
		logger.Debugf("Failed to write wake pipe: %v", err)
	}
}

func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) == 0
}

// Timers are not driven by this source.
func (b *Buffer) NewTimer(time.Duration, bool) *event.QueueTimer { return &event.QueueTimer{} }

func (b *Buffer) DeleteTimer(*event.QueueTimer) {}
