//go:build linux

package eibuffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bnema/eiscreen/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pipeSource stands in for the device source descriptor.
type pipeSource struct {
	r, w int
}

func newPipeSource(t *testing.T) *pipeSource {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return &pipeSource{r: fds[0], w: fds[1]}
}

func (p *pipeSource) Fd() int { return p.r }

func newBuffer(t *testing.T, src Source) *Buffer {
	t.Helper()
	b, err := New(src)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInjectedEventsAreFIFO(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))

	for id := uint32(1); id <= 10; id++ {
		b.AddEvent(id)
	}

	for want := uint32(1); want <= 10; want++ {
		kind, id := b.GetEvent()
		require.Equal(t, event.UserKind, kind)
		assert.Equal(t, want, id)
	}
	assert.True(t, b.IsEmpty())
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))

	var wg sync.WaitGroup
	for p := uint32(0); p < 4; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := uint32(0); i < 50; i++ {
				b.AddEvent(p<<16 | i)
			}
		}(p)
	}
	wg.Wait()

	last := map[uint32]int{}
	for !b.IsEmpty() {
		_, id := b.GetEvent()
		p, i := id>>16, int(id&0xffff)
		prev, seen := last[p]
		if seen {
			assert.Greater(t, i, prev, "producer %d out of order", p)
		}
		last[p] = i
	}
	assert.Len(t, last, 4)
}

func TestZeroTimeoutDoesNotBlock(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))

	start := time.Now()
	require.NoError(t, b.WaitForEvent(context.Background(), 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, b.IsEmpty())
}

func TestBlockingWaitWakesOnAddEvent(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.WaitForEvent(context.Background(), -1)
	}()

	select {
	case <-done:
		t.Fatal("WaitForEvent returned before any event")
	case <-time.After(30 * time.Millisecond):
	}

	b.AddEvent(7)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEvent did not wake up")
	}

	kind, id := b.GetEvent()
	assert.Equal(t, event.UserKind, kind)
	assert.Equal(t, uint32(7), id)
}

func TestSourceReadinessQueuesSingleSystemMarker(t *testing.T) {
	src := newPipeSource(t)
	b := newBuffer(t, src)

	_, err := unix.Write(src.w, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, b.WaitForEvent(context.Background(), 100*time.Millisecond))

	kind, _ := b.GetEvent()
	assert.Equal(t, event.SystemKind, kind)
	assert.True(t, b.IsEmpty(), "source data must not be copied into the queue")
}

func TestSystemAndInjectedShareFIFO(t *testing.T) {
	src := newPipeSource(t)
	b := newBuffer(t, src)

	b.AddEvent(1)
	_, err := unix.Write(src.w, []byte{0})
	require.NoError(t, err)
	require.NoError(t, b.WaitForEvent(context.Background(), 100*time.Millisecond))
	b.AddEvent(2)

	kind, id := b.GetEvent()
	assert.Equal(t, event.UserKind, kind)
	assert.Equal(t, uint32(1), id)

	kind, _ = b.GetEvent()
	assert.Equal(t, event.SystemKind, kind)

	kind, id = b.GetEvent()
	assert.Equal(t, event.UserKind, kind)
	assert.Equal(t, uint32(2), id)
}

func TestCancellationCheckedAroundPoll(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.WaitForEvent(ctx, -1), context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.WaitForEvent(ctx, -1) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	b.Wake()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitForEvent ignored cancellation")
	}
}

func TestPollTimeout(t *testing.T) {
	assert.Equal(t, -1, pollTimeout(-time.Second))
	assert.Equal(t, 0, pollTimeout(0))
	assert.Equal(t, 1500, pollTimeout(1500*time.Millisecond))
}

func TestBufferWithQueue(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))
	q := event.NewQueue()
	q.AdoptBuffer(b)

	var got []int
	q.AdoptHandler(event.Control, func(e event.Event) { got = append(got, e.Data.(int)) })

	go func() {
		q.AddEvent(event.Event{Type: event.Control, Data: 1})
		q.AddEvent(event.Event{Type: event.Control, Data: 2})
		q.AddEvent(event.Event{Type: event.Quit})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Loop(ctx))
	assert.Equal(t, []int{1, 2}, got)
}

func TestLoopDrainsEventsQueuedBeforeStart(t *testing.T) {
	b := newBuffer(t, newPipeSource(t))
	q := event.NewQueue()
	q.AdoptBuffer(b)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	q.AdoptHandler(event.Control, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Data.(int))
		if len(got) == 2 {
			close(done)
		}
	})

	// Both land before the first poll, so a single pipe read covers them.
	q.AddEvent(event.Event{Type: event.Control, Data: 1})
	q.AddEvent(event.Event{Type: event.Control, Data: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- q.Loop(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("second event not dispatched, got %v (buffer empty=%v)", got, b.IsEmpty())
	}

	cancel()
	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, got)
}
