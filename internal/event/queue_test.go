package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDispatchesInOrder(t *testing.T) {
	q := NewQueue()

	var got []int
	q.AdoptHandler(Control, func(e Event) {
		got = append(got, e.Data.(int))
	})

	for i := 0; i < 5; i++ {
		q.AddEvent(Event{Type: Control, Data: i})
	}
	q.AddEvent(Event{Type: Quit})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Loop(ctx))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestQueueQuitHandlerRuns(t *testing.T) {
	q := NewQueue()
	quit := false
	q.AdoptHandler(Quit, func(Event) { quit = true })
	q.AddEvent(Event{Type: Quit})

	require.NoError(t, q.Loop(context.Background()))
	assert.True(t, quit)
}

func TestQueueLoopStopsOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Loop(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after cancellation")
	}
}

func TestQueueCrossGoroutineProducers(t *testing.T) {
	q := NewQueue()

	var mu sync.Mutex
	count := 0
	q.AdoptHandler(Control, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				q.AddEvent(Event{Type: Control})
			}
		}()
	}
	wg.Wait()
	q.AddEvent(Event{Type: Quit})

	require.NoError(t, q.Loop(context.Background()))
	assert.Equal(t, 100, count)
}

func TestAdoptBufferMovesQueuedEvents(t *testing.T) {
	q := NewQueue()
	var got []string
	q.AdoptHandler(Control, func(e Event) { got = append(got, e.Data.(string)) })

	q.AddEvent(Event{Type: Control, Data: "a"})
	q.AddEvent(Event{Type: Control, Data: "b"})

	q.AdoptBuffer(NewSimpleBuffer())
	assert.True(t, q.DispatchPending())
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSimpleBufferZeroTimeout(t *testing.T) {
	b := NewSimpleBuffer()
	start := time.Now()
	require.NoError(t, b.WaitForEvent(context.Background(), 0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	kind, _ := b.GetEvent()
	assert.Equal(t, None, kind)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "connected-to-transport", ConnectedToTransport.String())
	assert.Equal(t, "type(99)", Type(99).String())
}
