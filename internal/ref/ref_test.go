package ref

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseRunsOnceOnLastHolder(t *testing.T) {
	released := 0
	h := New("device", func(string) { released++ })

	h.Acquire()
	h.Acquire()
	assert.Equal(t, 3, h.Holders())

	assert.False(t, h.Release())
	assert.False(t, h.Release())
	assert.Equal(t, 0, released)

	assert.True(t, h.Release())
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, h.Holders())
}

func TestReleasedHandlePanics(t *testing.T) {
	h := New(1, nil)
	h.Release()

	assert.Panics(t, func() { h.Release() })
	assert.Panics(t, func() { h.Acquire() })
}

func TestConcurrentHolders(t *testing.T) {
	var mu sync.Mutex
	released := 0
	h := New(42, func(int) {
		mu.Lock()
		released++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		h.Acquire()
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, released)

	h.Release()
	assert.Equal(t, 1, released)
	assert.Equal(t, 42, h.Value())
}
