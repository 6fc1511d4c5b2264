// Package ref provides shared ownership of external handles.
package ref

import (
	"fmt"
	"sync"
)

// Counted wraps a handle shared by several holders. The release function
// runs exactly once, when the last holder calls Release.
type Counted[T any] struct {
	mu      sync.Mutex
	value   T
	holders int
	release func(T)
}

// New returns a handle owned by the caller (one holder).
func New[T any](value T, release func(T)) *Counted[T] {
	return &Counted[T]{value: value, holders: 1, release: release}
}

// Acquire adds a holder and returns the same handle.
func (c *Counted[T]) Acquire() *Counted[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.holders == 0 {
		panic(fmt.Sprintf("ref: acquire of released %T", c.value))
	}
	c.holders++
	return c
}

// Release drops one holder and reports whether the handle was freed.
func (c *Counted[T]) Release() bool {
	c.mu.Lock()
	if c.holders == 0 {
		c.mu.Unlock()
		panic(fmt.Sprintf("ref: release of released %T", c.value))
	}
	c.holders--
	last := c.holders == 0
	c.mu.Unlock()

	if last && c.release != nil {
		c.release(c.value)
	}
	return last
}

// Value returns the wrapped handle. It must not be used after the last
// Release.
func (c *Counted[T]) Value() T {
	return c.value
}

// Holders returns the current holder count.
func (c *Counted[T]) Holders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holders
}
