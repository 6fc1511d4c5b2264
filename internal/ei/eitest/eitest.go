// Package eitest provides in-memory ei handles for tests.
package eitest

import (
	"fmt"
	"sync"

	"github.com/bnema/eiscreen/internal/ei"
)

// Call is one recorded device operation.
type Call struct {
	Op   string
	Args []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

// Seat is a fake ei.Seat counting references.
type Seat struct {
	SeatName string
	Bound    []ei.Capability
	Refs     int
}

func NewSeat(name string) *Seat {
	return &Seat{SeatName: name, Refs: 1}
}

func (s *Seat) Name() string                          { return s.SeatName }
func (s *Seat) BindCapabilities(caps ...ei.Capability) { s.Bound = append(s.Bound, caps...) }
func (s *Seat) Ref()                                  { s.Refs++ }
func (s *Seat) Unref()                                { s.Refs-- }

// Device is a fake ei.Device recording every operation.
type Device struct {
	DeviceName string
	Caps       []ei.Capability
	Areas      []ei.Region
	DeviceSeat ei.Seat

	KeymapFd   int
	KeymapSize int
	HasKeymap  bool

	Refs  int
	Calls []Call
}

func NewDevice(name string, seat ei.Seat, caps ...ei.Capability) *Device {
	return &Device{DeviceName: name, DeviceSeat: seat, Caps: caps, Refs: 1}
}

// WithRegion appends a region and returns the device.
func (d *Device) WithRegion(x, y int32, w, h uint32) *Device {
	d.Areas = append(d.Areas, ei.Region{X: x, Y: y, Width: w, Height: h})
	return d
}

func (d *Device) record(op string, args ...any) {
	d.Calls = append(d.Calls, Call{Op: op, Args: args})
}

// Ops returns the recorded operation names in order.
func (d *Device) Ops() []string {
	out := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		out[i] = c.Op
	}
	return out
}

func (d *Device) Name() string         { return d.DeviceName }
func (d *Device) Seat() ei.Seat        { return d.DeviceSeat }
func (d *Device) Regions() []ei.Region { return d.Areas }

func (d *Device) HasCapability(c ei.Capability) bool {
	for _, have := range d.Caps {
		if have == c {
			return true
		}
	}
	return false
}

func (d *Device) KeyboardKeymap() (int, int, bool) {
	return d.KeymapFd, d.KeymapSize, d.HasKeymap
}

func (d *Device) StartEmulating()                     { d.record("start") }
func (d *Device) StopEmulating()                      { d.record("stop") }
func (d *Device) PointerMotion(dx, dy float64)        { d.record("motion", dx, dy) }
func (d *Device) PointerMotionAbsolute(x, y float64)  { d.record("motion_abs", x, y) }
func (d *Device) Button(code uint32, press bool)      { d.record("button", code, press) }
func (d *Device) ScrollDiscrete(x, y int32)           { d.record("scroll_discrete", x, y) }
func (d *Device) KeyboardKey(code uint32, press bool) { d.record("key", code, press) }
func (d *Device) Frame()                              { d.record("frame") }
func (d *Device) Ref()                                { d.Refs++ }
func (d *Device) Unref()                              { d.Refs-- }

// Context is a fake ei.Context fed by Push.
type Context struct {
	mu sync.Mutex

	FD          int
	BackendFD   int
	Socket      string
	SetupErr    error
	Dispatches  int
	DispatchErr error
	Closed      bool

	pending  []*ei.Event
	Released int
}

func NewContext() *Context {
	return &Context{FD: -1, BackendFD: -1}
}

// Push queues an event returned by the next NextEvent calls.
func (c *Context) Push(t ei.EventType, seat ei.Seat, device ei.Device) *ei.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := ei.NewEvent(t, seat, device, func() {
		c.mu.Lock()
		c.Released++
		c.mu.Unlock()
	})
	c.pending = append(c.pending, ev)
	return ev
}

// Pending returns the number of events not yet pulled.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Backend returns the descriptor passed to SetupBackendFD.
func (c *Context) Backend() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BackendFD
}

// DispatchCount returns the number of Dispatch calls.
func (c *Context) DispatchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Dispatches
}

func (c *Context) SetupBackendFD(fd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetupErr != nil {
		return c.SetupErr
	}
	c.BackendFD = fd
	return nil
}

func (c *Context) SetupBackendSocket(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetupErr != nil {
		return c.SetupErr
	}
	c.Socket = path
	return nil
}

func (c *Context) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FD
}

func (c *Context) Dispatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Dispatches++
	return c.DispatchErr
}

func (c *Context) NextEvent() *ei.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev
}

func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

var (
	_ ei.Seat    = (*Seat)(nil)
	_ ei.Device  = (*Device)(nil)
	_ ei.Context = (*Context)(nil)
)
