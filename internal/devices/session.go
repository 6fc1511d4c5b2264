// Package devices tracks the emulated input devices of one seat.
//
// The session binds at most one device per capability slot (pointer,
// absolute pointer, keyboard). Slots are filled first-come and are never
// reassigned while their device is present; a removed device leaves its
// slot empty until a device with that capability is added again.
//
// A Session is driven from the dispatch loop only and does no locking.
package devices

import (
	"github.com/bnema/eiscreen/internal/ei"
	"github.com/bnema/eiscreen/internal/keys"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/bnema/eiscreen/internal/ref"
)

// Linux input button codes.
const (
	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
)

// KeymapCompiler turns a keyboard description into the active keymap.
type KeymapCompiler interface {
	CompileFromDescriptor(fd int, length int) error
	CompileDefault() error
}

// Geometry is the bounding box of every region of every present device.
type Geometry struct {
	X, Y          int32
	Width, Height int32
}

// Center returns the middle point of the geometry.
func (g Geometry) Center() (int32, int32) {
	return g.X + g.Width/2, g.Y + g.Height/2
}

type handle = ref.Counted[ei.Device]

// Session owns the device handles of the bound seat.
type Session struct {
	compiler KeymapCompiler

	seat *ref.Counted[ei.Seat]

	pointer  *handle
	abs      *handle
	keyboard *handle
	devices  []*handle

	geometry Geometry

	onKeymap func()
}

func NewSession(compiler KeymapCompiler) *Session {
	return &Session{compiler: compiler}
}

// OnKeymapChanged registers a callback run after a keyboard keymap was
// (re)compiled.
func (s *Session) OnKeymapChanged(fn func()) {
	s.onKeymap = fn
}

// BindSeat accepts seat if no seat is bound yet and requests the fixed
// capability set on it. It returns false if another seat is already bound.
func (s *Session) BindSeat(seat ei.Seat) bool {
	if s.seat != nil {
		return s.seat.Value() == seat
	}

	seat.Ref()
	s.seat = ref.New(seat, func(st ei.Seat) { st.Unref() })
	seat.BindCapabilities(ei.CapPointer, ei.CapPointerAbsolute, ei.CapKeyboard, ei.CapButton, ei.CapScroll)
	logger.Debugf("Using seat %s", seat.Name())
	return true
}

// UnbindSeat drops seat if it is the bound one.
func (s *Session) UnbindSeat(seat ei.Seat) bool {
	if s.seat == nil || s.seat.Value() != seat {
		return false
	}
	s.seat.Release()
	s.seat = nil
	return true
}

// Seat returns the bound seat or nil.
func (s *Session) Seat() ei.Seat {
	if s.seat == nil {
		return nil
	}
	return s.seat.Value()
}

// IsBoundSeat reports whether seat is the bound seat.
func (s *Session) IsBoundSeat(seat ei.Seat) bool {
	return s.seat != nil && seat != nil && s.seat.Value() == seat
}

func (s *Session) find(device ei.Device) int {
	for i, h := range s.devices {
		if h.Value() == device {
			return i
		}
	}
	return -1
}

// AddDevice takes a reference on device, binds it into every empty slot
// matching its capabilities and recomputes the geometry.
func (s *Session) AddDevice(device ei.Device) {
	if s.find(device) >= 0 {
		logger.Debugf("Device %s already known", device.Name())
		return
	}
	logger.Debugf("Adding device %s", device.Name())

	device.Ref()
	h := ref.New(device, func(d ei.Device) { d.Unref() })

	if s.pointer == nil && device.HasCapability(ei.CapPointer) {
		s.pointer = h.Acquire()
	}
	if s.keyboard == nil && device.HasCapability(ei.CapKeyboard) {
		s.keyboard = h.Acquire()
		s.loadKeymap(device)
	}
	if s.abs == nil && device.HasCapability(ei.CapPointerAbsolute) {
		s.abs = h.Acquire()
	}

	s.devices = append(s.devices, h)
	s.updateGeometry()
}

func (s *Session) loadKeymap(device ei.Device) {
	if s.compiler == nil {
		return
	}

	var err error
	if fd, size, ok := device.KeyboardKeymap(); ok {
		err = s.compiler.CompileFromDescriptor(fd, size)
	} else {
		// Without a keymap from the EIS side we only know evdev codes.
		logger.Warnf("Keyboard device %s does not have a keymap, we are guessing", device.Name())
		err = s.compiler.CompileDefault()
	}
	if err != nil {
		logger.Warnf("Keyboard %s keeps the previous keymap: %v", device.Name(), err)
		return
	}
	if s.onKeymap != nil {
		s.onKeymap()
	}
}

// RemoveDevice clears any slot bound to device, drops it from the device
// list and recomputes the geometry. Freed slots stay empty.
func (s *Session) RemoveDevice(device ei.Device) bool {
	idx := s.find(device)
	if idx < 0 {
		return false
	}
	logger.Debugf("Removing device %s", device.Name())

	for _, slot := range []**handle{&s.pointer, &s.keyboard, &s.abs} {
		if *slot != nil && (*slot).Value() == device {
			(*slot).Release()
			*slot = nil
		}
	}

	h := s.devices[idx]
	s.devices = append(s.devices[:idx], s.devices[idx+1:]...)
	h.Release()

	s.updateGeometry()
	return true
}

// updateGeometry recomputes the bounding box from scratch.
func (s *Session) updateGeometry() {
	var (
		g     Geometry
		found bool
		maxX  int64
		maxY  int64
	)

	for _, h := range s.devices {
		for _, r := range h.Value().Regions() {
			x2 := int64(r.X) + int64(r.Width)
			y2 := int64(r.Y) + int64(r.Height)
			if !found {
				g.X, g.Y = r.X, r.Y
				maxX, maxY = x2, y2
				found = true
				continue
			}
			g.X = min(g.X, r.X)
			g.Y = min(g.Y, r.Y)
			maxX = max(maxX, x2)
			maxY = max(maxY, y2)
		}
	}

	if found {
		g.Width = int32(maxX - int64(g.X))
		g.Height = int32(maxY - int64(g.Y))
	}
	s.geometry = g
	logger.Infof("Logical output size: %dx%d@%d.%d", g.Width, g.Height, g.X, g.Y)
}

func (s *Session) Geometry() Geometry {
	return s.geometry
}

func slotValue(h *handle) ei.Device {
	if h == nil {
		return nil
	}
	return h.Value()
}

func (s *Session) Pointer() ei.Device  { return slotValue(s.pointer) }
func (s *Session) Absolute() ei.Device { return slotValue(s.abs) }
func (s *Session) Keyboard() ei.Device { return slotValue(s.keyboard) }

// Devices returns every known device in the order they were added.
func (s *Session) Devices() []ei.Device {
	out := make([]ei.Device, len(s.devices))
	for i, h := range s.devices {
		out[i] = h.Value()
	}
	return out
}

// boundDevices returns the distinct devices held by a slot.
func (s *Session) boundDevices() []ei.Device {
	var out []ei.Device
	for _, h := range []*handle{s.pointer, s.keyboard, s.abs} {
		if h == nil {
			continue
		}
		dup := false
		for _, d := range out {
			if d == h.Value() {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h.Value())
		}
	}
	return out
}

// Enter starts emulation on every bound device.
func (s *Session) Enter() {
	for _, d := range s.boundDevices() {
		d.StartEmulating()
	}
}

// Leave stops emulation on every bound device.
func (s *Session) Leave() {
	for _, d := range s.boundDevices() {
		d.StopEmulating()
	}
}

// ButtonCode maps a portable button to its Linux input code.
func ButtonCode(button keys.ButtonID) uint32 {
	switch button {
	case keys.ButtonLeft:
		return btnLeft
	case keys.ButtonMiddle:
		return btnMiddle
	case keys.ButtonRight:
		return btnRight
	default:
		return btnLeft + uint32(button) - 1
	}
}

func (s *Session) FakeMouseButton(button keys.ButtonID, press bool) {
	d := s.Pointer()
	if d == nil {
		return
	}
	d.Button(ButtonCode(button), press)
	d.Frame()
}

func (s *Session) FakeMouseMove(x, y int32) {
	d := s.Absolute()
	if d == nil {
		return
	}
	d.PointerMotionAbsolute(float64(x), float64(y))
	d.Frame()
}

func (s *Session) FakeMouseRelativeMove(dx, dy int32) {
	d := s.Pointer()
	if d == nil {
		return
	}
	d.PointerMotion(float64(dx), float64(dy))
	d.Frame()
}

// FakeMouseWheel scrolls by wheel deltas (120 per notch, positive y is up).
func (s *Session) FakeMouseWheel(dx, dy int32) {
	d := s.Pointer()
	if d == nil {
		return
	}
	d.ScrollDiscrete(dx, -dy)
	d.Frame()
}

// FakeKey presses or releases an evdev keycode.
func (s *Session) FakeKey(keycode uint32, down bool) {
	d := s.Keyboard()
	if d == nil {
		return
	}
	d.KeyboardKey(keycode, down)
	d.Frame()
}

// Close releases every slot, device and the seat.
func (s *Session) Close() {
	for _, slot := range []**handle{&s.pointer, &s.keyboard, &s.abs} {
		if *slot != nil {
			(*slot).Release()
			*slot = nil
		}
	}
	for _, h := range s.devices {
		h.Release()
	}
	s.devices = nil
	if s.seat != nil {
		s.seat.Release()
		s.seat = nil
	}
	s.geometry = Geometry{}
}
