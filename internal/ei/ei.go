// Package ei is the device-source side of input emulation: a sender
// context that receives seats and devices from an EIS implementation and
// emits synthesized input on them.
package ei

import (
	"errors"
	"strings"
)

// ErrUnavailable is returned when the binary was built without libei.
var ErrUnavailable = errors.New("ei: libei not available (build with CGO enabled)")

// Capability is a device capability bit.
type Capability uint32

const (
	CapPointer Capability = 1 << iota
	CapPointerAbsolute
	CapKeyboard
	CapTouch
	CapScroll
	CapButton
)

func (c Capability) String() string {
	var names []string
	for _, n := range []struct {
		cap  Capability
		name string
	}{
		{CapPointer, "pointer"},
		{CapPointerAbsolute, "pointer-absolute"},
		{CapKeyboard, "keyboard"},
		{CapTouch, "touch"},
		{CapScroll, "scroll"},
		{CapButton, "button"},
	} {
		if c&n.cap != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// EventType tags an Event.
type EventType int

const (
	EventUnknown EventType = iota
	EventConnect
	EventDisconnect
	EventSeatAdded
	EventSeatRemoved
	EventDeviceAdded
	EventDeviceRemoved
	EventDevicePaused
	EventDeviceResumed
	EventProperty
	EventKeyboardModifiers
	// EventReceiverInput covers frames, emulation start/stop and all
	// pointer, keyboard and touch input. Only a receiver context gets them.
	EventReceiverInput
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventSeatAdded:
		return "seat-added"
	case EventSeatRemoved:
		return "seat-removed"
	case EventDeviceAdded:
		return "device-added"
	case EventDeviceRemoved:
		return "device-removed"
	case EventDevicePaused:
		return "device-paused"
	case EventDeviceResumed:
		return "device-resumed"
	case EventProperty:
		return "property"
	case EventKeyboardModifiers:
		return "keyboard-modifiers"
	case EventReceiverInput:
		return "receiver-input"
	default:
		return "unknown"
	}
}

// Region is a rectangle of the logical output a device can address.
type Region struct {
	X, Y          int32
	Width, Height uint32
}

// Modifiers is an XKB modifier snapshot.
type Modifiers struct {
	Depressed, Latched, Locked, Group uint32
}

// Seat groups the devices of one logical user.
type Seat interface {
	Name() string
	// BindCapabilities requests devices with the given capabilities.
	BindCapabilities(caps ...Capability)
	Ref()
	Unref()
}

// Device is one emulated input device.
type Device interface {
	Name() string
	Seat() Seat
	HasCapability(Capability) bool
	Regions() []Region
	// KeyboardKeymap returns the descriptor and size of an XKB keymap. The
	// descriptor stays owned by the device.
	KeyboardKeymap() (fd int, size int, ok bool)

	StartEmulating()
	StopEmulating()
	PointerMotion(dx, dy float64)
	PointerMotionAbsolute(x, y float64)
	Button(code uint32, press bool)
	ScrollDiscrete(x, y int32)
	KeyboardKey(code uint32, press bool)
	// Frame flushes the events emitted since the last frame.
	Frame()

	Ref()
	Unref()
}

// Event is one notification pulled from a Context. Release must be called
// once the event has been handled; handles it carries stay valid until then.
type Event struct {
	Type      EventType
	Seat      Seat
	Device    Device
	Property  string
	Value     string
	Modifiers Modifiers

	release func()
}

// NewEvent builds an event with an optional release hook.
func NewEvent(t EventType, seat Seat, device Device, release func()) *Event {
	return &Event{Type: t, Seat: seat, Device: device, release: release}
}

func (e *Event) Release() {
	if e.release != nil {
		e.release()
		e.release = nil
	}
}

// Context is a sender connection to an EIS implementation.
type Context interface {
	// SetupBackendFD takes ownership of a connected transport descriptor.
	SetupBackendFD(fd int) error
	// SetupBackendSocket connects to a socket path; empty uses $LIBEI_SOCKET.
	SetupBackendSocket(path string) error
	// Fd is readable when Dispatch has work. Negative before setup.
	Fd() int
	// Dispatch processes pending protocol data. It must be called at most
	// once per wakeup, before draining NextEvent.
	Dispatch() error
	// NextEvent returns the next pending event or nil.
	NextEvent() *Event
	Close()
}
