// Package event implements the dispatch loop that drives a platform screen.
//
// A Queue pulls entries out of a Buffer and hands them to the handler
// registered for their Type. Buffers only ever carry a 32-bit id for
// injected events; the payload itself stays in the Queue until it is
// dispatched.
package event

import "fmt"

// Type identifies an event kind. The set is fixed at compile time.
type Type uint32

const (
	Unknown Type = iota
	// Quit stops the dispatch loop.
	Quit
	// System signals that the platform event source has data to drain.
	System
	// Timer is reserved for timer-driven events.
	Timer
	// ConnectedToTransport carries the negotiated transport descriptor (int).
	ConnectedToTransport
	// Control carries a request from the local control socket.
	Control
)

func (t Type) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Quit:
		return "quit"
	case System:
		return "system"
	case Timer:
		return "timer"
	case ConnectedToTransport:
		return "connected-to-transport"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Event is one entry delivered to a Handler.
type Event struct {
	Type Type
	Data any
}

// Handler receives dispatched events on the dispatch-loop goroutine.
type Handler func(Event)

// Sink accepts events from any goroutine.
type Sink interface {
	AddEvent(Event)
}
