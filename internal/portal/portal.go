// Package portal negotiates an input emulation session with the desktop
// portal and hands the resulting EIS descriptor to the event queue.
package portal

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoTransport is returned when neither the portal nor the fallback
	// socket yields an EIS descriptor.
	ErrNoTransport = errors.New("portal: no EIS transport available")
	// ErrSessionClosed is returned for calls on a closed session.
	ErrSessionClosed = errors.New("portal: session closed")
)

// Variant selects the portal interface used to obtain devices.
type Variant int

const (
	RemoteDesktop Variant = iota
	InputCapture
)

func (v Variant) String() string {
	switch v {
	case RemoteDesktop:
		return "remote-desktop"
	case InputCapture:
		return "input-capture"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant accepts the names returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "remote-desktop", "remotedesktop", "":
		return RemoteDesktop, nil
	case "input-capture", "inputcapture", "capture":
		return InputCapture, nil
	}
	return 0, fmt.Errorf("unknown portal variant %q", s)
}

// State is the negotiation progress.
type State int32

const (
	Idle State = iota
	SessionRequested
	SessionReady
	ConnectingTransport
	AwaitingActivation
	Enabled
	Disabled
	Closed
)

var stateNames = [...]string{
	Idle:                "idle",
	SessionRequested:    "session-requested",
	SessionReady:        "session-ready",
	ConnectingTransport: "connecting-transport",
	AwaitingActivation:  "awaiting-activation",
	Enabled:             "enabled",
	Disabled:            "disabled",
	Closed:              "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Zone is a capturable region reported by the portal.
type Zone struct {
	X, Y          int32
	Width, Height uint32
}

// Barrier is a pointer barrier along one zone edge. Either X1 == X2
// (vertical) or Y1 == Y2 (horizontal).
type Barrier struct {
	ID     uint32
	X1, Y1 int32
	X2, Y2 int32
}

// Message is an asynchronous broker notification: a request result or a
// session signal.
type Message interface {
	message()
}

// SessionCreated answers CreateSession.
type SessionCreated struct{ Err error }

// SessionStarted answers Start (remote desktop only).
type SessionStarted struct{ Err error }

// ZonesUpdated carries the zone set answering GetZones.
type ZonesUpdated struct {
	ZoneSet uint32
	Zones   []Zone
	Err     error
}

// ZonesChanged signals that the zone set is stale.
type ZonesChanged struct{}

// BarriersApplied answers SetPointerBarriers with the rejected ids.
type BarriersApplied struct {
	Failed []uint32
	Err    error
}

// SessionDisabled signals that capture was disabled by the compositor.
type SessionDisabled struct{}

// SessionActivated signals that a barrier was crossed.
type SessionActivated struct {
	ActivationID uint32
	X, Y         float64
}

// SessionDeactivated signals the end of an activation.
type SessionDeactivated struct{ ActivationID uint32 }

// SessionClosedSignal signals that the portal closed the session.
type SessionClosedSignal struct{}

func (SessionCreated) message()      {}
func (SessionStarted) message()      {}
func (ZonesUpdated) message()        {}
func (ZonesChanged) message()        {}
func (BarriersApplied) message()     {}
func (SessionDisabled) message()     {}
func (SessionActivated) message()    {}
func (SessionDeactivated) message()  {}
func (SessionClosedSignal) message() {}

// Broker is the portal side of the negotiation. Methods whose result is
// asynchronous return once the request is issued and deliver the answer on
// Messages. All calls come from the negotiator goroutine, except the
// release calls made by Negotiator.Close after that goroutine exited.
type Broker interface {
	Messages() <-chan Message

	CreateSession(ctx context.Context, variant Variant) error
	// Start selects devices and starts a remote desktop session.
	Start(ctx context.Context) error
	// ConnectToEIS returns a connected descriptor owned by the caller.
	ConnectToEIS(ctx context.Context) (int, error)

	GetZones(ctx context.Context) error
	SetPointerBarriers(ctx context.Context, zoneSet uint32, barriers []Barrier) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error

	// Subscribe starts delivering session signals on Messages.
	Subscribe(ctx context.Context) error
	Unsubscribe()
	CloseSession() error
	ReleaseBarriers()
	Close() error
}
