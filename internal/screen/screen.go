//go:build linux

// Package screen is the secondary-screen backend built on an EIS device
// source. It owns the device session and, in portal mode, the portal
// negotiator, and it drains the device source from the dispatch loop.
package screen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/eiscreen/internal/devices"
	"github.com/bnema/eiscreen/internal/ei"
	"github.com/bnema/eiscreen/internal/eibuffer"
	"github.com/bnema/eiscreen/internal/event"
	"github.com/bnema/eiscreen/internal/keys"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/bnema/eiscreen/internal/portal"
)

// KeymapCompiler is the keymap side of the screen.
type KeymapCompiler interface {
	devices.KeymapCompiler
	BuildKeyMap() (*keys.KeyMap, error)
	UpdateModifiers(depressed, latched, locked, group uint32)
	ActiveModifiers() keys.ModifierMask
	Close()
}

// Options configures a Screen.
type Options struct {
	// UsePortal negotiates the EIS descriptor through the portal. Without
	// it the device source connects to Socket directly.
	UsePortal   bool
	Variant     portal.Variant
	RetryDelay  time.Duration
	FallbackEnv string
	// Socket is the EIS socket for direct mode; empty means $LIBEI_SOCKET.
	Socket string
}

// Screen coordinates one device session. Apart from Start, Close and the
// Controller methods, it must only be used from the dispatch loop.
type Screen struct {
	queue      *event.Queue
	source     ei.Context
	buffer     *eibuffer.Buffer
	compiler   KeymapCompiler
	session    *devices.Session
	negotiator *portal.Negotiator
	opts       Options

	keyMap    *keys.KeyMap
	connected bool
}

// New wires a screen into queue. broker is only used with UsePortal.
func New(queue *event.Queue, source ei.Context, compiler KeymapCompiler, broker portal.Broker, opts Options) (*Screen, error) {
	if opts.UsePortal && broker == nil {
		return nil, errors.New("portal mode needs a broker")
	}

	buffer, err := eibuffer.New(source)
	if err != nil {
		return nil, fmt.Errorf("failed to create event buffer: %w", err)
	}

	s := &Screen{
		queue:    queue,
		source:   source,
		buffer:   buffer,
		compiler: compiler,
		session:  devices.NewSession(compiler),
		opts:     opts,
		keyMap:   keys.NewKeyMap(),
	}
	s.session.OnKeymapChanged(s.rebuildKeyMap)

	if opts.UsePortal {
		s.negotiator = portal.NewNegotiator(broker, queue, portal.Options{
			Variant:     opts.Variant,
			RetryDelay:  opts.RetryDelay,
			FallbackEnv: opts.FallbackEnv,
		})
	} else {
		if err := source.SetupBackendSocket(opts.Socket); err != nil {
			buffer.Close()
			return nil, fmt.Errorf("failed to connect to EIS: %w", err)
		}
		s.connected = true
	}

	queue.AdoptBuffer(buffer)
	queue.AdoptHandler(event.System, s.handleSystemEvent)
	queue.AdoptHandler(event.ConnectedToTransport, s.handleConnectedToTransport)
	queue.AdoptHandler(event.Control, s.handleControl)

	return s, nil
}

// Start begins the portal negotiation. It is a no-op in direct mode.
func (s *Screen) Start(ctx context.Context) {
	if s.negotiator != nil {
		s.negotiator.Start(ctx)
	}
}

// Close stops the negotiator before any device state it may refer to is
// released, then tears down the session and the device source.
func (s *Screen) Close() error {
	var errs []error
	if s.negotiator != nil {
		if err := s.negotiator.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.queue.RemoveHandler(event.System)
	s.queue.RemoveHandler(event.ConnectedToTransport)
	s.queue.RemoveHandler(event.Control)
	s.queue.AdoptBuffer(nil)
	if err := s.buffer.Close(); err != nil {
		errs = append(errs, err)
	}

	s.session.Close()
	if s.compiler != nil {
		s.compiler.Close()
	}
	s.source.Close()
	return errors.Join(errs...)
}

// handleSystemEvent runs one drain cycle: a single Dispatch, then every
// event it produced.
func (s *Screen) handleSystemEvent(event.Event) {
	if err := s.source.Dispatch(); err != nil {
		logger.Warnf("EIS dispatch failed: %v", err)
	}

	for {
		ev := s.source.NextEvent()
		if ev == nil {
			return
		}
		s.handleEiEvent(ev)
		ev.Release()
	}
}

func (s *Screen) handleEiEvent(ev *ei.Event) {
	switch ev.Type {
	case ei.EventConnect:
		logger.Debug("Connected to EIS")

	case ei.EventDisconnect:
		logger.Error("Disconnected from EIS")
		s.connected = false
		s.queue.AddEvent(event.Event{Type: event.Quit})

	case ei.EventSeatAdded:
		if ev.Seat == nil {
			return
		}
		if !s.session.BindSeat(ev.Seat) {
			logger.Infof("Ignoring additional seat %s", ev.Seat.Name())
		}

	case ei.EventSeatRemoved:
		if s.session.UnbindSeat(ev.Seat) {
			logger.Debugf("Seat %s removed", ev.Seat.Name())
		}

	case ei.EventDeviceAdded:
		if ev.Device == nil {
			return
		}
		if !s.session.IsBoundSeat(ev.Device.Seat()) {
			logger.Debugf("Ignoring device %s on another seat", ev.Device.Name())
			return
		}
		s.session.AddDevice(ev.Device)

	case ei.EventDeviceRemoved:
		if ev.Device == nil || !s.session.IsBoundSeat(ev.Device.Seat()) {
			return
		}
		s.session.RemoveDevice(ev.Device)

	case ei.EventDevicePaused:
		logger.Debugf("Device %s paused", deviceName(ev.Device))

	case ei.EventDeviceResumed:
		logger.Debugf("Device %s resumed", deviceName(ev.Device))

	case ei.EventProperty:
		logger.Debugf("EIS property %s=%s", ev.Property, ev.Value)

	case ei.EventKeyboardModifiers:
		m := ev.Modifiers
		s.compiler.UpdateModifiers(m.Depressed, m.Latched, m.Locked, m.Group)

	default:
		// Receiver-side input is not used by a sender.
	}
}

func deviceName(d ei.Device) string {
	if d == nil {
		return "<none>"
	}
	return d.Name()
}

// handleConnectedToTransport hands the negotiated descriptor to the device
// source. A failure here leaves nothing to recover.
func (s *Screen) handleConnectedToTransport(e event.Event) {
	fd, ok := e.Data.(int)
	if !ok {
		logger.Errorf("Transport event without descriptor: %T", e.Data)
		s.queue.AddEvent(event.Event{Type: event.Quit})
		return
	}

	if err := s.source.SetupBackendFD(fd); err != nil {
		logger.Errorf("Failed to set up EIS backend on fd %d: %v", fd, err)
		s.queue.AddEvent(event.Event{Type: event.Quit})
		return
	}
	s.connected = true
	logger.Infof("Connected to EIS on fd %d", fd)
}

func (s *Screen) rebuildKeyMap() {
	km, err := s.compiler.BuildKeyMap()
	if err != nil {
		logger.Warnf("Failed to build key map: %v", err)
		return
	}
	s.keyMap = km
	logger.Infof("Key map has %d entries", km.Len())
}

// Shape returns the bounding box of all device regions.
func (s *Screen) Shape() devices.Geometry {
	return s.session.Geometry()
}

// CursorPos returns the centre of the shape; the cursor position of the
// host is not observable through a sender context.
func (s *Screen) CursorPos() (int32, int32) {
	return s.session.Geometry().Center()
}

// CursorCenter is where a warped cursor lands.
func (s *Screen) CursorCenter() (int32, int32) {
	return s.session.Geometry().Center()
}

// IsPrimary is always false, this backend only emulates input.
func (s *Screen) IsPrimary() bool {
	return false
}

func (s *Screen) KeyMap() *keys.KeyMap {
	return s.keyMap
}

func (s *Screen) ActiveModifiers() keys.ModifierMask {
	return s.compiler.ActiveModifiers()
}

func (s *Screen) Enter() { s.session.Enter() }
func (s *Screen) Leave() { s.session.Leave() }

func (s *Screen) FakeMouseButton(button keys.ButtonID, press bool) {
	s.session.FakeMouseButton(button, press)
}

func (s *Screen) FakeMouseMove(x, y int32)           { s.session.FakeMouseMove(x, y) }
func (s *Screen) FakeMouseRelativeMove(dx, dy int32) { s.session.FakeMouseRelativeMove(dx, dy) }
func (s *Screen) FakeMouseWheel(dx, dy int32)        { s.session.FakeMouseWheel(dx, dy) }
func (s *Screen) FakeKey(keycode uint32, down bool)  { s.session.FakeKey(keycode, down) }
