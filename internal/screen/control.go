//go:build linux

package screen

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/eiscreen/internal/event"
	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/bnema/eiscreen/internal/keys"
)

var (
	errNoKeyboard   = errors.New("no keyboard device bound")
	errNoPointer    = errors.New("no pointer device bound")
	errNoAbsolute   = errors.New("no absolute pointer device bound")
	errUnknownKeyID = errors.New("key id not in key map")
)

// controlRequest runs fn on the dispatch loop and closes done afterwards.
type controlRequest struct {
	fn   func()
	done chan struct{}
}

var _ ipc.Controller = (*Screen)(nil)

// do runs fn on the dispatch loop and waits for it.
func (s *Screen) do(ctx context.Context, fn func()) error {
	req := &controlRequest{fn: fn, done: make(chan struct{})}
	s.queue.AddEvent(event.Event{Type: event.Control, Data: req})

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch loop did not answer: %w", ctx.Err())
	}
}

func (s *Screen) handleControl(e event.Event) {
	req, ok := e.Data.(*controlRequest)
	if !ok {
		return
	}
	defer close(req.done)
	req.fn()
}

// Status implements ipc.Controller.
func (s *Screen) Status(ctx context.Context) (*ipc.StatusReport, error) {
	var report *ipc.StatusReport
	if err := s.do(ctx, func() { report = s.statusReport() }); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Screen) statusReport() *ipc.StatusReport {
	g := s.session.Geometry()
	r := &ipc.StatusReport{
		State:           "direct",
		Variant:         "none",
		Connected:       s.connected,
		X:               g.X,
		Y:               g.Y,
		Width:           g.Width,
		Height:          g.Height,
		Pointer:         nameOf(s.session.Pointer()),
		Absolute:        nameOf(s.session.Absolute()),
		Keyboard:        nameOf(s.session.Keyboard()),
		DeviceCount:     int32(len(s.session.Devices())),
		KeymapEntries:   int32(s.keyMap.Len()),
		ActiveModifiers: uint32(s.compiler.ActiveModifiers()),
	}
	if s.negotiator != nil {
		r.State = s.negotiator.State().String()
		r.Variant = s.negotiator.Variant().String()
	}
	if seat := s.session.Seat(); seat != nil {
		r.Seat = seat.Name()
	}
	return r
}

func nameOf(d interface{ Name() string }) string {
	if d == nil {
		return ""
	}
	return d.Name()
}

// Inject implements ipc.Controller.
func (s *Screen) Inject(ctx context.Context, req *ipc.InjectRequest) error {
	var result error
	if err := s.do(ctx, func() { result = s.inject(req) }); err != nil {
		return err
	}
	return result
}

func (s *Screen) inject(req *ipc.InjectRequest) error {
	switch req.Kind {
	case ipc.InjectKey:
		if s.session.Keyboard() == nil {
			return errNoKeyboard
		}
		code := req.Code
		if req.KeyID != 0 {
			item, ok := s.keyMap.Find(keys.KeyID(req.KeyID))
			if !ok {
				return fmt.Errorf("%w: %#x", errUnknownKeyID, req.KeyID)
			}
			code = uint32(item.Button)
		}
		s.FakeKey(code, req.Press)

	case ipc.InjectButton:
		if s.session.Pointer() == nil {
			return errNoPointer
		}
		s.FakeMouseButton(keys.ButtonID(req.Code), req.Press)

	case ipc.InjectMove:
		if s.session.Absolute() == nil {
			return errNoAbsolute
		}
		s.FakeMouseMove(req.X, req.Y)

	case ipc.InjectRelativeMove:
		if s.session.Pointer() == nil {
			return errNoPointer
		}
		s.FakeMouseRelativeMove(req.X, req.Y)

	case ipc.InjectWheel:
		if s.session.Pointer() == nil {
			return errNoPointer
		}
		s.FakeMouseWheel(req.X, req.Y)

	case ipc.InjectEnter:
		s.Enter()

	case ipc.InjectLeave:
		s.Leave()

	default:
		return fmt.Errorf("unsupported inject kind %s", req.Kind)
	}
	return nil
}
