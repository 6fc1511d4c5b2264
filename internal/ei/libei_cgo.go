//go:build cgo && linux

package ei

/*
#cgo pkg-config: libei-1.0
#include <stdbool.h>
#include <stdlib.h>
#include <libei.h>

static void eiscreen_seat_bind(struct ei_seat *seat, enum ei_device_capability cap) {
	ei_seat_bind_capabilities(seat, cap, NULL);
}
*/
import "C"

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/bnema/eiscreen/internal/logger"
)

type sender struct {
	ei       *C.struct_ei
	seats    map[*C.struct_ei_seat]*seat
	devices  map[*C.struct_ei_device]*device
	sequence uint32
}

// NewSender creates a sender context announcing itself as name.
func NewSender(name string) (Context, error) {
	ei := C.ei_new_sender(nil)
	if ei == nil {
		return nil, fmt.Errorf("failed to create ei context")
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.ei_configure_name(ei, cname)

	return &sender{
		ei:      ei,
		seats:   make(map[*C.struct_ei_seat]*seat),
		devices: make(map[*C.struct_ei_device]*device),
	}, nil
}

func (s *sender) SetupBackendFD(fd int) error {
	if rc := C.ei_setup_backend_fd(s.ei, C.int(fd)); rc != 0 {
		return fmt.Errorf("ei_setup_backend_fd: %w", syscall.Errno(-rc))
	}
	return nil
}

func (s *sender) SetupBackendSocket(path string) error {
	var cpath *C.char
	if path != "" {
		cpath = C.CString(path)
		defer C.free(unsafe.Pointer(cpath))
	}
	if rc := C.ei_setup_backend_socket(s.ei, cpath); rc != 0 {
		return fmt.Errorf("ei_setup_backend_socket: %w", syscall.Errno(-rc))
	}
	return nil
}

func (s *sender) Fd() int {
	return int(C.ei_get_fd(s.ei))
}

func (s *sender) Dispatch() error {
	C.ei_dispatch(s.ei)
	return nil
}

func (s *sender) seatFor(p *C.struct_ei_seat) *seat {
	if p == nil {
		return nil
	}
	if st, ok := s.seats[p]; ok {
		return st
	}
	st := &seat{seat: p}
	s.seats[p] = st
	return st
}

func (s *sender) deviceFor(p *C.struct_ei_device) *device {
	if p == nil {
		return nil
	}
	if d, ok := s.devices[p]; ok {
		return d
	}
	d := &device{ctx: s, dev: p}
	s.devices[p] = d
	return d
}

func (s *sender) NextEvent() *Event {
	ev := C.ei_get_event(s.ei)
	if ev == nil {
		return nil
	}

	cseat := C.ei_event_get_seat(ev)
	cdev := C.ei_event_get_device(ev)

	e := &Event{}
	if st := s.seatFor(cseat); st != nil {
		e.Seat = st
	}
	if d := s.deviceFor(cdev); d != nil {
		e.Device = d
	}

	switch C.ei_event_get_type(ev) {
	case C.EI_EVENT_CONNECT:
		e.Type = EventConnect
	case C.EI_EVENT_DISCONNECT:
		e.Type = EventDisconnect
	case C.EI_EVENT_SEAT_ADDED:
		e.Type = EventSeatAdded
	case C.EI_EVENT_SEAT_REMOVED:
		e.Type = EventSeatRemoved
	case C.EI_EVENT_DEVICE_ADDED:
		e.Type = EventDeviceAdded
	case C.EI_EVENT_DEVICE_REMOVED:
		e.Type = EventDeviceRemoved
	case C.EI_EVENT_DEVICE_PAUSED:
		e.Type = EventDevicePaused
	case C.EI_EVENT_DEVICE_RESUMED:
		e.Type = EventDeviceResumed
	case C.EI_EVENT_KEYBOARD_MODIFIERS:
		e.Type = EventKeyboardModifiers
		e.Modifiers = Modifiers{
			Depressed: uint32(C.ei_event_keyboard_get_xkb_mods_depressed(ev)),
			Latched:   uint32(C.ei_event_keyboard_get_xkb_mods_latched(ev)),
			Locked:    uint32(C.ei_event_keyboard_get_xkb_mods_locked(ev)),
			Group:     uint32(C.ei_event_keyboard_get_xkb_group(ev)),
		}
	default:
		e.Type = EventReceiverInput
	}

	typ := e.Type
	e.release = func() {
		C.ei_event_unref(ev)
		switch typ {
		case EventDeviceRemoved:
			delete(s.devices, cdev)
		case EventSeatRemoved:
			delete(s.seats, cseat)
		}
	}
	return e
}

func (s *sender) Close() {
	if s.ei != nil {
		C.ei_unref(s.ei)
		s.ei = nil
	}
	clear(s.seats)
	clear(s.devices)
	logger.Debug("ei context released")
}

type seat struct {
	seat *C.struct_ei_seat
}

func (s *seat) Name() string {
	return C.GoString(C.ei_seat_get_name(s.seat))
}

var capabilityMap = []struct {
	cap  Capability
	ccap C.enum_ei_device_capability
}{
	{CapPointer, C.EI_DEVICE_CAP_POINTER},
	{CapPointerAbsolute, C.EI_DEVICE_CAP_POINTER_ABSOLUTE},
	{CapKeyboard, C.EI_DEVICE_CAP_KEYBOARD},
	{CapTouch, C.EI_DEVICE_CAP_TOUCH},
	{CapScroll, C.EI_DEVICE_CAP_SCROLL},
	{CapButton, C.EI_DEVICE_CAP_BUTTON},
}

func (s *seat) BindCapabilities(caps ...Capability) {
	for _, c := range caps {
		for _, m := range capabilityMap {
			if c&m.cap != 0 {
				C.eiscreen_seat_bind(s.seat, m.ccap)
			}
		}
	}
}

func (s *seat) Ref()   { C.ei_seat_ref(s.seat) }
func (s *seat) Unref() { C.ei_seat_unref(s.seat) }

type device struct {
	ctx *sender
	dev *C.struct_ei_device
}

func (d *device) Name() string {
	return C.GoString(C.ei_device_get_name(d.dev))
}

func (d *device) Seat() Seat {
	return d.ctx.seatFor(C.ei_device_get_seat(d.dev))
}

func (d *device) HasCapability(c Capability) bool {
	for _, m := range capabilityMap {
		if c&m.cap != 0 && !bool(C.ei_device_has_capability(d.dev, m.ccap)) {
			return false
		}
	}
	return c != 0
}

func (d *device) Regions() []Region {
	var out []Region
	for idx := C.size_t(0); ; idx++ {
		r := C.ei_device_get_region(d.dev, idx)
		if r == nil {
			return out
		}
		out = append(out, Region{
			X:      int32(C.ei_region_get_x(r)),
			Y:      int32(C.ei_region_get_y(r)),
			Width:  uint32(C.ei_region_get_width(r)),
			Height: uint32(C.ei_region_get_height(r)),
		})
	}
}

func (d *device) KeyboardKeymap() (int, int, bool) {
	km := C.ei_device_keyboard_get_keymap(d.dev)
	if km == nil || C.ei_keymap_get_type(km) != C.EI_KEYMAP_TYPE_XKB {
		return -1, 0, false
	}
	return int(C.ei_keymap_get_fd(km)), int(C.ei_keymap_get_size(km)), true
}

func (d *device) StartEmulating() {
	d.ctx.sequence++
	C.ei_device_start_emulating(d.dev, C.uint32_t(d.ctx.sequence))
}

func (d *device) StopEmulating() {
	C.ei_device_stop_emulating(d.dev)
}

func (d *device) PointerMotion(dx, dy float64) {
	C.ei_device_pointer_motion(d.dev, C.double(dx), C.double(dy))
}

func (d *device) PointerMotionAbsolute(x, y float64) {
	C.ei_device_pointer_motion_absolute(d.dev, C.double(x), C.double(y))
}

func (d *device) Button(code uint32, press bool) {
	C.ei_device_button_button(d.dev, C.uint32_t(code), C.bool(press))
}

func (d *device) ScrollDiscrete(x, y int32) {
	C.ei_device_scroll_discrete(d.dev, C.int32_t(x), C.int32_t(y))
}

func (d *device) KeyboardKey(code uint32, press bool) {
	C.ei_device_keyboard_key(d.dev, C.uint32_t(code), C.bool(press))
}

func (d *device) Frame() {
	C.ei_device_frame(d.dev, C.ei_now(d.ctx.ei))
}

func (d *device) Ref()   { C.ei_device_ref(d.dev) }
func (d *device) Unref() { C.ei_device_unref(d.dev) }
