//go:build cgo && linux

package xkb

/*
#cgo pkg-config: xkbcommon
#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type xkbEngine struct {
	ctx *C.struct_xkb_context
}

// NewEngine creates a libxkbcommon context.
func NewEngine() (Engine, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, fmt.Errorf("failed to create xkb context")
	}
	return &xkbEngine{ctx: ctx}, nil
}

func (e *xkbEngine) KeymapFromBuffer(buf []byte) (Keymap, error) {
	if len(buf) == 0 {
		return nil, ErrCompile
	}
	km := C.xkb_keymap_new_from_buffer(e.ctx,
		(*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)),
		C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return nil, ErrCompile
	}
	return &xkbKeymap{km: km}, nil
}

func cstringOrNil(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func (e *xkbEngine) KeymapFromNames(names RuleNames) (Keymap, error) {
	var rn C.struct_xkb_rule_names
	rn.rules = cstringOrNil(names.Rules)
	rn.model = cstringOrNil(names.Model)
	rn.layout = cstringOrNil(names.Layout)
	rn.variant = cstringOrNil(names.Variant)
	rn.options = cstringOrNil(names.Options)
	defer func() {
		for _, p := range []*C.char{rn.rules, rn.model, rn.layout, rn.variant, rn.options} {
			if p != nil {
				C.free(unsafe.Pointer(p))
			}
		}
	}()

	km := C.xkb_keymap_new_from_names(e.ctx, &rn, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return nil, fmt.Errorf("%w: rules %+v", ErrCompile, names)
	}
	return &xkbKeymap{km: km}, nil
}

func (e *xkbEngine) Close() {
	if e.ctx != nil {
		C.xkb_context_unref(e.ctx)
		e.ctx = nil
	}
}

type xkbKeymap struct {
	km *C.struct_xkb_keymap
}

func (k *xkbKeymap) MinKeycode() uint32 { return uint32(C.xkb_keymap_min_keycode(k.km)) }
func (k *xkbKeymap) MaxKeycode() uint32 { return uint32(C.xkb_keymap_max_keycode(k.km)) }
func (k *xkbKeymap) NumLayouts() uint32 { return uint32(C.xkb_keymap_num_layouts(k.km)) }
func (k *xkbKeymap) NumMods() uint32    { return uint32(C.xkb_keymap_num_mods(k.km)) }

func (k *xkbKeymap) NumLayoutsForKey(keycode uint32) uint32 {
	return uint32(C.xkb_keymap_num_layouts_for_key(k.km, C.xkb_keycode_t(keycode)))
}

func (k *xkbKeymap) NumLevelsForKey(keycode, layout uint32) uint32 {
	return uint32(C.xkb_keymap_num_levels_for_key(k.km, C.xkb_keycode_t(keycode), C.xkb_layout_index_t(layout)))
}

func (k *xkbKeymap) SymsByLevel(keycode, layout, level uint32) []uint32 {
	var syms *C.xkb_keysym_t
	n := C.xkb_keymap_key_get_syms_by_level(k.km, C.xkb_keycode_t(keycode),
		C.xkb_layout_index_t(layout), C.xkb_level_index_t(level), &syms)
	if n <= 0 || syms == nil {
		return nil
	}
	out := make([]uint32, int(n))
	for i, s := range unsafe.Slice(syms, int(n)) {
		out[i] = uint32(s)
	}
	return out
}

func (k *xkbKeymap) ModsForLevel(keycode, layout, level uint32) []uint32 {
	var masks [64]C.xkb_mod_mask_t
	n := C.xkb_keymap_key_get_mods_for_level(k.km, C.xkb_keycode_t(keycode),
		C.xkb_layout_index_t(layout), C.xkb_level_index_t(level), &masks[0], C.size_t(len(masks)))
	out := make([]uint32, int(n))
	for i := range out {
		out[i] = uint32(masks[i])
	}
	return out
}

func (k *xkbKeymap) ModName(index uint32) string {
	name := C.xkb_keymap_mod_get_name(k.km, C.xkb_mod_index_t(index))
	if name == nil {
		return ""
	}
	return C.GoString(name)
}

func (k *xkbKeymap) NewState() State {
	return &xkbState{st: C.xkb_state_new(k.km)}
}

func (k *xkbKeymap) Close() {
	if k.km != nil {
		C.xkb_keymap_unref(k.km)
		k.km = nil
	}
}

type xkbState struct {
	st *C.struct_xkb_state
}

func (s *xkbState) UpdateKey(keycode uint32, down bool) StateComponent {
	dir := C.enum_xkb_key_direction(C.XKB_KEY_UP)
	if down {
		dir = C.XKB_KEY_DOWN
	}
	return StateComponent(C.xkb_state_update_key(s.st, C.xkb_keycode_t(keycode), dir))
}

func (s *xkbState) UpdateMask(depressed, latched, locked, group uint32) StateComponent {
	return StateComponent(C.xkb_state_update_mask(s.st,
		C.xkb_mod_mask_t(depressed), C.xkb_mod_mask_t(latched), C.xkb_mod_mask_t(locked),
		0, 0, C.xkb_layout_index_t(group)))
}

func (s *xkbState) ModIndexIsActive(index uint32, component StateComponent) bool {
	return C.xkb_state_mod_index_is_active(s.st, C.xkb_mod_index_t(index),
		C.enum_xkb_state_component(component)) > 0
}

func (s *xkbState) SerializeMods(component StateComponent) uint32 {
	return uint32(C.xkb_state_serialize_mods(s.st, C.enum_xkb_state_component(component)))
}

func (s *xkbState) Close() {
	if s.st != nil {
		C.xkb_state_unref(s.st)
		s.st = nil
	}
}
