// Package xkb compiles keyboard descriptions into a keys.KeyMap.
//
// The compiler is written against a small layout-engine contract. The
// production engine is libxkbcommon (cgo builds only).
package xkb

import "errors"

var (
	// ErrUnavailable is returned when the binary was built without a layout engine.
	ErrUnavailable = errors.New("xkb: layout engine not available (build with CGO enabled)")
	// ErrShortRead means the keyboard description could not be read in full.
	ErrShortRead = errors.New("xkb: short read of keymap descriptor")
	// ErrCompile means the layout engine rejected a description.
	ErrCompile = errors.New("xkb: failed to compile keymap")
	// ErrNoKeymap means no keymap has been compiled yet.
	ErrNoKeymap = errors.New("xkb: no keymap compiled")
)

// Keycode offset between the layout engine (X11 convention) and evdev.
const evdevOffset = 8

// Named modifiers recognised by convertModMask.
const (
	ModNameShift = "Shift"
	ModNameCaps  = "Lock"
	ModNameCtrl  = "Control"
	ModNameAlt   = "Mod1"
)

// StateComponent mirrors enum xkb_state_component.
type StateComponent uint32

const (
	ModsDepressed StateComponent = 1 << iota
	ModsLatched
	ModsLocked
	ModsEffective
	LayoutDepressed
	LayoutLatched
	LayoutLocked
	LayoutEffective
	Leds
)

// RuleNames selects a layout from the engine's rules database. Empty fields
// use the engine defaults, which honour the XKB_DEFAULT_* environment.
type RuleNames struct {
	Rules   string
	Model   string
	Layout  string
	Variant string
	Options string
}

// Engine is the host layout engine.
type Engine interface {
	// KeymapFromBuffer compiles a text keymap. buf holds the description
	// only; the engine may rely on a NUL byte following it.
	KeymapFromBuffer(buf []byte) (Keymap, error)
	KeymapFromNames(names RuleNames) (Keymap, error)
	Close()
}

// Keymap is a compiled layout. Keycodes use the engine's convention.
type Keymap interface {
	MinKeycode() uint32
	MaxKeycode() uint32
	NumLayouts() uint32
	NumLayoutsForKey(keycode uint32) uint32
	NumLevelsForKey(keycode, layout uint32) uint32
	SymsByLevel(keycode, layout, level uint32) []uint32
	ModsForLevel(keycode, layout, level uint32) []uint32
	NumMods() uint32
	ModName(index uint32) string
	NewState() State
	Close()
}

// State tracks modifier and layout state for one Keymap.
type State interface {
	UpdateKey(keycode uint32, down bool) StateComponent
	UpdateMask(depressed, latched, locked, group uint32) StateComponent
	ModIndexIsActive(index uint32, component StateComponent) bool
	SerializeMods(component StateComponent) uint32
	Close()
}
