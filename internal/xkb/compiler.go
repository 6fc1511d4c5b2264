package xkb

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/eiscreen/internal/keys"
	"github.com/bnema/eiscreen/internal/logger"
	"golang.org/x/sys/unix"
)

// Compiler owns the active keymap of a device session. It is not safe for
// concurrent use; the session drives it from the dispatch loop only.
type Compiler struct {
	engine Engine
	names  RuleNames

	keymap Keymap
	state  State
}

func NewCompiler(engine Engine, names RuleNames) *Compiler {
	return &Compiler{engine: engine, names: names}
}

// HasKeymap reports whether a keymap is installed.
func (c *Compiler) HasKeymap() bool {
	return c.keymap != nil
}

// fdReader reads a descriptor it does not own.
type fdReader int

func (r fdReader) Read(p []byte) (int, error) {
	n, err := unix.Read(int(r), p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// CompileFromDescriptor reads exactly length bytes from fd and installs the
// keymap they describe. The descriptor is not closed.
func (c *Compiler) CompileFromDescriptor(fd int, length int) error {
	return c.CompileFromReader(fdReader(fd), length)
}

// CompileFromReader is CompileFromDescriptor for any reader.
//
// A short read leaves the current keymap (if any) in place. A description
// the engine rejects falls back to CompileDefault.
func (c *Compiler) CompileFromReader(r io.Reader, length int) error {
	if length <= 0 {
		logger.Warnf("Keymap descriptor has invalid size %d", length)
		return fmt.Errorf("%w: size %d", ErrShortRead, length)
	}

	buf := make([]byte, length+1) // trailing NUL
	n, err := io.ReadFull(r, buf[:length])
	if err != nil {
		logger.Warnf("Failed to read keymap (%d of %d bytes): %v", n, length, err)
		return fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, n, length)
	}

	km, err := c.engine.KeymapFromBuffer(buf[:length])
	if err != nil || km == nil {
		logger.Warnf("Failed to compile keymap, falling back to defaults: %v", err)
		return c.CompileDefault()
	}

	c.install(km)
	return nil
}

// CompileDefault installs the engine's default layout for the configured
// rule names.
func (c *Compiler) CompileDefault() error {
	km, err := c.engine.KeymapFromNames(c.names)
	if err != nil || km == nil {
		logger.Errorf("Failed to compile default keymap: %v", err)
		if err == nil {
			err = ErrCompile
		}
		return fmt.Errorf("default keymap: %w", err)
	}

	c.install(km)
	return nil
}

func (c *Compiler) install(km Keymap) {
	c.release()
	c.keymap = km
	c.state = km.NewState()
	logger.Debugf("Installed keymap with keycodes %d..%d, %d layout(s)",
		km.MinKeycode(), km.MaxKeycode(), km.NumLayouts())
}

func (c *Compiler) release() {
	if c.state != nil {
		c.state.Close()
		c.state = nil
	}
	if c.keymap != nil {
		c.keymap.Close()
		c.keymap = nil
	}
}

// Close releases the keymap. The engine is owned by the caller.
func (c *Compiler) Close() {
	c.release()
}

// BuildKeyMap walks every keycode, group and level of the installed
// keymap. Only the first symbol of a level is used.
//
// The required mask is taken from the last modifier combination reported
// for a level, so levels reachable through several combinations report
// only one of them.
func (c *Compiler) BuildKeyMap() (*keys.KeyMap, error) {
	if c.keymap == nil {
		return nil, ErrNoKeymap
	}
	km := c.keymap
	out := keys.NewKeyMap()

	for keycode := km.MinKeycode(); keycode <= km.MaxKeycode(); keycode++ {
		if km.NumLayoutsForKey(keycode) == 0 {
			continue
		}

		for group := uint32(0); group < km.NumLayouts(); group++ {
			for level := uint32(0); level < km.NumLevelsForKey(keycode, group); level++ {
				syms := km.SymsByLevel(keycode, group, level)
				if len(syms) == 0 {
					continue
				}
				if len(syms) > 1 {
					logger.Warnf("Multiple keysyms per keycode are not supported, keycode %d", keycode)
				}

				masks := km.ModsForLevel(keycode, group, level)

				var sensitive, required uint32
				for _, m := range masks {
					sensitive |= m
				}
				for _, m := range masks {
					required = m
				}

				item := keys.KeyItem{
					ID:        KeysymToKeyID(syms[0]),
					Group:     int32(group),
					Button:    keys.KeyButton(keycode - evdevOffset),
					Sensitive: c.convertModMask(sensitive),
					Required:  c.convertModMask(required),
				}
				c.assignGeneratedModifiers(keycode, &item)
				out.AddKeyEntry(item)
			}
		}
	}

	out.AllowGroupSwitchDuringCompose()
	return out, nil
}

// assignGeneratedModifiers presses the key on a scratch state to find out
// which modifiers it drives. A key that locks or latches a modifier is
// pressed a second time to undo it.
func (c *Compiler) assignGeneratedModifiers(keycode uint32, item *keys.KeyItem) {
	state := c.keymap.NewState()
	defer state.Close()

	var generates uint32
	changed := state.UpdateKey(keycode, true)
	if changed != 0 {
		for m := uint32(0); m < c.keymap.NumMods(); m++ {
			if state.ModIndexIsActive(m, ModsLocked) {
				item.Lock = true
			}
			if state.ModIndexIsActive(m, ModsEffective) {
				generates |= 1 << m
			}
		}
	}
	state.UpdateKey(keycode, false)

	if changed&(ModsLocked|ModsLatched) != 0 {
		state.UpdateKey(keycode, true)
		state.UpdateKey(keycode, false)
	}

	item.Generates = c.convertModMask(generates)
}

// convertModMask maps engine modifier indices to keys modifier bits.
// Modifiers other than shift, caps lock, control and alt are dropped.
func (c *Compiler) convertModMask(mask uint32) keys.ModifierMask {
	var out keys.ModifierMask
	for idx := uint32(0); idx < c.keymap.NumMods() && idx < 32; idx++ {
		if mask&(1<<idx) == 0 {
			continue
		}
		switch c.keymap.ModName(idx) {
		case ModNameShift:
			out |= keys.ModifierShift
		case ModNameCaps:
			out |= keys.ModifierCapsLock
		case ModNameCtrl:
			out |= keys.ModifierControl
		case ModNameAlt:
			out |= keys.ModifierAlt
		}
	}
	return out
}

// UpdateModifiers applies a modifier snapshot reported by the device source.
func (c *Compiler) UpdateModifiers(depressed, latched, locked, group uint32) {
	if c.state == nil {
		return
	}
	c.state.UpdateMask(depressed, latched, locked, group)
}

// ActiveModifiers returns the effective modifiers of the last snapshot.
func (c *Compiler) ActiveModifiers() keys.ModifierMask {
	if c.state == nil {
		return 0
	}
	return c.convertModMask(c.state.SerializeMods(ModsEffective))
}

// IsShortRead reports whether err came from a truncated description.
func IsShortRead(err error) bool {
	return errors.Is(err, ErrShortRead)
}
