//go:build linux

package xkb

import (
	"bytes"
	"testing"

	"github.com/bnema/eiscreen/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	modShift = 1 << 0
	modLock  = 1 << 1
	modCtrl  = 1 << 2
	modMod2  = 1 << 4
)

// usLikeKeymap has a digit key, a letter key, Shift_L and Caps_Lock.
func usLikeKeymap() *fakeKeymap {
	km := newFakeKeymap()
	km.keys[10] = [][]fakeLevel{{ // evdev KEY_1
		{syms: []uint32{'1'}, masks: []uint32{0}},
		{syms: []uint32{'!'}, masks: []uint32{modShift}},
	}}
	km.keys[38] = [][]fakeLevel{{ // evdev KEY_A
		{syms: []uint32{'a'}, masks: []uint32{0, modShift | modLock}},
		{syms: []uint32{'A'}, masks: []uint32{modShift, modLock}},
	}}
	km.keys[50] = [][]fakeLevel{{{syms: []uint32{0xffe1}, masks: []uint32{0}}}} // Shift_L
	km.keys[66] = [][]fakeLevel{{{syms: []uint32{0xffe5}, masks: []uint32{0}}}} // Caps_Lock
	km.keys[20] = [][]fakeLevel{{{syms: nil, masks: []uint32{0}}}}              // no symbols
	km.keys[30] = [][]fakeLevel{{{syms: []uint32{'u', 'v'}, masks: []uint32{modMod2}}}}

	km.modKeys[50] = fakeModKey{changed: ModsDepressed | ModsEffective, mod: 0}
	km.modKeys[66] = fakeModKey{changed: ModsLocked | ModsEffective, mod: 1, locks: true}
	return km
}

func findButton(t *testing.T, m *keys.KeyMap, button keys.KeyButton, id keys.KeyID) keys.KeyItem {
	t.Helper()
	for _, it := range m.Items() {
		if it.Button == button && it.ID == id {
			return it
		}
	}
	t.Fatalf("no entry for button %d id %#x", button, id)
	return keys.KeyItem{}
}

func TestCompileFromReaderInstallsKeymap(t *testing.T) {
	km := usLikeKeymap()
	eng := &fakeEngine{fromBuffer: km}
	c := NewCompiler(eng, RuleNames{})

	text := "xkb_keymap { };"
	require.NoError(t, c.CompileFromReader(bytes.NewBufferString(text), len(text)))

	assert.True(t, c.HasKeymap())
	assert.Equal(t, text, string(eng.lastBuffer))
	assert.Equal(t, 0, eng.defaultCalls)
}

func TestCompileFromDescriptorShortReadKeepsPreviousKeymap(t *testing.T) {
	previous := usLikeKeymap()
	eng := &fakeEngine{fromNames: previous, fromBuffer: newFakeKeymap()}
	c := NewCompiler(eng, RuleNames{})
	require.NoError(t, c.CompileDefault())

	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	defer unix.Close(fds[0])

	_, err := unix.Write(fds[1], []byte("xkb_keymap {"))
	require.NoError(t, err)
	unix.Close(fds[1])

	err = c.CompileFromDescriptor(fds[0], 4096)
	assert.ErrorIs(t, err, ErrShortRead)
	assert.True(t, IsShortRead(err))
	assert.Equal(t, 0, eng.bufferCalls, "a truncated description must never reach the engine")
	assert.False(t, previous.closed)
	assert.Same(t, Keymap(previous), c.keymap)
}

func TestCompileShortReadWithoutKeymapLeavesNone(t *testing.T) {
	eng := &fakeEngine{fromBuffer: usLikeKeymap()}
	c := NewCompiler(eng, RuleNames{})

	err := c.CompileFromReader(bytes.NewBufferString("abc"), 10)
	assert.ErrorIs(t, err, ErrShortRead)
	assert.False(t, c.HasKeymap())
}

func TestCompileFailureFallsBackToDefault(t *testing.T) {
	def := usLikeKeymap()
	eng := &fakeEngine{bufferErr: ErrCompile, fromNames: def}
	names := RuleNames{Layout: "de", Variant: "nodeadkeys"}
	c := NewCompiler(eng, names)

	text := "garbage"
	require.NoError(t, c.CompileFromReader(bytes.NewBufferString(text), len(text)))

	assert.Equal(t, 1, eng.defaultCalls)
	require.NotNil(t, eng.lastNames)
	assert.Equal(t, names, *eng.lastNames)
	assert.Same(t, Keymap(def), c.keymap)
}

func TestCompileDefaultFailure(t *testing.T) {
	eng := &fakeEngine{namesErr: ErrCompile}
	c := NewCompiler(eng, RuleNames{})
	assert.ErrorIs(t, c.CompileDefault(), ErrCompile)
	assert.False(t, c.HasKeymap())
}

func TestInstallReleasesPreviousKeymap(t *testing.T) {
	first, second := usLikeKeymap(), usLikeKeymap()
	eng := &fakeEngine{fromNames: first, fromBuffer: second}
	c := NewCompiler(eng, RuleNames{})
	require.NoError(t, c.CompileDefault())

	require.NoError(t, c.CompileFromReader(bytes.NewBufferString("x"), 1))
	assert.True(t, first.closed)
	assert.False(t, second.closed)

	c.Close()
	assert.True(t, second.closed)
	assert.False(t, c.HasKeymap())
}

func TestBuildKeyMapWithoutKeymap(t *testing.T) {
	c := NewCompiler(&fakeEngine{}, RuleNames{})
	_, err := c.BuildKeyMap()
	assert.ErrorIs(t, err, ErrNoKeymap)
}

func TestBuildKeyMap(t *testing.T) {
	km := usLikeKeymap()
	c := NewCompiler(&fakeEngine{fromNames: km}, RuleNames{})
	require.NoError(t, c.CompileDefault())

	m, err := c.BuildKeyMap()
	require.NoError(t, err)
	assert.True(t, m.GroupSwitchDuringCompose())

	// 2 + 2 + 1 + 1 + 1 entries; keycode 20 has no symbols.
	assert.Equal(t, 7, m.Len())

	one := findButton(t, m, 2, '1')
	assert.Equal(t, keys.ModifierMask(0), one.Required)
	assert.Equal(t, keys.ModifierMask(0), one.Sensitive)

	bang := findButton(t, m, 2, '!')
	assert.Equal(t, keys.ModifierShift, bang.Required)
	assert.Equal(t, keys.ModifierShift, bang.Sensitive)

	// Required comes from the last mask only.
	upper := findButton(t, m, 30, 'A')
	assert.Equal(t, keys.ModifierCapsLock, upper.Required)
	assert.Equal(t, keys.ModifierShift|keys.ModifierCapsLock, upper.Sensitive)

	lower := findButton(t, m, 30, 'a')
	assert.Equal(t, keys.ModifierShift|keys.ModifierCapsLock, lower.Required)

	// Multiple symbols: first one wins, unknown modifier names are dropped.
	u := findButton(t, m, 22, 'u')
	assert.Equal(t, keys.ModifierMask(0), u.Sensitive)
}

func TestAssignGeneratedModifiers(t *testing.T) {
	km := usLikeKeymap()
	c := NewCompiler(&fakeEngine{fromNames: km}, RuleNames{})
	require.NoError(t, c.CompileDefault())
	installed := km.statesOpen

	m, err := c.BuildKeyMap()
	require.NoError(t, err)

	shift := findButton(t, m, 42, keys.KeyShiftL)
	assert.Equal(t, keys.ModifierShift, shift.Generates)
	assert.False(t, shift.Lock)

	caps := findButton(t, m, 58, keys.KeyCapsLock)
	assert.Equal(t, keys.ModifierCapsLock, caps.Generates)
	assert.True(t, caps.Lock)

	// Locking keys are pressed twice to undo the lock, others once.
	assert.Equal(t, 2, km.presses[66])
	assert.Equal(t, 1, km.presses[50])

	letter := findButton(t, m, 30, 'a')
	assert.Equal(t, keys.ModifierMask(0), letter.Generates)

	// Probe states never leak.
	assert.Equal(t, installed, km.statesOpen)
}

func TestConvertModMask(t *testing.T) {
	km := usLikeKeymap()
	c := NewCompiler(&fakeEngine{fromNames: km}, RuleNames{})
	require.NoError(t, c.CompileDefault())

	assert.Equal(t, keys.ModifierShift|keys.ModifierCapsLock|keys.ModifierControl|keys.ModifierAlt,
		c.convertModMask(0b11111))
	assert.Equal(t, keys.ModifierMask(0), c.convertModMask(modMod2))
	assert.Equal(t, keys.ModifierControl, c.convertModMask(modCtrl))
}

func TestActiveModifiers(t *testing.T) {
	c := NewCompiler(&fakeEngine{fromNames: usLikeKeymap()}, RuleNames{})
	assert.Equal(t, keys.ModifierMask(0), c.ActiveModifiers())
	c.UpdateModifiers(modShift, 0, 0, 0)

	require.NoError(t, c.CompileDefault())
	c.UpdateModifiers(modShift, 0, modLock, 0)
	assert.Equal(t, keys.ModifierShift|keys.ModifierCapsLock, c.ActiveModifiers())
}
