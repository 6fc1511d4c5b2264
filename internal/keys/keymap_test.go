package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMapFindPrefersFewestRequiredModifiers(t *testing.T) {
	m := NewKeyMap()
	m.AddKeyEntry(KeyItem{ID: 'a', Button: 30, Required: ModifierShift | ModifierCapsLock})
	m.AddKeyEntry(KeyItem{ID: 'a', Button: 30, Required: 0})
	m.AddKeyEntry(KeyItem{ID: 'A', Button: 30, Required: ModifierShift})

	it, ok := m.Find('a')
	assert.True(t, ok)
	assert.Equal(t, ModifierMask(0), it.Required)

	_, ok = m.Find('z')
	assert.False(t, ok)
}

func TestKeyMapIgnoresEmptyIdentity(t *testing.T) {
	m := NewKeyMap()
	m.AddKeyEntry(KeyItem{ID: KeyNone, Button: 1})
	assert.Equal(t, 0, m.Len())
}

func TestKeyMapModifiers(t *testing.T) {
	m := NewKeyMap()
	m.AddKeyEntry(KeyItem{ID: KeyShiftL, Button: 42, Generates: ModifierShift})
	m.AddKeyEntry(KeyItem{ID: 'q', Button: 16})
	m.AllowGroupSwitchDuringCompose()

	mods := m.Modifiers()
	assert.Len(t, mods, 1)
	assert.Equal(t, KeyShiftL, mods[0].ID)
	assert.True(t, m.GroupSwitchDuringCompose())
	assert.Len(t, m.Items(), 2)
}
