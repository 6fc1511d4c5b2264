package keys

import (
	"math/bits"
	"sort"
)

// KeyItem is one (keycode, group, level) entry of a compiled layout.
type KeyItem struct {
	ID        KeyID        // symbol produced by this entry
	Group     int32        // layout index
	Button    KeyButton    // physical key
	Required  ModifierMask // modifiers that must be active to reach this level
	Sensitive ModifierMask // modifiers that could change the produced symbol
	Generates ModifierMask // modifiers the key itself activates when pressed
	Lock      bool         // the key toggles a locking modifier
	Client    uint32
}

// KeyMap is the ordered collection of entries for one compiled layout.
type KeyMap struct {
	items        []KeyItem
	byID         map[KeyID][]int
	composeGroup bool
}

func NewKeyMap() *KeyMap {
	return &KeyMap{byID: make(map[KeyID][]int)}
}

// AddKeyEntry appends an entry. Entries without an identity are ignored.
func (m *KeyMap) AddKeyEntry(item KeyItem) {
	if item.ID == KeyNone {
		return
	}
	m.byID[item.ID] = append(m.byID[item.ID], len(m.items))
	m.items = append(m.items, item)
}

// AllowGroupSwitchDuringCompose lets composed symbols pick keys from any group.
func (m *KeyMap) AllowGroupSwitchDuringCompose() {
	m.composeGroup = true
}

func (m *KeyMap) GroupSwitchDuringCompose() bool {
	return m.composeGroup
}

func (m *KeyMap) Len() int {
	return len(m.items)
}

// Items returns a copy of the entries in insertion order.
func (m *KeyMap) Items() []KeyItem {
	out := make([]KeyItem, len(m.items))
	copy(out, m.items)
	return out
}

// Find returns the entry producing id with the fewest required modifiers.
// Ties keep insertion order.
func (m *KeyMap) Find(id KeyID) (KeyItem, bool) {
	idx := m.byID[id]
	if len(idx) == 0 {
		return KeyItem{}, false
	}

	candidates := make([]int, len(idx))
	copy(candidates, idx)
	sort.SliceStable(candidates, func(i, j int) bool {
		return bits.OnesCount32(uint32(m.items[candidates[i]].Required)) <
			bits.OnesCount32(uint32(m.items[candidates[j]].Required))
	})
	return m.items[candidates[0]], true
}

// Modifiers returns every entry that generates at least one modifier.
func (m *KeyMap) Modifiers() []KeyItem {
	var out []KeyItem
	for _, it := range m.items {
		if it.Generates != 0 {
			out = append(out, it)
		}
	}
	return out
}
