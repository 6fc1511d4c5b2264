package xkb

import "errors"

type fakeLevel struct {
	syms  []uint32
	masks []uint32
}

// fakeModKey describes what pressing a key does to a scratch state.
type fakeModKey struct {
	changed StateComponent
	mod     uint32
	locks   bool
}

type fakeKeymap struct {
	min, max uint32
	layouts  uint32
	keys     map[uint32][][]fakeLevel // keycode -> layout -> levels
	mods     []string
	modKeys  map[uint32]fakeModKey

	presses     map[uint32]int
	statesOpen  int
	statesTotal int
	closed      bool
}

func newFakeKeymap() *fakeKeymap {
	return &fakeKeymap{
		min:     8,
		max:     70,
		layouts: 1,
		keys:    map[uint32][][]fakeLevel{},
		mods:    []string{"Shift", "Lock", "Control", "Mod1", "Mod2"},
		modKeys: map[uint32]fakeModKey{},
		presses: map[uint32]int{},
	}
}

func (k *fakeKeymap) MinKeycode() uint32 { return k.min }
func (k *fakeKeymap) MaxKeycode() uint32 { return k.max }
func (k *fakeKeymap) NumLayouts() uint32 { return k.layouts }
func (k *fakeKeymap) NumMods() uint32    { return uint32(len(k.mods)) }

func (k *fakeKeymap) NumLayoutsForKey(kc uint32) uint32 { return uint32(len(k.keys[kc])) }

func (k *fakeKeymap) NumLevelsForKey(kc, layout uint32) uint32 {
	l := k.keys[kc]
	if len(l) == 0 {
		return 0
	}
	return uint32(len(l[int(layout)%len(l)]))
}

func (k *fakeKeymap) level(kc, layout, level uint32) fakeLevel {
	l := k.keys[kc]
	if len(l) == 0 {
		return fakeLevel{}
	}
	levels := l[int(layout)%len(l)]
	if int(level) >= len(levels) {
		return fakeLevel{}
	}
	return levels[level]
}

func (k *fakeKeymap) SymsByLevel(kc, layout, level uint32) []uint32 {
	return k.level(kc, layout, level).syms
}

func (k *fakeKeymap) ModsForLevel(kc, layout, level uint32) []uint32 {
	return k.level(kc, layout, level).masks
}

func (k *fakeKeymap) ModName(i uint32) string {
	if int(i) >= len(k.mods) {
		return ""
	}
	return k.mods[i]
}

func (k *fakeKeymap) NewState() State {
	k.statesOpen++
	k.statesTotal++
	return &fakeState{km: k}
}

func (k *fakeKeymap) Close() { k.closed = true }

type fakeState struct {
	km        *fakeKeymap
	effective uint32
	locked    uint32
}

func (s *fakeState) UpdateKey(kc uint32, down bool) StateComponent {
	mk, ok := s.km.modKeys[kc]
	if !ok {
		return 0
	}
	bit := uint32(1) << mk.mod
	if down {
		s.km.presses[kc]++
		if mk.locks {
			s.locked ^= bit
			if s.locked&bit != 0 {
				s.effective |= bit
			} else {
				s.effective &^= bit
			}
		} else {
			s.effective |= bit
		}
		return mk.changed
	}
	if !mk.locks {
		s.effective &^= bit
		return mk.changed
	}
	return 0
}

func (s *fakeState) UpdateMask(depressed, latched, locked, group uint32) StateComponent {
	s.effective = depressed | latched | locked
	s.locked = locked
	return ModsEffective
}

func (s *fakeState) ModIndexIsActive(i uint32, c StateComponent) bool {
	bit := uint32(1) << i
	switch c {
	case ModsLocked:
		return s.locked&bit != 0
	case ModsEffective:
		return s.effective&bit != 0
	}
	return false
}

func (s *fakeState) SerializeMods(c StateComponent) uint32 {
	if c == ModsLocked {
		return s.locked
	}
	return s.effective
}

func (s *fakeState) Close() { s.km.statesOpen-- }

type fakeEngine struct {
	fromBuffer   *fakeKeymap
	fromNames    *fakeKeymap
	bufferErr    error
	namesErr     error
	lastBuffer   []byte
	lastNames    *RuleNames
	bufferCalls  int
	defaultCalls int
}

func (e *fakeEngine) KeymapFromBuffer(buf []byte) (Keymap, error) {
	e.bufferCalls++
	e.lastBuffer = append([]byte(nil), buf...)
	if e.bufferErr != nil {
		return nil, e.bufferErr
	}
	if e.fromBuffer == nil {
		return nil, errors.New("no keymap")
	}
	return e.fromBuffer, nil
}

func (e *fakeEngine) KeymapFromNames(names RuleNames) (Keymap, error) {
	e.defaultCalls++
	n := names
	e.lastNames = &n
	if e.namesErr != nil {
		return nil, e.namesErr
	}
	return e.fromNames, nil
}

func (e *fakeEngine) Close() {}
