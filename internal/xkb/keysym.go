package xkb

import "github.com/bnema/eiscreen/internal/keys"

// Vendor keysyms that have a dedicated identifier.
var specialKeysyms = map[uint32]keys.KeyID{
	0x1008ff11: keys.KeyAudioDown, // XF86AudioLowerVolume
	0x1008ff12: keys.KeyAudioMute,
	0x1008ff13: keys.KeyAudioUp,
	0x1008ff14: keys.KeyAudioPlay,
	0x1008ff15: keys.KeyAudioStop,
	0x1008ff16: keys.KeyAudioPrev,
	0x1008ff17: keys.KeyAudioNext,
}

// KeysymToKeyID translates a keysym to a portable key identifier.
// Unknown keysyms map to keys.KeyNone.
func KeysymToKeyID(sym uint32) keys.KeyID {
	switch {
	case sym >= 0x0020 && sym <= 0x007e, sym >= 0x00a0 && sym <= 0x00ff:
		return keys.KeyID(sym)
	case sym&0xff000000 == 0x01000000:
		return keys.KeyID(sym & 0x00ffffff)
	case sym&0xffffff00 == 0xff00:
		return keys.KeyID(0xef00 | sym&0xff)
	case sym&0xffffff00 == 0xfe00:
		return keys.KeyID(0xee00 | sym&0xff)
	}

	if r, ok := legacyKeysyms[sym]; ok {
		return keys.KeyID(r)
	}
	if id, ok := specialKeysyms[sym]; ok {
		return id
	}
	return keys.KeyNone
}
