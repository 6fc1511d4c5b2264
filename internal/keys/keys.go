// Package keys defines the portable key, button and modifier identifiers
// shared by the keymap compiler and the device session.
package keys

// KeyID is a portable symbolic key identity. Printable keys use their
// Unicode code point, special keys live in the 0xE000 private range.
type KeyID uint32

// KeyButton is a physical key position in the evdev code space.
type KeyButton uint16

// ButtonID is a portable mouse button identifier.
type ButtonID uint8

// ModifierMask is a set of modifier bits.
type ModifierMask uint32

const (
	ButtonNone   ButtonID = 0
	ButtonLeft   ButtonID = 1
	ButtonMiddle ButtonID = 2
	ButtonRight  ButtonID = 3
)

// Modifier bit positions.
const (
	ModifierBitShift      = 0
	ModifierBitControl    = 1
	ModifierBitAlt        = 2
	ModifierBitMeta       = 3
	ModifierBitSuper      = 4
	ModifierBitAltGr      = 5
	ModifierBitLevel5Lock = 6
	ModifierBitCapsLock   = 8
	ModifierBitNumLock    = 9
	ModifierBitScrollLock = 10
)

const (
	ModifierShift      ModifierMask = 1 << ModifierBitShift
	ModifierControl    ModifierMask = 1 << ModifierBitControl
	ModifierAlt        ModifierMask = 1 << ModifierBitAlt
	ModifierMeta       ModifierMask = 1 << ModifierBitMeta
	ModifierSuper      ModifierMask = 1 << ModifierBitSuper
	ModifierAltGr      ModifierMask = 1 << ModifierBitAltGr
	ModifierLevel5Lock ModifierMask = 1 << ModifierBitLevel5Lock
	ModifierCapsLock   ModifierMask = 1 << ModifierBitCapsLock
	ModifierNumLock    ModifierMask = 1 << ModifierBitNumLock
	ModifierScrollLock ModifierMask = 1 << ModifierBitScrollLock
)

// Special key identifiers.
const (
	KeyNone      KeyID = 0x0000
	KeyBackSpace KeyID = 0xEF08
	KeyTab       KeyID = 0xEF09
	KeyReturn    KeyID = 0xEF0D
	KeyEscape    KeyID = 0xEF1B
	KeyHome      KeyID = 0xEF50
	KeyLeft      KeyID = 0xEF51
	KeyUp        KeyID = 0xEF52
	KeyRight     KeyID = 0xEF53
	KeyDown      KeyID = 0xEF54
	KeyEnd       KeyID = 0xEF57
	KeyF1        KeyID = 0xEFBE
	KeyShiftL    KeyID = 0xEFE1
	KeyShiftR    KeyID = 0xEFE2
	KeyControlL  KeyID = 0xEFE3
	KeyControlR  KeyID = 0xEFE4
	KeyCapsLock  KeyID = 0xEFE5
	KeyMetaL     KeyID = 0xEFE7
	KeyAltL      KeyID = 0xEFE9
	KeyAltR      KeyID = 0xEFEA
	KeySuperL    KeyID = 0xEFEB
	KeyDelete    KeyID = 0xEFFF
	KeyLeftTab   KeyID = 0xEE20

	KeyAudioDown KeyID = 0xE0AE
	KeyAudioMute KeyID = 0xE0AD
	KeyAudioUp   KeyID = 0xE0AF
	KeyAudioNext KeyID = 0xE0B0
	KeyAudioPrev KeyID = 0xE0B1
	KeyAudioStop KeyID = 0xE0B2
	KeyAudioPlay KeyID = 0xE0B3
)
