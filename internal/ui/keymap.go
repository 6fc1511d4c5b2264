package ui

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/bnema/eiscreen/internal/keys"
)

var modifierNames = []struct {
	mask keys.ModifierMask
	name string
}{
	{keys.ModifierShift, "Shift"},
	{keys.ModifierControl, "Control"},
	{keys.ModifierAlt, "Alt"},
	{keys.ModifierMeta, "Meta"},
	{keys.ModifierSuper, "Super"},
	{keys.ModifierAltGr, "AltGr"},
	{keys.ModifierLevel5Lock, "Level5"},
	{keys.ModifierCapsLock, "CapsLock"},
	{keys.ModifierNumLock, "NumLock"},
	{keys.ModifierScrollLock, "ScrollLock"},
}

var keyNames = map[keys.KeyID]string{
	keys.KeyBackSpace: "BackSpace",
	keys.KeyTab:       "Tab",
	keys.KeyReturn:    "Return",
	keys.KeyEscape:    "Escape",
	keys.KeyHome:      "Home",
	keys.KeyLeft:      "Left",
	keys.KeyUp:        "Up",
	keys.KeyRight:     "Right",
	keys.KeyDown:      "Down",
	keys.KeyEnd:       "End",
	keys.KeyShiftL:    "Shift_L",
	keys.KeyShiftR:    "Shift_R",
	keys.KeyControlL:  "Control_L",
	keys.KeyControlR:  "Control_R",
	keys.KeyCapsLock:  "Caps_Lock",
	keys.KeyMetaL:     "Meta_L",
	keys.KeyAltL:      "Alt_L",
	keys.KeyAltR:      "Alt_R",
	keys.KeySuperL:    "Super_L",
	keys.KeyDelete:    "Delete",
	keys.KeyLeftTab:   "ISO_Left_Tab",
}

// FormatModifiers returns the modifier names in mask joined by '+', or "none".
func FormatModifiers(mask keys.ModifierMask) string {
	var names []string
	for _, m := range modifierNames {
		if mask&m.mask != 0 {
			names = append(names, m.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// FormatKeyID names a key identifier. Printable symbols render as quoted runes.
func FormatKeyID(id keys.KeyID) string {
	if name, ok := keyNames[id]; ok {
		return name
	}
	if id >= keys.KeyF1 && id < keys.KeyF1+35 {
		return fmt.Sprintf("F%d", id-keys.KeyF1+1)
	}
	if id < 0xE000 && unicode.IsPrint(rune(id)) {
		return fmt.Sprintf("%q", rune(id))
	}
	return fmt.Sprintf("0x%04X", uint32(id))
}

// RenderKeyMap renders every entry of km as a table. A positive limit
// truncates the listing.
func RenderKeyMap(km *keys.KeyMap, limit int) string {
	var output strings.Builder

	items := km.Items()
	output.WriteString(FormatAppHeader("KEYMAP", fmt.Sprintf("%d entries", len(items))))
	output.WriteString("\n\n")

	header := fmt.Sprintf("%-14s %6s %5s  %-18s %-18s %s", "Symbol", "Button", "Group", "Required", "Sensitive", "Generates")
	output.WriteString(TableHeaderStyle.Render(header))
	output.WriteString("\n")
	output.WriteString(Separator(len(header)))
	output.WriteString("\n")

	shown := items
	if limit > 0 && len(items) > limit {
		shown = items[:limit]
	}
	for _, it := range shown {
		generates := FormatModifiers(it.Generates)
		if it.Lock {
			generates += " (lock)"
		}
		row := fmt.Sprintf("%-14s %6d %5d  %-18s %-18s %s",
			FormatKeyID(it.ID), it.Button, it.Group,
			FormatModifiers(it.Required), FormatModifiers(it.Sensitive), generates)
		output.WriteString(TableRowStyle.Render(row))
		output.WriteString("\n")
	}

	if len(shown) < len(items) {
		output.WriteString(MutedStyle.Render(fmt.Sprintf("... %d more", len(items)-len(shown))))
		output.WriteString("\n")
	}
	return output.String()
}

// ParseKeyID is the inverse of FormatKeyID. It also accepts a bare
// character and a 0x-prefixed hex identifier.
func ParseKeyID(s string) (keys.KeyID, error) {
	if r := []rune(s); len(r) == 1 {
		return keys.KeyID(r[0]), nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		if r := []rune(unquoted); len(r) == 1 {
			return keys.KeyID(r[0]), nil
		}
	}
	for id, name := range keyNames {
		if strings.EqualFold(name, s) {
			return id, nil
		}
	}
	if n, ok := strings.CutPrefix(strings.ToUpper(s), "F"); ok {
		if f, err := strconv.Atoi(n); err == nil && f >= 1 && f <= 35 {
			return keys.KeyF1 + keys.KeyID(f-1), nil
		}
	}
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil && v != 0 {
			return keys.KeyID(v), nil
		}
	}
	return keys.KeyNone, fmt.Errorf("unknown key symbol %q", s)
}
