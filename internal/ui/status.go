package ui

import (
	"fmt"
	"strings"

	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/bnema/eiscreen/internal/keys"
)

// FormatAppHeader renders the title line used by the status views
func FormatAppHeader(title, subtitle string) string {
	header := TitleStyle.Render(title)
	if subtitle != "" {
		header += " " + SubtleStyle.Render(subtitle)
	}
	return header
}

// RenderStatus renders a status report as a boxed summary.
func RenderStatus(r *ipc.StatusReport, socketPath string) string {
	var output strings.Builder

	output.WriteString(FormatAppHeader("EISCREEN", socketPath))
	output.WriteString("\n\n")

	var content strings.Builder
	content.WriteString(FormatStatus(r.Connected, stateStyle(r.State).Bold(true).Render(r.State)))
	content.WriteString(SubtleStyle.Render(" (" + r.Variant + ")"))
	content.WriteString("\n")

	seat := r.Seat
	if seat == "" {
		seat = "none"
	}
	content.WriteString(FormatDevice(IconSeat, "Seat", seat))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  %s %s %dx%d at (%d,%d)",
		InfoStyle.Render(IconShape), LabelStyle.Render("Shape:"), r.Width, r.Height, r.X, r.Y))

	output.WriteString(BoxStyle.Render(content.String()))
	output.WriteString("\n\n")

	output.WriteString(LabelStyle.Render(fmt.Sprintf("Devices (%d)", r.DeviceCount)))
	output.WriteString("\n")
	output.WriteString(Separator(0))
	output.WriteString("\n")
	output.WriteString(FormatDevice(IconPointer, "Pointer", r.Pointer))
	output.WriteString("\n")
	output.WriteString(FormatDevice(IconAbsolute, "Absolute", r.Absolute))
	output.WriteString("\n")
	output.WriteString(FormatDevice(IconKeyboard, "Keyboard", r.Keyboard))
	output.WriteString("\n\n")

	output.WriteString(SubtleStyle.Render(fmt.Sprintf("Keymap entries: %d", r.KeymapEntries)))
	output.WriteString("\n")
	output.WriteString(SubtleStyle.Render("Modifiers: " + FormatModifiers(keys.ModifierMask(r.ActiveModifiers))))

	return output.String()
}
