// Package ui renders eiscreen status, keymap and watch views for the CLI
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorAccent  = lipgloss.Color("39")  // blue
	ColorSpinner = lipgloss.Color("205") // magenta
	ColorOK      = lipgloss.Color("82")
	ColorWarn    = lipgloss.Color("214")
	ColorBad     = lipgloss.Color("196")
	ColorInfo    = lipgloss.Color("86")

	ColorText   = lipgloss.Color("252")
	ColorSubtle = lipgloss.Color("241")
	ColorMuted  = lipgloss.Color("238")
)

var (
	TextStyle   = lipgloss.NewStyle().Foreground(ColorText)
	SubtleStyle = lipgloss.NewStyle().Foreground(ColorSubtle)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorOK)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarn)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorBad)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)

	// TitleStyle is the inverted banner at the top of every view.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent).
			Background(ColorMuted).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent)

	TableRowStyle = TextStyle

	SpinnerStyle = lipgloss.NewStyle().Foreground(ColorSpinner)

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)
)

// SpinnerFrames animates the watch view while no report is available.
var SpinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const (
	IconConnected    = "●"
	IconDisconnected = "○"
	IconSeat         = "#"
	IconShape        = "□"
	IconPointer      = "↖"
	IconAbsolute     = "⌖"
	IconKeyboard     = "⌨"
)

// stateStyle colors a negotiator state name.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "enabled", "direct":
		return SuccessStyle
	case "closed":
		return ErrorStyle
	case "disabled":
		return WarningStyle
	default:
		return InfoStyle
	}
}

// FormatStatus prefixes status with the EIS connection indicator.
func FormatStatus(connected bool, status string) string {
	if connected {
		return SuccessStyle.Render(IconConnected) + " " + status
	}
	return ErrorStyle.Render(IconDisconnected) + " " + status
}

// FormatDevice renders one device slot. An empty name means the slot has
// no bound device.
func FormatDevice(icon, label, name string) string {
	value := MutedStyle.Italic(true).Render("unbound")
	if name != "" {
		value = TextStyle.Render(name)
	}
	return "  " + InfoStyle.Render(icon) + " " + LabelStyle.Render(label+":") + " " + value
}

func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + TextStyle.Render(desc)
}

// Separator draws a rule width cells wide, or 40 when width is not positive.
func Separator(width int) string {
	if width <= 0 {
		width = 40
	}
	return SubtleStyle.Render(strings.Repeat("─", width))
}
