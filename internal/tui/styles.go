package tui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorAccent = lipgloss.Color("#00d4ff")
	colorGreen  = lipgloss.Color("#3ddc84")
	colorYellow = lipgloss.Color("#ffd60a")
	colorRed    = lipgloss.Color("#ff5757")
	colorPurple = lipgloss.Color("#c857ff")
	colorOrange = lipgloss.Color("#ff9340")
	colorText   = lipgloss.Color("#dce8f4")
	colorMuted  = lipgloss.Color("#4e6e8a")
	colorBorder = lipgloss.Color("#1e3048")
)

// Title style for the header line.
var Title = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorAccent).
	Padding(0, 1)

// Label style for field captions.
var Label = lipgloss.NewStyle().
	Foreground(colorMuted)

// ModeTab style for an unselected mode.
var ModeTab = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 1)

// ActiveModeTab style for the selected mode.
var ActiveModeTab = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorAccent).
	Border(lipgloss.NormalBorder(), false, false, true, false).
	BorderForeground(colorAccent).
	Padding(0, 1)

// Panel style for the result box.
var Panel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorBorder).
	Padding(0, 1)

// PanelTitle style for the result section title.
var PanelTitle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Bold(true)

// ImplantPanel style for the recommended implant box.
var ImplantPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorAccent).
	Padding(0, 1)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true).
	Padding(0, 1)

// WarnStyle for non-fatal notices.
var WarnStyle = lipgloss.NewStyle().
	Foreground(colorYellow).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 1, 0, 1)

// rowColors maps display row keys to their value color.
var rowColors = map[string]lipgloss.Color{
	"height":  colorRed,
	"w2":      colorAccent,
	"w6":      colorOrange,
	"w8":      colorPurple,
	"crest":   colorYellow,
	"width":   colorAccent,
	"avail_w": colorGreen,
	"avail_h": colorGreen,
}

// valueStyle returns the style for a row value.
func valueStyle(key string, detection, ok bool) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	if detection {
		if ok {
			return s.Foreground(colorGreen)
		}
		return s.Foreground(colorRed)
	}
	if c, found := rowColors[key]; found {
		return s.Foreground(c)
	}
	return s.Foreground(colorText)
}
