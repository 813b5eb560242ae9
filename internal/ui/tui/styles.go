package tui

import "github.com/charmbracelet/lipgloss"

// Palette is the color scheme shared by the dashboard and the summaries
// printed after a run.
type Palette struct {
	Applied  lipgloss.TerminalColor // created resources, finished phases
	Broken   lipgloss.TerminalColor
	FollowUp lipgloss.TerminalColor // notes the operator has to act on
	Heading  lipgloss.TerminalColor
	Quiet    lipgloss.TerminalColor
	Focus    lipgloss.TerminalColor
}

// DefaultPalette keeps enough contrast on light and dark terminals.
var DefaultPalette = Palette{
	Applied:  lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#22c55e"},
	Broken:   lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#ef4444"},
	FollowUp: lipgloss.AdaptiveColor{Light: "#a16207", Dark: "#eab308"},
	Heading:  lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#3b82f6"},
	Quiet:    lipgloss.Color("#6b7280"),
	Focus:    lipgloss.AdaptiveColor{Light: "#111827", Dark: "#f9fafb"},
}

// Styles maps each dashboard element to its rendering.
type Styles struct {
	Title    lipgloss.Style
	Section  lipgloss.Style
	Applied  lipgloss.Style
	Broken   lipgloss.Style
	FollowUp lipgloss.Style
	Quiet    lipgloss.Style
	Focus    lipgloss.Style
	Footer   lipgloss.Style
	BarFull  lipgloss.Style
	BarEmpty lipgloss.Style
}

// NewStyles derives the element styles from p.
func NewStyles(p Palette) Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(p.Focus),
		Section:  lipgloss.NewStyle().Bold(true).Foreground(p.Heading).MarginTop(1),
		Applied:  lipgloss.NewStyle().Foreground(p.Applied),
		Broken:   lipgloss.NewStyle().Foreground(p.Broken),
		FollowUp: lipgloss.NewStyle().Foreground(p.FollowUp),
		Quiet:    lipgloss.NewStyle().Foreground(p.Quiet),
		Focus:    lipgloss.NewStyle().Bold(true).Foreground(p.Focus),
		Footer:   lipgloss.NewStyle().Foreground(p.Quiet).MarginTop(1),
		BarFull:  lipgloss.NewStyle().Foreground(p.Applied),
		BarEmpty: lipgloss.NewStyle().Foreground(p.Quiet),
	}
}

var styles = NewStyles(DefaultPalette)

// Markers stay readable without color, as in output captured from a pipe.
const (
	markDone     = "[ok]"
	markFailed   = "[xx]"
	markWaiting  = "[  ]"
	markFollowUp = "[!]"
	markCreated  = "+"
	markExisting = "="
)

// spinnerFrames animate the marker of the active phase.
var spinnerFrames = []string{"[> ]", "[>>]", "[ >]", "[  ]"}
