package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the styles of the hop table.
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Subtle lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style

	HopNum   lipgloss.Style
	IP       lipgloss.Style
	Hostname lipgloss.Style
	Timeout  lipgloss.Style

	// RTT styles (color-coded by latency)
	RTTLow  lipgloss.Style // < 50ms
	RTTMed  lipgloss.Style // 50-150ms
	RTTHigh lipgloss.Style // > 150ms

	// Annotation marks ICMP errors such as !H or !N
	Annotation lipgloss.Style
}

// palette is the set of colors a theme is built from. An empty color
// leaves the terminal default.
type palette struct {
	accent, text, muted    lipgloss.Color
	good, fair, bad, alert lipgloss.Color
	hop, name              lipgloss.Color
}

var (
	darkPalette = palette{
		accent: "205", text: "255", muted: "240",
		good: "46", fair: "226", bad: "196", alert: "214",
		hop: "87", name: "114",
	}
	lightPalette = palette{
		accent: "162", text: "0", muted: "245",
		good: "28", fair: "136", bad: "160", alert: "166",
		hop: "25", name: "22",
	}
)

func fg(c lipgloss.Color) lipgloss.Style {
	s := lipgloss.NewStyle()
	if c != "" {
		s = s.Foreground(c)
	}
	return s
}

func (p palette) styles() Styles {
	return Styles{
		Title:      fg(p.accent).Bold(true).MarginBottom(1),
		Header:     fg(p.text).Bold(true),
		Subtle:     fg(p.muted),
		Success:    fg(p.good).Bold(true),
		Error:      fg(p.bad).Bold(true),
		Warning:    fg(p.alert).Bold(true),
		HopNum:     fg(p.hop),
		IP:         fg(p.text),
		Hostname:   fg(p.name),
		Timeout:    fg(p.bad),
		RTTLow:     fg(p.good),
		RTTMed:     fg(p.fair),
		RTTHigh:    fg(p.bad),
		Annotation: fg(p.alert).Bold(true),
	}
}

// DefaultStyles returns the dark theme.
func DefaultStyles() Styles {
	return darkPalette.styles()
}

// minimalStyles keeps only the latency and status colors.
func minimalStyles() Styles {
	s := darkPalette.styles()
	s.Title = lipgloss.NewStyle().Bold(true)
	s.HopNum = lipgloss.NewStyle().Bold(true)
	s.IP = lipgloss.NewStyle()
	s.Hostname = lipgloss.NewStyle().Italic(true)
	s.Header = lipgloss.NewStyle().Bold(true)
	return s
}

// ThemeByName returns the named style set: "dark" (default), "light" or
// "minimal".
func ThemeByName(name string) Styles {
	switch name {
	case "light":
		return lightPalette.styles()
	case "minimal":
		return minimalStyles()
	default:
		return DefaultStyles()
	}
}
