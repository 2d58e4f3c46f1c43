package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/waftester/webscan/pkg/finding"
)

// Palette.
var (
	Primary   = lipgloss.Color("#7D56F4")
	Secondary = lipgloss.Color("#00D4AA")
	Muted     = lipgloss.Color("#6B7280")
	Text      = lipgloss.Color("#FAFAFA")

	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")
	Info     = lipgloss.Color("#4D96FF")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
)

// styles are bound to one renderer so that each output stream gets its
// own color profile.
type styles struct {
	banner  lipgloss.Style
	version lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
	url     lipgloss.Style
	warn    lipgloss.Style
	ok      lipgloss.Style
	header  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		banner:  r.NewStyle().Foreground(Primary).Bold(true),
		version: r.NewStyle().Foreground(Secondary).Bold(true),
		section: r.NewStyle().Foreground(Text).Bold(true).MarginTop(1),
		label:   r.NewStyle().Foreground(Muted),
		value:   r.NewStyle().Foreground(Text).Bold(true),
		muted:   r.NewStyle().Foreground(Muted),
		url:     r.NewStyle().Foreground(Secondary),
		warn:    r.NewStyle().Foreground(Warning).Bold(true),
		ok:      r.NewStyle().Foreground(Success).Bold(true),
		header:  r.NewStyle().Foreground(Text).Bold(true).Underline(true),
	}
}

func severityStyle(r *lipgloss.Renderer, s finding.Severity) lipgloss.Style {
	base := r.NewStyle().Bold(true)
	switch s {
	case finding.Critical:
		return base.Foreground(Critical)
	case finding.High:
		return base.Foreground(High)
	case finding.Medium:
		return base.Foreground(Medium)
	case finding.Low:
		return base.Foreground(Low)
	case finding.Info:
		return base.Foreground(Info)
	default:
		return base.Foreground(Muted)
	}
}

func confidenceStyle(r *lipgloss.Renderer, c finding.Confidence) lipgloss.Style {
	switch c {
	case finding.Confirmed:
		return r.NewStyle().Foreground(Error).Bold(true)
	case finding.Likely:
		return r.NewStyle().Foreground(Warning)
	default:
		return r.NewStyle().Foreground(Muted)
	}
}
