package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the composer.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#25D366")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorTeal    = lipgloss.Color("#128C7E")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorGreen)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	ReviewDotStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	UnreadBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	OwnLabelStyle = lipgloss.NewStyle().
			Foreground(ColorTeal)

	PeerLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	// Waveform bar tones.
	WaveFilledStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	WaveLiveStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	WaveMutedStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)
