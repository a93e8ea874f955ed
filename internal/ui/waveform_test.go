package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderWaveformWidth(t *testing.T) {
	bars := make([]float32, 60)
	for i := range bars {
		bars[i] = float32(i) / 59
	}

	for _, width := range []int{30, 60, 120} {
		got := lipgloss.Width(RenderWaveform(bars, 0.5, false, width))
		if got != width {
			t.Errorf("width %d: rendered %d cells", width, got)
		}
	}
}

func TestRenderWaveformEmpty(t *testing.T) {
	if got := RenderWaveform(nil, 0, false, 10); got != strings.Repeat(" ", 10) {
		t.Errorf("empty waveform = %q, want blanks", got)
	}
	if got := RenderWaveform([]float32{1}, 0, false, 0); got != "" {
		t.Errorf("zero width = %q, want empty", got)
	}
}

func TestRenderWaveformGaps(t *testing.T) {
	// Two cells per bar: the second cell of each slot is gap.
	got := []rune(lipglossStrip(RenderWaveform([]float32{1, 1, 1}, 0, false, 6)))
	for i, r := range got {
		if i%2 == 1 && r != ' ' {
			t.Errorf("cell %d = %q, want gap", i, r)
		}
		if i%2 == 0 && r == ' ' {
			t.Errorf("cell %d is blank, want a bar", i)
		}
	}
}

func TestSparkline(t *testing.T) {
	// Out-of-range values clamp.
	got := Sparkline([]float32{0, 0.5, 1, 2, -1})
	if want := "▁▄██▁"; got != want {
		t.Errorf("Sparkline = %q, want %q", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{5.9, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

// lipglossStrip drops ANSI sequences so cells can be compared as runes.
func lipglossStrip(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc:
			if r == 'm' {
				inEsc = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
