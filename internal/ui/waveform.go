package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/voicenote/internal/waveform"
)

// levels are eighth-block glyphs, lowest first.
var levels = []rune("▁▂▃▄▅▆▇█")

// RenderWaveform draws bars on one terminal row of width cells. Cells that
// fall in the gap between bars are blank.
func RenderWaveform(bars []float32, progress float64, live bool, width int) string {
	laid := waveform.Layout(bars, progress, live, float64(width), float64(len(levels)))
	if laid == nil {
		return strings.Repeat(" ", max(width, 0))
	}

	slot := float64(width) / float64(len(laid))
	var b strings.Builder
	for c := range width {
		center := float64(c) + 0.5
		i := min(int(center/slot), len(laid)-1)
		bar := laid[i]
		if center >= bar.X+bar.Width {
			b.WriteByte(' ')
			continue
		}
		glyph := string(levels[glyphIndex(bar.Height)])
		b.WriteString(barStyle(bar).Render(glyph))
	}
	return b.String()
}

func glyphIndex(height float64) int {
	idx := int(math.Ceil(height)) - 1
	return max(0, min(idx, len(levels)-1))
}

func barStyle(bar waveform.Bar) lipgloss.Style {
	switch {
	case bar.Filled:
		return WaveFilledStyle
	case bar.Tone == waveform.ToneEmphasis:
		return WaveLiveStyle
	default:
		return WaveMutedStyle
	}
}

// Sparkline renders amplitudes in [0,1] as unstyled block glyphs, one per bar.
func Sparkline(bars []float32) string {
	var b strings.Builder
	for _, v := range bars {
		idx := int(waveform.Clamp01(float64(v)) * float64(len(levels)-1))
		b.WriteRune(levels[idx])
	}
	return b.String()
}

// FormatDuration renders whole seconds as m:ss.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
