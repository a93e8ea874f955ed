package waveform

import "math"

// Tone selects the colour family of a bar.
type Tone int

const (
	ToneEmphasis Tone = iota
	ToneMuted
)

// Layout constants.
const (
	GapRatio      = 0.3
	HeightRatio   = 0.8
	MinBarHeight  = 2.0
	LiveAlpha     = 0.6
	InactiveAlpha = 0.3
)

// Bar is one drawing instruction.
type Bar struct {
	Index  int
	X      float64
	Y      float64
	Width  float64
	Height float64
	Filled bool
	Tone   Tone
	Alpha  float64
}

// Layout places bars on a width×height surface. Bars up to progress are
// filled; the rest are muted, brighter while live. A zero-sized surface or
// empty input yields nil.
func Layout(bars []float32, progress float64, live bool, width, height float64) []Bar {
	if len(bars) == 0 || width <= 0 || height <= 0 {
		return nil
	}

	slot := width / float64(len(bars))
	gap := slot * GapRatio
	out := make([]Bar, len(bars))
	for i, v := range bars {
		h := math.Max(float64(v)*height*HeightRatio, MinBarHeight)
		b := Bar{
			Index:  i,
			X:      float64(i) * slot,
			Y:      (height - h) / 2,
			Width:  slot - gap,
			Height: h,
		}
		switch {
		case progress > 0 && float64(i)/float64(len(bars)) <= progress:
			b.Filled, b.Tone, b.Alpha = true, ToneEmphasis, 1
		case live:
			b.Tone, b.Alpha = ToneEmphasis, LiveAlpha
		default:
			b.Tone, b.Alpha = ToneMuted, InactiveAlpha
		}
		out[i] = b
	}
	return out
}

// SeekFraction maps a horizontal pointer position to a clamped [0,1] fraction.
func SeekFraction(x, width float64) float64 {
	if width <= 0 || math.IsNaN(x) {
		return 0
	}
	return Clamp01(x / width)
}

// Clamp01 clamps f to [0,1]; NaN becomes 0.
func Clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
