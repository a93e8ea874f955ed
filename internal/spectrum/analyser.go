// Package spectrum computes byte-scaled frequency energy of a live audio signal.
package spectrum

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Defaults match the analyser used for the live recording display.
const (
	DefaultFFTSize     = 128
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	minFFTSize         = 32
)

// Analyser keeps the most recent FFTSize samples of a signal and reports their
// windowed, smoothed magnitude spectrum scaled to 0-255 per bin.
//
// Write is called from the audio callback; ByteFrequencyData from the UI loop.
type Analyser struct {
	mu       sync.Mutex
	size     int
	ring     []float64
	pos      int
	window   []float64
	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64

	smoothing float64
	minDB     float64
	maxDB     float64
}

// NewAnalyser returns an analyser for fftSize samples. fftSize is rounded up to a
// power of two of at least 32.
func NewAnalyser(fftSize int) *Analyser {
	size := minFFTSize
	for size < fftSize {
		size <<= 1
	}
	return &Analyser{
		size:      size,
		ring:      make([]float64, size),
		window:    blackman(size),
		fft:       fourier.NewFFT(size),
		frame:     make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		smoothed:  make([]float64, size/2),
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDecibels,
		maxDB:     DefaultMaxDecibels,
	}
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int {
	return a.size / 2
}

// Write appends samples to the analysis window, discarding the oldest.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData fills dst (resized to FrequencyBinCount) with the current
// spectrum and returns it.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	bins := a.size / 2
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	}
	dst = dst[:bins]

	a.mu.Lock()
	defer a.mu.Unlock()

	// Oldest sample first.
	for i := 0; i < a.size; i++ {
		a.frame[i] = a.ring[(a.pos+i)%a.size] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	span := a.maxDB - a.minDB
	for k := 0; k < bins; k++ {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := 255 * (db - a.minDB) / span
		switch {
		case math.IsInf(v, -1) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = uint8(v)
		}
	}
	return dst
}

// Reset clears the window and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}
