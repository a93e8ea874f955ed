// Package waveform derives bar arrays from audio and lays them out for
// drawing.
package waveform

// LiveBars is the number of bars shown while recording.
const LiveBars = 40

// LiveFloor keeps silent bars visible.
const LiveFloor = 0.1

// FrequencySource reports byte-scaled frequency energy.
type FrequencySource interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []uint8) []uint8
}

// LiveSampler turns the current spectrum into a fixed number of bars. It runs
// until Stop flips its liveness flag.
type LiveSampler struct {
	src     FrequencySource
	bars    int
	buf     []uint8
	current []float32
	running bool
}

// NewLiveSampler returns a running sampler over src.
func NewLiveSampler(src FrequencySource, bars int) *LiveSampler {
	if bars <= 0 {
		bars = LiveBars
	}
	return &LiveSampler{src: src, bars: bars, running: true}
}

// Running reports whether the sampler may be re-armed.
func (s *LiveSampler) Running() bool { return s.running }

// Sample reads one spectrum and replaces the bars. It returns nil once stopped.
func (s *LiveSampler) Sample() []float32 {
	if !s.running {
		return nil
	}
	s.buf = s.src.ByteFrequencyData(s.buf)
	s.current = barsFromSpectrum(s.buf, s.bars)
	return s.current
}

// Bars returns the most recent sample.
func (s *LiveSampler) Bars() []float32 { return s.current }

// Stop ends sampling and clears the bars.
func (s *LiveSampler) Stop() {
	s.running = false
	s.current = nil
}

// barsFromSpectrum takes every step-th bin, step = floor(len/bars), as the
// representative of each bar.
func barsFromSpectrum(data []uint8, bars int) []float32 {
	step := max(1, len(data)/bars)
	out := make([]float32, bars)
	for i := range out {
		var v float32
		if idx := i * step; idx < len(data) {
			v = float32(data[idx]) / 255
		}
		out[i] = max(v, LiveFloor)
	}
	return out
}
