package waveform

import (
	"errors"
	"log/slog"
	"math"

	"github.com/jwulff/voicenote/internal/codec"
)

// FallbackLevel fills waveforms that could not be derived from audio.
const FallbackLevel = 0.1

var (
	// ErrSilent means every block averaged to zero.
	ErrSilent = errors.New("silent audio")
	// ErrTooShort means there are fewer samples than bars.
	ErrTooShort = errors.New("fewer samples than bars")
)

// Envelope reduces samples to n bars of mean absolute amplitude, normalised so
// the loudest bar is exactly 1. Samples past n*floor(len/n) are dropped.
func Envelope(samples []float32, n int) ([]float32, error) {
	if n <= 0 || len(samples) < n {
		return nil, ErrTooShort
	}
	block := len(samples) / n

	means := make([]float64, n)
	var peak float64
	for i := range means {
		var sum float64
		for _, s := range samples[i*block : (i+1)*block] {
			sum += math.Abs(float64(s))
		}
		means[i] = sum / float64(block)
		peak = max(peak, means[i])
	}
	if peak == 0 {
		return nil, ErrSilent
	}

	out := make([]float32, n)
	for i, m := range means {
		out[i] = float32(m / peak)
	}
	return out, nil
}

// Fallback is the deterministic waveform used when audio cannot be summarised.
func Fallback(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = FallbackLevel
	}
	return out
}

// Summarizer derives the persisted waveform of a finished blob.
type Summarizer struct {
	bars   int
	decode codec.DecodeFunc
	logger *slog.Logger
}

// NewSummarizer returns a summarizer producing n bars using codec.Decode.
func NewSummarizer(n int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{bars: n, decode: codec.Decode, logger: logger}
}

// Summarize never fails: decode errors, short and silent audio all produce
// Fallback so the recording itself is never lost.
func (s *Summarizer) Summarize(blob []byte) []float32 {
	pcm, err := s.decode(blob)
	if err != nil {
		s.logger.Warn("waveform decode failed, using fallback", "err", err, "bytes", len(blob))
		return Fallback(s.bars)
	}
	w, err := Envelope(pcm.Samples, s.bars)
	if err != nil {
		s.logger.Info("waveform fallback", "reason", err, "samples", len(pcm.Samples))
		return Fallback(s.bars)
	}
	return w
}
