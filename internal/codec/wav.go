package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

type wavEncoder struct{}

func (wavEncoder) Format() Format   { return FormatWAV }
func (wavEncoder) MimeType() string { return "audio/wav" }

// Encode writes 16-bit mono PCM.
func (wavEncoder) Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		data[i] = int(s * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

func decodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return PCM{}, errors.New("wav has no channels")
	}

	channels := buf.Format.NumChannels
	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	if depth < 8 || depth > 32 {
		return PCM{}, fmt.Errorf("unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		v := buf.Data[i*channels]
		if depth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		samples[i] = float32(v) / scale
	}
	return PCM{
		Samples:        samples,
		SampleRate:     buf.Format.SampleRate,
		SourceChannels: channels,
	}, nil
}
