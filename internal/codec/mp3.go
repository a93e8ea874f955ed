package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit little-endian stereo.
const mp3FrameBytes = 4

func decodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("open mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("read mp3: %w", err)
	}

	frames := len(raw) / mp3FrameBytes
	samples := make([]float32, frames)
	for i := range samples {
		left := int16(binary.LittleEndian.Uint16(raw[i*mp3FrameBytes:]))
		samples[i] = float32(left) / 32768.0
	}
	return PCM{
		Samples:        samples,
		SampleRate:     dec.SampleRate(),
		SourceChannels: 2,
	}, nil
}
