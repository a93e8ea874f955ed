// Package oggopus registers an Ogg Opus codec, the container used for voice
// notes by most messengers.
package oggopus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
	"github.com/jwulff/voicenote/internal/codec"
)

const (
	// DefaultBitrate suits 16 kHz speech.
	DefaultBitrate = 24000
	channels       = 1
	maxPacketBytes = 1275
	// 120 ms at 48 kHz is the longest Opus frame.
	maxFrameSamples = 5760
	// preSkip48 is the libopus encoder lookahead at 48 kHz, written to
	// OpusHead so decoders drop the priming samples.
	preSkip48 = 312
)

// Encoder encodes mono speech to Ogg Opus in 20 ms frames.
type Encoder struct {
	Bitrate int
}

// Format implements codec.Encoder.
func (e Encoder) Format() codec.Format { return codec.FormatOgg }

// MimeType implements codec.Encoder.
func (e Encoder) MimeType() string { return "audio/ogg; codecs=opus" }

// SupportedRate reports whether Opus can encode at sampleRate.
func SupportedRate(sampleRate int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// Encode implements codec.Encoder. sampleRate must be one Opus supports
// (8, 12, 16, 24 or 48 kHz).
func (e Encoder) Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if !SupportedRate(sampleRate) {
		return fmt.Errorf("opus cannot encode at %d Hz", sampleRate)
	}
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	bitrate := e.Bitrate
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return fmt.Errorf("set bitrate: %w", err)
	}

	frameSize := sampleRate / 50
	// Feed lookahead samples of trailing silence so the last input sample
	// leaves the encoder.
	total := len(samples) + preSkip48*sampleRate/48000
	out := make([]byte, maxPacketBytes)
	pcm := make([]float32, frameSize)
	var packets [][]byte
	for start := 0; start < total; start += frameSize {
		n := 0
		if start < len(samples) {
			n = copy(pcm, samples[start:min(start+frameSize, len(samples))])
		}
		clear(pcm[n:])

		size, err := enc.EncodeFloat32(pcm, out)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		packet := make([]byte, size)
		copy(packet, out[:size])
		packets = append(packets, packet)
	}

	stream := oggStream{
		sampleRate:   sampleRate,
		channels:     channels,
		frameSamples: frameSize,
		preSkip:      preSkip48,
		samples:      len(samples),
	}
	if err := stream.write(w, packets); err != nil {
		return fmt.Errorf("write ogg: %w", err)
	}
	return nil
}

// Decode parses an Ogg Opus blob into channel-0 PCM at the stream's original
// input rate when Opus can decode at it, else 48 kHz.
func Decode(data []byte) (codec.PCM, error) {
	packets, granule, err := readOgg(data)
	if err != nil {
		return codec.PCM{}, err
	}
	if len(packets) < 2 {
		return codec.PCM{}, errors.New("missing opus headers")
	}

	head := packets[0]
	if len(head) < 19 || !bytes.HasPrefix(head, []byte("OpusHead")) {
		return codec.PCM{}, errors.New("missing OpusHead")
	}
	nch := int(head[9])
	if nch < 1 || nch > 2 {
		return codec.PCM{}, fmt.Errorf("unsupported channel count %d", nch)
	}
	preSkip := int(binary.LittleEndian.Uint16(head[10:]))
	rate := int(binary.LittleEndian.Uint32(head[12:]))
	if !SupportedRate(rate) {
		rate = 48000
	}
	// The final granule position counts pre-skip plus real samples at 48 kHz.
	end := -1
	if granule > uint64(preSkip) {
		end = int((granule - uint64(preSkip)) * uint64(rate) / 48000)
	}
	preSkip = preSkip * rate / 48000

	dec, err := opus.NewDecoder(rate, nch)
	if err != nil {
		return codec.PCM{}, fmt.Errorf("create decoder: %w", err)
	}

	buf := make([]float32, maxFrameSamples*nch)
	var samples []float32
	// packets[1] is OpusTags.
	for _, p := range packets[2:] {
		n, err := dec.DecodeFloat32(p, buf)
		if err != nil {
			return codec.PCM{}, fmt.Errorf("decode packet: %w", err)
		}
		for i := 0; i < n; i++ {
			samples = append(samples, buf[i*nch])
		}
	}
	if preSkip > 0 && preSkip <= len(samples) {
		samples = samples[preSkip:]
	}
	if end >= 0 && end < len(samples) {
		samples = samples[:end]
	}

	return codec.PCM{Samples: samples, SampleRate: rate, SourceChannels: nch}, nil
}

// Register installs the codec with the given encoder bitrate.
func Register(bitrate int) {
	codec.Register(codec.FormatOgg, Decode, Encoder{Bitrate: bitrate})
}

func init() {
	Register(DefaultBitrate)
}
