// Package codec encodes recorded samples into voice blobs and decodes blobs
// back into mono PCM for waveform summarisation and playback.
//
// WAV and MP3 are built in. Other formats register themselves, the way
// database/sql drivers do:
//
//	import _ "github.com/jwulff/voicenote/internal/codec/oggopus"
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Format names a blob container.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatOgg     Format = "ogg"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = ""
)

// ErrDecodeFailed wraps every decode error.
var ErrDecodeFailed = errors.New("decode failed")

// ErrUnknownFormat is returned when no codec is registered for a blob or format.
var ErrUnknownFormat = errors.New("unknown audio format")

// PCM is decoded audio. Samples holds channel 0 only.
type PCM struct {
	Samples        []float32
	SampleRate     int
	SourceChannels int
}

// Seconds is the decoded length.
func (p PCM) Seconds() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Encoder writes mono float32 samples as a complete blob.
type Encoder interface {
	Format() Format
	MimeType() string
	Encode(w io.WriteSeeker, samples []float32, sampleRate int) error
}

// DecodeFunc turns a blob into PCM.
type DecodeFunc func(data []byte) (PCM, error)

var (
	mu       sync.RWMutex
	decoders = map[Format]DecodeFunc{}
	encoders = map[Format]Encoder{}
)

// Register installs a decoder and, if enc is non-nil, an encoder for f.
func Register(f Format, dec DecodeFunc, enc Encoder) {
	mu.Lock()
	defer mu.Unlock()
	if dec != nil {
		decoders[f] = dec
	}
	if enc != nil {
		encoders[f] = enc
	}
}

// EncoderFor returns the registered encoder for f.
func EncoderFor(f Format) (Encoder, error) {
	mu.RLock()
	defer mu.RUnlock()
	enc, ok := encoders[f]
	if !ok {
		return nil, fmt.Errorf("encoder %q: %w", f, ErrUnknownFormat)
	}
	return enc, nil
}

// Sniff identifies the container from its leading bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// Decode sniffs the blob and runs the matching decoder. All failures wrap
// ErrDecodeFailed.
func Decode(data []byte) (PCM, error) {
	f := Sniff(data)
	mu.RLock()
	dec, ok := decoders[f]
	mu.RUnlock()
	if !ok {
		return PCM{}, fmt.Errorf("%w: %w", ErrDecodeFailed, ErrUnknownFormat)
	}
	pcm, err := dec(data)
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, f, err)
	}
	return pcm, nil
}

// Extension returns the file extension used for blobs of format f.
func Extension(f Format) string {
	return "." + string(f)
}

func init() {
	Register(FormatWAV, decodeWAV, wavEncoder{})
	Register(FormatMP3, decodeMP3, nil)
}
