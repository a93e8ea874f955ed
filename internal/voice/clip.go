// Package voice defines voice clips and the collaborators that send and list
// them.
package voice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WaveformSize is the number of bars in every persisted waveform.
const WaveformSize = 60

// ErrSendFailed wraps network and storage failures while sending. The clip is
// left intact so the send can be retried.
var ErrSendFailed = errors.New("send failed")

// ErrBadWaveform is returned for waveforms that are not WaveformSize long.
var ErrBadWaveform = errors.New("waveform must have exactly 60 values")

// Clip is a finished voice message. It is immutable once created.
type Clip struct {
	audioURI string
	waveform []float32
	duration float64
}

// NewClip validates and copies its inputs.
func NewClip(audioURI string, waveform []float32, durationSeconds float64) (Clip, error) {
	if len(waveform) != WaveformSize {
		return Clip{}, fmt.Errorf("%w: got %d", ErrBadWaveform, len(waveform))
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	w := make([]float32, WaveformSize)
	copy(w, waveform)
	return Clip{audioURI: audioURI, waveform: w, duration: durationSeconds}, nil
}

// AudioURI references the encoded audio bytes.
func (c Clip) AudioURI() string { return c.audioURI }

// Waveform returns a copy of the bars.
func (c Clip) Waveform() []float32 {
	w := make([]float32, len(c.waveform))
	copy(w, c.waveform)
	return w
}

// DurationSeconds is the recorded length.
func (c Clip) DurationSeconds() float64 { return c.duration }

// IsZero reports whether c was never created by NewClip.
func (c Clip) IsZero() bool { return c.waveform == nil }

// Outgoing is a voice message ready to send.
type Outgoing struct {
	ConversationID string
	SenderID       string
	Clip           Clip
	MimeType       string
	Size           int64
}

// Message is a stored voice message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Clip           Clip
	MimeType       string
	Size           int64
	CreatedAt      time.Time
	Read           bool
}

// Sender delivers finished clips. Errors wrap ErrSendFailed.
type Sender interface {
	SendVoice(ctx context.Context, msg Outgoing) (string, error)
}

// FileURI returns the file:// URI for a local path.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// LocalPath resolves a file:// URI or bare path.
func LocalPath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse audio uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported audio uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// ReadAudio loads the encoded bytes behind uri.
func ReadAudio(uri string) ([]byte, error) {
	path, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}
