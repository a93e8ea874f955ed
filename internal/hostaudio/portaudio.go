package hostaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/playback"
)

// outputFrames is the blocking-write buffer size of playback streams.
const outputFrames = 512

// portaudioInput opens the default input in callback mode.
type portaudioInput struct{}

type portaudioStream struct {
	stream *portaudio.Stream
}

func (portaudioInput) Open(sampleRate int, onSamples func([]float32)) (capture.Stream, error) {
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), 0, onSamples)
	if err != nil {
		return nil, mapPortAudioError("open input", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, mapPortAudioError("start input", err)
	}
	return &portaudioStream{stream: stream}, nil
}

func (s *portaudioStream) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("close input: %w", err)
	}
	if stopErr != nil {
		return fmt.Errorf("stop input: %w", stopErr)
	}
	return nil
}

// mapPortAudioError sorts PortAudio failures into the capture error taxonomy.
// Hosts that refuse microphone access report an unanticipated host error.
func mapPortAudioError(op string, err error) error {
	var hostErr portaudio.UnanticipatedHostError
	switch {
	case errors.As(err, &hostErr):
		return fmt.Errorf("%s: %w: %w", op, capture.ErrPermissionDenied, err)
	case errors.Is(err, portaudio.DeviceUnavailable),
		errors.Is(err, portaudio.InvalidDevice),
		errors.Is(err, portaudio.InvalidChannelCount):
		return fmt.Errorf("%s: %w: %w", op, capture.ErrDeviceUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// portaudioOutput opens blocking mono output streams.
type portaudioOutput struct{}

type portaudioWriter struct {
	stream *portaudio.Stream
	buf    []float32
}

func (portaudioOutput) Open(sampleRate int) (playback.Output, error) {
	w := &portaudioWriter{buf: make([]float32, outputFrames)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(w.buf), w.buf)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output: %w", err)
	}
	w.stream = stream
	return w, nil
}

// Write blocks until samples have been queued, padding the last buffer with
// silence.
func (w *portaudioWriter) Write(samples []float32) error {
	for len(samples) > 0 {
		n := copy(w.buf, samples)
		clear(w.buf[n:])
		samples = samples[n:]
		if err := w.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

func (w *portaudioWriter) Close() error {
	w.stream.Stop()
	return w.stream.Close()
}
