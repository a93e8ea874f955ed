// Package hostaudio binds the capture and playback interfaces to the host's
// audio APIs. Only commands import it; everything else runs on fakes.
package hostaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/playback"
)

// Capture backends.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// Host owns the initialised audio libraries.
type Host struct {
	backend string
	malgo   *malgoInput
}

// Open initialises PortAudio, which always serves playback, and the selected
// capture backend.
func Open(backend string) (*Host, error) {
	if backend == "" {
		backend = BackendPortAudio
	}
	if backend != BackendPortAudio && backend != BackendMalgo {
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	h := &Host{backend: backend}
	if backend == BackendMalgo {
		m, err := newMalgoInput()
		if err != nil {
			portaudio.Terminate()
			return nil, err
		}
		h.malgo = m
	}
	return h, nil
}

// Capture returns the input device of the selected backend.
func (h *Host) Capture() capture.Device {
	if h.malgo != nil {
		return h.malgo
	}
	return portaudioInput{}
}

// Playback returns the output sink.
func (h *Host) Playback() playback.Sink {
	return portaudioOutput{}
}

// Backend names the capture backend in use.
func (h *Host) Backend() string { return h.backend }

// Close releases the audio libraries.
func (h *Host) Close() error {
	var errs []error
	if h.malgo != nil {
		errs = append(errs, h.malgo.close())
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate PortAudio: %w", err))
	}
	return errors.Join(errs...)
}
