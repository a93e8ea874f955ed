package hostaudio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/jwulff/voicenote/internal/capture"
)

// malgoInput captures through miniaudio.
type malgoInput struct {
	ctx *malgo.AllocatedContext
}

type malgoStream struct {
	device *malgo.Device
}

func newMalgoInput() (*malgoInput, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &malgoInput{ctx: ctx}, nil
}

func (m *malgoInput) Open(sampleRate int, onSamples func([]float32)) (capture.Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)

	var frame []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			frame = bytesToFloat32(frame[:0], in, int(frameCount))
			onSamples(frame)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w: %w", capture.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w: %w", capture.ErrPermissionDenied, err)
	}
	return &malgoStream{device: device}, nil
}

func (s *malgoStream) Close() error {
	if err := s.device.Stop(); err != nil {
		s.device.Uninit()
		return fmt.Errorf("stop capture device: %w", err)
	}
	s.device.Uninit()
	return nil
}

func (m *malgoInput) close() error {
	if err := m.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	m.ctx.Free()
	return nil
}

// bytesToFloat32 decodes little-endian float32 frames into dst.
func bytesToFloat32(dst []float32, data []byte, n int) []float32 {
	n = min(n, len(data)/4)
	for i := range n {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return dst
}
