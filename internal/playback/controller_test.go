package playback

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jwulff/voicenote/internal/codec"
	"github.com/jwulff/voicenote/internal/voice"
	"github.com/jwulff/voicenote/internal/waveform"
)

const testRate = 8000

type fakeOutput struct {
	sink   *fakeSink
	delay  time.Duration
	closed bool
}

func (o *fakeOutput) Write(samples []float32) error {
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	o.sink.mu.Lock()
	o.sink.written += len(samples)
	o.sink.mu.Unlock()
	return nil
}

func (o *fakeOutput) Close() error {
	o.sink.mu.Lock()
	o.closed = true
	o.sink.mu.Unlock()
	return nil
}

type fakeSink struct {
	delay   time.Duration
	mu      sync.Mutex
	outputs []*fakeOutput
	written int
}

func (s *fakeSink) Open(sampleRate int) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &fakeOutput{sink: s, delay: s.delay}
	s.outputs = append(s.outputs, o)
	return o, nil
}

func (s *fakeSink) opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outputs)
}

func (s *fakeSink) allClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.outputs {
		if !o.closed {
			return false
		}
	}
	return true
}

func writeClip(t *testing.T, seconds float64) voice.Clip {
	t.Helper()
	enc, err := codec.EncoderFor(codec.FormatWAV)
	if err != nil {
		t.Fatalf("EncoderFor: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	samples := make([]float32, int(seconds*testRate))
	for i := range samples {
		samples[i] = 0.25
	}
	if err := enc.Encode(f, samples, testRate); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	clip, err := voice.NewClip(voice.FileURI(path), waveform.Fallback(voice.WaveformSize), seconds)
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	return clip
}

func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("events closed")
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %d", kind)
		}
	}
}

func TestUnloadedController(t *testing.T) {
	c := New(&fakeSink{}, nil)
	defer c.Close()

	if err := c.Toggle(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Toggle: err = %v, want ErrNotLoaded", err)
	}
	if err := c.Seek(0.5); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Seek: err = %v, want ErrNotLoaded", err)
	}
	if c.Progress() != 0 {
		t.Errorf("progress = %v, want 0", c.Progress())
	}
}

func TestLoadMissingFile(t *testing.T) {
	c := New(&fakeSink{}, nil)
	defer c.Close()

	clip, _ := voice.NewClip(voice.FileURI(filepath.Join(t.TempDir(), "missing.ogg")), waveform.Fallback(60), 2)
	if err := c.Load(clip); err == nil {
		t.Fatal("expected error loading a missing file")
	}
	if err := c.Toggle(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("controller should stay unloaded, Toggle err = %v", err)
	}
}

func TestSeekSetsExactPosition(t *testing.T) {
	c := New(&fakeSink{}, nil)
	defer c.Close()
	if err := c.Load(writeClip(t, 1.5)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		fraction, want float64
	}{
		{0.25, 0.25 * 1.5},
		{0.7, 0.7 * 1.5},
		{1.5, 1.5},
		{-0.2, 0},
		{1, 1.5},
	}
	for _, tt := range tests {
		if err := c.Seek(tt.fraction); err != nil {
			t.Fatalf("Seek(%v): %v", tt.fraction, err)
		}
		if got := c.Position(); got != tt.want {
			t.Errorf("Seek(%v): position = %v, want %v", tt.fraction, got, tt.want)
		}
	}
	if c.Playing() {
		t.Error("seek should not start playback")
	}
}

func TestPlaysToEndAndResets(t *testing.T) {
	sink := &fakeSink{}
	c := New(sink, nil)
	defer c.Close()
	if err := c.Load(writeClip(t, 0.5)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := c.Toggle(); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	waitFor(t, c.Events(), EventEnded)

	if c.Playing() {
		t.Error("should stop at end")
	}
	if c.Position() != 0 {
		t.Errorf("position = %v, want 0 after natural end", c.Position())
	}
	sink.mu.Lock()
	written := sink.written
	sink.mu.Unlock()
	if written != testRate/2 {
		t.Errorf("wrote %d samples, want %d", written, testRate/2)
	}

	// Output is closed by the run goroutine after the end event.
	deadline := time.Now().Add(2 * time.Second)
	for !sink.allClosed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !sink.allClosed() {
		t.Error("output not released after end")
	}
}

func TestPauseKeepsPosition(t *testing.T) {
	sink := &fakeSink{delay: time.Millisecond}
	c := New(sink, nil)
	defer c.Close()
	if err := c.Load(writeClip(t, 10)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Toggle()
	waitFor(t, c.Events(), EventPosition)
	if err := c.Toggle(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if c.Playing() {
		t.Fatal("should be paused")
	}
	pos := c.Position()
	if pos <= 0 || pos >= 10 {
		t.Fatalf("paused position = %v", pos)
	}
	if !sink.allClosed() {
		t.Error("pause should release the output")
	}
	time.Sleep(20 * time.Millisecond)
	if c.Position() != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, c.Position())
	}
}

func TestSeekWhilePlayingRestarts(t *testing.T) {
	sink := &fakeSink{delay: time.Millisecond}
	c := New(sink, nil)
	defer c.Close()
	if err := c.Load(writeClip(t, 10)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Toggle()
	if err := c.Seek(0.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if !c.Playing() {
		t.Error("should keep playing after seek")
	}
	if sink.opened() != 2 {
		t.Errorf("outputs opened = %d, want 2", sink.opened())
	}

	ev := waitFor(t, c.Events(), EventPosition)
	for ev.Position < 5 {
		ev = waitFor(t, c.Events(), EventPosition)
	}
	if ev.Position > 6 {
		t.Errorf("position %v should continue from 5", ev.Position)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	sink := &fakeSink{delay: time.Millisecond}
	c := New(sink, nil)
	clip := writeClip(t, 10)
	if err := c.Load(clip); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Toggle()

	c.Close()
	c.Close()

	if c.Playing() || c.Position() != 0 {
		t.Errorf("after close: playing=%v position=%v", c.Playing(), c.Position())
	}
	if !sink.allClosed() {
		t.Error("output should be closed")
	}
	for range c.Events() {
	}
	if err := c.Load(clip); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close: err = %v, want ErrClosed", err)
	}
}
