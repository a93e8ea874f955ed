package voice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewClipRequiresWaveformSize(t *testing.T) {
	for _, n := range []int{0, 59, 61} {
		if _, err := NewClip("file:///x.ogg", make([]float32, n), 1); !errors.Is(err, ErrBadWaveform) {
			t.Errorf("len %d: err = %v, want ErrBadWaveform", n, err)
		}
	}

	c, err := NewClip("file:///x.ogg", make([]float32, WaveformSize), 3)
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	if len(c.Waveform()) != WaveformSize {
		t.Errorf("waveform len = %d", len(c.Waveform()))
	}
	if c.DurationSeconds() != 3 {
		t.Errorf("duration = %v, want 3", c.DurationSeconds())
	}
}

func TestClipIsImmutable(t *testing.T) {
	w := make([]float32, WaveformSize)
	w[0] = 0.5
	c, _ := NewClip("a", w, 1)

	w[0] = 0.9
	if c.Waveform()[0] != 0.5 {
		t.Error("clip should copy its input")
	}

	got := c.Waveform()
	got[0] = 0.1
	if c.Waveform()[0] != 0.5 {
		t.Error("Waveform should return a copy")
	}
}

func TestNegativeDurationClamped(t *testing.T) {
	c, _ := NewClip("a", make([]float32, WaveformSize), -2)
	if c.DurationSeconds() != 0 {
		t.Errorf("duration = %v, want 0", c.DurationSeconds())
	}
}

func TestFileURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	uri := FileURI(path)
	got, err := LocalPath(uri)
	if err != nil {
		t.Fatalf("LocalPath: %v", err)
	}
	if got != path {
		t.Errorf("LocalPath = %q, want %q", got, path)
	}

	data, err := ReadAudio(uri)
	if err != nil {
		t.Fatalf("ReadAudio: %v", err)
	}
	if string(data) != "OggS" {
		t.Errorf("data = %q", data)
	}
}

func TestLocalPathRejectsRemote(t *testing.T) {
	if _, err := LocalPath("https://example.com/a.ogg"); err == nil {
		t.Error("expected error for https uri")
	}
	if got, _ := LocalPath("/tmp/a.ogg"); got != "/tmp/a.ogg" {
		t.Errorf("bare path = %q", got)
	}
}
