package capture

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jwulff/voicenote/internal/codec"
)

type fakeStream struct {
	closed int
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

// fakeDevice hands its callback back to the test.
type fakeDevice struct {
	err    error
	rate   int
	feed   func([]float32)
	stream *fakeStream
	opens  int
}

func (d *fakeDevice) Open(sampleRate int, onSamples func([]float32)) (Stream, error) {
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	d.rate = sampleRate
	d.feed = onSamples
	d.stream = &fakeStream{}
	return d.stream, nil
}

func newTestRecorder(t *testing.T, dev Device) *Recorder {
	t.Helper()
	enc, err := codec.EncoderFor(codec.FormatWAV)
	if err != nil {
		t.Fatalf("EncoderFor: %v", err)
	}
	r := New(Options{Device: dev, Encoder: enc, Dir: t.TempDir(), SampleRate: 8000})
	t.Cleanup(r.Close)
	return r
}

func sine(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	return out
}

func TestModeString(t *testing.T) {
	tests := map[Mode]string{ModeIdle: "idle", ModeRecording: "recording", ModeReview: "review", Mode(9): "unknown"}
	for m, want := range tests {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, got, want)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := newTestRecorder(t, &fakeDevice{})

	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
	if r.Mode() != ModeIdle {
		t.Errorf("mode = %v, want idle", r.Mode())
	}
	if _, ok := r.Pending(); ok {
		t.Error("no recording should be pending")
	}
}

func TestRecordStopProducesBlob(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	session, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.Mode() != ModeRecording {
		t.Fatalf("mode = %v, want recording", r.Mode())
	}
	if dev.rate != 8000 {
		t.Errorf("device rate = %d, want 8000", dev.rate)
	}

	dev.feed(sine(4000))
	dev.feed(sine(4000))
	r.Tick(session)

	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if dev.stream.closed != 1 {
		t.Errorf("stream closed %d times, want 1", dev.stream.closed)
	}
	if r.Mode() != ModeReview {
		t.Errorf("mode = %v, want review", r.Mode())
	}
	if rec.ElapsedSeconds != 1 {
		t.Errorf("elapsed = %d, want 1", rec.ElapsedSeconds)
	}
	if rec.SampleSeconds != 1 {
		t.Errorf("sample seconds = %v, want 1", rec.SampleSeconds)
	}
	if rec.Format != codec.FormatWAV || filepath.Ext(rec.Path) != ".wav" {
		t.Errorf("format = %q path = %q", rec.Format, rec.Path)
	}
	if !strings.HasPrefix(rec.URI, "file://") {
		t.Errorf("uri = %q", rec.URI)
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	pcm, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm.Samples) != 8000 {
		t.Errorf("decoded %d samples, want 8000", len(pcm.Samples))
	}

	pending, ok := r.Pending()
	if !ok || pending.Path != rec.Path {
		t.Errorf("Pending = %+v, %v", pending, ok)
	}
}

func TestStartErrorsSurface(t *testing.T) {
	for _, want := range []error{ErrPermissionDenied, ErrDeviceUnavailable} {
		r := newTestRecorder(t, &fakeDevice{err: want})
		if _, err := r.Start(context.Background()); !errors.Is(err, want) {
			t.Errorf("err = %v, want %v", err, want)
		}
		if r.Mode() != ModeIdle {
			t.Errorf("mode = %v after failed start, want idle", r.Mode())
		}
	}

	r := New(Options{})
	if _, err := r.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("nil device: err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestStartCancelledContext(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if dev.opens != 0 {
		t.Error("device should not be opened")
	}
}

func TestStartRejectedWhileBusy(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("err = %v, want ErrAlreadyRecording", err)
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := r.Start(context.Background()); !errors.Is(err, ErrPendingReview) {
		t.Errorf("err = %v, want ErrPendingReview", err)
	}
	if dev.opens != 1 {
		t.Errorf("device opened %d times, want 1", dev.opens)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	r.Cancel()
	if r.Mode() != ModeIdle {
		t.Fatalf("cancel on idle changed mode to %v", r.Mode())
	}

	session, _ := r.Start(context.Background())
	dev.feed(sine(800))
	r.Tick(session)
	r.Cancel()
	r.Cancel()

	if dev.stream.closed != 1 {
		t.Errorf("stream closed %d times, want 1", dev.stream.closed)
	}
	if r.Mode() != ModeIdle || r.Elapsed() != 0 || r.LiveBars() != nil {
		t.Errorf("after cancel: mode=%v elapsed=%d bars=%v", r.Mode(), r.Elapsed(), r.LiveBars())
	}
}

func TestCancelReviewDeletesBlob(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	r.Start(context.Background())
	dev.feed(sine(800))
	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	r.Cancel()
	if _, err := os.Stat(rec.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("blob should be deleted, stat err = %v", err)
	}
	if _, ok := r.Pending(); ok {
		t.Error("pending should be cleared")
	}
}

func TestFinishKeepsBlob(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	if err := r.Finish(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Finish on idle: err = %v", err)
	}

	r.Start(context.Background())
	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if r.Mode() != ModeIdle {
		t.Errorf("mode = %v, want idle", r.Mode())
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Errorf("blob should survive Finish: %v", err)
	}
}

func TestStopImmediatelyAfterStart(t *testing.T) {
	r := newTestRecorder(t, &fakeDevice{})

	r.Start(context.Background())
	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.ElapsedSeconds != 0 || rec.SampleSeconds != 0 {
		t.Errorf("elapsed=%d seconds=%v, want zero", rec.ElapsedSeconds, rec.SampleSeconds)
	}
}

func TestTimerOnlyAdvancesWhileRecording(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	if r.Tick(0) {
		t.Error("tick on idle should be ignored")
	}

	session, _ := r.Start(context.Background())
	for range 3 {
		if !r.Tick(session) {
			t.Fatal("live tick rejected")
		}
	}
	if r.Elapsed() != 3 {
		t.Errorf("elapsed = %d, want 3", r.Elapsed())
	}

	r.Stop()
	if r.Tick(session) {
		t.Error("tick after stop should be ignored")
	}
	if r.Elapsed() != 3 {
		t.Errorf("elapsed changed after stop: %d", r.Elapsed())
	}
}

func TestStaleSessionIgnored(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	first, _ := r.Start(context.Background())
	staleFeed := dev.feed
	r.Cancel()

	second, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if second == first {
		t.Fatal("session numbers should differ")
	}

	if r.Tick(first) {
		t.Error("stale tick accepted")
	}
	if _, ok := r.SampleLive(first); ok {
		t.Error("stale sample accepted")
	}
	staleFeed(sine(8000))

	rec, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.SampleSeconds != 0 {
		t.Errorf("stale callback leaked %v seconds of audio", rec.SampleSeconds)
	}
}

func TestSampleLiveBars(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRecorder(t, dev)

	session, _ := r.Start(context.Background())
	dev.feed(sine(512))

	bars, ok := r.SampleLive(session)
	if !ok {
		t.Fatal("SampleLive rejected live session")
	}
	if len(bars) != 40 {
		t.Fatalf("bars = %d, want 40", len(bars))
	}
	for i, v := range bars {
		if v < 0.1 || v > 1 {
			t.Errorf("bar %d = %v out of range", i, v)
		}
	}
	if got := r.LiveBars(); len(got) != 40 {
		t.Errorf("LiveBars = %d, want 40", len(got))
	}

	r.Stop()
	if r.LiveBars() != nil {
		t.Error("live bars should clear on stop")
	}
}
