// Package capture owns the microphone while a voice message is recorded and
// keeps the encoded blob until it is sent or discarded.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jwulff/voicenote/internal/codec"
	"github.com/jwulff/voicenote/internal/spectrum"
	"github.com/jwulff/voicenote/internal/voice"
	"github.com/jwulff/voicenote/internal/waveform"
)

// Mode is the recorder lifecycle state.
type Mode int

const (
	// ModeIdle holds no device and no blob.
	ModeIdle Mode = iota
	// ModeRecording holds an open input stream.
	ModeRecording
	// ModeReview holds a finished blob awaiting send or discard.
	ModeReview
)

// String returns the lower-case mode name.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRecording:
		return "recording"
	case ModeReview:
		return "review"
	default:
		return "unknown"
	}
}

var (
	// ErrPermissionDenied means the OS refused microphone access. The
	// recorder stays idle and the composer shows a permission notice.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no input device could be opened.
	ErrDeviceUnavailable = errors.New("no audio input device available")
	// ErrNotRecording is returned by Stop and Finish when there is no take
	// to act on, and wraps the error of a Start that was cancelled.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned by Start while a take is in progress.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrPendingReview is returned by Start while a finished take still
	// awaits Finish or Cancel.
	ErrPendingReview = errors.New("a recording is waiting to be sent or discarded")
)

// Stream is an open input stream.
type Stream interface {
	Close() error
}

// Device opens the default input. onSamples receives mono float32 frames from
// the audio thread and must not retain the slice.
type Device interface {
	Open(sampleRate int, onSamples func([]float32)) (Stream, error)
}

// Recording is a stopped capture before its waveform is derived.
type Recording struct {
	URI      string
	Path     string
	Format   codec.Format
	MimeType string
	Size     int64
	// ElapsedSeconds is the one-second timer count shown to the user.
	ElapsedSeconds int
	// SampleSeconds is the captured sample count over the sample rate.
	SampleSeconds float64
}

// Options configure a Recorder.
type Options struct {
	Device     Device
	Encoder    codec.Encoder
	Dir        string
	SampleRate int
	FFTSize    int
	Logger     *slog.Logger
}

// DefaultSampleRate suits both speech and Opus.
const DefaultSampleRate = 16000

// Recorder drives one recording at a time. Every transition issues a new
// session number; ticks and samples carrying an older one are ignored.
type Recorder struct {
	dev     Device
	enc     codec.Encoder
	dir     string
	rate    int
	fftSize int
	logger  *slog.Logger

	mu       sync.Mutex
	mode     Mode
	session  uint64
	elapsed  int
	stream   Stream
	samples  []float32
	analyser *spectrum.Analyser
	sampler  *waveform.LiveSampler
	pending  Recording
}

// New returns an idle recorder.
func New(opts Options) *Recorder {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.FFTSize <= 0 {
		opts.FFTSize = spectrum.DefaultFFTSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		dev:     opts.Device,
		enc:     opts.Encoder,
		dir:     opts.Dir,
		rate:    opts.SampleRate,
		fftSize: opts.FFTSize,
		logger:  opts.Logger,
	}
}

// Start opens the input device and begins recording.
func (r *Recorder) Start(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.dev == nil {
		return 0, ErrDeviceUnavailable
	}

	r.mu.Lock()
	switch r.mode {
	case ModeRecording:
		r.mu.Unlock()
		return 0, ErrAlreadyRecording
	case ModeReview:
		r.mu.Unlock()
		return 0, ErrPendingReview
	}
	r.session++
	session := r.session
	r.mode = ModeRecording
	r.elapsed = 0
	r.samples = nil
	r.analyser = spectrum.NewAnalyser(r.fftSize)
	r.sampler = waveform.NewLiveSampler(r.analyser, waveform.LiveBars)
	r.mu.Unlock()

	stream, err := r.dev.Open(r.rate, func(in []float32) { r.capture(session, in) })
	if err == nil {
		err = ctx.Err()
		if err != nil {
			stream.Close()
		}
	}
	if err != nil {
		r.mu.Lock()
		if r.session == session {
			r.resetLocked()
		}
		r.mu.Unlock()
		r.logger.Warn("capture start failed", "err", err)
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != session {
		// Cancelled while the device was opening.
		stream.Close()
		return 0, fmt.Errorf("start aborted: %w", ErrNotRecording)
	}
	r.stream = stream
	r.logger.Info("recording started", "session", session, "rate", r.rate)
	return session, nil
}

func (r *Recorder) capture(session uint64, in []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != session || r.mode != ModeRecording {
		return
	}
	r.samples = append(r.samples, in...)
	r.analyser.Write(in)
}

func (r *Recorder) liveLocked(session uint64) bool {
	return r.mode == ModeRecording && r.session == session
}

// Tick advances the elapsed counter by one second. It reports false, and does
// nothing, once session is no longer the live recording.
func (r *Recorder) Tick(session uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.liveLocked(session) {
		return false
	}
	r.elapsed++
	return true
}

// SampleLive runs one live sampling cycle for session.
func (r *Recorder) SampleLive(session uint64) ([]float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.liveLocked(session) {
		return nil, false
	}
	return r.sampler.Sample(), true
}

// Stop closes the input, encodes the captured audio into one blob and enters
// review. On encode failure everything is released and the recorder is idle.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	if r.mode != ModeRecording {
		r.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	stream := r.stream
	samples := r.samples
	elapsed := r.elapsed
	r.stream, r.samples = nil, nil
	r.sampler.Stop()
	r.session++
	session := r.session
	r.mode = ModeReview
	r.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			r.logger.Warn("close input stream", "err", err)
		}
	}

	rec, err := r.encode(samples, elapsed)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != session {
		if err == nil {
			r.removeBlob(rec.Path)
		}
		return Recording{}, fmt.Errorf("stop aborted: %w", ErrNotRecording)
	}
	if err != nil {
		r.resetLocked()
		return Recording{}, fmt.Errorf("encode recording: %w", err)
	}
	r.pending = rec
	r.logger.Info("recording stopped",
		"elapsed", rec.ElapsedSeconds,
		"seconds", rec.SampleSeconds,
		"size", humanize.Bytes(uint64(rec.Size)),
		"path", rec.Path)
	return rec, nil
}

func (r *Recorder) encode(samples []float32, elapsed int) (Recording, error) {
	if r.enc == nil {
		return Recording{}, codec.ErrUnknownFormat
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Recording{}, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(r.dir, uuid.NewString()+codec.Extension(r.enc.Format()))
	f, err := os.Create(path)
	if err != nil {
		return Recording{}, fmt.Errorf("create blob: %w", err)
	}
	if err := r.enc.Encode(f, samples, r.rate); err != nil {
		f.Close()
		r.removeBlob(path)
		return Recording{}, err
	}
	if err := f.Close(); err != nil {
		r.removeBlob(path)
		return Recording{}, fmt.Errorf("close blob: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		r.removeBlob(path)
		return Recording{}, fmt.Errorf("stat blob: %w", err)
	}
	return Recording{
		URI:            voice.FileURI(path),
		Path:           path,
		Format:         r.enc.Format(),
		MimeType:       r.enc.MimeType(),
		Size:           info.Size(),
		ElapsedSeconds: elapsed,
		SampleSeconds:  float64(len(samples)) / float64(r.rate),
	}, nil
}

// Cancel discards the current recording or pending blob and returns to idle.
// It is a no-op when idle.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.mode == ModeIdle {
		r.mu.Unlock()
		return
	}
	stream := r.stream
	path := r.pending.Path
	from := r.mode
	r.resetLocked()
	r.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			r.logger.Warn("close input stream", "err", err)
		}
	}
	r.removeBlob(path)
	r.logger.Info("recording discarded", "from", from)
}

// Finish leaves review keeping the blob, after the clip has been handed off.
func (r *Recorder) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != ModeReview || r.pending.Path == "" {
		return ErrNotRecording
	}
	r.resetLocked()
	return nil
}

// Close releases everything the recorder holds.
func (r *Recorder) Close() {
	r.Cancel()
}

func (r *Recorder) resetLocked() {
	r.session++
	r.mode = ModeIdle
	r.elapsed = 0
	r.stream = nil
	r.samples = nil
	r.pending = Recording{}
	if r.sampler != nil {
		r.sampler.Stop()
	}
	if r.analyser != nil {
		r.analyser.Reset()
	}
}

// Mode returns the lifecycle state.
func (r *Recorder) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Elapsed returns the timer count of the live recording.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// LiveBars returns the most recent live sample, nil when not recording.
func (r *Recorder) LiveBars() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != ModeRecording || r.sampler == nil {
		return nil
	}
	bars := r.sampler.Bars()
	if bars == nil {
		return nil
	}
	out := make([]float32, len(bars))
	copy(out, bars)
	return out
}

// Pending returns the blob awaiting review.
func (r *Recorder) Pending() (Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.mode == ModeReview && r.pending.Path != ""
}

func (r *Recorder) removeBlob(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("remove blob", "path", path, "err", err)
	}
}
