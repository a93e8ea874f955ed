// Package playback plays one voice clip with pause, seek and position
// reporting.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jwulff/voicenote/internal/codec"
	"github.com/jwulff/voicenote/internal/voice"
	"github.com/jwulff/voicenote/internal/waveform"
)

var (
	// ErrNotLoaded is returned by Toggle and Seek before a clip is loaded.
	ErrNotLoaded = errors.New("no clip loaded")
	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("player closed")
)

// Output is an open audio output. Write blocks until samples are queued.
type Output interface {
	Write(samples []float32) error
	Close() error
}

// Sink opens mono outputs.
type Sink interface {
	Open(sampleRate int) (Output, error)
}

// EventKind distinguishes playback events.
type EventKind int

const (
	// EventPosition follows every written chunk and every seek.
	EventPosition EventKind = iota
	// EventEnded is sent when the clip plays to its end.
	EventEnded
)

// Event reports a playback change. Position is in seconds.
type Event struct {
	Kind     EventKind
	Position float64
}

// chunksPerSecond sets the position resolution.
const chunksPerSecond = 50

const eventBuffer = 64

// Controller binds one clip to an output. The run goroutine owns the opened
// output and closes it on every exit path.
type Controller struct {
	sink   Sink
	logger *slog.Logger
	events chan Event

	mu       sync.Mutex
	closed   bool
	loaded   bool
	clip     voice.Clip
	pcm      codec.PCM
	duration float64
	playing  bool
	position float64
	gen      uint64
	stop     chan struct{}
	done     chan struct{}
}

// New returns an unloaded controller writing to sink.
func New(sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		sink:   sink,
		logger: logger,
		events: make(chan Event, eventBuffer),
	}
}

// Events delivers position and end events. It is closed by Close. Events are
// dropped when the reader falls behind.
func (c *Controller) Events() <-chan Event { return c.events }

// Load tears down any previous clip and decodes the new one. On error the
// controller is left unloaded.
func (c *Controller) Load(clip voice.Clip) error {
	c.halt()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.loaded = false
	c.clip = voice.Clip{}
	c.pcm = codec.PCM{}
	c.position = 0
	c.mu.Unlock()

	data, err := voice.ReadAudio(clip.AudioURI())
	if err != nil {
		return err
	}
	pcm, err := codec.Decode(data)
	if err != nil {
		return fmt.Errorf("load clip: %w", err)
	}

	duration := clip.DurationSeconds()
	if duration <= 0 {
		duration = pcm.Seconds()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.clip = clip
	c.pcm = pcm
	c.duration = duration
	c.loaded = true
	c.logger.Debug("clip loaded", "uri", clip.AudioURI(), "duration", duration, "rate", pcm.SampleRate)
	return nil
}

// Toggle plays from the current position or pauses, keeping it.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	if c.playing {
		c.mu.Unlock()
		c.halt()
		return nil
	}
	defer c.mu.Unlock()
	return c.startLocked()
}

// Seek moves to fraction of the clip, clamped to [0,1]. A running playback
// continues from the new position.
func (c *Controller) Seek(fraction float64) error {
	fraction = waveform.Clamp01(fraction)

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	playing := c.playing
	c.mu.Unlock()

	if playing {
		c.halt()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return ErrNotLoaded
	}
	c.position = fraction * c.duration
	c.emitLocked(Event{Kind: EventPosition, Position: c.position})
	if playing {
		return c.startLocked()
	}
	return nil
}

// Close stops playback, releases the output and closes Events.
func (c *Controller) Close() {
	c.halt()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.loaded = false
	c.position = 0
	close(c.events)
}

// Playing reports whether audio is being written.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position is the playback offset in seconds.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Duration of the loaded clip in seconds.
func (c *Controller) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Progress is Position over Duration, 0 when nothing is loaded.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || c.duration <= 0 {
		return 0
	}
	return waveform.Clamp01(c.position / c.duration)
}

// Clip returns the loaded clip.
func (c *Controller) Clip() voice.Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clip
}

func (c *Controller) startLocked() error {
	if c.sink == nil {
		return errors.New("no audio output")
	}
	out, err := c.sink.Open(c.pcm.SampleRate)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	start := int(c.position * float64(c.pcm.SampleRate))
	if start >= len(c.pcm.Samples) {
		start = 0
		c.position = 0
	}
	c.gen++
	c.playing = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.gen, out, start, c.stop, c.done)
	return nil
}

// halt stops the run goroutine and waits for it to release the output. It
// must be called without c.mu held.
func (c *Controller) halt() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.gen++
	c.playing = false
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *Controller) run(gen uint64, out Output, start int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := out.Close(); err != nil {
			c.logger.Warn("close output", "err", err)
		}
	}()

	c.mu.Lock()
	samples := c.pcm.Samples
	rate := c.pcm.SampleRate
	duration := c.duration
	c.mu.Unlock()

	chunk := max(1, rate/chunksPerSecond)
	for pos := start; pos < len(samples); {
		select {
		case <-stop:
			return
		default:
		}

		end := min(pos+chunk, len(samples))
		if err := out.Write(samples[pos:end]); err != nil {
			c.logger.Warn("playback write failed", "err", err)
			c.mu.Lock()
			if c.gen == gen {
				c.playing = false
				c.stop, c.done = nil, nil
			}
			c.mu.Unlock()
			return
		}
		pos = end

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.position = min(float64(pos)/float64(rate), duration)
		c.emitLocked(Event{Kind: EventPosition, Position: c.position})
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.playing = false
	c.position = 0
	c.stop, c.done = nil, nil
	c.emitLocked(Event{Kind: EventEnded})
}

func (c *Controller) emitLocked(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
