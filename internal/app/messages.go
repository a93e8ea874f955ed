package app

import (
	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/daemon"
	"github.com/jwulff/voicenote/internal/playback"
	"github.com/jwulff/voicenote/internal/voice"
)

// RecordingStartedMsg reports the outcome of opening the microphone.
type RecordingStartedMsg struct {
	Session uint64
	Err     error
}

// TickMsg advances the elapsed timer of a recording session.
type TickMsg struct {
	Session uint64
}

// FrameMsg asks for one live waveform sample of a recording session.
type FrameMsg struct {
	Session uint64
}

// RecordingStoppedMsg carries the encoded blob and its summarised clip.
type RecordingStoppedMsg struct {
	Recording capture.Recording
	Clip      voice.Clip
	Err       error
}

// SentMsg reports the outcome of sending the reviewed clip.
type SentMsg struct {
	ID  string
	Err error
}

// PlayerLoadedMsg reports that a controller decoded its clip.
type PlayerLoadedMsg struct {
	Player *playback.Controller
	// Play starts playback once loaded.
	Play bool
	Err  error
}

// PlayerEventMsg wraps a position or end event from a controller.
type PlayerEventMsg struct {
	Player *playback.Controller
	Event  playback.Event
}

// MessagesLoadedMsg carries the conversation's voice messages.
type MessagesLoadedMsg struct {
	Messages []voice.Message
	Err      error
}

// MarkedReadMsg reports how many messages were marked read.
type MarkedReadMsg struct {
	Count int
	Err   error
}

// DaemonEventMsg wraps a streamed event from the daemon.
type DaemonEventMsg struct {
	Event daemon.Event
}

// DaemonEventErrorMsg is sent when the event stream encounters an error.
type DaemonEventErrorMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
