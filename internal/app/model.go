package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/daemon"
	"github.com/jwulff/voicenote/internal/playback"
	"github.com/jwulff/voicenote/internal/ui"
	"github.com/jwulff/voicenote/internal/voice"
	"github.com/jwulff/voicenote/internal/waveform"

	tea "github.com/charmbracelet/bubbletea"
)

// Backend stores and lists voice messages. *db.Store and *daemon.Client
// both satisfy it.
type Backend interface {
	voice.Sender
	VoiceMessages(ctx context.Context, conversationID, viewerID string, limit int) ([]voice.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
}

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusComposer PanelFocus = iota
	FocusMessages
)

const (
	backendTimeout   = 10 * time.Second
	transientTimeout = 5 * time.Second
	seekStep         = 0.1
	defaultFrameRate = 30
)

// Options wire a Model to its collaborators.
type Options struct {
	Recorder   *capture.Recorder
	Sink       playback.Sink
	Summarizer *waveform.Summarizer
	Backend    Backend
	// Events is an optional subscribed daemon connection.
	Events *daemon.Client

	ConversationID string
	UserID         string
	PeerID         string
	FrameRate      int
	Logger         *slog.Logger
}

// Model is the root bubbletea model of the voice message composer.
type Model struct {
	rec        *capture.Recorder
	sink       playback.Sink
	summarizer *waveform.Summarizer
	backend    Backend
	events     *daemon.Client
	logger     *slog.Logger

	conversationID string
	userID         string
	peerID         string
	frameRate      int

	// Recorder state as last observed by Update.
	mode     capture.Mode
	session  uint64
	elapsed  int
	liveBars []float32
	starting bool
	stopping bool
	sending  bool

	// Review clip.
	pending      capture.Recording
	clip         voice.Clip
	reviewPlayer *playback.Controller
	reviewLoaded bool

	// Conversation.
	messages      []voice.Message
	selected      int
	msgPlayer     *playback.Controller
	msgPlayerID   string
	msgLoaded     bool
	messagesError string

	// UI state.
	focusedPanel PanelFocus
	width        int
	height       int
	keys         KeyMap
	help         help.Model

	errorMessage   string
	errorTransient bool
	statusText     string
}

// New creates a Model in idle mode.
func New(opts Options) Model {
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Summarizer == nil {
		opts.Summarizer = waveform.NewSummarizer(voice.WaveformSize, opts.Logger)
	}

	h := help.New()
	h.Styles.ShortKey = ui.FooterKeyStyle
	h.Styles.ShortDesc = ui.FooterDescStyle
	h.Styles.FullKey = ui.FooterKeyStyle
	h.Styles.FullDesc = ui.FooterDescStyle

	m := Model{
		rec:            opts.Recorder,
		sink:           opts.Sink,
		summarizer:     opts.Summarizer,
		backend:        opts.Backend,
		events:         opts.Events,
		logger:         opts.Logger,
		conversationID: opts.ConversationID,
		userID:         opts.UserID,
		peerID:         opts.PeerID,
		frameRate:      opts.FrameRate,
		mode:           capture.ModeIdle,
		focusedPanel:   FocusComposer,
		keys:           DefaultKeyMap(),
		help:           h,
		statusText:     "Press space to record",
	}
	m.updateKeys()
	return m
}

// Init loads the conversation and starts listening for daemon events.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadMessagesCmd(m.backend, m.conversationID, m.userID)}
	if m.events != nil {
		cmds = append(cmds, readEventCmd(m.events))
	}
	return tea.Batch(cmds...)
}

// Commands

func startCmd(rec *capture.Recorder) tea.Cmd {
	return func() tea.Msg {
		session, err := rec.Start(context.Background())
		return RecordingStartedMsg{Session: session, Err: err}
	}
}

// tickCmd drives the one-second elapsed timer of session.
func tickCmd(session uint64) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return TickMsg{Session: session}
	})
}

// frameCmd schedules the next live waveform sample of session.
func frameCmd(session uint64, fps int) tea.Cmd {
	return tea.Tick(time.Second/time.Duration(fps), func(time.Time) tea.Msg {
		return FrameMsg{Session: session}
	})
}

// stopCmd finalises the blob and derives its waveform. The duration is the
// elapsed timer count, not the decoded length.
func stopCmd(rec *capture.Recorder, summarizer *waveform.Summarizer) tea.Cmd {
	return func() tea.Msg {
		recording, err := rec.Stop()
		if err != nil {
			return RecordingStoppedMsg{Err: err}
		}
		blob, err := os.ReadFile(recording.Path)
		if err != nil {
			blob = nil
		}
		bars := summarizer.Summarize(blob)
		clip, err := voice.NewClip(recording.URI, bars, float64(recording.ElapsedSeconds))
		return RecordingStoppedMsg{Recording: recording, Clip: clip, Err: err}
	}
}

func sendCmd(backend Backend, out voice.Outgoing) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		id, err := backend.SendVoice(ctx, out)
		return SentMsg{ID: id, Err: err}
	}
}

// loadPlayerCmd decodes clip into player, optionally starting playback.
func loadPlayerCmd(player *playback.Controller, clip voice.Clip, play bool) tea.Cmd {
	return func() tea.Msg {
		err := player.Load(clip)
		if err == nil && play {
			err = player.Toggle()
		}
		return PlayerLoadedMsg{Player: player, Play: play, Err: err}
	}
}

// listenPlayerCmd waits for the next event of player. It yields nothing once
// the player is closed.
func listenPlayerCmd(player *playback.Controller) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-player.Events()
		if !ok {
			return nil
		}
		return PlayerEventMsg{Player: player, Event: ev}
	}
}

func loadMessagesCmd(backend Backend, conversationID, userID string) tea.Cmd {
	if backend == nil || conversationID == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		msgs, err := backend.VoiceMessages(ctx, conversationID, userID, 0)
		return MessagesLoadedMsg{Messages: msgs, Err: err}
	}
}

func markReadCmd(backend Backend, conversationID, userID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		n, err := backend.MarkRead(ctx, conversationID, userID)
		return MarkedReadMsg{Count: n, Err: err}
	}
}

// readEventCmd reads the next event from the event client.
func readEventCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return DaemonEventMsg{Event: ev}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(transientTimeout, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.updateKeys()
	m, cmd := m.update(msg)
	m.updateKeys()
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case RecordingStartedMsg:
		m.starting = false
		if msg.Err != nil {
			m.mode = m.rec.Mode()
			return m, m.showError(describeError(msg.Err), true)
		}
		m.mode = capture.ModeRecording
		m.session = msg.Session
		m.elapsed = 0
		m.liveBars = nil
		m.statusText = "Recording"
		m.logger.Info("recording started", "session", msg.Session)
		return m, tea.Batch(tickCmd(msg.Session), frameCmd(msg.Session, m.frameRate))

	case TickMsg:
		if msg.Session != m.session || !m.rec.Tick(msg.Session) {
			return m, nil
		}
		m.elapsed = m.rec.Elapsed()
		return m, tickCmd(msg.Session)

	case FrameMsg:
		if msg.Session != m.session {
			return m, nil
		}
		bars, ok := m.rec.SampleLive(msg.Session)
		if !ok {
			return m, nil
		}
		m.liveBars = bars
		return m, frameCmd(msg.Session, m.frameRate)

	case RecordingStoppedMsg:
		return m.handleStopped(msg)

	case SentMsg:
		m.sending = false
		if msg.Err != nil {
			m.logger.Warn("send failed", "err", msg.Err)
			m.statusText = "Review"
			return m, m.showError(fmt.Errorf("%w (enter to retry, x to discard)", msg.Err), false)
		}
		if err := m.rec.Finish(); err != nil {
			m.logger.Warn("finish recording", "err", err)
		}
		m.logger.Info("voice message sent", "id", msg.ID, "duration", m.clip.DurationSeconds())
		m.resetReview()
		m.clearError()
		m.statusText = "Sent"
		return m, loadMessagesCmd(m.backend, m.conversationID, m.userID)

	case PlayerLoadedMsg:
		return m.handlePlayerLoaded(msg)

	case PlayerEventMsg:
		if msg.Player != m.reviewPlayer && msg.Player != m.msgPlayer {
			return m, nil
		}
		return m, listenPlayerCmd(msg.Player)

	case MessagesLoadedMsg:
		if msg.Err != nil {
			m.messagesError = msg.Err.Error()
			return m, nil
		}
		m.messagesError = ""
		m.messages = msg.Messages
		if m.selected >= len(m.messages) {
			m.selected = max(0, len(m.messages)-1)
		}
		if m.hasUnread() {
			return m, markReadCmd(m.backend, m.conversationID, m.userID)
		}
		return m, nil

	case MarkedReadMsg:
		if msg.Err != nil {
			m.logger.Warn("mark read", "err", msg.Err)
			return m, nil
		}
		for i := range m.messages {
			if m.messages[i].SenderID != m.userID {
				m.messages[i].Read = true
			}
		}
		return m, nil

	case DaemonEventMsg:
		cmd := m.handleEvent(msg.Event)
		return m, tea.Batch(cmd, readEventCmd(m.events))

	case DaemonEventErrorMsg:
		m.logger.Warn("event stream", "err", msg.Err)
		return m, m.showError(fmt.Errorf("daemon events: %w", msg.Err), true)

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.clearError()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleStopped(msg RecordingStoppedMsg) (Model, tea.Cmd) {
	m.stopping = false
	if msg.Err != nil {
		m.mode = m.rec.Mode()
		m.liveBars = nil
		if errors.Is(msg.Err, capture.ErrNotRecording) {
			return m, nil
		}
		m.statusText = "Press space to record"
		return m, m.showError(msg.Err, true)
	}
	// A discard may have raced the stop.
	if pending, ok := m.rec.Pending(); !ok || pending.Path != msg.Recording.Path {
		return m, nil
	}

	m.mode = capture.ModeReview
	m.liveBars = nil
	m.pending = msg.Recording
	m.clip = msg.Clip
	m.statusText = "Review"
	m.reviewPlayer = playback.New(m.sink, m.logger)
	m.reviewLoaded = false
	return m, tea.Batch(loadPlayerCmd(m.reviewPlayer, m.clip, false), listenPlayerCmd(m.reviewPlayer))
}

func (m Model) handlePlayerLoaded(msg PlayerLoadedMsg) (Model, tea.Cmd) {
	switch msg.Player {
	case m.reviewPlayer:
		m.reviewLoaded = msg.Err == nil
	case m.msgPlayer:
		m.msgLoaded = msg.Err == nil
	default:
		return m, nil
	}
	if msg.Err != nil {
		m.logger.Warn("load clip", "err", msg.Err)
		return m, m.showError(fmt.Errorf("playback: %w", msg.Err), true)
	}
	return m, nil
}

// handleEvent processes a daemon event and returns any resulting command.
func (m *Model) handleEvent(ev daemon.Event) tea.Cmd {
	if ev.ConversationID != m.conversationID {
		return nil
	}
	switch ev.Event {
	case daemon.EventVoiceMessage:
		if ev.Message == nil {
			return nil
		}
		msg, err := ev.Message.Message()
		if err != nil {
			m.logger.Warn("bad voice message event", "err", err)
			return nil
		}
		for _, existing := range m.messages {
			if existing.ID == msg.ID {
				return nil
			}
		}
		m.messages = append(m.messages, msg)
		if msg.SenderID != m.userID {
			return markReadCmd(m.backend, m.conversationID, m.userID)
		}

	case daemon.EventRead:
		if ev.UserID == m.userID {
			return nil
		}
		for i := range m.messages {
			if m.messages[i].SenderID == m.userID {
				m.messages[i].Read = true
			}
		}
	}
	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Record):
		return m.toggleRecording()

	case key.Matches(msg, m.keys.Send):
		if m.mode != capture.ModeReview || m.sending {
			return m, nil
		}
		m.sending = true
		m.statusText = "Sending..."
		return m, sendCmd(m.backend, voice.Outgoing{
			ConversationID: m.conversationID,
			SenderID:       m.userID,
			Clip:           m.clip,
			MimeType:       m.pending.MimeType,
			Size:           m.pending.Size,
		})

	case key.Matches(msg, m.keys.Discard):
		if m.sending || m.mode == capture.ModeIdle && !m.stopping {
			return m, nil
		}
		m.rec.Cancel()
		m.resetReview()
		m.clearError()
		m.statusText = "Discarded"
		return m, nil

	case key.Matches(msg, m.keys.Play):
		return m, m.togglePlayer()

	case key.Matches(msg, m.keys.SeekBack):
		return m, m.seekBy(-seekStep)

	case key.Matches(msg, m.keys.SeekFwd):
		return m, m.seekBy(seekStep)

	case key.Matches(msg, m.keys.Focus):
		if m.focusedPanel == FocusComposer {
			m.focusedPanel = FocusMessages
		} else {
			m.focusedPanel = FocusComposer
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.focusedPanel == FocusMessages && m.selected < len(m.messages)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.focusedPanel == FocusMessages && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case key.Matches(msg, m.keys.Listen):
		return m.listenSelected()
	}

	return m, nil
}

func (m Model) toggleRecording() (Model, tea.Cmd) {
	if m.starting || m.stopping || m.sending {
		return m, nil
	}
	switch m.mode {
	case capture.ModeIdle:
		m.starting = true
		m.clearError()
		m.statusText = "Opening microphone..."
		return m, startCmd(m.rec)
	case capture.ModeRecording:
		m.stopping = true
		m.statusText = "Finishing..."
		return m, stopCmd(m.rec, m.summarizer)
	}
	return m, nil
}

// activePlayer is the review player in review, otherwise the message player.
func (m Model) activePlayer() (*playback.Controller, bool) {
	if m.mode == capture.ModeReview && m.focusedPanel == FocusComposer {
		return m.reviewPlayer, m.reviewLoaded
	}
	return m.msgPlayer, m.msgLoaded
}

func (m *Model) togglePlayer() tea.Cmd {
	player, loaded := m.activePlayer()
	if player == nil || !loaded {
		return nil
	}
	if err := player.Toggle(); err != nil {
		return m.showError(fmt.Errorf("playback: %w", err), true)
	}
	return nil
}

func (m *Model) seekBy(delta float64) tea.Cmd {
	player, loaded := m.activePlayer()
	if player == nil || !loaded {
		return nil
	}
	return m.seek(player, player.Progress()+delta)
}

func (m *Model) seek(player *playback.Controller, fraction float64) tea.Cmd {
	if err := player.Seek(fraction); err != nil {
		return m.showError(fmt.Errorf("seek: %w", err), true)
	}
	return nil
}

// listenSelected plays the selected message, toggling it if already loaded.
func (m Model) listenSelected() (Model, tea.Cmd) {
	if m.selected >= len(m.messages) {
		return m, nil
	}
	msg := m.messages[m.selected]
	if m.msgPlayer != nil && m.msgPlayerID == msg.ID && m.msgLoaded {
		return m, m.togglePlayer()
	}
	if m.msgPlayer != nil {
		m.msgPlayer.Close()
	}
	m.msgPlayer = playback.New(m.sink, m.logger)
	m.msgPlayerID = msg.ID
	m.msgLoaded = false
	return m, tea.Batch(loadPlayerCmd(m.msgPlayer, msg.Clip, true), listenPlayerCmd(m.msgPlayer))
}

// handleMouse seeks when the left button lands on a waveform.
func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft || m.width == 0 {
		return m, nil
	}

	if msg.Y == m.composerWaveRow() {
		if m.mode != capture.ModeReview || !m.reviewLoaded {
			return m, nil
		}
		m.focusedPanel = FocusComposer
		x := float64(msg.X - waveLeft)
		return m, m.seek(m.reviewPlayer, waveform.SeekFraction(x, float64(m.composerWaveWidth())))
	}

	row := msg.Y - headerRows
	if row < 0 || row >= m.listHeight() {
		return m, nil
	}
	idx := m.listStart() + row
	if idx >= len(m.messages) {
		return m, nil
	}
	m.focusedPanel = FocusMessages
	m.selected = idx
	x := msg.X - messagePrefix
	if x >= 0 && x < m.messageWaveWidth() && m.msgPlayerID == m.messages[idx].ID && m.msgLoaded {
		return m, m.seek(m.msgPlayer, waveform.SeekFraction(float64(x), float64(m.messageWaveWidth())))
	}
	return m, nil
}

func (m Model) hasUnread() bool {
	for _, msg := range m.messages {
		if msg.SenderID != m.userID && !msg.Read {
			return true
		}
	}
	return false
}

// resetReview drops the review clip and its player.
func (m *Model) resetReview() {
	if m.reviewPlayer != nil {
		m.reviewPlayer.Close()
	}
	m.reviewPlayer = nil
	m.reviewLoaded = false
	m.clip = voice.Clip{}
	m.pending = capture.Recording{}
	m.mode = capture.ModeIdle
	m.elapsed = 0
	m.liveBars = nil
	m.stopping = false
	m.sending = false
}

// shutdown releases the recorder, players and daemon connection.
func (m *Model) shutdown() {
	m.rec.Close()
	m.resetReview()
	if m.msgPlayer != nil {
		m.msgPlayer.Close()
		m.msgPlayer = nil
	}
	if m.events != nil {
		m.events.Close()
	}
}

func (m *Model) showError(err error, transient bool) tea.Cmd {
	m.errorMessage = err.Error()
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) clearError() {
	m.errorMessage = ""
	m.errorTransient = false
}

// describeError turns capture failures into something the user can act on.
func describeError(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w: allow microphone access for this terminal", err)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Errorf("%w: connect a microphone and try again", err)
	}
	return err
}

// updateKeys enables the bindings that act in the current mode.
func (m *Model) updateKeys() {
	review := m.mode == capture.ModeReview
	busy := m.starting || m.stopping || m.sending
	player, loaded := m.activePlayer()
	canPlay := player != nil && loaded

	m.keys.Record.SetEnabled(!busy && m.mode != capture.ModeReview)
	if m.mode == capture.ModeRecording {
		m.keys.Record.SetHelp("space", "stop")
	} else {
		m.keys.Record.SetHelp("space", "record")
	}
	m.keys.Send.SetEnabled(review && !m.sending)
	m.keys.Discard.SetEnabled(m.mode != capture.ModeIdle && !m.sending)
	m.keys.Play.SetEnabled(canPlay)
	m.keys.SeekBack.SetEnabled(canPlay)
	m.keys.SeekFwd.SetEnabled(canPlay)
	m.keys.Up.SetEnabled(len(m.messages) > 0)
	m.keys.Down.SetEnabled(len(m.messages) > 0)
	m.keys.Listen.SetEnabled(len(m.messages) > 0)
}
