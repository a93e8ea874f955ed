package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/voice"
)

// Store is the message store the daemon serves.
type Store interface {
	Conversation(ctx context.Context, userID, peerID string) (*db.Conversation, error)
	Conversations(ctx context.Context, viewerID string) ([]db.Conversation, error)
	SendVoice(ctx context.Context, msg voice.Outgoing) (string, error)
	VoiceMessage(ctx context.Context, id string) (voice.Message, error)
	VoiceMessages(ctx context.Context, conversationID, viewerID string, limit int) ([]voice.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
}

// Server answers NDJSON commands and fans events out to subscribers.
type Server struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	subs  map[*conn]struct{}
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// conn is one client connection. events is guarded by Server.mu.
type conn struct {
	net.Conn
	mu     sync.Mutex
	events []string
}

func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.Write(append(data, '\n'))
	return err
}

func (c *conn) wants(event string) bool {
	return len(c.events) == 0 || slices.Contains(c.events, event)
}

// NewServer returns a server over store.
func NewServer(store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:  store,
		logger: logger,
		subs:   make(map[*conn]struct{}),
		conns:  make(map[*conn]struct{}),
	}
}

// Listen removes a stale socket file and listens on path.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is cancelled, then closes them all.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.closeAll()
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := &conn{Conn: nc}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, c)
		}()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) handle(ctx context.Context, c *conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		delete(s.subs, c)
		s.mu.Unlock()
		c.Close()
	}()

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var cmd Command
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			resp = Response{Error: fmt.Sprintf("bad command: %v", err)}
		} else {
			resp = s.dispatch(ctx, cmd)
		}
		if err := c.writeJSON(resp); err != nil {
			s.logger.Debug("write response", "err", err)
			return
		}
		// Events may only follow the subscribe OK on the wire.
		if cmd.Cmd == CmdSubscribe && resp.OK {
			s.subscribe(c, cmd.Events)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("connection read", "err", err)
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) Response {
	resp, err := s.execute(ctx, cmd)
	if err != nil {
		s.logger.Warn("command failed", "cmd", cmd.Cmd, "err", err)
		resp = Response{Error: err.Error()}
		if errors.Is(err, voice.ErrSendFailed) {
			resp.Retryable = BoolPtr(!errors.Is(err, db.ErrNotFound))
		}
		return resp
	}
	resp.OK = true
	return resp
}

func (s *Server) execute(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Cmd {
	case CmdConversation:
		conv, err := s.store.Conversation(ctx, cmd.UserID, cmd.PeerID)
		if err != nil {
			return Response{}, err
		}
		ref := NewConversationRef(*conv)
		return Response{Conversation: &ref}, nil

	case CmdConversations:
		if cmd.UserID == "" {
			return Response{}, errors.New("userId is required")
		}
		convs, err := s.store.Conversations(ctx, cmd.UserID)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Conversations: make([]ConversationRef, 0, len(convs))}
		for _, conv := range convs {
			resp.Conversations = append(resp.Conversations, NewConversationRef(conv))
		}
		return resp, nil

	case CmdSendVoice:
		if cmd.Voice == nil {
			return Response{}, fmt.Errorf("%w: voice is required", voice.ErrSendFailed)
		}
		clip, err := cmd.Voice.Clip()
		if err != nil {
			return Response{}, fmt.Errorf("%w: %w", voice.ErrSendFailed, err)
		}
		id, err := s.store.SendVoice(ctx, voice.Outgoing{
			ConversationID: cmd.ConversationID,
			SenderID:       cmd.UserID,
			Clip:           clip,
			MimeType:       cmd.Voice.MimeType,
			Size:           cmd.Voice.Size,
		})
		if err != nil {
			return Response{}, err
		}
		s.logger.Info("voice message stored", "id", id, "conversation", cmd.ConversationID,
			"duration", clip.DurationSeconds())
		if msg, err := s.store.VoiceMessage(ctx, id); err == nil {
			ref := NewMessageRef(msg)
			s.broadcast(Event{Event: EventVoiceMessage, ConversationID: msg.ConversationID, Message: &ref})
		} else {
			s.logger.Warn("reload sent message", "id", id, "err", err)
		}
		return Response{MessageID: id}, nil

	case CmdMessages:
		msgs, err := s.store.VoiceMessages(ctx, cmd.ConversationID, cmd.UserID, cmd.Limit)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Messages: make([]MessageRef, 0, len(msgs))}
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, NewMessageRef(m))
		}
		return resp, nil

	case CmdMarkRead:
		n, err := s.store.MarkRead(ctx, cmd.ConversationID, cmd.UserID)
		if err != nil {
			return Response{}, err
		}
		if n > 0 {
			s.broadcast(Event{Event: EventRead, ConversationID: cmd.ConversationID, UserID: cmd.UserID})
		}
		return Response{Count: IntPtr(n)}, nil

	case CmdDelete:
		if err := s.store.DeleteMessage(ctx, cmd.MessageID, cmd.UserID); err != nil {
			return Response{}, err
		}
		return Response{}, nil

	case CmdSubscribe:
		// handle registers the conn after writing the response.
		return Response{}, nil

	default:
		return Response{}, fmt.Errorf("unknown command %q", cmd.Cmd)
	}
}

func (s *Server) subscribe(c *conn, events []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.events = events
	s.subs[c] = struct{}{}
}

func (s *Server) broadcast(ev Event) {
	s.mu.Lock()
	subs := make([]*conn, 0, len(s.subs))
	for c := range s.subs {
		if c.wants(ev.Event) {
			subs = append(subs, c)
		}
	}
	s.mu.Unlock()

	for _, c := range subs {
		if err := c.writeJSON(ev); err != nil {
			s.logger.Debug("drop subscriber", "remote", c.RemoteAddr(), "err", err)
			s.mu.Lock()
			delete(s.subs, c)
			s.mu.Unlock()
			c.Close()
		}
	}
}
