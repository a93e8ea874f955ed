package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/voice"
)

// Client communicates with voicenoted over a Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendCommand sends a command and reads one response line.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	return c.send(context.Background(), cmd)
}

func (c *Client) send(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, fmt.Errorf("connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

// do sends cmd and turns a failed response into an error.
func (c *Client) do(ctx context.Context, cmd Command) (Response, error) {
	resp, err := c.send(ctx, cmd)
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", cmd.Cmd, resp.Error)
	}
	return resp, nil
}

// ReadEvent reads the next NDJSON event line. Blocks until data arrives.
// After calling Subscribe, use this in a loop to receive events.
func (c *Client) ReadEvent() (Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		return Event{}, fmt.Errorf("connection closed")
	}

	var ev Event
	if err := json.Unmarshal(c.scanner.Bytes(), &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	return ev, nil
}

// Subscribe turns the connection into an event stream for userID. Only the
// named events are delivered; none means all.
func (c *Client) Subscribe(userID string, events ...string) error {
	_, err := c.do(context.Background(), Command{Cmd: CmdSubscribe, UserID: userID, Events: events})
	return err
}

// Conversation gets or creates the conversation between userID and peerID.
func (c *Client) Conversation(ctx context.Context, userID, peerID string) (*db.Conversation, error) {
	resp, err := c.do(ctx, Command{Cmd: CmdConversation, UserID: userID, PeerID: peerID})
	if err != nil {
		return nil, err
	}
	if resp.Conversation == nil {
		return nil, errors.New("conversation: empty response")
	}
	conv := resp.Conversation.Conversation()
	return &conv, nil
}

// Conversations lists the conversations of viewerID.
func (c *Client) Conversations(ctx context.Context, viewerID string) ([]db.Conversation, error) {
	resp, err := c.do(ctx, Command{Cmd: CmdConversations, UserID: viewerID})
	if err != nil {
		return nil, err
	}
	convs := make([]db.Conversation, 0, len(resp.Conversations))
	for _, r := range resp.Conversations {
		convs = append(convs, r.Conversation())
	}
	return convs, nil
}

// SendVoice implements voice.Sender. Every failure wraps voice.ErrSendFailed.
func (c *Client) SendVoice(ctx context.Context, msg voice.Outgoing) (string, error) {
	resp, err := c.do(ctx, Command{
		Cmd:            CmdSendVoice,
		UserID:         msg.SenderID,
		ConversationID: msg.ConversationID,
		Voice:          NewVoiceRef(msg),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", voice.ErrSendFailed, err)
	}
	return resp.MessageID, nil
}

// VoiceMessages lists a conversation as seen by viewerID.
func (c *Client) VoiceMessages(ctx context.Context, conversationID, viewerID string, limit int) ([]voice.Message, error) {
	resp, err := c.do(ctx, Command{
		Cmd:            CmdMessages,
		UserID:         viewerID,
		ConversationID: conversationID,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]voice.Message, 0, len(resp.Messages))
	for _, r := range resp.Messages {
		m, err := r.Message()
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", r.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// MarkRead marks the conversation read by userID.
func (c *Client) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	resp, err := c.do(ctx, Command{Cmd: CmdMarkRead, UserID: userID, ConversationID: conversationID})
	if err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, nil
	}
	return *resp.Count, nil
}

// DeleteMessage hides a message from userID.
func (c *Client) DeleteMessage(ctx context.Context, messageID, userID string) error {
	_, err := c.do(ctx, Command{Cmd: CmdDelete, UserID: userID, MessageID: messageID})
	return err
}
