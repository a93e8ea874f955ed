// Package daemon provides the server, client and protocol types for talking to
// voicenoted over a Unix socket using NDJSON.
package daemon

import (
	"time"

	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/voice"
)

// Commands understood by the daemon.
const (
	CmdConversation  = "conversation"
	CmdConversations = "conversations"
	CmdSendVoice     = "send_voice"
	CmdMessages      = "messages"
	CmdMarkRead      = "mark_read"
	CmdDelete        = "delete"
	CmdSubscribe     = "subscribe"
)

// Events streamed to subscribers.
const (
	EventVoiceMessage = "voice_message"
	EventRead         = "read"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd            string    `json:"cmd"`
	UserID         string    `json:"userId,omitempty"`
	PeerID         string    `json:"peerId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Voice          *VoiceRef `json:"voice,omitempty"`
	Limit          int       `json:"limit,omitempty"`
	Events         []string  `json:"events,omitempty"`
}

// VoiceRef is a voice clip on the wire. Waveform values survive the JSON
// round trip exactly as float32.
type VoiceRef struct {
	AudioURI        string    `json:"audioUri"`
	Waveform        []float32 `json:"waveform"`
	DurationSeconds float64   `json:"durationSeconds"`
	MimeType        string    `json:"mimeType,omitempty"`
	Size            int64     `json:"size,omitempty"`
}

// MessageRef is a stored voice message on the wire.
type MessageRef struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	SenderID       string   `json:"senderId"`
	Voice          VoiceRef `json:"voice"`
	CreatedAt      float64  `json:"createdAt"`
	Read           bool     `json:"read"`
}

// ConversationRef is a conversation as seen by the requesting user.
type ConversationRef struct {
	ID             string  `json:"id"`
	ParticipantOne string  `json:"participantOne"`
	ParticipantTwo string  `json:"participantTwo"`
	Peer           string  `json:"peer"`
	Unread         int     `json:"unread"`
	LastMessageID  string  `json:"lastMessageId,omitempty"`
	LastMessageAt  float64 `json:"lastMessageAt"`
	UpdatedAt      float64 `json:"updatedAt"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK            bool              `json:"ok"`
	Error         string            `json:"error,omitempty"`
	Retryable     *bool             `json:"retryable,omitempty"`
	MessageID     string            `json:"messageId,omitempty"`
	Conversation  *ConversationRef  `json:"conversation,omitempty"`
	Conversations []ConversationRef `json:"conversations,omitempty"`
	Messages      []MessageRef      `json:"messages,omitempty"`
	Count         *int              `json:"count,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event          string      `json:"event"`
	ConversationID string      `json:"conversationId,omitempty"`
	UserID         string      `json:"userId,omitempty"`
	Message        *MessageRef `json:"message,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building responses.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to an int value.
func IntPtr(n int) *int { return &n }

// NewVoiceRef converts an outgoing clip.
func NewVoiceRef(msg voice.Outgoing) *VoiceRef {
	return &VoiceRef{
		AudioURI:        msg.Clip.AudioURI(),
		Waveform:        msg.Clip.Waveform(),
		DurationSeconds: msg.Clip.DurationSeconds(),
		MimeType:        msg.MimeType,
		Size:            msg.Size,
	}
}

// Clip validates the wire clip.
func (v VoiceRef) Clip() (voice.Clip, error) {
	return voice.NewClip(v.AudioURI, v.Waveform, v.DurationSeconds)
}

// NewMessageRef converts a stored message.
func NewMessageRef(m voice.Message) MessageRef {
	return MessageRef{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Voice: VoiceRef{
			AudioURI:        m.Clip.AudioURI(),
			Waveform:        m.Clip.Waveform(),
			DurationSeconds: m.Clip.DurationSeconds(),
			MimeType:        m.MimeType,
			Size:            m.Size,
		},
		CreatedAt: unixTime(m.CreatedAt),
		Read:      m.Read,
	}
}

// Message converts back to the domain type.
func (r MessageRef) Message() (voice.Message, error) {
	clip, err := r.Voice.Clip()
	if err != nil {
		return voice.Message{}, err
	}
	return voice.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Clip:           clip,
		MimeType:       r.Voice.MimeType,
		Size:           r.Voice.Size,
		CreatedAt:      timeFromUnix(r.CreatedAt),
		Read:           r.Read,
	}, nil
}

// NewConversationRef converts a stored conversation.
func NewConversationRef(c db.Conversation) ConversationRef {
	return ConversationRef{
		ID:             c.ID,
		ParticipantOne: c.ParticipantOne,
		ParticipantTwo: c.ParticipantTwo,
		Peer:           c.Peer,
		Unread:         c.Unread,
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  unixTime(c.LastMessageAt),
		UpdatedAt:      unixTime(c.UpdatedAt),
	}
}

// Conversation converts back to the store type.
func (r ConversationRef) Conversation() db.Conversation {
	return db.Conversation{
		ID:             r.ID,
		ParticipantOne: r.ParticipantOne,
		ParticipantTwo: r.ParticipantTwo,
		Peer:           r.Peer,
		Unread:         r.Unread,
		LastMessageID:  r.LastMessageID,
		LastMessageAt:  timeFromUnix(r.LastMessageAt),
		UpdatedAt:      timeFromUnix(r.UpdatedAt),
	}
}

func unixTime(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
