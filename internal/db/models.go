// Package db stores conversations and voice messages in SQLite.
package db

import "time"

// Conversation is a two-party chat as seen by one participant.
type Conversation struct {
	ID             string
	ParticipantOne string
	ParticipantTwo string
	UpdatedAt      time.Time
	LastMessageID  string
	// Peer is the participant that is not the viewer.
	Peer string
	// Unread counts messages from Peer the viewer has not read.
	Unread int
	// LastMessageAt is the newest visible message, or the creation time.
	LastMessageAt time.Time
}

// Message types stored in messages.type.
const (
	TypeText  = "text"
	TypeAudio = "audio"
)

// DefaultMessageLimit caps VoiceMessages when no limit is given.
const DefaultMessageLimit = 50
