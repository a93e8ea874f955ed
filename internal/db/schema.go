package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participantOne TEXT NOT NULL,
		participantTwo TEXT NOT NULL,
		updatedAt REAL NOT NULL,
		lastMessageId TEXT,
		createdAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS conversations_by_participants
		ON conversations(participantOne, participantTwo);
	-- One conversation per unordered pair.
	CREATE UNIQUE INDEX IF NOT EXISTS conversations_by_pair
		ON conversations(min(participantOne, participantTwo), max(participantOne, participantTwo));

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversationId TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		senderId TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'text',
		mediaUrl TEXT,
		createdAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_by_conversation ON messages(conversationId, createdAt);

	CREATE TABLE IF NOT EXISTS media (
		messageId TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		type TEXT NOT NULL,
		size INTEGER NOT NULL,
		mimeType TEXT NOT NULL,
		duration REAL,
		waveform BLOB
	);

	CREATE TABLE IF NOT EXISTS message_reads (
		messageId TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		userId TEXT NOT NULL,
		readAt REAL NOT NULL,
		PRIMARY KEY (messageId, userId)
	);

	CREATE TABLE IF NOT EXISTS message_deletions (
		messageId TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		userId TEXT NOT NULL,
		PRIMARY KEY (messageId, userId)
	);
`

// encodeWaveform stores bars as little-endian float32 so they round-trip
// bit-exactly.
func encodeWaveform(bars []float32) []byte {
	buf := make([]byte, 4*len(bars))
	for i, v := range bars {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeWaveform(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("waveform blob has %d bytes", len(blob))
	}
	bars := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, bars); err != nil {
		return nil, fmt.Errorf("read waveform: %w", err)
	}
	return bars, nil
}
