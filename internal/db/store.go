package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwulff/voicenote/internal/voice"
)

// ErrNotFound is returned for unknown conversations and messages.
var ErrNotFound = errors.New("not found")

// Store provides access to the voicenote SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database read-write with WAL, creating the schema if needed.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; also keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// OpenReadOnly opens an existing database in read-only mode with WAL.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Conversation returns the conversation between two users, creating it when
// none exists. Participant order does not matter.
func (s *Store) Conversation(ctx context.Context, userID, peerID string) (*Conversation, error) {
	if userID == "" || peerID == "" {
		return nil, errors.New("conversation needs two participants")
	}

	id, err := s.conversationID(ctx, userID, peerID)
	if errors.Is(err, sql.ErrNoRows) {
		// A concurrent caller may create the pair first; the unique index
		// turns our insert into a no-op and the reselect finds theirs.
		now := unixTime(s.now())
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, participantOne, participantTwo, updatedAt, createdAt)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, uuid.NewString(), userID, peerID, now, now); err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		id, err = s.conversationID(ctx, userID, peerID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	return s.conversation(ctx, id, userID)
}

func (s *Store) conversationID(ctx context.Context, a, b string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		WHERE min(participantOne, participantTwo) = min(?, ?)
		  AND max(participantOne, participantTwo) = max(?, ?)
	`, a, b, a, b).Scan(&id)
	return id, err
}

func (s *Store) conversation(ctx context.Context, id, viewerID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, conversationQuery+` WHERE c.id = ?`, viewerID, viewerID, viewerID, viewerID, id)
	c, err := scanConversation(row, viewerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

// Conversations lists the viewer's conversations, most recent first.
func (s *Store) Conversations(ctx context.Context, viewerID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, conversationQuery+`
		WHERE c.participantOne = ? OR c.participantTwo = ?
		ORDER BY lastAt DESC
	`, viewerID, viewerID, viewerID, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows, viewerID)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// conversationQuery takes the viewer ID four times before any WHERE args.
const conversationQuery = `
	SELECT c.id, c.participantOne, c.participantTwo, c.updatedAt, c.lastMessageId,
		COALESCE((
			SELECT MAX(m.createdAt) FROM messages m
			WHERE m.conversationId = c.id
			  AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.messageId = m.id AND d.userId = ?)
		), c.createdAt) AS lastAt,
		(
			SELECT COUNT(*) FROM messages m
			WHERE m.conversationId = c.id AND m.senderId != ?
			  AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.messageId = m.id AND r.userId = ?)
			  AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.messageId = m.id AND d.userId = ?)
		) AS unread
	FROM conversations c`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner, viewerID string) (*Conversation, error) {
	var c Conversation
	var updatedAt, lastAt float64
	var lastMessageID sql.NullString
	if err := row.Scan(&c.ID, &c.ParticipantOne, &c.ParticipantTwo, &updatedAt,
		&lastMessageID, &lastAt, &c.Unread); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.UpdatedAt = timeFromUnix(updatedAt)
	c.LastMessageAt = timeFromUnix(lastAt)
	if lastMessageID.Valid {
		c.LastMessageID = lastMessageID.String
	}
	c.Peer = c.ParticipantTwo
	if c.ParticipantTwo == viewerID {
		c.Peer = c.ParticipantOne
	}
	return &c, nil
}

// SendVoice stores a voice message, marks it read by its sender and makes it
// the conversation's last message. All failures wrap voice.ErrSendFailed.
func (s *Store) SendVoice(ctx context.Context, msg voice.Outgoing) (string, error) {
	if msg.Clip.IsZero() {
		return "", fmt.Errorf("%w: empty clip", voice.ErrSendFailed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin: %w", voice.ErrSendFailed, err)
	}
	defer tx.Rollback()

	var participantOne, participantTwo string
	if err := tx.QueryRowContext(ctx, `
		SELECT participantOne, participantTwo FROM conversations WHERE id = ?
	`, msg.ConversationID).Scan(&participantOne, &participantTwo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: conversation %s: %w", voice.ErrSendFailed, msg.ConversationID, ErrNotFound)
		}
		return "", fmt.Errorf("%w: lookup conversation: %w", voice.ErrSendFailed, err)
	}
	if msg.SenderID != participantOne && msg.SenderID != participantTwo {
		return "", fmt.Errorf("%w: %s is not in conversation %s", voice.ErrSendFailed, msg.SenderID, msg.ConversationID)
	}

	id := uuid.NewString()
	now := unixTime(s.now())
	clip := msg.Clip

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversationId, senderId, type, mediaUrl, createdAt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, msg.ConversationID, msg.SenderID, TypeAudio, clip.AudioURI(), now); err != nil {
		return "", fmt.Errorf("%w: insert message: %w", voice.ErrSendFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO media (messageId, url, type, size, mimeType, duration, waveform)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, clip.AudioURI(), TypeAudio, msg.Size, msg.MimeType, clip.DurationSeconds(),
		encodeWaveform(clip.Waveform())); err != nil {
		return "", fmt.Errorf("%w: insert media: %w", voice.ErrSendFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (messageId, userId, readAt) VALUES (?, ?, ?)
	`, id, msg.SenderID, now); err != nil {
		return "", fmt.Errorf("%w: insert read: %w", voice.ErrSendFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET lastMessageId = ?, updatedAt = ? WHERE id = ?
	`, id, now, msg.ConversationID); err != nil {
		return "", fmt.Errorf("%w: update conversation: %w", voice.ErrSendFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit: %w", voice.ErrSendFailed, err)
	}
	return id, nil
}

const messageColumns = `
	SELECT m.id, m.conversationId, m.senderId, m.createdAt,
		md.url, md.mimeType, md.size, COALESCE(md.duration, 0), md.waveform,
		EXISTS (SELECT 1 FROM message_reads r WHERE r.messageId = m.id AND r.userId != m.senderId)
	FROM messages m
	JOIN media md ON md.messageId = m.id`

// VoiceMessages returns the newest voice messages of a conversation visible to
// the viewer, oldest first. limit <= 0 means DefaultMessageLimit.
func (s *Store) VoiceMessages(ctx context.Context, conversationID, viewerID string, limit int) ([]voice.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	rows, err := s.db.QueryContext(ctx, messageColumns+`
		WHERE m.conversationId = ? AND m.type = ?
		  AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.messageId = m.id AND d.userId = ?)
		ORDER BY m.createdAt DESC, m.rowid DESC
		LIMIT ?
	`, conversationID, TypeAudio, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []voice.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// VoiceMessage returns one voice message by ID.
func (s *Store) VoiceMessage(ctx context.Context, id string) (voice.Message, error) {
	row := s.db.QueryRowContext(ctx, messageColumns+` WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, err
}

func scanMessage(row scanner) (voice.Message, error) {
	var m voice.Message
	var createdAt, duration float64
	var uri string
	var blob []byte
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &createdAt,
		&uri, &m.MimeType, &m.Size, &duration, &blob, &m.Read); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voice.Message{}, err
		}
		return voice.Message{}, fmt.Errorf("scan message: %w", err)
	}
	bars, err := decodeWaveform(blob)
	if err != nil {
		return voice.Message{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	clip, err := voice.NewClip(uri, bars, duration)
	if err != nil {
		return voice.Message{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	m.Clip = clip
	m.CreatedAt = timeFromUnix(createdAt)
	return m, nil
}

// MarkRead records that userID has read every visible message of the
// conversation. It returns the number of newly read messages.
func (s *Store) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (messageId, userId, readAt)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.conversationId = ?
		  AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.messageId = m.id AND d.userId = ?)
	`, userID, unixTime(s.now()), conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return int(n), nil
}

// DeleteMessage hides a message from userID. Other participants still see it.
func (s *Store) DeleteMessage(ctx context.Context, messageID, userID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = ?)`,
		messageID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if !exists {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_deletions (messageId, userId) VALUES (?, ?)
	`, messageID, userID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func unixTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
