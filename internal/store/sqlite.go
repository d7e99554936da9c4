// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			job_id TEXT NOT NULL DEFAULT '',
			last_message_id TEXT,
			last_message_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (participant_a < participant_b)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_participants_job
			ON conversations(participant_a, participant_b, job_id);

		CREATE INDEX IF NOT EXISTS idx_conversations_participant_a
			ON conversations(participant_a);

		CREATE INDEX IF NOT EXISTS idx_conversations_participant_b
			ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT 'text',
			file_url TEXT,
			file_storage_id TEXT,
			file_name TEXT,
			file_media_type TEXT,
			file_bytes INTEGER,
			is_read INTEGER NOT NULL DEFAULT 0,
			read_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),

			CHECK (message_type IN ('text', 'image', 'document', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread
			ON messages(conversation_id, receiver, is_read);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetOrCreateConversation looks up the conversation for the normalized
// participant pair and job, inserting it when absent. The INSERT uses
// ON CONFLICT DO NOTHING against the uniqueness index, so two concurrent
// callers with the same key both converge on a single row: whichever insert
// loses the race falls through to the SELECT and observes the winner's row.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, userA, userB, jobID string) (*Conversation, bool, error) {
	a, b := NormalizeParticipants(userA, userB)
	if a == b {
		return nil, false, fmt.Errorf("%w: a conversation needs two distinct participants", ErrValidation)
	}

	now := time.Now().UTC()
	id := newID()

	query := `
		INSERT INTO conversations (id, participant_a, participant_b, job_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_a, participant_b, job_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query, id, a, b, jobID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking insert result: %w", err)
	}

	conv, err := s.getConversationByKey(ctx, a, b, jobID)
	if err != nil {
		return nil, false, err
	}

	if inserted > 0 {
		s.logger.Debug("created conversation", "id", conv.ID, "job_id", jobID)
	}
	return conv, inserted > 0, nil
}

const conversationColumns = `id, participant_a, participant_b, job_id, last_message_id, last_message_at, created_at, updated_at`

func (s *SQLiteStore) getConversationByKey(ctx context.Context, a, b, jobID string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = ? AND participant_b = ? AND job_id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, a, b, jobID))
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var lastMessageID, lastMessageAtStr *string
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.JobID,
		&lastMessageID,
		&lastMessageAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if lastMessageID != nil {
		conv.LastMessageID = *lastMessageID
	}
	if lastMessageAtStr != nil {
		conv.LastMessageAt, err = time.Parse(time.RFC3339Nano, *lastMessageAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// ListConversationsForUser returns all conversations where the user is a
// participant, ordered by last activity descending. Conversations that have
// never seen a message sort by creation time instead.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return conversations, nil
}

// TouchConversation updates the conversation's last message pointer.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) TouchConversation(ctx context.Context, conversationID, messageID string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		messageID,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking touch result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveMessage validates and persists a message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	// Default to "text" type if not specified
	msgType := msg.MessageType
	if msgType == "" {
		msgType = MessageTypeText
	}

	var fileURL, fileStorageID, fileName, fileMediaType any
	var fileBytes any
	if msg.File != nil {
		fileURL = msg.File.URL
		fileStorageID = msg.File.StorageID
		fileName = msg.File.OriginalName
		fileMediaType = msg.File.MediaType
		fileBytes = msg.File.ByteSize
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender, receiver, content, message_type,
			file_url, file_storage_id, file_name, file_media_type, file_bytes, is_read, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var readAt any
	if msg.ReadAt != nil {
		readAt = msg.ReadAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Sender,
		msg.Receiver,
		msg.Content,
		msgType,
		fileURL,
		fileStorageID,
		fileName,
		fileMediaType,
		fileBytes,
		boolToInt(msg.IsRead),
		readAt,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "type", msgType)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const messageColumns = `id, conversation_id, sender, receiver, content, message_type,
	file_url, file_storage_id, file_name, file_media_type, file_bytes, is_read, read_at, created_at`

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var fileURL, fileStorageID, fileName, fileMediaType *string
	var fileBytes *int64
	var isRead int
	var readAtStr *string
	var createdAtStr string

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Sender,
		&msg.Receiver,
		&msg.Content,
		&msg.MessageType,
		&fileURL,
		&fileStorageID,
		&fileName,
		&fileMediaType,
		&fileBytes,
		&isRead,
		&readAtStr,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.IsRead = isRead != 0

	if fileURL != nil {
		file := &FileAttachment{URL: *fileURL}
		if fileStorageID != nil {
			file.StorageID = *fileStorageID
		}
		if fileName != nil {
			file.OriginalName = *fileName
		}
		if fileMediaType != nil {
			file.MediaType = *fileMediaType
		}
		if fileBytes != nil {
			file.ByteSize = *fileBytes
		}
		msg.File = file
	}

	if readAtStr != nil {
		readAt, err := time.Parse(time.RFC3339Nano, *readAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing read_at: %w", err)
		}
		msg.ReadAt = &readAt
	}

	msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	return &msg, nil
}

// ConversationMessages returns one page of messages in chronological order.
// Pages are selected newest-first so recent history is cheap to fetch, then
// reversed before returning. Rowid breaks ties between messages sharing a
// created_at value, preserving insertion order under a coarse clock.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT ` + messageColumns + `, rowid AS rid
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, rid DESC
			LIMIT ? OFFSET ?
		)
		ORDER BY created_at ASC, rid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// MarkConversationRead flips every unread message addressed to receiver in the
// conversation to read. Idempotent: already-read messages keep their original
// readAt stamp.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, receiver string) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND receiver = ? AND is_read = 0
	`

	res, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), conversationID, receiver)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking read update result: %w", err)
	}

	if affected > 0 {
		s.logger.Debug("marked messages read",
			"conversation_id", conversationID, "receiver", receiver, "count", affected)
	}
	return affected, nil
}

// MarkMessageRead marks one message read. The update only matches when the
// message is addressed to receiver; marking an already-read message is a no-op
// that returns the stored record unchanged.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, receiver string) (*Message, error) {
	query := `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE id = ? AND receiver = ? AND is_read = 0
	`

	if _, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), messageID, receiver); err != nil {
		return nil, fmt.Errorf("marking message read: %w", err)
	}

	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Receiver != receiver {
		return nil, ErrNotFound
	}

	return msg, nil
}
