// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// newID generates an opaque identifier for stored entities.
func newID() string {
	return uuid.New().String()
}

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a message fails invariant checks before persistence
var ErrValidation = errors.New("validation failed")

// MaxContentLength is the maximum number of characters allowed in message content
const MaxContentLength = 2000

// MessageType constants for message types
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeDocument = "document"
	MessageTypeSystem   = "system"
)

// Conversation pairs two participants, optionally scoped to a job.
// At most one conversation exists per (participant pair, job); the pair is
// order-insensitive and an absent job counts as its own scoping value.
type Conversation struct {
	ID            string
	ParticipantA  string // lexicographically smaller participant
	ParticipantB  string // lexicographically larger participant
	JobID         string // empty when the conversation is not scoped to a job
	LastMessageID string
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Participants returns both participant identities.
func (c *Conversation) Participants() [2]string {
	return [2]string{c.ParticipantA, c.ParticipantB}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the participant that is not userID.
// Returns an empty string if userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// NormalizeParticipants orders a participant pair so the smaller identity
// comes first. The conversation uniqueness key is built on this ordering.
func NormalizeParticipants(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// FileAttachment describes a file stored in the external blob store.
type FileAttachment struct {
	URL          string
	StorageID    string
	OriginalName string
	MediaType    string
	ByteSize     int64
}

// Message is one entry in a conversation's ordered log.
// Immutable once stored except for the isRead/readAt transition.
type Message struct {
	ID             string
	ConversationID string
	Sender         string
	Receiver       string
	Content        string
	MessageType    string
	File           *FileAttachment
	IsRead         bool
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// Validate checks the message invariants: a conversation, sender and receiver
// must be set, content or a file must be present (never neither), and content
// may not exceed MaxContentLength characters.
func (m *Message) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrValidation)
	}
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if m.Receiver == "" {
		return fmt.Errorf("%w: receiver is required", ErrValidation)
	}
	if m.Content == "" && m.File == nil {
		return fmt.Errorf("%w: content or file is required", ErrValidation)
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return nil
}

// Store defines persistence operations for conversations and messages.
type Store interface {
	// GetOrCreateConversation looks up the conversation for the given
	// participant pair and optional job, creating it if absent. Atomic under
	// concurrent callers: the uniqueness key is enforced by the storage layer,
	// and the second caller observes the first's result. The returned bool is
	// true when a new conversation was created.
	GetOrCreateConversation(ctx context.Context, userA, userB, jobID string) (*Conversation, bool, error)

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversationsForUser returns every conversation the user participates
	// in, ordered by last activity descending.
	ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error)

	// TouchConversation records the latest message on a conversation.
	// Called once per persisted message.
	TouchConversation(ctx context.Context, conversationID, messageID string, at time.Time) error

	// SaveMessage validates and persists a message. This is the only path that
	// produces a durable message.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID. Returns ErrNotFound if absent.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ConversationMessages returns one page of a conversation's log in
	// chronological order (oldest first). Pages are selected newest-first for
	// efficient retrieval, then reversed. Page numbering starts at 1.
	ConversationMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error)

	// MarkConversationRead flips isRead false->true and stamps readAt for every
	// unread message addressed to receiver in the conversation. Idempotent.
	// Returns the number of messages that changed state.
	MarkConversationRead(ctx context.Context, conversationID, receiver string) (int64, error)

	// MarkMessageRead marks a single message read. Returns ErrNotFound when the
	// message doesn't exist or is not addressed to receiver.
	MarkMessageRead(ctx context.Context, messageID, receiver string) (*Message, error)

	// Close releases the underlying storage.
	Close() error
}
