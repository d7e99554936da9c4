// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	convs     map[string]*Conversation // keyed by conversation ID
	convIndex map[string]string        // keyed by "a|b|job" -> conversation ID
	messages  map[string][]*Message    // keyed by conversation ID, insertion order
	byMsgID   map[string]*Message      // keyed by message ID

	// SaveMessageErr, when set, is returned by SaveMessage. Used to exercise
	// failure paths in hub tests.
	SaveMessageErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		convs:     make(map[string]*Conversation),
		convIndex: make(map[string]string),
		messages:  make(map[string][]*Message),
		byMsgID:   make(map[string]*Message),
	}
}

func convKey(a, b, jobID string) string {
	return a + "|" + b + "|" + jobID
}

// GetOrCreateConversation returns the conversation for the key, creating it if absent.
func (m *MockStore) GetOrCreateConversation(ctx context.Context, userA, userB, jobID string) (*Conversation, bool, error) {
	a, b := NormalizeParticipants(userA, userB)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.convIndex[convKey(a, b, jobID)]; ok {
		c := *m.convs[id]
		return &c, false, nil
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:           newID(),
		ParticipantA: a,
		ParticipantB: b,
		JobID:        jobID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.convs[conv.ID] = conv
	m.convIndex[convKey(a, b, jobID)] = conv.ID

	c := *conv
	return &c, true, nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

// ListConversationsForUser returns the user's conversations, last activity first.
func (m *MockStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, conv := range m.convs {
		if conv.HasParticipant(userID) {
			c := *conv
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].LastMessageAt, result[j].LastMessageAt
		if ti.IsZero() {
			ti = result[i].CreatedAt
		}
		if tj.IsZero() {
			tj = result[j].CreatedAt
		}
		return ti.After(tj)
	})

	return result, nil
}

// TouchConversation updates the last message pointer.
func (m *MockStore) TouchConversation(ctx context.Context, conversationID, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessageID = messageID
	conv.LastMessageAt = at
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveMessage validates and stores a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	stored := *msg
	if stored.MessageType == "" {
		stored.MessageType = MessageTypeText
	}
	m.messages[stored.ConversationID] = append(m.messages[stored.ConversationID], &stored)
	m.byMsgID[stored.ID] = &stored
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.byMsgID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *msg
	return &c, nil
}

// ConversationMessages returns one chronological page.
func (m *MockStore) ConversationMessages(ctx context.Context, conversationID string, page, pageSize int) ([]*Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	// Page the log newest-first, then return the slice oldest-first, matching
	// the SQLite implementation.
	end := len(all) - (page-1)*pageSize
	if end <= 0 {
		return nil, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	result := make([]*Message, 0, end-start)
	for _, msg := range all[start:end] {
		c := *msg
		result = append(result, &c)
	}
	return result, nil
}

// MarkConversationRead flips unread messages addressed to receiver.
func (m *MockStore) MarkConversationRead(ctx context.Context, conversationID, receiver string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var count int64
	for _, msg := range m.messages[conversationID] {
		if msg.Receiver == receiver && !msg.IsRead {
			msg.IsRead = true
			readAt := now
			msg.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

// MarkMessageRead marks one message read if addressed to receiver.
func (m *MockStore) MarkMessageRead(ctx context.Context, messageID, receiver string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byMsgID[messageID]
	if !ok || msg.Receiver != receiver {
		return nil, ErrNotFound
	}
	if !msg.IsRead {
		msg.IsRead = true
		now := time.Now().UTC()
		msg.ReadAt = &now
	}
	c := *msg
	return &c, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
