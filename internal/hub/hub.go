// ABOUTME: Realtime broadcast hub: channel registry, per-conversation rooms, event fan-out
// ABOUTME: Persists messages before broadcasting so every delivered event reflects a durable fact

package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentlink/chat-gateway/internal/event"
	"github.com/talentlink/chat-gateway/internal/presence"
	"github.com/talentlink/chat-gateway/internal/store"
)

// MessageStore defines what the hub needs from storage.
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	TouchConversation(ctx context.Context, conversationID, messageID string, at time.Time) error
}

// Hub manages one channel per connected client, organizes channels into
// per-conversation rooms, and relays message, notification, presence, and
// typing events. It is constructed once at startup and passed by reference to
// whatever needs to publish; there is no ambient global.
//
// A single mutex guards the channel registry and room membership, so no
// handler observes a torn intermediate state of either. Store I/O happens
// outside the lock: a send is not atomic with respect to other room activity,
// and clients de-duplicate by message id.
type Hub struct {
	store    MessageStore
	presence *presence.Tracker
	logger   *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel            // channel ID -> channel
	rooms    map[string]map[string]*Channel // conversation ID -> channel ID -> channel
	joined   map[string]map[string]bool     // channel ID -> conversation IDs joined
}

// New creates a hub. Pass nil logger for default.
func New(messageStore MessageStore, tracker *presence.Tracker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:    messageStore,
		presence: tracker,
		logger:   logger.With("component", "hub"),
		channels: make(map[string]*Channel),
		rooms:    make(map[string]map[string]*Channel),
		joined:   make(map[string]map[string]bool),
	}
}

// Connect opens a channel for the user, announces presence, and broadcasts
// presenceChanged(online) to every other connected channel.
func (h *Hub) Connect(userID string) *Channel {
	ch := newChannel(userID)

	h.mu.Lock()
	h.channels[ch.id] = ch
	h.mu.Unlock()

	displaced := h.presence.Announce(userID, ch.id)
	if displaced != "" {
		h.logger.Debug("presence handle displaced", "user_id", userID, "old_handle", displaced)
	}

	h.broadcastExcept(ch.id, event.MustEnvelope(event.PresenceChanged, event.PresencePayload{
		UserID: userID,
		Status: event.StatusOnline,
	}))

	h.logger.Debug("channel connected", "channel_id", ch.id, "user_id", userID)
	return ch
}

// Disconnect removes the channel from every room it joined, forgets its
// presence handle, and closes its outbound stream. Safe to call more than
// once; later calls are no-ops.
func (h *Hub) Disconnect(ch *Channel) {
	h.mu.Lock()
	if _, ok := h.channels[ch.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.channels, ch.id)
	for convID := range h.joined[ch.id] {
		h.removeFromRoomLocked(ch, convID)
	}
	delete(h.joined, ch.id)
	h.mu.Unlock()

	if userID, ok := h.presence.Forget(ch.id); ok {
		h.broadcastExcept(ch.id, event.MustEnvelope(event.PresenceChanged, event.PresencePayload{
			UserID: userID,
			Status: event.StatusOffline,
		}))
	}

	ch.close()
	h.logger.Debug("channel disconnected", "channel_id", ch.id, "user_id", ch.userID)
}

// JoinRoom adds the channel to the conversation's room. A channel may belong
// to any number of rooms at once.
func (h *Hub) JoinRoom(ch *Channel, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[ch.id]; !ok {
		return
	}
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*Channel)
	}
	h.rooms[conversationID][ch.id] = ch

	if _, ok := h.joined[ch.id]; !ok {
		h.joined[ch.id] = make(map[string]bool)
	}
	h.joined[ch.id][conversationID] = true

	h.logger.Debug("channel joined room", "channel_id", ch.id, "conversation_id", conversationID)
}

// LeaveRoom removes the channel's room membership. No-op if absent.
func (h *Hub) LeaveRoom(ch *Channel, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(ch, conversationID)
	if joined, ok := h.joined[ch.id]; ok {
		delete(joined, conversationID)
	}
}

func (h *Hub) removeFromRoomLocked(ch *Channel, conversationID string) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, ch.id)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// InRoom reports whether the channel is currently a member of the
// conversation's room.
func (h *Hub) InRoom(ch *Channel, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return false
	}
	_, ok = room[ch.id]
	return ok
}

// SendMessage persists the message, then broadcasts messageReceived to every
// channel in the conversation's room (the sender's included, so its UI
// confirms delivery through the same path as remote delivery). Participants
// whose channels are not in the room get a newMessageNotification instead.
//
// The message is durable before any event leaves the hub: the broadcast is a
// notification of a stored fact, and a client that misses it recovers the
// message from a history fetch. On failure only the originating channel hears
// about it, as a sendFailed carrying the original payload.
func (h *Hub) SendMessage(ctx context.Context, ch *Channel, payload event.SendMessagePayload) {
	conv, err := h.store.GetConversation(ctx, payload.ConversationID)
	if err != nil {
		h.sendFailed(ch, payload, "conversation not found")
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: payload.ConversationID,
		Sender:         payload.Sender,
		Receiver:       payload.Receiver,
		Content:        payload.Content,
		MessageType:    payload.MessageType,
		CreatedAt:      time.Now().UTC(),
	}
	if msg.MessageType == "" {
		msg.MessageType = store.MessageTypeText
	}
	if payload.File != nil {
		msg.File = &store.FileAttachment{
			URL:          payload.File.URL,
			StorageID:    payload.File.StorageID,
			OriginalName: payload.File.OriginalName,
			MediaType:    payload.File.MediaType,
			ByteSize:     payload.File.ByteSize,
		}
	}

	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.logger.Error("failed to persist message",
			"conversation_id", payload.ConversationID, "error", err)
		h.sendFailed(ch, payload, "failed to send message")
		return
	}
	if err := h.store.TouchConversation(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		// The message itself is durable; the conversation ordering hint is not.
		h.logger.Warn("failed to touch conversation",
			"conversation_id", conv.ID, "error", err)
	}

	received := event.MustEnvelope(event.MessageReceived, event.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		SenderName:     payload.SenderName,
		Receiver:       msg.Receiver,
		Content:        msg.Content,
		File:           payload.File,
		MessageType:    msg.MessageType,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
	})
	notification := event.MustEnvelope(event.NewMessageNotification, event.NotificationPayload{
		ConversationID: msg.ConversationID,
		SenderName:     payload.SenderName,
		Preview:        event.Preview(msg.Content),
	})

	h.mu.RLock()
	room := h.rooms[conv.ID]
	members := make([]*Channel, 0, len(room))
	for _, member := range room {
		members = append(members, member)
	}
	var outside []*Channel
	for _, other := range h.channels {
		if other.id == ch.id {
			continue // the sender never notifies itself
		}
		if _, inRoom := room[other.id]; inRoom {
			continue
		}
		if conv.HasParticipant(other.userID) {
			outside = append(outside, other)
		}
	}
	h.mu.RUnlock()

	for _, member := range members {
		if !member.trySend(received) {
			h.logger.Debug("dropped broadcast for slow channel",
				"channel_id", member.id, "message_id", msg.ID)
		}
	}
	for _, other := range outside {
		if !other.trySend(notification) {
			h.logger.Debug("dropped notification for slow channel",
				"channel_id", other.id, "message_id", msg.ID)
		}
	}

	h.logger.Debug("message broadcast",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"room_size", len(members),
		"notified", len(outside))
}

// TypingStart relays userTyping to every other member of the room.
func (h *Hub) TypingStart(ch *Channel, payload event.TypingPayload) {
	h.relayTyping(ch, event.UserTyping, payload)
}

// TypingStop relays userStoppedTyping to every other member of the room.
// Stop is entirely client-driven: if a typing client disconnects without
// sending it, receivers rely on their own local expiry.
func (h *Hub) TypingStop(ch *Channel, payload event.TypingPayload) {
	h.relayTyping(ch, event.UserStoppedTyping, payload)
}

func (h *Hub) relayTyping(ch *Channel, name string, payload event.TypingPayload) {
	env := event.MustEnvelope(name, event.TypingPayload{
		ConversationID: payload.ConversationID,
		UserID:         payload.UserID,
		UserName:       payload.UserName,
	})

	h.mu.RLock()
	room := h.rooms[payload.ConversationID]
	targets := make([]*Channel, 0, len(room))
	for _, member := range room {
		if member.id == ch.id {
			continue
		}
		targets = append(targets, member)
	}
	h.mu.RUnlock()

	for _, member := range targets {
		member.trySend(env)
	}
}

// broadcastExcept sends an event to every connected channel except one.
func (h *Hub) broadcastExcept(exceptID string, env event.Envelope) {
	h.mu.RLock()
	targets := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		if ch.id == exceptID {
			continue
		}
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		ch.trySend(env)
	}
}

func (h *Hub) sendFailed(ch *Channel, original event.SendMessagePayload, msg string) {
	ch.trySend(event.MustEnvelope(event.SendFailed, event.SendFailedPayload{
		Error:           msg,
		OriginalMessage: original,
	}))
}

// RoomSize returns the number of channels currently in a conversation's room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// ConnectedChannels returns the number of live channels.
func (h *Hub) ConnectedChannels() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Close disconnects every channel. Used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	channels := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		h.Disconnect(ch)
	}
	h.logger.Debug("hub closed")
}
