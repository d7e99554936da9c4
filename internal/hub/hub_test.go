// ABOUTME: Tests for the realtime hub: room scoping, notifications, presence, typing
// ABOUTME: Uses the mock store so broadcast behavior is exercised without SQLite

package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentlink/chat-gateway/internal/event"
	"github.com/talentlink/chat-gateway/internal/presence"
	"github.com/talentlink/chat-gateway/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.MockStore) {
	t.Helper()

	mock := store.NewMockStore()
	h := New(mock, presence.NewTracker(nil), nil)
	t.Cleanup(h.Close)
	return h, mock
}

func seedConversation(t *testing.T, mock *store.MockStore, userA, userB string) *store.Conversation {
	t.Helper()

	conv, _, err := mock.GetOrCreateConversation(context.Background(), userA, userB, "")
	require.NoError(t, err)
	return conv
}

// expectEvent waits for the next event on the channel and requires its name.
func expectEvent(t *testing.T, ch *Channel, name string) event.Envelope {
	t.Helper()

	select {
	case env, ok := <-ch.Events():
		require.True(t, ok, "channel closed while waiting for %s", name)
		require.Equal(t, name, env.Event)
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", name)
		return event.Envelope{}
	}
}

// expectNoEvent requires that nothing arrives on the channel for a short window.
func expectNoEvent(t *testing.T, ch *Channel) {
	t.Helper()

	select {
	case env, ok := <-ch.Events():
		if ok {
			t.Fatalf("expected no event, got %s", env.Event)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnect_AnnouncesPresenceToOthers(t *testing.T) {
	h, _ := newTestHub(t)

	alice := h.Connect("alice")
	bob := h.Connect("bob")

	// Alice's channel hears about bob coming online; bob hears nothing about
	// himself.
	env := expectEvent(t, alice, event.PresenceChanged)
	var p event.PresencePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, event.StatusOnline, p.Status)

	expectNoEvent(t, bob)
}

func TestSendMessage_BroadcastToRoomIncludingSender(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	expectEvent(t, alice, event.PresenceChanged) // bob online

	h.JoinRoom(alice, conv.ID)
	h.JoinRoom(bob, conv.ID)

	h.SendMessage(context.Background(), alice, event.SendMessagePayload{
		ConversationID: conv.ID,
		Sender:         "alice",
		SenderName:     "Alice",
		Receiver:       "bob",
		Content:        "hi",
	})

	var fromAlice, fromBob event.MessagePayload
	require.NoError(t, expectEvent(t, alice, event.MessageReceived).Decode(&fromAlice))
	require.NoError(t, expectEvent(t, bob, event.MessageReceived).Decode(&fromBob))

	assert.Equal(t, fromAlice.ID, fromBob.ID)
	assert.Equal(t, "hi", fromAlice.Content)
	assert.Equal(t, fromAlice.Content, fromBob.Content)
	assert.Equal(t, conv.ID, fromAlice.ConversationID)
	assert.Equal(t, conv.ID, fromBob.ConversationID)

	// Both were in-room: no notification fires for anyone
	expectNoEvent(t, alice)
	expectNoEvent(t, bob)
}

func TestSendMessage_NotificationForParticipantOutsideRoom(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	carol := h.Connect("carol")
	expectEvent(t, alice, event.PresenceChanged) // bob online
	expectEvent(t, alice, event.PresenceChanged) // carol online
	expectEvent(t, bob, event.PresenceChanged)   // carol online

	// Only the sender joins the room; bob is connected but not viewing
	h.JoinRoom(alice, conv.ID)

	h.SendMessage(context.Background(), alice, event.SendMessagePayload{
		ConversationID: conv.ID,
		Sender:         "alice",
		SenderName:     "Alice",
		Receiver:       "bob",
		Content:        "this is a fairly long message body that gets truncated in the preview",
	})

	expectEvent(t, alice, event.MessageReceived)

	env := expectEvent(t, bob, event.NewMessageNotification)
	var n event.NotificationPayload
	require.NoError(t, env.Decode(&n))
	assert.Equal(t, conv.ID, n.ConversationID)
	assert.Equal(t, "Alice", n.SenderName)
	assert.Equal(t, event.Preview("this is a fairly long message body that gets truncated in the preview"), n.Preview)

	// A non-member never receives messageReceived for the room
	expectNoEvent(t, bob)
	// Carol is not a participant: neither broadcast nor notification
	expectNoEvent(t, carol)
}

func TestSendMessage_PersistsBeforeBroadcast(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	h.JoinRoom(alice, conv.ID)

	h.SendMessage(context.Background(), alice, event.SendMessagePayload{
		ConversationID: conv.ID,
		Sender:         "alice",
		Receiver:       "bob",
		Content:        "durable",
	})

	var received event.MessagePayload
	require.NoError(t, expectEvent(t, alice, event.MessageReceived).Decode(&received))

	// The broadcast id is the stored id
	stored, err := mock.GetMessage(context.Background(), received.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", stored.Content)
	assert.Equal(t, store.MessageTypeText, stored.MessageType)

	// And the conversation's last-message pointer advanced
	got, err := mock.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, received.ID, got.LastMessageID)
}

func TestSendMessage_FailureGoesOnlyToSender(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")
	mock.SaveMessageErr = errors.New("disk full")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	expectEvent(t, alice, event.PresenceChanged)

	h.JoinRoom(alice, conv.ID)
	h.JoinRoom(bob, conv.ID)

	payload := event.SendMessagePayload{
		ConversationID: conv.ID,
		Sender:         "alice",
		Receiver:       "bob",
		Content:        "will not make it",
	}
	h.SendMessage(context.Background(), alice, payload)

	env := expectEvent(t, alice, event.SendFailed)
	var failed event.SendFailedPayload
	require.NoError(t, env.Decode(&failed))
	assert.Equal(t, payload, failed.OriginalMessage)

	// No broadcast reached the room
	expectNoEvent(t, bob)
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	h, _ := newTestHub(t)

	alice := h.Connect("alice")
	h.SendMessage(context.Background(), alice, event.SendMessagePayload{
		ConversationID: "missing",
		Sender:         "alice",
		Receiver:       "bob",
		Content:        "hello?",
	})

	expectEvent(t, alice, event.SendFailed)
}

func TestDisconnect_RemovesFromAllRooms(t *testing.T) {
	h, mock := newTestHub(t)
	convAB := seedConversation(t, mock, "alice", "bob")
	convAC := seedConversation(t, mock, "alice", "carol")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	expectEvent(t, alice, event.PresenceChanged)

	h.JoinRoom(alice, convAB.ID)
	h.JoinRoom(alice, convAC.ID)
	h.JoinRoom(bob, convAB.ID)

	h.Disconnect(alice)
	assert.False(t, h.InRoom(alice, convAB.ID))
	assert.False(t, h.InRoom(alice, convAC.ID))

	// Bob hears alice go offline
	env := expectEvent(t, bob, event.PresenceChanged)
	var p event.PresencePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, event.StatusOffline, p.Status)

	// A subsequent broadcast to the shared room excludes alice's channel
	h.SendMessage(context.Background(), bob, event.SendMessagePayload{
		ConversationID: convAB.ID,
		Sender:         "bob",
		Receiver:       "alice",
		Content:        "you there?",
	})
	expectEvent(t, bob, event.MessageReceived)

	// Alice's channel is closed; nothing more arrives on it
	_, open := <-alice.Events()
	assert.False(t, open)

	// The message survived and history returns it
	messages, err := mock.ConversationMessages(context.Background(), convAB.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "you there?", messages[0].Content)
}

func TestDisconnect_Twice(t *testing.T) {
	h, _ := newTestHub(t)

	alice := h.Connect("alice")
	h.Disconnect(alice)
	h.Disconnect(alice)

	assert.Equal(t, 0, h.ConnectedChannels())
}

func TestTyping_RelayedToRoomExceptSender(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	carol := h.Connect("carol")
	expectEvent(t, alice, event.PresenceChanged)
	expectEvent(t, alice, event.PresenceChanged)
	expectEvent(t, bob, event.PresenceChanged)

	h.JoinRoom(alice, conv.ID)
	h.JoinRoom(bob, conv.ID)

	h.TypingStart(alice, event.TypingPayload{
		ConversationID: conv.ID,
		UserID:         "alice",
		UserName:       "Alice",
	})

	env := expectEvent(t, bob, event.UserTyping)
	var typing event.TypingPayload
	require.NoError(t, env.Decode(&typing))
	assert.Equal(t, "alice", typing.UserID)

	// The sender does not hear its own typing; non-members hear nothing
	expectNoEvent(t, alice)
	expectNoEvent(t, carol)

	h.TypingStop(alice, event.TypingPayload{ConversationID: conv.ID, UserID: "alice"})
	expectEvent(t, bob, event.UserStoppedTyping)
}

func TestTyping_DisconnectProducesNoSyntheticStop(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	expectEvent(t, alice, event.PresenceChanged)

	h.JoinRoom(alice, conv.ID)
	h.JoinRoom(bob, conv.ID)

	h.TypingStart(alice, event.TypingPayload{ConversationID: conv.ID, UserID: "alice"})
	expectEvent(t, bob, event.UserTyping)

	// Alice vanishes mid-type. The hub offers no server-side backstop: bob
	// gets the presence change, never a userStoppedTyping. Clients expire the
	// indicator on their own.
	h.Disconnect(alice)
	expectEvent(t, bob, event.PresenceChanged)
	expectNoEvent(t, bob)
}

func TestLeaveRoom_StopsBroadcast(t *testing.T) {
	h, mock := newTestHub(t)
	conv := seedConversation(t, mock, "alice", "bob")

	alice := h.Connect("alice")
	bob := h.Connect("bob")
	expectEvent(t, alice, event.PresenceChanged)

	h.JoinRoom(alice, conv.ID)
	h.JoinRoom(bob, conv.ID)
	h.LeaveRoom(bob, conv.ID)

	// Leaving twice is a no-op
	h.LeaveRoom(bob, conv.ID)

	h.SendMessage(context.Background(), alice, event.SendMessagePayload{
		ConversationID: conv.ID,
		Sender:         "alice",
		Receiver:       "bob",
		Content:        "hi",
	})

	expectEvent(t, alice, event.MessageReceived)

	// Bob left the room but is still a connected participant: notification only
	expectEvent(t, bob, event.NewMessageNotification)
	expectNoEvent(t, bob)
}
