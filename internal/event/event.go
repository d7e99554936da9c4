// ABOUTME: Wire protocol for the realtime channel: envelopes and payload types
// ABOUTME: Event names and JSON shapes match what the browser client speaks

package event

import (
	"encoding/json"
	"fmt"
)

// Client-to-hub event names.
const (
	Identify    = "identify"
	JoinRoom    = "joinRoom"
	LeaveRoom   = "leaveRoom"
	SendMessage = "sendMessage"
	TypingStart = "typingStart"
	TypingStop  = "typingStop"
)

// Hub-to-client event names.
const (
	PresenceChanged        = "presenceChanged"
	MessageReceived        = "messageReceived"
	NewMessageNotification = "newMessageNotification"
	UserTyping             = "userTyping"
	UserStoppedTyping      = "userStoppedTyping"
	SendFailed             = "sendFailed"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// previewLength is how many characters of content a notification carries.
const previewLength = 50

// Envelope wraps every event crossing the channel in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for the named event.
func NewEnvelope(name string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", name, err)
	}
	return Envelope{Event: name, Data: raw}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal.
// Panics otherwise; used for hub-originated events built from plain structs.
func MustEnvelope(name string, data any) Envelope {
	env, err := NewEnvelope(name, data)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope's data into out.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s event carries no data", e.Event)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Event, err)
	}
	return nil
}

// IdentifyPayload is sent by the client once, immediately after connecting.
type IdentifyPayload struct {
	UserID string `json:"userId"`
}

// RoomPayload is the body of joinRoom / leaveRoom.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// FilePayload describes an attachment already placed in the blob store.
type FilePayload struct {
	URL          string `json:"url"`
	StorageID    string `json:"storageId"`
	OriginalName string `json:"originalName"`
	MediaType    string `json:"mediaType"`
	ByteSize     int64  `json:"byteSize"`
}

// SendMessagePayload is the client's sendMessage body.
type SendMessagePayload struct {
	ConversationID string       `json:"conversationId"`
	Sender         string       `json:"sender"`
	SenderName     string       `json:"senderName,omitempty"`
	Receiver       string       `json:"receiver"`
	Content        string       `json:"content,omitempty"`
	File           *FilePayload `json:"file,omitempty"`
	MessageType    string       `json:"messageType,omitempty"`
}

// MessagePayload is the full message broadcast to a room, including the
// identifier and timestamp assigned at persistence time.
type MessagePayload struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Sender         string       `json:"sender"`
	SenderName     string       `json:"senderName,omitempty"`
	Receiver       string       `json:"receiver"`
	Content        string       `json:"content,omitempty"`
	File           *FilePayload `json:"file,omitempty"`
	MessageType    string       `json:"messageType"`
	CreatedAt      string       `json:"createdAt"`
}

// PresencePayload announces a user going online or offline.
type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// NotificationPayload is the lighter signal sent to participants who are not
// viewing the conversation.
type NotificationPayload struct {
	ConversationID string `json:"conversationId"`
	SenderName     string `json:"senderName"`
	Preview        string `json:"preview"`
}

// TypingPayload is the body of typingStart/typingStop and their relayed forms.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

// SendFailedPayload carries the original message back to the sender so the
// client can retry or surface an error.
type SendFailedPayload struct {
	Error           string             `json:"error"`
	OriginalMessage SendMessagePayload `json:"originalMessage"`
}

// Preview truncates content for a notification: the first 50 characters plus
// an ellipsis.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) > previewLength {
		runes = runes[:previewLength]
	}
	return string(runes) + "..."
}
