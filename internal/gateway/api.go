// ABOUTME: REST handlers for persisted conversation and message state
// ABOUTME: Provides conversation creation/listing, message history paging, and read receipts

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/talentlink/chat-gateway/internal/auth"
	"github.com/talentlink/chat-gateway/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	ParticipantID string `json:"participantId"`
	JobID         string `json:"jobId,omitempty"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID            string           `json:"id"`
	Participants  [2]string        `json:"participants"`
	JobID         string           `json:"jobId,omitempty"`
	LastMessage   *MessageResponse `json:"lastMessage,omitempty"`
	LastMessageAt string           `json:"lastMessageAt,omitempty"`
	CreatedAt     string           `json:"createdAt"`
}

// FileResponse is the JSON shape of a file attachment.
type FileResponse struct {
	URL          string `json:"url"`
	StorageID    string `json:"storageId"`
	OriginalName string `json:"originalName"`
	MediaType    string `json:"mediaType"`
	ByteSize     int64  `json:"byteSize"`
}

// MessageResponse is the JSON shape of a message.
type MessageResponse struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Sender         string        `json:"sender"`
	Receiver       string        `json:"receiver"`
	Content        string        `json:"content,omitempty"`
	MessageType    string        `json:"messageType"`
	File           *FileResponse `json:"file,omitempty"`
	IsRead         bool          `json:"isRead"`
	ReadAt         string        `json:"readAt,omitempty"`
	CreatedAt      string        `json:"createdAt"`
}

func messageResponse(msg *store.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Receiver:       msg.Receiver,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
	}
	if msg.ReadAt != nil {
		resp.ReadAt = msg.ReadAt.Format(time.RFC3339Nano)
	}
	if msg.File != nil {
		resp.File = &FileResponse{
			URL:          msg.File.URL,
			StorageID:    msg.File.StorageID,
			OriginalName: msg.File.OriginalName,
			MediaType:    msg.File.MediaType,
			ByteSize:     msg.File.ByteSize,
		}
	}
	return resp
}

func (g *Gateway) conversationResponse(r *http.Request, conv *store.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:           conv.ID,
		Participants: conv.Participants(),
		JobID:        conv.JobID,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339Nano),
	}
	if !conv.LastMessageAt.IsZero() {
		resp.LastMessageAt = conv.LastMessageAt.Format(time.RFC3339Nano)
	}
	if conv.LastMessageID != "" {
		if msg, err := g.store.GetMessage(r.Context(), conv.LastMessageID); err == nil {
			resp.LastMessage = messageResponse(msg)
		}
	}
	return resp
}

// handleCreateConversation handles POST /api/conversations.
// Creates the conversation between the caller and participantId (optionally
// scoped to a job) if it doesn't exist; 201 on create, 200 when it already
// existed.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ParticipantID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "participantId is required")
		return
	}
	if req.ParticipantID == caller {
		g.sendJSONError(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}

	conv, created, err := g.store.GetOrCreateConversation(r.Context(), caller, req.ParticipantID, req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("failed to get or create conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(g.conversationResponse(r, conv))
}

// handleListConversations handles GET /api/conversations.
// Returns the caller's conversations, most recent activity first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())

	conversations, err := g.store.ListConversationsForUser(r.Context(), caller)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		response = append(response, g.conversationResponse(r, conv))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConversationMessages handles GET /api/conversations/{id}/messages.
// Returns one chronological page and, as a side effect, marks messages
// addressed to the caller in this conversation as read.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	page, ok := positiveQueryInt(r, "page", 1)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, ok := positiveQueryInt(r, "limit", defaultPageSize)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !conv.HasParticipant(caller) {
		g.sendJSONError(w, http.StatusForbidden, "access denied to this conversation")
		return
	}

	messages, err := g.store.ConversationMessages(r.Context(), conversationID, page, limit)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Fetching history counts as seeing it
	if _, err := g.store.MarkConversationRead(r.Context(), conversationID, caller); err != nil {
		g.logger.Warn("failed to mark conversation read",
			"conversation_id", conversationID, "error", err)
	}

	response := make([]*MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageResponse(msg))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleMarkMessageRead handles PUT /api/messages/{id}/read.
// 404 when the message doesn't exist or is not addressed to the caller.
func (g *Gateway) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	caller := auth.IdentityFromContext(r.Context())
	messageID := mux.Vars(r)["id"]

	msg, err := g.store.MarkMessageRead(r.Context(), messageID, caller)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to mark message read", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messageResponse(msg))
}

// positiveQueryInt parses an optional positive integer query parameter.
func positiveQueryInt(r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
