// ABOUTME: Tests for store data types and validation rules
// ABOUTME: Covers Message.Validate and participant normalization

package store

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeParticipants(t *testing.T) {
	a, b := NormalizeParticipants("zed", "amy")
	if a != "amy" || b != "zed" {
		t.Errorf("expected amy, zed; got %s, %s", a, b)
	}

	a, b = NormalizeParticipants("amy", "zed")
	if a != "amy" || b != "zed" {
		t.Errorf("normalization must be order-insensitive; got %s, %s", a, b)
	}
}

func TestConversationParticipantHelpers(t *testing.T) {
	conv := &Conversation{ParticipantA: "alice", ParticipantB: "bob"}

	if !conv.HasParticipant("alice") || !conv.HasParticipant("bob") {
		t.Error("both participants should be members")
	}
	if conv.HasParticipant("carol") {
		t.Error("carol is not a participant")
	}
	if got := conv.OtherParticipant("alice"); got != "bob" {
		t.Errorf("expected bob, got %s", got)
	}
	if got := conv.OtherParticipant("carol"); got != "" {
		t.Errorf("expected empty string for non-participant, got %s", got)
	}
}

func TestMessageValidate(t *testing.T) {
	valid := Message{
		ConversationID: "conv-1",
		Sender:         "alice",
		Receiver:       "bob",
		Content:        "hello",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	atLimit := valid
	atLimit.Content = strings.Repeat("a", MaxContentLength)
	if err := atLimit.Validate(); err != nil {
		t.Errorf("content at the limit should pass: %v", err)
	}

	overLimit := valid
	overLimit.Content = strings.Repeat("a", MaxContentLength+1)
	if err := overLimit.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	neither := valid
	neither.Content = ""
	if err := neither.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("content-or-file invariant not enforced: %v", err)
	}

	fileOnly := neither
	fileOnly.File = &FileAttachment{URL: "https://blobs.example/f/1"}
	if err := fileOnly.Validate(); err != nil {
		t.Errorf("file-only message rejected: %v", err)
	}

	noSender := valid
	noSender.Sender = ""
	if err := noSender.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing sender, got %v", err)
	}
}
