package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier
func NewID() string {
	return uuid.New().String()
}

// EncodeTask serializes a task for storage
func EncodeTask(t Task) ([]byte, error) {
	return cbor.Marshal(t)
}

// DecodeTask parses and validates a stored task
func DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := cbor.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// EncodeChat serializes a chat message for storage
func EncodeChat(m ChatMessage) ([]byte, error) {
	return cbor.Marshal(m)
}

// DecodeChat parses and validates a stored chat message
func DecodeChat(data []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat: %w", err)
	}
	if err := m.Validate(); err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}

// EncodeSession serializes a session for the scalar slot
func EncodeSession(s Session) ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSession parses a stored session
func DecodeSession(data []byte) (Session, error) {
	var s Session
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !s.Role.Valid() {
		return Session{}, fmt.Errorf("session: unknown role %q", s.Role)
	}
	return s, nil
}
