package session

import (
	"errors"
	"slices"
)

// Role identifies who authored a message in a transcript
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the store accepts
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single role-tagged entry in a transcript. Messages are never modified once appended
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered conversation history of a session. Index 0 is always the system prompt
type Transcript []Message

// MessageCount returns the number of conversational messages, excluding the system prompt
func (t Transcript) MessageCount() int {
	if len(t) == 0 {
		return 0
	}
	return len(t) - 1
}

// Clone returns a copy that shares no backing array with t
func (t Transcript) Clone() Transcript {
	return slices.Clone(t)
}

var (
	// ErrSessionNotFound is returned when a session id is not registered in the store
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole is returned when appending a message with an unknown role
	ErrInvalidRole = errors.New("invalid message role")
)
