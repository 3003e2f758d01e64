package session

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// DefaultMaxMessages is the trim window: the system prompt plus the latest 20 messages
const DefaultMaxMessages = 21

// Store is the authoritative owner of all session state. It generates session ids, validates
// roles and applies the trimming policy on top of a Backend
type Store struct {
	backend Backend
}

// NewStore creates a session store over the given backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// NewInMemoryStore creates a session store backed by process memory
func NewInMemoryStore() *Store {
	return NewStore(NewInMemoryBackend())
}

// CreateSession registers a new session whose transcript holds only the system prompt
func (s *Store) CreateSession(ctx context.Context, systemPrompt string) (string, error) {
	id := uuid.New().String()

	transcript := Transcript{{Role: RoleSystem, Content: systemPrompt}}
	if err := s.backend.Create(ctx, id, transcript); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return id, nil
}

// Exists reports whether a session is registered under id
func (s *Store) Exists(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}

	exists, err := s.backend.Exists(ctx, id)
	if err != nil {
		log.Printf("[SESSION]: Warning, could not check session %s: %v", id, err)
		return false
	}
	return exists
}

// GetTranscript returns a copy of the transcript for id, or ErrSessionNotFound
func (s *Store) GetTranscript(ctx context.Context, id string) (Transcript, error) {
	return s.backend.Messages(ctx, id)
}

// AppendMessage adds one message to the end of the transcript for id. It fails with
// ErrSessionNotFound when the session does not exist
func (s *Store) AppendMessage(ctx context.Context, id string, role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return s.backend.Append(ctx, id, Message{Role: role, Content: content})
}

// Trim bounds the transcript for id to maxMessages entries. The system prompt at index 0 is always
// kept, followed by the most recent messages. The retained tail is rounded down to an even length
// so a user message is never kept without the reply that followed it. The read and rewrite are one
// atomic backend operation, so concurrent appends are never lost
func (s *Store) Trim(ctx context.Context, id string, maxMessages int) error {
	return s.backend.Trim(ctx, id, maxMessages)
}

// DeleteSession removes the session and reports whether it existed
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	return s.backend.Delete(ctx, id)
}

// ListSessionIDs returns a snapshot of all registered session ids in creation order
func (s *Store) ListSessionIDs(ctx context.Context) ([]string, error) {
	return s.backend.IDs(ctx)
}

// Count returns the number of registered sessions
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// NormalizeWindow returns the effective trim window for maxMessages. The tail after the system
// prompt is rounded down to an even length, so windows below 3 keep only the system prompt
func NormalizeWindow(maxMessages int) int {
	if maxMessages < 3 {
		return 1
	}

	tail := maxMessages - 1
	tail -= tail % 2

	return tail + 1
}

// TrimTranscript applies the sliding window to transcript. It reports whether anything was dropped
func TrimTranscript(transcript Transcript, maxMessages int) (Transcript, bool) {
	window := NormalizeWindow(maxMessages)
	if len(transcript) <= window {
		return transcript, false
	}

	tail := transcript[len(transcript)-(window-1):]

	trimmed := make(Transcript, 0, window)
	trimmed = append(trimmed, transcript[0])
	trimmed = append(trimmed, tail...)

	return trimmed, true
}
