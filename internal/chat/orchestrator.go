// Package chat runs the request/response cycle of a conversation: it resolves the session, records
// the user turn, asks the completion provider for a reply, records it and trims the transcript.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethanbaker/chatbot/internal/stores/session"
	"github.com/ethanbaker/chatbot/pkg/provider"
)

// Result is the outcome of one successful chat turn
type Result struct {
	SessionID    string
	Reply        string
	MessageCount int // conversational messages in the transcript, system prompt excluded
}

// Orchestrator is the only component that talks to the completion provider
type Orchestrator struct {
	sessions *session.Store
	provider provider.Provider
	settings Settings

	// Per-session locks serialising the append/complete/append/trim sequence
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

// NewOrchestrator creates an orchestrator over the given store and provider
func NewOrchestrator(sessions *session.Store, p provider.Provider, settings Settings) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		provider: p,
		settings: settings,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Handle processes one user message. An empty sessionID starts a new session; an unknown one is
// handled according to the UnknownSessionPolicy
func (o *Orchestrator) Handle(ctx context.Context, sessionID, userMessage string) (*Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrInvalidArgument)
	}

	id, lock, err := o.acquireSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	// 1. Record the user turn
	if err := o.sessions.AppendMessage(ctx, id, session.RoleUser, userMessage); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	// 2. Send the full transcript to the provider
	transcript, err := o.sessions.GetTranscript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	reply, err := o.provider.Complete(ctx, provider.Request{
		Messages: toProviderMessages(transcript),
		Params:   o.settings.Params,
	})
	if err != nil {
		log.Printf("[CHAT]: Completion failed for session %s: %v", id, err)
		return nil, &ProviderError{SessionID: id, Err: err}
	}

	// 3. Record the reply and bound the transcript
	if err := o.sessions.AppendMessage(ctx, id, session.RoleAssistant, reply); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	if err := o.sessions.Trim(ctx, id, o.settings.MaxMessages); err != nil {
		return nil, fmt.Errorf("failed to trim transcript: %w", err)
	}

	transcript, err = o.sessions.GetTranscript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	return &Result{
		SessionID:    id,
		Reply:        reply,
		MessageCount: transcript.MessageCount(),
	}, nil
}

// GetMessageCount returns the number of conversational messages in a session, or 0 if it is absent
func (o *Orchestrator) GetMessageCount(ctx context.Context, sessionID string) int {
	transcript, err := o.sessions.GetTranscript(ctx, sessionID)
	if err != nil {
		return 0
	}
	return transcript.MessageCount()
}

// Session returns the transcript of an existing session
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (session.Transcript, error) {
	return o.sessions.GetTranscript(ctx, sessionID)
}

// Delete removes a session. In-flight turns on the same session finish first
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	existed, err := o.sessions.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	o.mu.Lock()
	delete(o.locks, sessionID)
	o.mu.Unlock()

	if !existed {
		return ErrSessionNotFound
	}

	log.Printf("[CHAT]: Deleted session %s", sessionID)
	return nil
}

// ListSessions returns the ids of all live sessions
func (o *Orchestrator) ListSessions(ctx context.Context) ([]string, error) {
	return o.sessions.ListSessionIDs(ctx)
}

// SessionCount returns the number of live sessions
func (o *Orchestrator) SessionCount(ctx context.Context) (int, error) {
	return o.sessions.Count(ctx)
}

// resolveSession returns the id to use for a turn, creating a session when needed
func (o *Orchestrator) resolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		if o.sessions.Exists(ctx, sessionID) {
			return sessionID, nil
		}

		if o.settings.UnknownSession == RejectUnknown {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
	}

	id, err := o.sessions.CreateSession(ctx, o.settings.SystemPrompt)
	if err != nil {
		return "", err
	}

	if sessionID != "" {
		log.Printf("[CHAT]: Unknown session %s replaced by new session %s", sessionID, id)
	}

	return id, nil
}

// acquireSession resolves the session for a turn and locks it. A session deleted while waiting for
// the lock is resolved once more, so the turn follows the UnknownSessionPolicy instead of failing
// on a vanished id
func (o *Orchestrator) acquireSession(ctx context.Context, sessionID string) (string, *sync.Mutex, error) {
	id, err := o.resolveSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	lock := o.lockFor(id)
	lock.Lock()
	if o.sessions.Exists(ctx, id) {
		return id, lock, nil
	}
	lock.Unlock()

	id, err = o.resolveSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	lock = o.lockFor(id)
	lock.Lock()
	return id, lock, nil
}

// lockFor returns the mutex guarding a session, creating it on first use
func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, exists := o.locks[sessionID]
	if !exists {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// toProviderMessages converts a transcript into the provider's message type
func toProviderMessages(transcript session.Transcript) []provider.Message {
	messages := make([]provider.Message, 0, len(transcript))
	for _, msg := range transcript {
		messages = append(messages, provider.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return messages
}
