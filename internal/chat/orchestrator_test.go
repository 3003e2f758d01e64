package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethanbaker/chatbot/internal/stores/session"
	"github.com/ethanbaker/chatbot/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider records every request and answers with reply or err
type mockProvider struct {
	mu       sync.Mutex
	requests []provider.Request
	reply    func(req provider.Request) string
	err      error

	// observe runs during the call, before the reply is stored
	observe func(req provider.Request)
}

func (m *mockProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.observe != nil {
		m.observe(req)
	}
	if m.err != nil {
		return "", m.err
	}
	if m.reply != nil {
		return m.reply(req), nil
	}
	return "reply", nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newTestOrchestrator(p provider.Provider) (*Orchestrator, *session.Store) {
	store := session.NewInMemoryStore()
	settings := DefaultSettings()
	settings.SystemPrompt = "system prompt"
	return NewOrchestrator(store, p, settings), store
}

func TestHandleCreatesSession(t *testing.T) {
	ctx := context.Background()

	var during session.Transcript

	mock := &mockProvider{}
	orchestrator, store := newTestOrchestrator(mock)
	mock.observe = func(req provider.Request) {
		// While the provider runs, the transcript holds system + user
		transcript, err := store.GetTranscript(ctx, onlySession(t, orchestrator))
		require.NoError(t, err)
		during = transcript
	}

	result, err := orchestrator.Handle(ctx, "", "hi")
	require.NoError(t, err)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "reply", result.Reply)
	assert.Equal(t, 2, result.MessageCount)

	require.Len(t, during, 2)
	assert.Equal(t, session.Message{Role: session.RoleUser, Content: "hi"}, during[1])

	transcript, err := store.GetTranscript(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.Transcript{
		{Role: session.RoleSystem, Content: "system prompt"},
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "reply"},
	}, transcript)

	// The provider receives the full transcript and the configured parameters
	require.Equal(t, 1, mock.calls())
	req := mock.requests[0]
	assert.Equal(t, DefaultSettings().Params, req.Params)
	assert.Equal(t, []provider.Message{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "hi"},
	}, req.Messages)
}

func TestHandleFreshIDs(t *testing.T) {
	ctx := context.Background()
	orchestrator, _ := newTestOrchestrator(&mockProvider{})

	seen := map[string]bool{}
	for range 10 {
		result, err := orchestrator.Handle(ctx, "", "hi")
		require.NoError(t, err)
		assert.False(t, seen[result.SessionID])
		seen[result.SessionID] = true
	}
}

func TestHandleReusesSession(t *testing.T) {
	ctx := context.Background()
	mock := &mockProvider{reply: func(req provider.Request) string {
		return "echo: " + req.Messages[len(req.Messages)-1].Content
	}}
	orchestrator, store := newTestOrchestrator(mock)

	first, err := orchestrator.Handle(ctx, "", "msg1")
	require.NoError(t, err)

	second, err := orchestrator.Handle(ctx, first.SessionID, "msg2")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "echo: msg2", second.Reply)
	assert.Equal(t, first.MessageCount+2, second.MessageCount)

	transcript, err := store.GetTranscript(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, len(transcript)-1, second.MessageCount)
	assert.Equal(t, second.MessageCount, orchestrator.GetMessageCount(ctx, first.SessionID))

	// The second call sees the whole history
	require.Equal(t, 2, mock.calls())
	assert.Len(t, mock.requests[1].Messages, 4)

	ids, err := orchestrator.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.SessionID}, ids)
}

func TestHandleUnknownSession(t *testing.T) {
	ctx := context.Background()

	t.Run("create policy starts a new session", func(t *testing.T) {
		orchestrator, store := newTestOrchestrator(&mockProvider{})

		result, err := orchestrator.Handle(ctx, "not-a-real-id", "hi")
		require.NoError(t, err)
		assert.NotEqual(t, "not-a-real-id", result.SessionID)
		assert.True(t, store.Exists(ctx, result.SessionID))
		assert.False(t, store.Exists(ctx, "not-a-real-id"))
		assert.Equal(t, 2, result.MessageCount)
	})

	t.Run("reject policy fails without touching state", func(t *testing.T) {
		mock := &mockProvider{}
		orchestrator, store := newTestOrchestrator(mock)
		orchestrator.settings.UnknownSession = RejectUnknown

		_, err := orchestrator.Handle(ctx, "not-a-real-id", "hi")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.Equal(t, 0, mock.calls())

		ids, err := store.ListSessionIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		// An empty id still creates a session
		result, err := orchestrator.Handle(ctx, "", "hi")
		require.NoError(t, err)
		assert.NotEmpty(t, result.SessionID)
	})
}

func TestHandleInvalidArgument(t *testing.T) {
	ctx := context.Background()
	mock := &mockProvider{}
	orchestrator, store := newTestOrchestrator(mock)

	for _, message := range []string{"", "   ", "\n\t"} {
		_, err := orchestrator.Handle(ctx, "", message)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	assert.Equal(t, 0, mock.calls())
	ids, err := store.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHandleProviderFailure(t *testing.T) {
	ctx := context.Background()
	providerErr := errors.New("rate limited")

	mock := &mockProvider{}
	orchestrator, store := newTestOrchestrator(mock)

	first, err := orchestrator.Handle(ctx, "", "hello")
	require.NoError(t, err)

	mock.err = providerErr
	_, err = orchestrator.Handle(ctx, first.SessionID, "are you there?")
	require.Error(t, err)
	assert.ErrorIs(t, err, providerErr)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, first.SessionID, perr.SessionID)
	assert.Contains(t, err.Error(), "rate limited")

	// The user message stays, no assistant message is added
	transcript, err := store.GetTranscript(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 4)
	assert.Equal(t, session.Message{Role: session.RoleUser, Content: "are you there?"}, transcript[3])

	// The next turn re-sends the unanswered message
	mock.err = nil
	result, err := orchestrator.Handle(ctx, first.SessionID, "hello again")
	require.NoError(t, err)
	assert.Equal(t, 5, result.MessageCount)

	last := mock.requests[len(mock.requests)-1]
	assert.Equal(t, "are you there?", last.Messages[3].Content)
	assert.Equal(t, "hello again", last.Messages[4].Content)
}

func TestHandleTrims(t *testing.T) {
	ctx := context.Background()
	mock := &mockProvider{reply: func(req provider.Request) string {
		return fmt.Sprintf("reply %d", len(req.Messages))
	}}
	orchestrator, store := newTestOrchestrator(mock)

	result, err := orchestrator.Handle(ctx, "", "turn 0")
	require.NoError(t, err)

	for i := 1; i < 30; i++ {
		result, err = orchestrator.Handle(ctx, result.SessionID, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
		assert.LessOrEqual(t, result.MessageCount, session.DefaultMaxMessages-1)
	}

	transcript, err := store.GetTranscript(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, session.DefaultMaxMessages)
	assert.Equal(t, session.Message{Role: session.RoleSystem, Content: "system prompt"}, transcript[0])
	assert.Equal(t, session.RoleUser, transcript[1].Role)
	assert.Equal(t, "turn 29", transcript[len(transcript)-2].Content)
	assert.Equal(t, 20, result.MessageCount)

	// Every provider call is bounded by the window plus the new user turn
	for _, req := range mock.requests {
		assert.LessOrEqual(t, len(req.Messages), session.DefaultMaxMessages+1)
	}
}

func TestHandleSerialisesSameSession(t *testing.T) {
	ctx := context.Background()

	var inFlight, maxInFlight int32
	mock := &mockProvider{observe: func(req provider.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			current := atomic.LoadInt32(&maxInFlight)
			if n <= current || atomic.CompareAndSwapInt32(&maxInFlight, current, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}}
	orchestrator, store := newTestOrchestrator(mock)

	first, err := orchestrator.Handle(ctx, "", "start")
	require.NoError(t, err)

	const numGoroutines = 8

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := range numGoroutines {
		go func(n int) {
			defer wg.Done()
			_, err := orchestrator.Handle(ctx, first.SessionID, fmt.Sprintf("msg %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))

	// Every user message is directly followed by its reply
	transcript, err := store.GetTranscript(ctx, first.SessionID)
	require.NoError(t, err)
	for i := 1; i < len(transcript); i += 2 {
		assert.Equal(t, session.RoleUser, transcript[i].Role)
		require.Less(t, i+1, len(transcript))
		assert.Equal(t, session.RoleAssistant, transcript[i+1].Role)
	}
}

// vanishingBackend deletes a session from under the caller the first time its existence is checked
type vanishingBackend struct {
	*session.InMemoryBackend
	target string
	once   sync.Once
}

func (b *vanishingBackend) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := b.InMemoryBackend.Exists(ctx, id)
	if id == b.target {
		b.once.Do(func() { b.InMemoryBackend.Delete(ctx, id) })
	}
	return exists, err
}

func TestHandleSessionDeletedBeforeLock(t *testing.T) {
	ctx := context.Background()

	newVanishing := func(policy UnknownSessionPolicy) (*Orchestrator, string) {
		backend := &vanishingBackend{InMemoryBackend: session.NewInMemoryBackend()}
		store := session.NewStore(backend)

		id, err := store.CreateSession(ctx, "system prompt")
		require.NoError(t, err)
		backend.target = id

		settings := DefaultSettings()
		settings.UnknownSession = policy
		return NewOrchestrator(store, &mockProvider{}, settings), id
	}

	t.Run("create", func(t *testing.T) {
		orchestrator, id := newVanishing(CreateUnknown)

		result, err := orchestrator.Handle(ctx, id, "hi")
		require.NoError(t, err)
		assert.NotEqual(t, id, result.SessionID)
		assert.Equal(t, 2, result.MessageCount)
	})

	t.Run("reject", func(t *testing.T) {
		orchestrator, id := newVanishing(RejectUnknown)

		_, err := orchestrator.Handle(ctx, id, "hi")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSessionAccessors(t *testing.T) {
	ctx := context.Background()
	orchestrator, _ := newTestOrchestrator(&mockProvider{})

	assert.Equal(t, 0, orchestrator.GetMessageCount(ctx, "missing"))

	_, err := orchestrator.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	result, err := orchestrator.Handle(ctx, "", "hi")
	require.NoError(t, err)

	transcript, err := orchestrator.Session(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, 3)

	count, err := orchestrator.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Delete
	require.NoError(t, orchestrator.Delete(ctx, result.SessionID))
	assert.ErrorIs(t, orchestrator.Delete(ctx, result.SessionID), ErrSessionNotFound)
	assert.Equal(t, 0, orchestrator.GetMessageCount(ctx, result.SessionID))

	_, err = orchestrator.Session(ctx, result.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ids, err := orchestrator.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// onlySession returns the id of the single session the orchestrator knows about
func onlySession(t *testing.T, o *Orchestrator) string {
	ids, err := o.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}
