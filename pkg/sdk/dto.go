package sdk

/** Requests */

// ChatRequest represents the request body for sending a message
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"` // Existing session to continue (optional)
	Message   string `json:"message" binding:"required"`
}

/** Responses */

// ChatResponse represents the response body after a chat turn
type ChatResponse struct {
	SessionID    string `json:"session_id"`
	Response     string `json:"response"`
	MessageCount int    `json:"message_count"` // Conversational messages stored, system prompt excluded
}

// Message represents a single transcript entry
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionResponse represents a session and its full transcript
type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	MessageCount int       `json:"message_count"`
}

// DeleteSessionResponse confirms a deleted session
type DeleteSessionResponse struct {
	Message string `json:"message"`
}

// ListSessionsResponse represents every live session id
type ListSessionsResponse struct {
	TotalSessions int      `json:"total_sessions"`
	SessionIDs    []string `json:"session_ids"`
}

// ErrorResponse is returned by the backend for every failed request
type ErrorResponse struct {
	Detail string `json:"detail"`
}
