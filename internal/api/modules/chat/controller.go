package chat_module

import (
	"errors"
	"net/http"

	"github.com/ethanbaker/chatbot/internal/chat"
	"github.com/ethanbaker/chatbot/internal/stores/session"
	"github.com/ethanbaker/chatbot/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// Controller maps HTTP requests onto the chat orchestrator
type Controller struct {
	orchestrator *chat.Orchestrator
}

// PostChat handles POST requests carrying a user message
func (ctl *Controller) PostChat(c *gin.Context) {
	// Parse request body
	var req sdk.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sdk.ErrorResponse{Detail: "Could not parse request body: " + err.Error()})
		return
	}

	result, err := ctl.orchestrator.Handle(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		c.JSON(statusFor(err), sdk.ErrorResponse{Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, sdk.ChatResponse{
		SessionID:    result.SessionID,
		Response:     result.Reply,
		MessageCount: result.MessageCount,
	})
}

// GetSession handles GET requests for a session transcript
func (ctl *Controller) GetSession(c *gin.Context) {
	id := c.Param("id")

	transcript, err := ctl.orchestrator.Session(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), sdk.ErrorResponse{Detail: detailFor(err)})
		return
	}

	c.JSON(http.StatusOK, toSDKSession(id, transcript))
}

// DeleteSession handles DELETE requests for a session
func (ctl *Controller) DeleteSession(c *gin.Context) {
	if err := ctl.orchestrator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), sdk.ErrorResponse{Detail: detailFor(err)})
		return
	}

	c.JSON(http.StatusOK, sdk.DeleteSessionResponse{Message: "Session deleted"})
}

// ListSessions handles GET requests for all session ids
func (ctl *Controller) ListSessions(c *gin.Context) {
	ids, err := ctl.orchestrator.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), sdk.ErrorResponse{Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, sdk.ListSessionsResponse{
		TotalSessions: len(ids),
		SessionIDs:    ids,
	})
}

// statusFor maps the chat error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		// Provider and storage failures
		return http.StatusInternalServerError
	}
}

// detailFor returns the message shown to clients for session lookups
func detailFor(err error) string {
	if errors.Is(err, chat.ErrSessionNotFound) {
		return "Session not found"
	}
	return err.Error()
}

// Helper method to convert a transcript to the sdk session type
func toSDKSession(id string, transcript session.Transcript) sdk.SessionResponse {
	resp := sdk.SessionResponse{
		SessionID:    id,
		Messages:     make([]sdk.Message, 0, len(transcript)),
		MessageCount: transcript.MessageCount(),
	}

	for _, msg := range transcript {
		resp.Messages = append(resp.Messages, sdk.Message{Role: string(msg.Role), Content: msg.Content})
	}

	return resp
}
