package chat_module

import (
	"github.com/ethanbaker/chatbot/internal/chat"
	"github.com/gin-gonic/gin"
)

// Register routes for the chat module
func RegisterRoutes(g *gin.RouterGroup, orchestrator *chat.Orchestrator) {
	controller := &Controller{orchestrator: orchestrator}

	g.POST("/chat", controller.PostChat)                // Send a message, creating a session if needed
	g.GET("/sessions", controller.ListSessions)         // List every live session id
	g.GET("/sessions/:id", controller.GetSession)       // Get a session and its transcript
	g.DELETE("/sessions/:id", controller.DeleteSession) // Delete a session
}
