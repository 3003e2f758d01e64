package health

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the routes for the health module
func RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", getStatus)
}

// RegisterRoot registers the plain liveness message served at the engine root
func RegisterRoot(engine *gin.Engine) {
	engine.GET("/", getRoot)
}
