package routes

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/vinli0921/GEO-exploration/internal/api/handlers"
)

type SessionRoutes struct {
	handler *handlers.SessionHandler
}

func NewSessionRoutes(handler *handlers.SessionHandler) *SessionRoutes {
	return &SessionRoutes{handler: handler}
}

// RegisterRoutes registers all session-related routes
func (r *SessionRoutes) RegisterRoutes(router *gin.Engine) {
	sessions := router.Group("/api/sessions")

	sessions.POST("/upload", r.handler.Upload)

	// Specific routes before the parameterized ones
	sessions.GET("/list", gzip.Gzip(gzip.DefaultCompression), r.handler.ListSessions)
	sessions.GET("/stats", r.handler.Stats)

	sessions.GET("/:session_id", r.handler.GetSession)
	sessions.GET("/:session_id/events", gzip.Gzip(gzip.DefaultCompression), r.handler.GetSessionEvents)
	sessions.GET("/:session_id/export", gzip.Gzip(gzip.BestCompression), r.handler.ExportSession)
	sessions.DELETE("/:session_id", r.handler.DeleteSession)
}
