package routes

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/vinli0921/GEO-exploration/internal/api/handlers"
)

type MetricsRoutes struct {
	handler *handlers.MetricsHandler
}

func NewMetricsRoutes(handler *handlers.MetricsHandler) *MetricsRoutes {
	return &MetricsRoutes{handler: handler}
}

// RegisterRoutes registers all analytics routes
func (r *MetricsRoutes) RegisterRoutes(router *gin.Engine) {
	m := router.Group("/api/metrics")

	m.GET("/summary", r.handler.GlobalSummary)
	m.GET("/timeline", r.handler.Timeline)
	m.GET("/participants/top", r.handler.TopParticipants)

	m.GET("/sessions", gzip.Gzip(gzip.DefaultCompression), r.handler.ListSessionMetrics)
	m.GET("/sessions/:session_id", r.handler.GetSessionMetrics)
	m.POST("/sessions/:session_id/compute", r.handler.ComputeSessionMetrics)
}
