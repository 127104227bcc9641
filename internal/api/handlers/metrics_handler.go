package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vinli0921/GEO-exploration/internal/api/dto"
	"github.com/vinli0921/GEO-exploration/internal/domain/metrics"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

// MetricsHandler handles HTTP requests for the aggregation surfaces
type MetricsHandler struct {
	service metrics.Service
}

// NewMetricsHandler creates a new MetricsHandler instance
func NewMetricsHandler(service metrics.Service) *MetricsHandler {
	return &MetricsHandler{service: service}
}

// ComputeSessionMetrics recomputes and stores the metrics row for a session
func (h *MetricsHandler) ComputeSessionMetrics(c *gin.Context) {
	m, err := h.service.ComputeSessionMetrics(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, MetricsToResponse(m))
}

// GetSessionMetrics returns the stored metrics row for a session
func (h *MetricsHandler) GetSessionMetrics(c *gin.Context) {
	m, err := h.service.GetSessionMetrics(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, metrics.ErrMetricsNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, MetricsToResponse(m))
}

// ListSessionMetrics lists metrics rows with funnel filters
func (h *MetricsHandler) ListSessionMetrics(c *gin.Context) {
	filter := metrics.MetricsFilter{}
	if v, ok := boolQuery(c, "has_conversions"); ok {
		filter.HasConversions = &v
	}
	if v, ok := boolQuery(c, "has_ai_attribution"); ok {
		filter.HasAIAttribution = &v
	}

	var err error
	filter.Limit, filter.Offset, err = pagination(c, 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, total, err := h.service.ListSessionMetrics(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]dto.SessionMetricsResponse, len(rows))
	for i := range rows {
		responses[i] = *MetricsToResponse(&rows[i])
	}

	c.JSON(http.StatusOK, dto.SessionMetricsListResponse{
		Metrics: responses,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// GlobalSummary returns the cross-session rollup
func (h *MetricsHandler) GlobalSummary(c *gin.Context) {
	summary, err := h.service.GlobalSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Timeline returns daily event/conversion buckets
func (h *MetricsHandler) Timeline(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
		return
	}

	buckets, err := h.service.Timeline(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": buckets})
}

// TopParticipants returns participants ranked by recorded activity
func (h *MetricsHandler) TopParticipants(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	rollups, err := h.service.TopParticipants(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": rollups})
}
