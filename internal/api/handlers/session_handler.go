package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vinli0921/GEO-exploration/internal/api/dto"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

// SessionHandler handles HTTP requests for session ingestion and retrieval
type SessionHandler struct {
	service session.Service
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(service session.Service) *SessionHandler {
	return &SessionHandler{service: service}
}

// Upload ingests one batch of events from the extension. The raw body is
// retained verbatim for the blob store before decoding.
func (h *SessionHandler) Upload(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no data provided"})
		return
	}

	var req dto.UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	events := make([]session.RawEvent, len(req.Events))
	for i, ev := range req.Events {
		events[i] = session.RawEvent(ev)
	}

	result, err := h.service.Ingest(c.Request.Context(), session.IngestInput{
		SessionID:       req.SessionID,
		ParticipantID:   req.ParticipantID,
		UploadTimestamp: req.UploadTimestamp,
		Events:          events,
		RawJSON:         body,
	})
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrInvalidUpload) {
			statusCode = http.StatusBadRequest
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.UploadResponse{
		Success:        true,
		SessionID:      result.SessionID,
		EventsReceived: result.EventsReceived,
		EventsDropped:  result.EventsDropped,
		UploadID:       result.UploadID,
	})
}

// ListSessions returns sessions filtered by participant and lifecycle flags
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filter := session.SessionFilter{}

	if participantID := c.Query("participant_id"); participantID != "" {
		filter.ParticipantID = &participantID
	}
	if v, ok := boolQuery(c, "is_active"); ok {
		filter.IsActive = &v
	}
	if v, ok := boolQuery(c, "is_complete"); ok {
		filter.IsComplete = &v
	}

	var err error
	filter.Limit, filter.Offset, err = pagination(c, 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions, total, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]dto.SessionResponse, len(sessions))
	for i := range sessions {
		responses[i] = *SessionToResponse(&sessions[i])
	}

	c.JSON(http.StatusOK, dto.SessionListResponse{
		Sessions: responses,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// GetSession returns one session with event-type counts and its uploads
func (h *SessionHandler) GetSession(c *gin.Context) {
	detail, err := h.service.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	uploads := make([]dto.UploadInfoResponse, len(detail.Uploads))
	for i := range detail.Uploads {
		uploads[i] = *UploadToResponse(&detail.Uploads[i])
	}

	c.JSON(http.StatusOK, dto.SessionDetailResponse{
		SessionResponse: *SessionToResponse(detail.Session),
		EventSummary:    detail.EventSummary,
		Uploads:         uploads,
	})
}

// GetSessionEvents returns a session's events, optionally filtered by type
func (h *SessionHandler) GetSessionEvents(c *gin.Context) {
	filter := session.EventFilter{}
	if eventType := c.Query("event_type"); eventType != "" {
		filter.EventType = &eventType
	}

	var err error
	filter.Limit, filter.Offset, err = pagination(c, 1000)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, total, err := h.service.ListEvents(c.Request.Context(), c.Param("session_id"), filter)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.EventListResponse{
		Events: EventsToResponse(events),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// ExportSession returns the session's full event history as one document
func (h *SessionHandler) ExportSession(c *gin.Context) {
	export, err := h.service.ExportSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SessionExportResponse{
		Session:         *SessionToResponse(export.Session),
		Events:          EventsToResponse(export.Events),
		EventCount:      export.EventCount,
		ExportTimestamp: export.ExportTimestamp,
	})
}

// Stats returns global session counters
func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DeleteSession removes a session and everything it owns
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	err := h.service.DeleteSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func boolQuery(c *gin.Context, name string) (bool, bool) {
	v := c.Query(name)
	if v == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return parsed, true
}

func pagination(c *gin.Context, defaultLimit int) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 0 {
		return 0, 0, errors.New("invalid limit")
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, errors.New("invalid offset")
	}
	return limit, offset, nil
}
