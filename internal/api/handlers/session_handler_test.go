package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinli0921/GEO-exploration/internal/api/dto"
	"github.com/vinli0921/GEO-exploration/internal/api/middleware"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

// Mock service for testing
type mockSessionService struct {
	lastInput    session.IngestInput
	ingestResult *session.IngestResult
	ingestErr    error
}

func (m *mockSessionService) Ingest(ctx context.Context, input session.IngestInput) (*session.IngestResult, error) {
	m.lastInput = input
	if m.ingestErr != nil {
		return nil, m.ingestErr
	}
	return m.ingestResult, nil
}

func (m *mockSessionService) GetSession(ctx context.Context, sessionID string) (*session.SessionDetail, error) {
	return nil, session.ErrSessionNotFound
}

func (m *mockSessionService) ListSessions(ctx context.Context, filter session.SessionFilter) ([]session.Session, int64, error) {
	return nil, 0, nil
}

func (m *mockSessionService) ListEvents(ctx context.Context, sessionID string, filter session.EventFilter) ([]session.SessionEvent, int64, error) {
	return nil, 0, nil
}

func (m *mockSessionService) ExportSession(ctx context.Context, sessionID string) (*session.SessionExport, error) {
	return nil, session.ErrSessionNotFound
}

func (m *mockSessionService) Stats(ctx context.Context) (*session.GlobalStats, error) {
	return &session.GlobalStats{}, nil
}

func (m *mockSessionService) DeleteSession(ctx context.Context, sessionID string) error {
	return session.ErrSessionNotFound
}

func newUploadRouter(svc session.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewSessionHandler(svc)
	router.POST("/api/sessions/upload", handler.Upload)
	router.GET("/api/sessions/:session_id", handler.GetSession)
	router.DELETE("/api/sessions/:session_id", handler.DeleteSession)
	return router
}

func TestUploadHandler(t *testing.T) {
	uploadID := uuid.New()
	mock := &mockSessionService{
		ingestResult: &session.IngestResult{
			SessionID:      "sess-1",
			UploadID:       uploadID,
			EventsReceived: 3,
			EventsDropped:  1,
		},
	}
	router := newUploadRouter(mock)

	body := `{"sessionId":"sess-1","participantId":"P001","events":[{"type":"page_visit","timestamp":1000}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/upload", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, 3, resp.EventsReceived)
	assert.Equal(t, 1, resp.EventsDropped)
	assert.Equal(t, uploadID, resp.UploadID)

	// The handler passes the raw body through untouched.
	assert.Equal(t, []byte(body), mock.lastInput.RawJSON)
	assert.Equal(t, "P001", mock.lastInput.ParticipantID)
	require.Len(t, mock.lastInput.Events, 1)
}

func TestUploadHandlerRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{
			name: "Empty body",
			body: "",
		},
		{
			name: "Malformed JSON",
			body: `{"sessionId":`,
		},
		{
			name: "Validation failure maps to 400",
			body: `{"participantId":"P001","events":[{"type":"click","timestamp":1}]}`,
			err:  session.ErrInvalidUpload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newUploadRouter(&mockSessionService{ingestErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/api/sessions/upload", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUploadHandlerEnforcesBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.LimitBodySize(64))
	handler := NewSessionHandler(&mockSessionService{})
	router.POST("/api/sessions/upload", handler.Upload)

	body := `{"sessionId":"sess-1","participantId":"P001","events":[` +
		strings.Repeat(`{"type":"page_visit","timestamp":1000},`, 50) + `]}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/upload", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	router := newUploadRouter(&mockSessionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/no-such", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/no-such", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
