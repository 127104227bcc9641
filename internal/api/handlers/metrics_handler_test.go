package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinli0921/GEO-exploration/internal/api/dto"
	"github.com/vinli0921/GEO-exploration/internal/domain/metrics"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

// Mock service for testing
type mockMetricsService struct {
	row        *metrics.SessionMetrics
	computeErr error
	getErr     error
}

func (m *mockMetricsService) ComputeSessionMetrics(ctx context.Context, sessionKey string) (*metrics.SessionMetrics, error) {
	if m.computeErr != nil {
		return nil, m.computeErr
	}
	return m.row, nil
}

func (m *mockMetricsService) GetSessionMetrics(ctx context.Context, sessionKey string) (*metrics.SessionMetrics, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.row, nil
}

func (m *mockMetricsService) ListSessionMetrics(ctx context.Context, filter metrics.MetricsFilter) ([]metrics.SessionMetrics, int64, error) {
	if m.row == nil {
		return nil, 0, nil
	}
	return []metrics.SessionMetrics{*m.row}, 1, nil
}

func (m *mockMetricsService) GlobalSummary(ctx context.Context) (*metrics.GlobalSummary, error) {
	return &metrics.GlobalSummary{}, nil
}

func (m *mockMetricsService) Timeline(ctx context.Context, days int) ([]metrics.TimelineBucket, error) {
	return nil, nil
}

func (m *mockMetricsService) TopParticipants(ctx context.Context, limit int) ([]metrics.ParticipantRollup, error) {
	return nil, nil
}

func newMetricsRouter(svc metrics.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewMetricsHandler(svc)
	router.GET("/api/metrics/sessions/:session_id", handler.GetSessionMetrics)
	router.POST("/api/metrics/sessions/:session_id/compute", handler.ComputeSessionMetrics)
	router.GET("/api/metrics/timeline", handler.Timeline)
	return router
}

func TestGetSessionMetricsHandler(t *testing.T) {
	computedAt := time.Now().UTC()
	mock := &mockMetricsService{
		row: &metrics.SessionMetrics{
			ID:                 uuid.New(),
			SessionID:          uuid.New(),
			SessionKey:         "sess-1",
			ParticipantID:      "P001",
			QueryCount:         4,
			AvgQueryLength:     11.5,
			AIPlatformsUsed:    pq.StringArray{"chatgpt"},
			AIResultClicks:     2,
			AIDwellTimeSeconds: 30,
			Conversions:        1,
			ComputedAt:         computedAt,
			UpdatedAt:          computedAt,
		},
	}
	router := newMetricsRouter(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/sessions/sess-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SessionMetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "P001", resp.ParticipantID)
	assert.Equal(t, 4, resp.QueryCount)
	assert.Equal(t, []string{"chatgpt"}, resp.AIPlatformsUsed)
	assert.Equal(t, 1, resp.Conversions)
}

func TestMetricsNotFoundMapsTo404(t *testing.T) {
	t.Run("metrics row missing", func(t *testing.T) {
		router := newMetricsRouter(&mockMetricsService{getErr: metrics.ErrMetricsNotFound})
		req := httptest.NewRequest(http.MethodGet, "/api/metrics/sessions/sess-x", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("session missing", func(t *testing.T) {
		router := newMetricsRouter(&mockMetricsService{getErr: session.ErrSessionNotFound})
		req := httptest.NewRequest(http.MethodGet, "/api/metrics/sessions/sess-x", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("compute on unknown session", func(t *testing.T) {
		router := newMetricsRouter(&mockMetricsService{computeErr: session.ErrSessionNotFound})
		req := httptest.NewRequest(http.MethodPost, "/api/metrics/sessions/sess-x/compute", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTimelineHandlerRejectsBadDays(t *testing.T) {
	router := newMetricsRouter(&mockMetricsService{})

	for _, days := range []string{"0", "-5", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/metrics/timeline?days="+days, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%s", days)
	}
}
