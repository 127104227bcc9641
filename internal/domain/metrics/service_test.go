package metrics

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// session_metrics carries a postgres array column that AutoMigrate cannot
// express on sqlite, so the fixture declares the table by hand. pq.StringArray
// round-trips through the plain text column.
const sessionMetricsDDL = `
CREATE TABLE session_metrics (
	id                        text PRIMARY KEY,
	session_id                text NOT NULL UNIQUE,
	session_key               text NOT NULL,
	participant_id            text NOT NULL,
	query_count               integer NOT NULL DEFAULT 0,
	avg_query_length          real NOT NULL DEFAULT 0,
	ai_platforms_used         text,
	ai_result_clicks          integer NOT NULL DEFAULT 0,
	ai_dwell_time_seconds     real NOT NULL DEFAULT 0,
	ecommerce_visits          integer NOT NULL DEFAULT 0,
	products_viewed           integer NOT NULL DEFAULT 0,
	conversions               integer NOT NULL DEFAULT 0,
	ai_attributed_conversions integer NOT NULL DEFAULT 0,
	ai_to_purchase_seconds    real,
	computed_at               datetime NOT NULL,
	updated_at                datetime NOT NULL
)`

func openMetricsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&session.Session{}, &session.Upload{}, &session.SessionEvent{}))
	require.NoError(t, db.Exec(sessionMetricsDDL).Error)
	return db
}

func newTestMetricsService(t *testing.T) (Service, session.Repository) {
	t.Helper()
	db := openMetricsTestDB(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	sessions := session.NewRepository(db)
	return NewService(NewRepository(db), sessions, nil, log), sessions
}

func seedSession(t *testing.T, sessions session.Repository, sessionKey, participantID string, events []session.SessionEvent) *session.Session {
	t.Helper()
	ctx := context.Background()

	sess := &session.Session{
		SessionID:     sessionKey,
		ParticipantID: participantID,
		StartedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		IsActive:      true,
		TotalEvents:   len(events),
	}
	require.NoError(t, sessions.CreateSession(ctx, sess))

	for i := range events {
		events[i].SessionID = sess.ID
	}
	require.NoError(t, sessions.CreateEvents(ctx, events))
	return sess
}

func conversionEvent(at time.Time, aiAttributed bool) session.SessionEvent {
	return session.SessionEvent{
		EventType:      session.EventConversion,
		Timestamp:      at,
		EventData:      []byte(`{}`),
		IsAIAttributed: aiAttributed,
	}
}

func queryEvent(at time.Time, text, platform string) session.SessionEvent {
	return session.SessionEvent{
		EventType:    session.EventAIQueryInput,
		Timestamp:    at,
		EventData:    []byte(`{}`),
		QueryText:    &text,
		PlatformType: strPtr("ai"),
		PlatformName: &platform,
	}
}

func TestComputeSessionMetrics(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		queryEvent(base, "hiking boots", "chatgpt"),
		queryEvent(base.Add(time.Minute), "waterproof", "claude"),
		conversionEvent(base.Add(10*time.Minute), true),
	})

	m, err := svc.ComputeSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.QueryCount)
	assert.InDelta(t, 11.0, m.AvgQueryLength, 0.001)
	assert.Equal(t, []string{"chatgpt", "claude"}, []string(m.AIPlatformsUsed))
	assert.Equal(t, 1, m.Conversions)
	assert.Equal(t, 1, m.AIAttributedConversions)
	require.NotNil(t, m.AIToPurchaseSeconds)
	assert.InDelta(t, 600.0, *m.AIToPurchaseSeconds, 0.001)
	assert.False(t, m.ComputedAt.IsZero())

	stored, err := svc.GetSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, m.SessionID, stored.SessionID)
	assert.Equal(t, []string{"chatgpt", "claude"}, []string(stored.AIPlatformsUsed))
}

func TestComputeSessionMetricsIsIdempotent(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		queryEvent(base, "hiking boots", "chatgpt"),
		conversionEvent(base.Add(5*time.Minute), false),
	})

	first, err := svc.ComputeSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)
	second, err := svc.ComputeSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)

	// Recomputation replaces the row rather than duplicating it, and an
	// unchanged event set yields identical derived values.
	rows, total, err := svc.ListSessionMetrics(ctx, MetricsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)

	assert.Equal(t, first.QueryCount, second.QueryCount)
	assert.Equal(t, first.AvgQueryLength, second.AvgQueryLength)
	assert.Equal(t, first.Conversions, second.Conversions)
	assert.Equal(t, first.AIPlatformsUsed, second.AIPlatformsUsed)
}

func TestComputeSessionMetricsUnknownSession(t *testing.T) {
	svc, _ := newTestMetricsService(t)

	_, err := svc.ComputeSessionMetrics(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestGetSessionMetricsNotComputed(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		conversionEvent(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), false),
	})

	_, err := svc.GetSessionMetrics(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrMetricsNotFound)
}

func TestGlobalSummaryEmpty(t *testing.T) {
	svc, _ := newTestMetricsService(t)

	summary, err := svc.GlobalSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalSessions)
	assert.Zero(t, summary.AvgQueriesPerSession)
	assert.Zero(t, summary.ConversionRate)
	assert.Zero(t, summary.AIAttributionRate)
}

func TestGlobalSummary(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		queryEvent(base, "boots", "chatgpt"),
		queryEvent(base.Add(time.Minute), "socks", "chatgpt"),
		conversionEvent(base.Add(10*time.Minute), true),
	})
	seedSession(t, sessions, "sess-2", "P002", []session.SessionEvent{
		queryEvent(base, "tents", "claude"),
	})

	_, err := svc.ComputeSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)
	_, err = svc.ComputeSessionMetrics(ctx, "sess-2")
	require.NoError(t, err)

	summary, err := svc.GlobalSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalSessions)
	assert.Equal(t, int64(3), summary.TotalQueries)
	assert.Equal(t, int64(1), summary.TotalConversions)
	assert.Equal(t, int64(1), summary.AIAttributedConversions)
	assert.InDelta(t, 1.5, summary.AvgQueriesPerSession, 0.001)
	assert.InDelta(t, 50.0, summary.ConversionRate, 0.001)
	assert.InDelta(t, 50.0, summary.AIAttributionRate, 0.001)
}

func TestListSessionMetricsFilters(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		conversionEvent(base, true),
	})
	seedSession(t, sessions, "sess-2", "P002", []session.SessionEvent{
		queryEvent(base, "boots", "chatgpt"),
	})

	_, err := svc.ComputeSessionMetrics(ctx, "sess-1")
	require.NoError(t, err)
	_, err = svc.ComputeSessionMetrics(ctx, "sess-2")
	require.NoError(t, err)

	converted := true
	rows, total, err := svc.ListSessionMetrics(ctx, MetricsFilter{HasConversions: &converted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "sess-1", rows[0].SessionKey)

	notConverted := false
	rows, total, err = svc.ListSessionMetrics(ctx, MetricsFilter{HasConversions: &notConverted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "sess-2", rows[0].SessionKey)
}

func TestTimelineAndTopParticipants(t *testing.T) {
	svc, sessions := newTestMetricsService(t)
	ctx := context.Background()

	// Anchor at noon so adding an hour never crosses a date boundary.
	now := time.Now().UTC()
	noon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC)
	day1 := noon.AddDate(0, 0, -3)
	day2 := noon.AddDate(0, 0, -1)

	seedSession(t, sessions, "sess-1", "P001", []session.SessionEvent{
		queryEvent(day1, "boots", "chatgpt"),
		conversionEvent(day1.Add(time.Hour), false),
		queryEvent(day2, "socks", "chatgpt"),
	})
	seedSession(t, sessions, "sess-2", "P001", []session.SessionEvent{
		queryEvent(day2, "tents", "claude"),
	})
	seedSession(t, sessions, "sess-3", "P002", []session.SessionEvent{
		queryEvent(day2, "maps", "claude"),
	})

	buckets, err := svc.Timeline(ctx, 30)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	// Newest day first.
	assert.Equal(t, int64(3), buckets[0].Events)
	assert.Equal(t, int64(0), buckets[0].Conversions)
	assert.Equal(t, int64(2), buckets[1].Events)
	assert.Equal(t, int64(1), buckets[1].Conversions)

	// A two-day window cuts off the older bucket.
	recent, err := svc.Timeline(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(3), recent[0].Events)

	rollups, err := svc.TopParticipants(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rollups, 2)
	assert.Equal(t, "P001", rollups[0].ParticipantID)
	assert.Equal(t, int64(2), rollups[0].SessionCount)
	assert.Equal(t, int64(1), rollups[0].Conversions)
	assert.Equal(t, "P002", rollups[1].ParticipantID)
}
