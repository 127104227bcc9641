package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMetricsNotFound = errors.New("session metrics not found")

// MetricsFilter defines the filtering options for listing metrics rows
type MetricsFilter struct {
	HasConversions   *bool
	HasAIAttribution *bool
	Limit            int
	Offset           int
}

// Repository defines the interface for metrics persistence operations
type Repository interface {
	// Upsert atomically replaces the metrics row for the session.
	Upsert(ctx context.Context, m *SessionMetrics) error
	FindBySessionID(ctx context.Context, sessionID uuid.UUID) (*SessionMetrics, error)
	List(ctx context.Context, filter MetricsFilter) ([]SessionMetrics, int64, error)
	Summary(ctx context.Context) (*GlobalSummary, error)
	Timeline(ctx context.Context, days int) ([]TimelineBucket, error)
	TopParticipants(ctx context.Context, limit int) ([]ParticipantRollup, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, m *SessionMetrics) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(m).Error
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID uuid.UUID) (*SessionMetrics, error) {
	var m SessionMetrics
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMetricsNotFound
		}
		return nil, result.Error
	}
	return &m, nil
}

func (r *repository) List(ctx context.Context, filter MetricsFilter) ([]SessionMetrics, int64, error) {
	var rows []SessionMetrics
	var total int64
	query := r.db.WithContext(ctx).Model(&SessionMetrics{})

	if filter.HasConversions != nil {
		if *filter.HasConversions {
			query = query.Where("conversions > 0")
		} else {
			query = query.Where("conversions = 0")
		}
	}
	if filter.HasAIAttribution != nil {
		if *filter.HasAIAttribution {
			query = query.Where("ai_attributed_conversions > 0")
		} else {
			query = query.Where("ai_attributed_conversions = 0")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit == 0 {
		filter.Limit = 100
	}

	err := query.Order("computed_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *repository) Summary(ctx context.Context) (*GlobalSummary, error) {
	var agg struct {
		TotalSessions           int64
		TotalQueries            int64
		TotalAIResultClicks     int64
		TotalEcommerceVisits    int64
		TotalProductsViewed     int64
		TotalConversions        int64
		AIAttributedConversions int64
		SessionsWithConversions int64
		SessionsWithAttribution int64
	}

	err := r.db.WithContext(ctx).Model(&SessionMetrics{}).
		Select(`COUNT(*) AS total_sessions,
			COALESCE(SUM(query_count), 0) AS total_queries,
			COALESCE(SUM(ai_result_clicks), 0) AS total_ai_result_clicks,
			COALESCE(SUM(ecommerce_visits), 0) AS total_ecommerce_visits,
			COALESCE(SUM(products_viewed), 0) AS total_products_viewed,
			COALESCE(SUM(conversions), 0) AS total_conversions,
			COALESCE(SUM(ai_attributed_conversions), 0) AS ai_attributed_conversions,
			COALESCE(SUM(CASE WHEN conversions > 0 THEN 1 ELSE 0 END), 0) AS sessions_with_conversions,
			COALESCE(SUM(CASE WHEN ai_attributed_conversions > 0 THEN 1 ELSE 0 END), 0) AS sessions_with_attribution`).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	summary := &GlobalSummary{
		TotalSessions:           agg.TotalSessions,
		TotalQueries:            agg.TotalQueries,
		TotalAIResultClicks:     agg.TotalAIResultClicks,
		TotalEcommerceVisits:    agg.TotalEcommerceVisits,
		TotalProductsViewed:     agg.TotalProductsViewed,
		TotalConversions:        agg.TotalConversions,
		AIAttributedConversions: agg.AIAttributedConversions,
	}

	// An empty session set yields zero rates, not a division error.
	if agg.TotalSessions > 0 {
		summary.AvgQueriesPerSession = float64(agg.TotalQueries) / float64(agg.TotalSessions)
		summary.ConversionRate = float64(agg.SessionsWithConversions) / float64(agg.TotalSessions) * 100
		summary.AIAttributionRate = float64(agg.SessionsWithAttribution) / float64(agg.TotalSessions) * 100
	}

	return summary, nil
}

func (r *repository) Timeline(ctx context.Context, days int) ([]TimelineBucket, error) {
	if days <= 0 {
		days = 30
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var buckets []TimelineBucket
	err := r.db.WithContext(ctx).Raw(`
		SELECT DATE(timestamp) AS date,
		       COUNT(*) AS events,
		       SUM(CASE WHEN event_type = 'conversion' THEN 1 ELSE 0 END) AS conversions
		FROM session_events
		WHERE timestamp >= ?
		GROUP BY DATE(timestamp)
		ORDER BY date DESC`, cutoff).
		Scan(&buckets).Error
	return buckets, err
}

func (r *repository) TopParticipants(ctx context.Context, limit int) ([]ParticipantRollup, error) {
	if limit <= 0 {
		limit = 10
	}

	var rollups []ParticipantRollup
	err := r.db.WithContext(ctx).Raw(`
		SELECT s.participant_id,
		       COUNT(s.id) AS session_count,
		       COALESCE(SUM(s.total_events), 0) AS total_events,
		       COALESCE(SUM((SELECT COUNT(*) FROM session_events e
		                     WHERE e.session_id = s.id AND e.event_type = 'conversion')), 0) AS conversions
		FROM sessions s
		GROUP BY s.participant_id
		ORDER BY session_count DESC, total_events DESC
		LIMIT ?`, limit).
		Scan(&rollups).Error
	return rollups, err
}
