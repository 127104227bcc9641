package dto

import (
	"time"

	"github.com/google/uuid"
)

// SessionMetricsResponse represents the derived analytics row for one session
type SessionMetricsResponse struct {
	ID                      uuid.UUID `json:"id"`
	SessionID               string    `json:"session_id"`
	ParticipantID           string    `json:"participant_id"`
	QueryCount              int       `json:"query_count"`
	AvgQueryLength          float64   `json:"avg_query_length"`
	AIPlatformsUsed         []string  `json:"ai_platforms_used"`
	AIResultClicks          int       `json:"ai_result_clicks"`
	AIDwellTimeSeconds      float64   `json:"ai_dwell_time_seconds"`
	EcommerceVisits         int       `json:"ecommerce_visits"`
	ProductsViewed          int       `json:"products_viewed"`
	Conversions             int       `json:"conversions"`
	AIAttributedConversions int       `json:"ai_attributed_conversions"`
	AIToPurchaseSeconds     *float64  `json:"ai_to_purchase_seconds"`
	ComputedAt              time.Time `json:"computed_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// SessionMetricsListResponse is the paginated metrics listing
type SessionMetricsListResponse struct {
	Metrics []SessionMetricsResponse `json:"metrics"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}
