package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UploadRequest is the ingestion payload posted by the extension. Events stay
// loosely typed; the pipeline validates and coerces them downstream.
type UploadRequest struct {
	SessionID       string                   `json:"sessionId"`
	ParticipantID   string                   `json:"participantId"`
	UploadTimestamp *int64                   `json:"uploadTimestamp,omitempty"`
	Events          []map[string]interface{} `json:"events"`
}

// UploadResponse acknowledges one committed upload batch
type UploadResponse struct {
	Success        bool      `json:"success"`
	SessionID      string    `json:"session_id"`
	EventsReceived int       `json:"events_received"`
	EventsDropped  int       `json:"events_dropped"`
	UploadID       uuid.UUID `json:"upload_id"`
}

// SessionResponse represents one session
type SessionResponse struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       string     `json:"session_id"`
	ParticipantID   string     `json:"participant_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationSeconds *int       `json:"duration_seconds"`
	TotalEvents     int        `json:"total_events"`
	TotalPages      int        `json:"total_pages"`
	IsActive        bool       `json:"is_active"`
	IsComplete      bool       `json:"is_complete"`
	UserAgent       string     `json:"user_agent,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
}

// SessionListResponse is the paginated session listing
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// SessionDetailResponse is one session with event-type counts and uploads
type SessionDetailResponse struct {
	SessionResponse
	EventSummary map[string]int64      `json:"event_summary"`
	Uploads      []UploadInfoResponse  `json:"uploads"`
}

// UploadInfoResponse represents one upload batch record
type UploadInfoResponse struct {
	ID              uuid.UUID  `json:"id"`
	UploadTimestamp time.Time  `json:"upload_timestamp"`
	EventCount      int        `json:"event_count"`
	DataSizeBytes   int        `json:"data_size_bytes"`
	IsProcessed     bool       `json:"is_processed"`
	ProcessedAt     *time.Time `json:"processed_at"`
}

// EventResponse represents one structured event row
type EventResponse struct {
	ID             uuid.UUID       `json:"id"`
	EventType      string          `json:"event_type"`
	Timestamp      time.Time       `json:"timestamp"`
	EventData      json.RawMessage `json:"event_data"`
	URL            *string         `json:"url"`
	Title          *string         `json:"title"`
	TabID          *int            `json:"tab_id"`
	PlatformType   *string         `json:"platform_type,omitempty"`
	PlatformName   *string         `json:"platform_name,omitempty"`
	QueryText      *string         `json:"query_text,omitempty"`
	ClickedURL     *string         `json:"clicked_url,omitempty"`
	IsAIAttributed bool            `json:"is_ai_attributed"`
	ScrollDepth    *int            `json:"scroll_depth,omitempty"`
	DwellTimeMS    *int            `json:"dwell_time_ms,omitempty"`
}

// EventListResponse is the paginated event listing
type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// SessionExportResponse is a session's full event history as one document
type SessionExportResponse struct {
	Session         SessionResponse `json:"session"`
	Events          []EventResponse `json:"events"`
	EventCount      int             `json:"event_count"`
	ExportTimestamp time.Time       `json:"export_timestamp"`
}
