package handlers

import (
	"encoding/json"

	"github.com/vinli0921/GEO-exploration/internal/api/dto"
	"github.com/vinli0921/GEO-exploration/internal/domain/metrics"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
)

// Sessions
func SessionToResponse(s *session.Session) *dto.SessionResponse {
	if s == nil {
		return nil
	}
	return &dto.SessionResponse{
		ID:              s.ID,
		SessionID:       s.SessionID,
		ParticipantID:   s.ParticipantID,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		DurationSeconds: s.DurationSeconds,
		TotalEvents:     s.TotalEvents,
		TotalPages:      s.TotalPages,
		IsActive:        s.IsActive,
		IsComplete:      s.IsComplete,
		UserAgent:       s.UserAgent,
		Timezone:        s.Timezone,
	}
}

func UploadToResponse(u *session.Upload) *dto.UploadInfoResponse {
	if u == nil {
		return nil
	}
	return &dto.UploadInfoResponse{
		ID:              u.ID,
		UploadTimestamp: u.UploadTimestamp,
		EventCount:      u.EventCount,
		DataSizeBytes:   u.DataSizeBytes,
		IsProcessed:     u.IsProcessed,
		ProcessedAt:     u.ProcessedAt,
	}
}

func EventToResponse(e *session.SessionEvent) *dto.EventResponse {
	if e == nil {
		return nil
	}
	return &dto.EventResponse{
		ID:             e.ID,
		EventType:      e.EventType,
		Timestamp:      e.Timestamp,
		EventData:      json.RawMessage(e.EventData),
		URL:            e.URL,
		Title:          e.Title,
		TabID:          e.TabID,
		PlatformType:   e.PlatformType,
		PlatformName:   e.PlatformName,
		QueryText:      e.QueryText,
		ClickedURL:     e.ClickedURL,
		IsAIAttributed: e.IsAIAttributed,
		ScrollDepth:    e.ScrollDepth,
		DwellTimeMS:    e.DwellTimeMS,
	}
}

func EventsToResponse(events []session.SessionEvent) []dto.EventResponse {
	out := make([]dto.EventResponse, len(events))
	for i := range events {
		out[i] = *EventToResponse(&events[i])
	}
	return out
}

// Metrics
func MetricsToResponse(m *metrics.SessionMetrics) *dto.SessionMetricsResponse {
	if m == nil {
		return nil
	}
	platforms := []string(m.AIPlatformsUsed)
	if platforms == nil {
		platforms = []string{}
	}
	return &dto.SessionMetricsResponse{
		ID:                      m.ID,
		SessionID:               m.SessionKey,
		ParticipantID:           m.ParticipantID,
		QueryCount:              m.QueryCount,
		AvgQueryLength:          m.AvgQueryLength,
		AIPlatformsUsed:         platforms,
		AIResultClicks:          m.AIResultClicks,
		AIDwellTimeSeconds:      m.AIDwellTimeSeconds,
		EcommerceVisits:         m.EcommerceVisits,
		ProductsViewed:          m.ProductsViewed,
		Conversions:             m.Conversions,
		AIAttributedConversions: m.AIAttributedConversions,
		AIToPurchaseSeconds:     m.AIToPurchaseSeconds,
		ComputedAt:              m.ComputedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}
