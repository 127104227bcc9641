package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/blobstore"
	"go.uber.org/zap"
)

var (
	eventsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_received_total",
		Help: "Raw events received in upload batches",
	})
	eventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_dropped_total",
		Help: "Events dropped by the allow-list filter before persistence",
	})
	uploadsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_uploads_total",
		Help: "Upload batches by outcome",
	}, []string{"outcome"})
)

// IngestInput is one upload batch from the extension.
type IngestInput struct {
	SessionID       string
	ParticipantID   string
	UploadTimestamp *int64
	Events          []RawEvent

	// RawJSON is the original request body, persisted unfiltered as the raw
	// blob. When nil the batch is re-encoded from the fields above.
	RawJSON []byte
}

// IngestResult reports one committed upload.
type IngestResult struct {
	SessionID      string
	UploadID       uuid.UUID
	EventsReceived int
	EventsDropped  int
}

// SessionDetail is a session with its per-type event counts and uploads.
type SessionDetail struct {
	Session      *Session
	EventSummary map[string]int64
	Uploads      []Upload
}

// SessionExport is a session's full event history as one document.
type SessionExport struct {
	Session         *Session       `json:"session"`
	Events          []SessionEvent `json:"events"`
	EventCount      int            `json:"event_count"`
	ExportTimestamp time.Time      `json:"export_timestamp"`
}

// Service coordinates ingestion and the session read surfaces.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	GetSession(ctx context.Context, sessionID string) (*SessionDetail, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int64, error)
	ListEvents(ctx context.Context, sessionID string, filter EventFilter) ([]SessionEvent, int64, error)
	ExportSession(ctx context.Context, sessionID string) (*SessionExport, error)
	Stats(ctx context.Context) (*GlobalStats, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type service struct {
	repo   Repository
	blobs  blobstore.Store
	logger *zap.Logger
}

func NewService(repo Repository, blobs blobstore.Store, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		blobs:  blobs,
		logger: logger,
	}
}

// Ingest processes one upload batch as a single all-or-nothing unit: it
// validates the batch, filters low-value events, resolves the session,
// persists the raw blob plus structured event rows, and updates session
// statistics and lifecycle state. On any failure nothing is committed and the
// blob is removed.
func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if err := validateUpload(input); err != nil {
		return nil, err
	}

	filtered := FilterEvents(input.Events)
	dropped := len(input.Events) - len(filtered)
	eventsReceivedTotal.Add(float64(len(input.Events)))
	eventsDroppedTotal.Add(float64(dropped))
	if dropped > 0 {
		s.logger.Debug("Filtered low-value events from batch",
			zap.String("session_id", input.SessionID),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(filtered)),
		)
	}

	now := time.Now().UTC()
	uploadID := uuid.New()

	rawJSON := input.RawJSON
	if rawJSON == nil {
		encoded, err := json.Marshal(map[string]interface{}{
			"sessionId":       input.SessionID,
			"participantId":   input.ParticipantID,
			"uploadTimestamp": input.UploadTimestamp,
			"events":          input.Events,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode upload payload: %w", err)
		}
		rawJSON = encoded
	}

	// The blob write happens outside the transaction's lock scope; it only
	// becomes visible through the Upload row committed below, and is removed
	// again when the transaction fails.
	storageKey := blobKey(input.ParticipantID, input.SessionID, uploadID, now)
	if err := s.blobs.Save(ctx, storageKey, rawJSON); err != nil {
		uploadsProcessedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store raw payload: %w", err)
	}

	uploadTimestamp := now
	if input.UploadTimestamp != nil {
		uploadTimestamp = time.UnixMilli(*input.UploadTimestamp).UTC()
	}

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		sess, err := resolveSession(ctx, tx, input.SessionID, input.ParticipantID, input.Events, now)
		if err != nil {
			return err
		}

		upload := &Upload{
			ID:              uploadID,
			SessionID:       sess.ID,
			UploadTimestamp: uploadTimestamp,
			EventCount:      len(filtered),
			DataSizeBytes:   len(rawJSON),
			StorageKey:      storageKey,
			IsCompressed:    true,
		}
		if err := tx.CreateUpload(ctx, upload); err != nil {
			return fmt.Errorf("failed to record upload: %w", err)
		}

		rows := make([]SessionEvent, 0, len(filtered))
		uniqueURLs := make(map[string]struct{})
		for _, raw := range filtered {
			row, warnings, err := BuildEvent(raw, now)
			if err != nil {
				return err
			}
			row.SessionID = sess.ID
			row.UploadID = uploadID
			if row.URL != nil {
				uniqueURLs[*row.URL] = struct{}{}
			}
			for _, field := range warnings {
				s.logger.Warn("Could not coerce event field",
					zap.String("session_id", input.SessionID),
					zap.String("event_type", row.EventType),
					zap.String("field", field),
				)
			}
			rows = append(rows, row)
		}
		if err := tx.CreateEvents(ctx, rows); err != nil {
			return fmt.Errorf("failed to persist events: %w", err)
		}

		// total_pages deliberately reflects only this batch's distinct URL
		// count, matching the extension protocol's current contract.
		sess.TotalEvents += len(filtered)
		sess.TotalPages = len(uniqueURLs)

		applySessionEnd(sess, filtered)

		processedAt := time.Now().UTC()
		upload.IsProcessed = true
		upload.ProcessedAt = &processedAt
		if err := tx.UpdateUpload(ctx, upload); err != nil {
			return fmt.Errorf("failed to mark upload processed: %w", err)
		}

		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; remove the orphaned blob.
		if delErr := s.blobs.Delete(ctx, storageKey); delErr != nil {
			s.logger.Error("Failed to remove orphaned blob after rollback",
				zap.String("storage_key", storageKey),
				zap.Error(delErr),
			)
		}
		uploadsProcessedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to process upload: %w", err)
	}

	uploadsProcessedTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Processed upload batch",
		zap.String("session_id", input.SessionID),
		zap.String("upload_id", uploadID.String()),
		zap.Int("events_received", len(input.Events)),
		zap.Int("events_persisted", len(filtered)),
	)

	return &IngestResult{
		SessionID:      input.SessionID,
		UploadID:       uploadID,
		EventsReceived: len(input.Events),
		EventsDropped:  dropped,
	}, nil
}

// resolveSession maps a batch to its session row, creating one on the first
// batch for an unseen session id. New-session metadata is seeded from a
// leading session_start event. The lookup takes a row lock so concurrent
// batches for the same session serialize on the aggregate update.
func resolveSession(ctx context.Context, tx Repository, sessionID, participantID string, events []RawEvent, now time.Time) (*Session, error) {
	sess, err := tx.FindBySessionIDForUpdate(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if err != ErrSessionNotFound {
		return nil, err
	}

	sess = &Session{
		ID:            uuid.New(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		StartedAt:     now,
		IsActive:      true,
	}

	if len(events) > 0 {
		first := events[0]
		if t, _ := first["type"].(string); t == EventSessionStart {
			if ua, ok := first["userAgent"].(string); ok {
				sess.UserAgent = ua
			}
			if tz, ok := first["timezone"].(string); ok {
				sess.Timezone = tz
			}
			if millis, ok := coerceInt64(first["timestamp"]); ok {
				sess.StartedAt = time.UnixMilli(millis).UTC()
			}
		}
	}

	if err := tx.CreateSession(ctx, sess); err != nil {
		// A concurrent first batch may have inserted the row between our
		// lookup and the insert. Fall back to the winner's row.
		if errors.Is(err, ErrSessionExists) {
			return tx.FindBySessionIDForUpdate(ctx, sessionID)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// applySessionEnd flips the lifecycle flags when the batch carries a terminal
// event.
func applySessionEnd(sess *Session, events []RawEvent) {
	for _, ev := range events {
		if t, _ := ev["type"].(string); t != EventSessionEnd {
			continue
		}
		endedAt := time.Now().UTC()
		if millis, ok := coerceInt64(ev["timestamp"]); ok {
			endedAt = time.UnixMilli(millis).UTC()
		}
		sess.IsActive = false
		sess.IsComplete = true
		sess.EndedAt = &endedAt
		if durationMS, ok := coerceInt64(ev["duration"]); ok {
			seconds := int(durationMS / 1000)
			sess.DurationSeconds = &seconds
		}
	}
}

// validateUpload enforces the structural contract for a batch. Violations
// fail fast with ErrInvalidUpload before any side effect.
func validateUpload(input IngestInput) error {
	if input.SessionID == "" {
		return fmt.Errorf("%w: missing required field: sessionId", ErrInvalidUpload)
	}
	if input.ParticipantID == "" {
		return fmt.Errorf("%w: missing required field: participantId", ErrInvalidUpload)
	}
	if len(input.Events) == 0 {
		return fmt.Errorf("%w: no events provided", ErrInvalidUpload)
	}
	for i, ev := range input.Events {
		if ev == nil {
			return fmt.Errorf("%w: event %d is not an object", ErrInvalidUpload, i)
		}
		if t, ok := ev["type"].(string); !ok || t == "" {
			return fmt.Errorf("%w: event %d missing type", ErrInvalidUpload, i)
		}
		if _, ok := ev["timestamp"]; !ok {
			return fmt.Errorf("%w: event %d missing timestamp", ErrInvalidUpload, i)
		}
	}
	return nil
}

// blobKey builds the storage key for one upload's raw payload.
func blobKey(participantID, sessionID string, uploadID uuid.UUID, ts time.Time) string {
	return fmt.Sprintf("%s/%s/upload_%s_%s.json.gz",
		participantID, sessionID, uploadID, ts.Format("20060102_150405"))
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sess, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary, err := s.repo.EventTypeCounts(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	uploads, err := s.repo.ListUploads(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	return &SessionDetail{
		Session:      sess,
		EventSummary: summary,
		Uploads:      uploads,
	}, nil
}

func (s *service) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int64, error) {
	return s.repo.ListSessions(ctx, filter)
}

func (s *service) ListEvents(ctx context.Context, sessionID string, filter EventFilter) ([]SessionEvent, int64, error) {
	sess, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListEvents(ctx, sess.ID, filter)
}

func (s *service) ExportSession(ctx context.Context, sessionID string) (*SessionExport, error) {
	sess, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.AllEvents(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	return &SessionExport{
		Session:         sess,
		Events:          events,
		EventCount:      len(events),
		ExportTimestamp: time.Now().UTC(),
	}, nil
}

func (s *service) Stats(ctx context.Context) (*GlobalStats, error) {
	return s.repo.GlobalStats(ctx)
}

func (s *service) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}

	uploads, err := s.repo.ListUploads(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to list uploads for deletion: %w", err)
	}

	if err := s.repo.DeleteSession(ctx, sess.ID); err != nil {
		return err
	}

	// Sweep the raw payload blobs after the rows are gone. A missing blob is
	// fine; anything else is logged and left for a manual cleanup.
	for _, u := range uploads {
		if u.StorageKey == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, u.StorageKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn("Failed to delete upload blob",
				zap.String("session_id", sessionID),
				zap.String("storage_key", u.StorageKey),
				zap.Error(err),
			)
		}
	}
	return nil
}
