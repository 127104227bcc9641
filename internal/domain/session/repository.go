package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrUploadNotFound  = errors.New("upload not found")
	ErrInvalidUpload   = errors.New("invalid upload")
)

// SessionFilter defines the filtering options for listing sessions
type SessionFilter struct {
	ParticipantID *string
	IsActive      *bool
	IsComplete    *bool
	Limit         int
	Offset        int
}

// EventFilter defines the filtering options for listing a session's events
type EventFilter struct {
	EventType *string
	Limit     int
	Offset    int
}

// GlobalStats holds cross-session counts for the stats surface
type GlobalStats struct {
	TotalSessions     int64 `json:"total_sessions"`
	ActiveSessions    int64 `json:"active_sessions"`
	CompleteSessions  int64 `json:"complete_sessions"`
	TotalEvents       int64 `json:"total_events"`
	TotalParticipants int64 `json:"total_participants"`
}

// Repository defines the interface for session persistence operations
type Repository interface {
	// WithTx runs fn inside one transaction; the Repository passed to fn is
	// bound to that transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	FindBySessionID(ctx context.Context, sessionID string) (*Session, error)
	// FindBySessionIDForUpdate locks the session row for the duration of the
	// enclosing transaction so concurrent batches for one session serialize.
	FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int64, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	CreateUpload(ctx context.Context, u *Upload) error
	UpdateUpload(ctx context.Context, u *Upload) error
	ListUploads(ctx context.Context, sessionID uuid.UUID) ([]Upload, error)

	CreateEvents(ctx context.Context, events []SessionEvent) error
	ListEvents(ctx context.Context, sessionID uuid.UUID, filter EventFilter) ([]SessionEvent, int64, error)
	AllEvents(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error)
	EventTypeCounts(ctx context.Context, sessionID uuid.UUID) (map[string]int64, error)

	GlobalStats(ctx context.Context) (*GlobalStats, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

// CreateSession inserts a new session row. When another writer already
// inserted the same session_id the insert is a no-op and ErrSessionExists
// is returned, leaving the surrounding transaction usable.
func (r *repository) CreateSession(ctx context.Context, s *Session) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(s)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionExists
	}
	return nil
}

func (r *repository) UpdateSession(ctx context.Context, s *Session) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *repository) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*Session, error) {
	query := r.db.WithContext(ctx)
	// SQLite serializes writers on its own and rejects FOR UPDATE.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var s Session
	result := query.Where("session_id = ?", sessionID).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *repository) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int64, error) {
	var sessions []Session
	var total int64
	query := r.db.WithContext(ctx).Model(&Session{})

	if filter.ParticipantID != nil {
		query = query.Where("participant_id = ?", *filter.ParticipantID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsComplete != nil {
		query = query.Where("is_complete = ?", *filter.IsComplete)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit == 0 {
		filter.Limit = 100
	}

	err := query.Order("started_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// DeleteSession removes a session and its dependent rows. Administrative
// surface; the ingestion core never deletes.
func (r *repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&SessionEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&Upload{}).Error; err != nil {
			return err
		}
		// Derived metrics rows go with the session. Addressed by table name:
		// the metrics package depends on this one, not the other way around.
		if err := tx.Exec("DELETE FROM session_metrics WHERE session_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&Session{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

func (r *repository) CreateUpload(ctx context.Context, u *Upload) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *repository) UpdateUpload(ctx context.Context, u *Upload) error {
	result := r.db.WithContext(ctx).Save(u)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUploadNotFound
	}
	return nil
}

func (r *repository) ListUploads(ctx context.Context, sessionID uuid.UUID) ([]Upload, error) {
	var uploads []Upload
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("upload_timestamp ASC").
		Find(&uploads).Error
	return uploads, err
}

func (r *repository) CreateEvents(ctx context.Context, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 500).Error
}

func (r *repository) ListEvents(ctx context.Context, sessionID uuid.UUID, filter EventFilter) ([]SessionEvent, int64, error) {
	var events []SessionEvent
	var total int64
	query := r.db.WithContext(ctx).Model(&SessionEvent{}).
		Where("session_id = ?", sessionID)

	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit == 0 {
		filter.Limit = 1000
	}

	err := query.Order("timestamp ASC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *repository) AllEvents(ctx context.Context, sessionID uuid.UUID) ([]SessionEvent, error) {
	var events []SessionEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) EventTypeCounts(ctx context.Context, sessionID uuid.UUID) (map[string]int64, error) {
	var results []struct {
		EventType string
		Count     int64
	}

	err := r.db.WithContext(ctx).Model(&SessionEvent{}).
		Select("event_type, count(*) as count").
		Where("session_id = ?", sessionID).
		Group("event_type").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, result := range results {
		counts[result.EventType] = result.Count
	}
	return counts, nil
}

func (r *repository) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	db := r.db.WithContext(ctx)

	if err := db.Model(&Session{}).Count(&stats.TotalSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Session{}).Where("is_active = ?", true).Count(&stats.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Session{}).Where("is_complete = ?", true).Count(&stats.CompleteSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Session{}).Select("COALESCE(SUM(total_events), 0)").Scan(&stats.TotalEvents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Session{}).Select("COUNT(DISTINCT participant_id)").Scan(&stats.TotalParticipants).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
