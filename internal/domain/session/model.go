package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RawEvent is one loosely-typed event record as sent by the extension.
type RawEvent map[string]interface{}

// Session represents one recording session for one participant
type Session struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	SessionID     string    `gorm:"size:128;uniqueIndex;not null"`
	ParticipantID string    `gorm:"size:64;index;not null"`

	StartedAt time.Time  `gorm:"not null;default:current_timestamp"`
	EndedAt   *time.Time `gorm:"default:null"`

	UserAgent string `gorm:"type:text"`
	Timezone  string `gorm:"size:64"`

	TotalEvents     int  `gorm:"default:0;not null"`
	TotalPages      int  `gorm:"default:0;not null"`
	DurationSeconds *int `gorm:"default:null"`

	IsActive   bool `gorm:"default:true;not null"`
	IsComplete bool `gorm:"default:false;not null"`

	CreatedAt time.Time `gorm:"not null;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"not null;default:current_timestamp;autoUpdateTime"`

	Events  []SessionEvent `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Uploads []Upload       `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// BeforeCreate is called before creating a new session record
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SessionEvent is one structured, queryable record derived from a raw event.
// The full original payload is retained in EventData; the typed columns are
// promoted by the field extractor and may be null when the source value was
// missing or could not be coerced.
type SessionEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index"`
	UploadID  uuid.UUID `gorm:"type:uuid;index"`

	EventType string         `gorm:"size:64;not null;index"`
	Timestamp time.Time      `gorm:"not null;index"`
	EventData datatypes.JSON `gorm:"not null"`

	// Page context
	URL   *string `gorm:"type:text"`
	Title *string `gorm:"type:text"`
	TabID *int    `gorm:"default:null"`

	// Extracted fields
	PlatformType   *string `gorm:"size:32;index"`
	PlatformName   *string `gorm:"size:64"`
	QueryText      *string `gorm:"type:text"`
	ClickedURL     *string `gorm:"type:text"`
	IsAIAttributed bool    `gorm:"default:false;not null"`
	ScrollDepth    *int    `gorm:"default:null"`
	DwellTimeMS    *int    `gorm:"default:null"`

	CreatedAt time.Time `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the SessionEvent model
func (SessionEvent) TableName() string {
	return "session_events"
}

func (e *SessionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Upload tracks one batch upload from the extension. EventCount reflects the
// post-filter count persisted as structured rows; the raw blob at StorageKey
// retains the original unfiltered payload.
type Upload struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index"`

	UploadTimestamp time.Time `gorm:"not null;default:current_timestamp"`
	EventCount      int       `gorm:"not null"`
	DataSizeBytes   int       `gorm:"default:0"`

	StorageKey   string `gorm:"type:text"`
	IsCompressed bool   `gorm:"default:false;not null"`

	IsProcessed bool       `gorm:"default:false;not null"`
	ProcessedAt *time.Time `gorm:"default:null"`

	CreatedAt time.Time `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the Upload model
func (Upload) TableName() string {
	return "uploads"
}

func (u *Upload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
