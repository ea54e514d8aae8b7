package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExtractedFact is one candidate request extracted from one chunk.
type ExtractedFact struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	EventID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_fact_event_hash,priority:1" json:"event_id"`
	ChunkID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"chunk_id"`
	ThemeID     *uuid.UUID `gorm:"type:uuid;index" json:"theme_id,omitempty"`

	Title        string         `gorm:"column:title;not null" json:"title"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	PriorityHint string         `gorm:"column:priority_hint" json:"priority_hint,omitempty"`
	UrgencyHint  string         `gorm:"column:urgency_hint" json:"urgency_hint,omitempty"`
	PersonaHint  string         `gorm:"column:persona_hint" json:"persona_hint,omitempty"`
	Keywords     datatypes.JSON `gorm:"column:keywords" json:"keywords,omitempty"`
	HintsExtra   datatypes.JSON `gorm:"column:hints_extra" json:"hints_extra,omitempty"`

	ExtractionConfidence float64 `gorm:"column:extraction_confidence;not null" json:"extraction_confidence"`
	ContentHash          string  `gorm:"column:content_hash;not null;index:idx_fact_event_hash,priority:2" json:"content_hash"`

	IsDuplicate   bool       `gorm:"column:is_duplicate;not null;default:false;index" json:"is_duplicate"`
	DuplicateOfID *uuid.UUID `gorm:"type:uuid;column:duplicate_of_id" json:"duplicate_of_id,omitempty"`

	AggregationStatus AggregationStatus `gorm:"column:aggregation_status;not null;index" json:"aggregation_status"`
	SkipReason        string            `gorm:"column:skip_reason" json:"skip_reason,omitempty"`
	FeatureID         *uuid.UUID        `gorm:"type:uuid;column:feature_id;index" json:"feature_id,omitempty"`
	AggregatedAt      *time.Time        `gorm:"column:aggregated_at" json:"aggregated_at,omitempty"`

	LockToken  *string        `gorm:"column:lock_token;index" json:"lock_token,omitempty"`
	LockedAt   *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	RetryCount int            `gorm:"column:retry_count;not null;default:0;index" json:"retry_count"`
	LastError  string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	ErrorLog   datatypes.JSON `gorm:"column:error_log" json:"error_log,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ExtractedFact) TableName() string { return "extracted_fact" }

func (f *ExtractedFact) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.AggregationStatus == "" {
		f.AggregationStatus = AggregationPending
	}
	return nil
}
