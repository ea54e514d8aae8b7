package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feature is the canonical, deduplicated customer ask. The pipeline never deletes one.
type Feature struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	ThemeID     *uuid.UUID `gorm:"type:uuid;index" json:"theme_id,omitempty"`

	Name        string        `gorm:"column:name;not null" json:"name"`
	Description string        `gorm:"column:description;type:text" json:"description"`
	Urgency     string        `gorm:"column:urgency" json:"urgency,omitempty"`
	Status      FeatureStatus `gorm:"column:status;not null;index" json:"status"`

	MentionCount    int     `gorm:"column:mention_count;not null;default:0" json:"mention_count"`
	MatchConfidence float64 `gorm:"column:match_confidence;not null;default:0" json:"match_confidence"`

	FirstMentionedAt time.Time  `gorm:"column:first_mentioned_at;not null" json:"first_mentioned_at"`
	LastMentionedAt  time.Time  `gorm:"column:last_mentioned_at;not null;index" json:"last_mentioned_at"`
	MergedIntoID     *uuid.UUID `gorm:"type:uuid;column:merged_into_id" json:"merged_into_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Feature) TableName() string { return "feature" }

func (f *Feature) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = FeatureOpen
	}
	return nil
}

// CustomerAsk is the user-facing name for a Feature.
type CustomerAsk = Feature
