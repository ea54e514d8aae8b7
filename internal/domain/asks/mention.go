package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageCustomerAsk links a NormalizedEvent to a Feature. At most one row per
// (event, feature) and at most one primary row per event.
type MessageCustomerAsk struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	EventID         uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_mention_event_feature,priority:1;uniqueIndex:idx_mention_primary,where:is_primary = true" json:"event_id"`
	FeatureID       uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_mention_event_feature,priority:2;index" json:"feature_id"`
	FactID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"fact_id"`
	ChunkID         *uuid.UUID  `gorm:"type:uuid" json:"chunk_id,omitempty"`
	MatchConfidence float64     `gorm:"column:match_confidence;not null" json:"match_confidence"`
	MatchReason     MatchReason `gorm:"column:match_reason;not null" json:"match_reason"`
	IsPrimary       bool        `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
	CreatedAt       time.Time   `gorm:"not null" json:"created_at"`
}

func (MessageCustomerAsk) TableName() string { return "message_customer_ask" }

func (m *MessageCustomerAsk) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
