package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventChunk is an ordered, immutable text segment of a NormalizedEvent.
type EventChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_chunk_order,priority:1" json:"event_id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null;uniqueIndex:idx_event_chunk_order,priority:2" json:"chunk_index"`
	Text       string    `gorm:"column:text;type:text;not null" json:"text"`
	CharCount  int       `gorm:"column:char_count;not null" json:"char_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (EventChunk) TableName() string { return "event_chunk" }

func (c *EventChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
