package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AggregationRun audits one Aggregator execution. Immutable once FinishedAt is set.
type AggregationRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID *uuid.UUID     `gorm:"type:uuid;index" json:"workspace_id,omitempty"`
	Status      RunStatus      `gorm:"column:status;not null;index" json:"status"`
	Config      datatypes.JSON `gorm:"column:config" json:"config"`

	FactsProcessed  int `gorm:"column:facts_processed;not null;default:0" json:"facts_processed"`
	FactsAggregated int `gorm:"column:facts_aggregated;not null;default:0" json:"facts_aggregated"`
	FactsSkipped    int `gorm:"column:facts_skipped;not null;default:0" json:"facts_skipped"`
	DuplicatesFound int `gorm:"column:duplicates_found;not null;default:0" json:"duplicates_found"`
	FeaturesCreated int `gorm:"column:features_created;not null;default:0" json:"features_created"`
	FeaturesUpdated int `gorm:"column:features_updated;not null;default:0" json:"features_updated"`
	FactsFailed     int `gorm:"column:facts_failed;not null;default:0" json:"facts_failed"`

	Error      string     `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt  time.Time  `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (AggregationRun) TableName() string { return "aggregation_run" }

func (r *AggregationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	return nil
}
