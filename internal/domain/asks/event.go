package asks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NormalizedEvent is one ingested message, email, or transcript (a Content Unit).
type NormalizedEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"workspace_id"`
	SourceType  SourceType `gorm:"column:source_type;not null;index" json:"source_type"`
	SourceRef   string     `gorm:"column:source_ref" json:"source_ref,omitempty"`
	ActorRole   ActorRole  `gorm:"column:actor_role;not null;default:'unknown'" json:"actor_role"`
	CleanedText string     `gorm:"column:cleaned_text;type:text;not null" json:"cleaned_text"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	ProcessingStage  EventStage     `gorm:"column:processing_stage;not null;index" json:"processing_stage"`
	SignalScore      float64        `gorm:"column:signal_score;not null;default:0" json:"signal_score"`
	ScoreReason      string         `gorm:"column:score_reason" json:"score_reason,omitempty"`
	ScoreKeywords    datatypes.JSON `gorm:"column:score_keywords" json:"score_keywords,omitempty"`
	SkipAIProcessing bool           `gorm:"column:skip_ai_processing;not null;default:false;index" json:"skip_ai_processing"`

	ScoredAt    *time.Time `gorm:"column:scored_at;index" json:"scored_at,omitempty"`
	ChunkedAt   *time.Time `gorm:"column:chunked_at" json:"chunked_at,omitempty"`
	ExtractedAt *time.Time `gorm:"column:extracted_at" json:"extracted_at,omitempty"`

	LockToken  *string        `gorm:"column:lock_token;index" json:"lock_token,omitempty"`
	LockedAt   *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	RetryCount int            `gorm:"column:retry_count;not null;default:0;index" json:"retry_count"`
	LastError  string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	ErrorLog   datatypes.JSON `gorm:"column:error_log" json:"error_log,omitempty"`

	OccurredAt time.Time `gorm:"column:occurred_at;not null;index" json:"occurred_at"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (NormalizedEvent) TableName() string { return "normalized_event" }

func (e *NormalizedEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ProcessingStage == "" {
		e.ProcessingStage = StagePending
	}
	if e.ActorRole == "" {
		e.ActorRole = ActorUnknown
	}
	if e.SourceType == "" {
		e.SourceType = SourceOther
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}

// EventMetadata is the typed view of NormalizedEvent.Metadata. Unknown keys from
// adapters are preserved in Extra.
type EventMetadata struct {
	Channel     string         `json:"channel,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
	IsReply     bool           `json:"is_reply,omitempty"`
	Participant int            `json:"participant_count,omitempty"`
	Extra       map[string]any `json:"-"`
}

var eventMetadataKeys = map[string]bool{
	"channel": true, "subject": true, "thread_id": true, "is_reply": true, "participant_count": true,
}

// ParseEventMetadata decodes raw metadata; malformed JSON yields an empty value.
func ParseEventMetadata(raw datatypes.JSON) EventMetadata {
	var md EventMetadata
	if len(raw) == 0 {
		return md
	}
	_ = json.Unmarshal(raw, &md)
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return md
	}
	for k, v := range all {
		if eventMetadataKeys[k] {
			continue
		}
		if md.Extra == nil {
			md.Extra = map[string]any{}
		}
		md.Extra[k] = v
	}
	return md
}
