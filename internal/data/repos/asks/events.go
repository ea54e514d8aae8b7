package asks

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type EventRepo interface {
	// CreatePending is the intake seam for ingestion adapters.
	CreatePending(dbc dbctx.Context, events []*asks.NormalizedEvent) ([]*asks.NormalizedEvent, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.NormalizedEvent, error)
	StageCounts(dbc dbctx.Context, workspaceID *uuid.UUID) (map[asks.EventStage]int64, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) CreatePending(dbc dbctx.Context, events []*asks.NormalizedEvent) ([]*asks.NormalizedEvent, error) {
	if len(events) == 0 {
		return []*asks.NormalizedEvent{}, nil
	}
	now := time.Now().UTC()
	for _, e := range events {
		e.ProcessingStage = asks.StagePending
		e.ScoredAt, e.ChunkedAt, e.ExtractedAt = nil, nil, nil
		e.LockToken, e.LockedAt = nil, nil
		e.RetryCount = 0
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
	}
	if err := dbc.DB(r.db).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.NormalizedEvent, error) {
	var out asks.NormalizedEvent
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *eventRepo) StageCounts(dbc dbctx.Context, workspaceID *uuid.UUID) (map[asks.EventStage]int64, error) {
	var rows []struct {
		ProcessingStage string
		N               int64
	}
	q := dbc.DB(r.db).Model(&asks.NormalizedEvent{}).Select("processing_stage, COUNT(*) AS n")
	if workspaceID != nil && *workspaceID != uuid.Nil {
		q = q.Where("workspace_id = ?", *workspaceID)
	}
	if err := q.Group("processing_stage").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[asks.EventStage]int64, len(rows))
	for _, row := range rows {
		out[asks.EventStage(row.ProcessingStage)] = row.N
	}
	return out, nil
}
