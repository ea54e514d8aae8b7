package asks

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type RunRepo interface {
	Create(dbc dbctx.Context, run *asks.AggregationRun) (*asks.AggregationRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.AggregationRun, error)
	// Finalize writes the terminal fields once; a finished run is never touched again.
	Finalize(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error)
	ListRecent(dbc dbctx.Context, workspaceID *uuid.UUID, limit int) ([]*asks.AggregationRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "AggregationRunRepo")}
}

func (r *runRepo) Create(dbc dbctx.Context, run *asks.AggregationRun) (*asks.AggregationRun, error) {
	if run == nil {
		return nil, errors.New("nil run")
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.AggregationRun, error) {
	var out asks.AggregationRun
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *runRepo) Finalize(dbc dbctx.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	res := dbc.DB(r.db).Model(&asks.AggregationRun{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *runRepo) ListRecent(dbc dbctx.Context, workspaceID *uuid.UUID, limit int) ([]*asks.AggregationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := dbc.DB(r.db)
	if workspaceID != nil && *workspaceID != uuid.Nil {
		q = q.Where("workspace_id = ?", *workspaceID)
	}
	var out []*asks.AggregationRun
	if err := q.Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
