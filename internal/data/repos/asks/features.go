package asks

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type FeatureRepo interface {
	Create(dbc dbctx.Context, f *asks.Feature) (*asks.Feature, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.Feature, error)
	// ListCandidates returns open features in the theme (or the whole workspace when themeID
	// is nil), most recently mentioned first.
	ListCandidates(dbc dbctx.Context, workspaceID uuid.UUID, themeID *uuid.UUID, limit int) ([]*asks.Feature, error)
	ListOpen(dbc dbctx.Context, workspaceID uuid.UUID) ([]*asks.Feature, error)
	OpenNames(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]string, error)
	WorkspacesWithOpen(dbc dbctx.Context) ([]uuid.UUID, error)
	// RecordMention bumps mention_count by one and moves last_mentioned_at forward only.
	RecordMention(dbc dbctx.Context, id uuid.UUID, at time.Time, confidence float64) error
	SetMentionCount(dbc dbctx.Context, id uuid.UUID, n int64) error
	MarkMerged(dbc dbctx.Context, id uuid.UUID, intoID uuid.UUID) error
	// LockOpen row-locks the still-open features among ids, in id order, for the rest of
	// the caller's transaction. Must run inside a transaction.
	LockOpen(dbc dbctx.Context, ids []uuid.UUID) ([]*asks.Feature, error)
}

type featureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeatureRepo(db *gorm.DB, baseLog *logger.Logger) FeatureRepo {
	return &featureRepo{db: db, log: baseLog.With("repo", "FeatureRepo")}
}

func (r *featureRepo) Create(dbc dbctx.Context, f *asks.Feature) (*asks.Feature, error) {
	if f == nil {
		return nil, errors.New("nil feature")
	}
	if err := dbc.DB(r.db).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func (r *featureRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.Feature, error) {
	var out asks.Feature
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *featureRepo) ListCandidates(dbc dbctx.Context, workspaceID uuid.UUID, themeID *uuid.UUID, limit int) ([]*asks.Feature, error) {
	q := dbc.DB(r.db).
		Where("workspace_id = ? AND status IN ?", workspaceID, asks.OpenFeatureStatuses)
	if themeID != nil && *themeID != uuid.Nil {
		q = q.Where("theme_id = ?", *themeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*asks.Feature
	if err := q.Order("last_mentioned_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *featureRepo) ListOpen(dbc dbctx.Context, workspaceID uuid.UUID) ([]*asks.Feature, error) {
	var out []*asks.Feature
	if err := dbc.DB(r.db).
		Where("workspace_id = ? AND status IN ?", workspaceID, asks.OpenFeatureStatuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *featureRepo) OpenNames(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]string, error) {
	var out []string
	q := dbc.DB(r.db).Model(&asks.Feature{}).
		Where("workspace_id = ? AND status IN ?", workspaceID, asks.OpenFeatureStatuses).
		Order("last_mentioned_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("name", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *featureRepo) WorkspacesWithOpen(dbc dbctx.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	if err := dbc.DB(r.db).Model(&asks.Feature{}).
		Where("status IN ?", asks.OpenFeatureStatuses).
		Distinct().
		Pluck("workspace_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RecordMention bumps an open feature. A feature merged away since it was offered as a
// candidate yields gorm.ErrRecordNotFound so the caller retries against fresh candidates.
func (r *featureRepo) RecordMention(dbc dbctx.Context, id uuid.UUID, at time.Time, confidence float64) error {
	res := dbc.DB(r.db).Model(&asks.Feature{}).
		Where("id = ? AND status IN ?", id, asks.OpenFeatureStatuses).
		Updates(map[string]any{
			"mention_count":     gorm.Expr("mention_count + 1"),
			"last_mentioned_at": gorm.Expr("CASE WHEN last_mentioned_at < ? THEN ? ELSE last_mentioned_at END", at, at),
			"match_confidence":  confidence,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *featureRepo) SetMentionCount(dbc dbctx.Context, id uuid.UUID, n int64) error {
	return dbc.DB(r.db).Model(&asks.Feature{}).
		Where("id = ?", id).
		Updates(map[string]any{"mention_count": n, "updated_at": time.Now().UTC()}).Error
}

func (r *featureRepo) MarkMerged(dbc dbctx.Context, id uuid.UUID, intoID uuid.UUID) error {
	return dbc.DB(r.db).Model(&asks.Feature{}).
		Where("id = ? AND status IN ?", id, asks.OpenFeatureStatuses).
		Updates(map[string]any{
			"status":         string(asks.FeatureMerged),
			"merged_into_id": intoID,
			"mention_count":  0,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *featureRepo) LockOpen(dbc dbctx.Context, ids []uuid.UUID) ([]*asks.Feature, error) {
	if len(ids) == 0 {
		return []*asks.Feature{}, nil
	}
	q := dbc.DB(r.db).
		Where("id IN ? AND status IN ?", ids, asks.OpenFeatureStatuses).
		Order("id ASC")
	if q.Dialector != nil && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out []*asks.Feature
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
