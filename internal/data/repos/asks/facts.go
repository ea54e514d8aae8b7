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

type FactRepo interface {
	Create(dbc dbctx.Context, facts []*asks.ExtractedFact) ([]*asks.ExtractedFact, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.ExtractedFact, error)
	ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.ExtractedFact, error)
	// CanonicalHashes maps content_hash to the first non-duplicate fact of the event.
	CanonicalHashes(dbc dbctx.Context, eventID uuid.UUID) (map[string]uuid.UUID, error)
	// MarkDuplicateOf turns a fact into a skipped duplicate outside the lock protocol
	// (used by reconciliation on rows that are already aggregated).
	MarkDuplicateOf(dbc dbctx.Context, id uuid.UUID, canonicalID uuid.UUID) error
	RepointFeature(dbc dbctx.Context, fromFeatureIDs []uuid.UUID, toFeatureID uuid.UUID) (int64, error)
}

type factRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFactRepo(db *gorm.DB, baseLog *logger.Logger) FactRepo {
	return &factRepo{db: db, log: baseLog.With("repo", "FactRepo")}
}

func (r *factRepo) Create(dbc dbctx.Context, facts []*asks.ExtractedFact) ([]*asks.ExtractedFact, error) {
	if len(facts) == 0 {
		return []*asks.ExtractedFact{}, nil
	}
	if err := dbc.DB(r.db).Create(&facts).Error; err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *factRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*asks.ExtractedFact, error) {
	var out asks.ExtractedFact
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *factRepo) ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.ExtractedFact, error) {
	var out []*asks.ExtractedFact
	if err := dbc.DB(r.db).
		Where("event_id = ?", eventID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) CanonicalHashes(dbc dbctx.Context, eventID uuid.UUID) (map[string]uuid.UUID, error) {
	var rows []struct {
		ID          uuid.UUID
		ContentHash string
	}
	if err := dbc.DB(r.db).
		Model(&asks.ExtractedFact{}).
		Select("id, content_hash").
		Where("event_id = ? AND is_duplicate = ?", eventID, false).
		Order("created_at ASC, id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		if _, ok := out[row.ContentHash]; !ok {
			out[row.ContentHash] = row.ID
		}
	}
	return out, nil
}

func (r *factRepo) MarkDuplicateOf(dbc dbctx.Context, id uuid.UUID, canonicalID uuid.UUID) error {
	return dbc.DB(r.db).Model(&asks.ExtractedFact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_duplicate":       true,
			"duplicate_of_id":    canonicalID,
			"aggregation_status": string(asks.AggregationSkipped),
			"skip_reason":        asks.SkipReasonDuplicate,
			"feature_id":         nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *factRepo) RepointFeature(dbc dbctx.Context, fromFeatureIDs []uuid.UUID, toFeatureID uuid.UUID) (int64, error) {
	if len(fromFeatureIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Model(&asks.ExtractedFact{}).
		Where("feature_id IN ?", fromFeatureIDs).
		Updates(map[string]any{"feature_id": toFeatureID, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
