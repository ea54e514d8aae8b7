package asks

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type MentionRepo interface {
	Create(dbc dbctx.Context, link *asks.MessageCustomerAsk) (*asks.MessageCustomerAsk, error)
	GetByEventFeature(dbc dbctx.Context, eventID, featureID uuid.UUID) (*asks.MessageCustomerAsk, error)
	HasPrimary(dbc dbctx.Context, eventID uuid.UUID) (bool, error)
	ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.MessageCustomerAsk, error)
	ListByFeatures(dbc dbctx.Context, featureIDs []uuid.UUID) ([]*asks.MessageCustomerAsk, error)
	CountByFeature(dbc dbctx.Context, featureID uuid.UUID) (int64, error)
	Repoint(dbc dbctx.Context, id uuid.UUID, featureID uuid.UUID) error
	SetPrimary(dbc dbctx.Context, id uuid.UUID, primary bool) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type mentionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMentionRepo(db *gorm.DB, baseLog *logger.Logger) MentionRepo {
	return &mentionRepo{db: db, log: baseLog.With("repo", "MentionRepo")}
}

func (r *mentionRepo) Create(dbc dbctx.Context, link *asks.MessageCustomerAsk) (*asks.MessageCustomerAsk, error) {
	if link == nil {
		return nil, errors.New("nil link")
	}
	if err := dbc.DB(r.db).Create(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

func (r *mentionRepo) GetByEventFeature(dbc dbctx.Context, eventID, featureID uuid.UUID) (*asks.MessageCustomerAsk, error) {
	var out asks.MessageCustomerAsk
	err := dbc.DB(r.db).
		Where("event_id = ? AND feature_id = ?", eventID, featureID).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *mentionRepo) HasPrimary(dbc dbctx.Context, eventID uuid.UUID) (bool, error) {
	var n int64
	if err := dbc.DB(r.db).Model(&asks.MessageCustomerAsk{}).
		Where("event_id = ? AND is_primary = ?", eventID, true).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mentionRepo) ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.MessageCustomerAsk, error) {
	var out []*asks.MessageCustomerAsk
	if err := dbc.DB(r.db).
		Where("event_id = ?", eventID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mentionRepo) ListByFeatures(dbc dbctx.Context, featureIDs []uuid.UUID) ([]*asks.MessageCustomerAsk, error) {
	var out []*asks.MessageCustomerAsk
	if len(featureIDs) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("feature_id IN ?", featureIDs).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mentionRepo) CountByFeature(dbc dbctx.Context, featureID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&asks.MessageCustomerAsk{}).
		Where("feature_id = ?", featureID).
		Count(&n).Error
	return n, err
}

func (r *mentionRepo) Repoint(dbc dbctx.Context, id uuid.UUID, featureID uuid.UUID) error {
	return dbc.DB(r.db).Model(&asks.MessageCustomerAsk{}).
		Where("id = ?", id).
		Update("feature_id", featureID).Error
}

func (r *mentionRepo) SetPrimary(dbc dbctx.Context, id uuid.UUID, primary bool) error {
	return dbc.DB(r.db).Model(&asks.MessageCustomerAsk{}).
		Where("id = ?", id).
		Update("is_primary", primary).Error
}

func (r *mentionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&asks.MessageCustomerAsk{}).Error
}
