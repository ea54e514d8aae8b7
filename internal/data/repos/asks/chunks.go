package asks

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type ChunkRepo interface {
	// CreateIgnoreConflict inserts chunks, leaving any existing (event_id, chunk_index) row untouched.
	CreateIgnoreConflict(dbc dbctx.Context, chunks []*asks.EventChunk) (int64, error)
	ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.EventChunk, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) CreateIgnoreConflict(dbc dbctx.Context, chunks []*asks.EventChunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "chunk_index"}},
			DoNothing: true,
		}).
		Create(&chunks)
	return res.RowsAffected, res.Error
}

func (r *chunkRepo) ListByEvent(dbc dbctx.Context, eventID uuid.UUID) ([]*asks.EventChunk, error) {
	var out []*asks.EventChunk
	if err := dbc.DB(r.db).
		Where("event_id = ?", eventID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
