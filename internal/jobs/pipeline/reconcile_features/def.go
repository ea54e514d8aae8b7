package reconcile_features

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	set        *repos.Set
	similarity float64
}

func New(db *gorm.DB, baseLog *logger.Logger, set *repos.Set, similarity float64) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", steps.StageReconcileFeatures),
		set:        set,
		similarity: similarity,
	}
}

func (p *Pipeline) Type() string { return steps.StageReconcileFeatures }
