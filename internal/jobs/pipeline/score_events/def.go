package score_events

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/scoring"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	locks     *repos.EventLocks
	scorer    *scoring.Scorer
	wake      wake.Bus
	batchSize int
}

func New(db *gorm.DB, baseLog *logger.Logger, locks *repos.EventLocks, scorer *scoring.Scorer, bus wake.Bus, batchSize int) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", steps.StageScoreEvents),
		locks:     locks,
		scorer:    scorer,
		wake:      bus,
		batchSize: batchSize,
	}
}

func (p *Pipeline) Type() string { return steps.StageScoreEvents }
