package extract_facts

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	set         *repos.Set
	ai          asksai.Service
	wake        wake.Bus
	batchSize   int
	concurrency int
}

func New(db *gorm.DB, baseLog *logger.Logger, set *repos.Set, ai asksai.Service, bus wake.Bus, batchSize, concurrency int) *Pipeline {
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", steps.StageExtractFacts),
		set:         set,
		ai:          ai,
		wake:        bus,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

func (p *Pipeline) Type() string { return steps.StageExtractFacts }
