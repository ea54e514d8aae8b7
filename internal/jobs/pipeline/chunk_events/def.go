package chunk_events

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/chunking"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	locks     *repos.EventLocks
	chunks    repos.ChunkRepo
	wake      wake.Bus
	opts      chunking.Options
	batchSize int
}

func New(db *gorm.DB, baseLog *logger.Logger, locks *repos.EventLocks, chunks repos.ChunkRepo, bus wake.Bus, opts chunking.Options, batchSize int) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", steps.StageChunkEvents),
		locks:     locks,
		chunks:    chunks,
		wake:      bus,
		opts:      opts,
		batchSize: batchSize,
	}
}

func (p *Pipeline) Type() string { return steps.StageChunkEvents }
