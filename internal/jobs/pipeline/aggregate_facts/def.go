package aggregate_facts

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

// Defaults are the configured aggregation knobs; trigger payloads may override them per run.
type Defaults struct {
	BatchSize      int
	MatchThreshold float64
	MinConfidence  float64
	MaxCandidates  int
}

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	set      *repos.Set
	ai       asksai.Service
	defaults Defaults
}

func New(db *gorm.DB, baseLog *logger.Logger, set *repos.Set, ai asksai.Service, defaults Defaults) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", steps.StageAggregateFacts),
		set:      set,
		ai:       ai,
		defaults: defaults,
	}
}

func (p *Pipeline) Type() string { return steps.StageAggregateFacts }
