package reap_locks

import (
	"time"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Pipeline struct {
	log *logger.Logger
	set *repos.Set
	ttl time.Duration
}

func New(baseLog *logger.Logger, set *repos.Set, ttl time.Duration) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", steps.StageReapLocks),
		set: set,
		ttl: ttl,
	}
}

func (p *Pipeline) Type() string { return steps.StageReapLocks }
