package app

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/aggregate_facts"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/chunk_events"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/extract_facts"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/reap_locks"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/reconcile_features"
	"github.com/yungbote/askflow-backend/internal/jobs/pipeline/score_events"
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/jobs/worker"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func wireRegistry(db *gorm.DB, log *logger.Logger, cfg Config, set *repos.Set, clients Clients) (*jobrt.Registry, error) {
	log.Info("Registering stages...")
	reg := jobrt.NewRegistry()

	handlers := []jobrt.Handler{
		score_events.New(db, log, set.EventLocks, clients.Scorer, clients.Wake, cfg.ScoreBatchSize),
		chunk_events.New(db, log, set.EventLocks, set.Chunks, clients.Wake, cfg.Chunking, cfg.ChunkBatchSize),
		reconcile_features.New(db, log, set, cfg.ReconcileSimilarity),
		reap_locks.New(log, set, cfg.LockTTL),
	}
	if clients.AI != nil {
		handlers = append(handlers,
			extract_facts.New(db, log, set, clients.AI, clients.Wake, cfg.ExtractBatchSize, cfg.ExtractConcurrency),
			aggregate_facts.New(db, log, set, clients.AI, aggregate_facts.Defaults{
				BatchSize:      cfg.AggregateBatchSize,
				MatchThreshold: cfg.MatchThreshold,
				MinConfidence:  cfg.MinConfidence,
				MaxCandidates:  cfg.MaxCandidates,
			}),
		)
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, fmt.Errorf("register %s: %w", h.Type(), err)
		}
	}
	return reg, nil
}

// workerConfig splits registered stages into draining loops and periodic ones.
func workerConfig(cfg Config, reg *jobrt.Registry) worker.Config {
	periodic := map[string]time.Duration{
		steps.StageReapLocks:         cfg.ReapInterval,
		steps.StageReconcileFeatures: cfg.ReconcileInterval,
	}
	var batch []string
	for _, stage := range []string{
		steps.StageScoreEvents,
		steps.StageChunkEvents,
		steps.StageExtractFacts,
		steps.StageAggregateFacts,
	} {
		if _, ok := reg.Get(stage); ok {
			batch = append(batch, stage)
		}
	}
	return worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.PollInterval,
		SoftTimeout:  cfg.StageSoftTimeout,
		Stages:       batch,
		Periodic:     periodic,
	}
}
