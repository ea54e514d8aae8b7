package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

// maxDrainPasses bounds back-to-back passes of one loop before it yields to the ticker.
const maxDrainPasses = 100

type Config struct {
	// Concurrency is the number of loops per batch stage.
	Concurrency  int
	PollInterval time.Duration
	// SoftTimeout is the deadline of a single stage pass.
	SoftTimeout time.Duration
	// Stages run continuously, draining their backlog.
	Stages []string
	// Periodic stages run once per interval on a single loop (reaper, reconciliation).
	Periodic map[string]time.Duration
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	registry *runtime.Registry
	wake     wake.Bus
	cfg      Config

	wg    sync.WaitGroup
	wakes map[string]chan struct{}
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, registry *runtime.Registry, bus wake.Bus, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = 10 * time.Minute
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "StageWorker"),
		registry: registry,
		wake:     bus,
		cfg:      cfg,
		wakes:    map[string]chan struct{}{},
	}
}

func (w *Worker) Start(ctx context.Context) {
	for _, stage := range w.cfg.Stages {
		if _, ok := w.registry.Get(stage); !ok {
			w.log.Warn("No handler registered for stage, not starting loops", "stage", stage)
			continue
		}
		ch := make(chan struct{}, 1)
		w.wakes[stage] = ch
		for i := 0; i < w.cfg.Concurrency; i++ {
			workerID := i + 1
			w.wg.Add(1)
			go func(stage string) {
				defer w.wg.Done()
				w.runLoop(ctx, stage, workerID, w.cfg.PollInterval, ch, true)
			}(stage)
		}
	}
	for stage, every := range w.cfg.Periodic {
		if _, ok := w.registry.Get(stage); !ok {
			w.log.Warn("No handler registered for periodic stage", "stage", stage)
			continue
		}
		if every <= 0 {
			continue
		}
		w.wg.Add(1)
		go func(stage string, every time.Duration) {
			defer w.wg.Done()
			w.runLoop(ctx, stage, 1, every, nil, false)
		}(stage, every)
	}

	if w.wake != nil && len(w.wakes) > 0 {
		err := w.wake.Subscribe(ctx, func(stage string) {
			ch, ok := w.wakes[stage]
			if !ok {
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		})
		if err != nil {
			w.log.Warn("Wake subscription failed, relying on polling", "error", err)
		}
	}
	w.log.Info("Started stage worker pool",
		"stages", w.cfg.Stages,
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"soft_timeout", w.cfg.SoftTimeout.String(),
	)
}

// Wait blocks until every loop has returned after ctx is canceled.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, stage string, workerID int, every time.Duration, wakeCh <-chan struct{}, drain bool) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker loop stopped", "stage", stage, "worker_id", workerID)
			return
		case <-ticker.C:
		case <-wakeCh:
		}
		for pass := 0; pass < maxDrainPasses; pass++ {
			more := w.runOnce(ctx, stage, workerID)
			if !drain || !more || ctx.Err() != nil {
				break
			}
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, stage string, workerID int) bool {
	passCtx, cancel := context.WithTimeout(ctx, w.cfg.SoftTimeout)
	defer cancel()
	passCtx = ctxutil.WithTrigger(passCtx, ctxutil.Trigger{Source: "worker", Worker: fmt.Sprintf("%s-%d", stage, workerID)})

	jc, err := w.registry.Run(passCtx, w.db, w.log, stage, nil)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("Stage pass failed", "stage", stage, "worker_id", workerID, "error", err)
		}
		return false
	}
	return jc.More()
}
