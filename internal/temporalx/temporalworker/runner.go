package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"gorm.io/gorm"

	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/temporalx"
	"github.com/yungbote/askflow-backend/internal/temporalx/sweep"
)

type Runner struct {
	log      *logger.Logger
	cfg      temporalx.Config
	tc       temporalsdkclient.Client
	db       *gorm.DB
	registry *jobrt.Registry
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, db *gorm.DB, registry *jobrt.Registry) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || registry == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:      log.With("component", "TemporalWorker"),
		cfg:      cfg,
		tc:       tc,
		db:       db,
		registry: registry,
	}, nil
}

// Start begins polling the task queue and stops the worker when ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(r.cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if r.cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.DialBackoff * time.Duration(attempt)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &sweep.Activities{
		Log:      r.log,
		DB:       r.db,
		Registry: r.registry,
	}
	w.RegisterWorkflowWithOptions(sweep.Workflow, workflow.RegisterOptions{Name: sweep.WorkflowName})
	w.RegisterActivityWithOptions(acts.RunStage, activity.RegisterOptions{Name: sweep.ActivityRunStage})
	return w
}

// StartSweep starts the singleton pipeline_sweep workflow. An already running sweep is
// left alone.
func (r *Runner) StartSweep(ctx context.Context) error {
	if r.cfg.SweepWorkflowID == "" {
		return nil
	}
	_, err := r.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        r.cfg.SweepWorkflowID,
		TaskQueue: r.cfg.TaskQueue,
	}, sweep.WorkflowName, sweep.Input{
		Stages:   r.cfg.SweepStages,
		Interval: r.cfg.SweepInterval,
	})
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		r.log.Info("Pipeline sweep already running", "workflow_id", r.cfg.SweepWorkflowID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start pipeline sweep: %w", err)
	}
	r.log.Info("Started pipeline sweep", "workflow_id", r.cfg.SweepWorkflowID, "interval", r.cfg.SweepInterval.String())
	return nil
}
