package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	defaultInterval       = time.Minute
	defaultMaxPasses      = 20
	continueCycleLimit    = 500
	continueHistoryLimit  = 15000
	stageStartToClose     = 15 * time.Minute
	stageRetryMaxAttempts = 5
)

// Workflow walks every stage in order, re-running a stage while it reports more work,
// then sleeps for the interval. It continues as new to keep history bounded.
func Workflow(ctx workflow.Context, in Input) error {
	stages := in.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	interval := in.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxPasses := in.MaxPasses
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: stageStartToClose,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    stageRetryMaxAttempts,
		},
	})
	log := workflow.GetLogger(ctx)

	for cycle := 0; ; cycle++ {
		for _, stage := range stages {
			for pass := 0; pass < maxPasses; pass++ {
				var out StageResult
				err := workflow.ExecuteActivity(ctx, ActivityRunStage, StageRequest{
					Stage:       stage,
					WorkspaceID: in.WorkspaceID,
					BatchSize:   in.BatchSize,
				}).Get(ctx, &out)
				if err != nil {
					// a stage that keeps failing must not stall the rest of the pipeline
					log.Warn("Stage failed after retries", "stage", stage, "error", err)
					break
				}
				if !out.More {
					break
				}
			}
		}
		in.Cycles++

		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, cycle+1) {
			return workflow.NewContinueAsNewError(ctx, Workflow, in)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, cycles int) bool {
	if cycles >= continueCycleLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil {
		return false
	}
	return info.GetCurrentHistoryLength() >= continueHistoryLimit
}
