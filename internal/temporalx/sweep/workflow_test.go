package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func TestWorkflowRepeatsStageWhileMoreThenContinuesAsNew(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})

	calls := map[string]int{}
	env.RegisterActivityWithOptions(func(ctx context.Context, req StageRequest) (StageResult, error) {
		return StageResult{}, nil
	}, activity.RegisterOptions{Name: ActivityRunStage})
	env.OnActivity(ActivityRunStage, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, req StageRequest) (StageResult, error) {
			calls[req.Stage]++
			more := req.Stage == "score_events" && calls[req.Stage] < 3
			return StageResult{Stage: req.Stage, More: more}, nil
		})

	// stop after the first cycle's sleep
	env.RegisterDelayedCallback(func() { env.CancelWorkflow() }, 30*time.Second)
	env.ExecuteWorkflow(Workflow, Input{
		Stages:   []string{"score_events", "chunk_events"},
		Interval: time.Minute,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.Equal(t, 3, calls["score_events"])
	require.Equal(t, 1, calls["chunk_events"])
}

func TestWorkflowSkipsFailingStage(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(func(ctx context.Context, req StageRequest) (StageResult, error) {
		return StageResult{}, nil
	}, activity.RegisterOptions{Name: ActivityRunStage})

	seen := map[string]int{}
	env.OnActivity(ActivityRunStage, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, req StageRequest) (StageResult, error) {
			seen[req.Stage]++
			if req.Stage == "extract_facts" {
				return StageResult{}, errors.New("store unavailable")
			}
			return StageResult{Stage: req.Stage}, nil
		})
	// retries back off 5s, 10s, 20s, 40s; cancel lands in the following sleep
	env.RegisterDelayedCallback(func() { env.CancelWorkflow() }, 100*time.Second)
	env.ExecuteWorkflow(Workflow, Input{Stages: []string{"extract_facts", "aggregate_facts"}, Interval: time.Minute})

	require.True(t, env.IsWorkflowCompleted())
	require.Equal(t, stageRetryMaxAttempts, seen["extract_facts"])
	require.Equal(t, 1, seen["aggregate_facts"])
}

type stubStage struct{}

func (stubStage) Type() string { return "score_events" }
func (stubStage) Run(jc *jobrt.Context) error {
	jc.Succeed(map[string]any{"batch_size": jc.PayloadInt("batch_size", 0)}, true)
	return nil
}

func TestRunStageActivity(t *testing.T) {
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(stubStage{}))

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	acts := &Activities{Log: logger.Nop(), Registry: reg}
	env.RegisterActivityWithOptions(acts.RunStage, activity.RegisterOptions{Name: ActivityRunStage})

	val, err := env.ExecuteActivity(ActivityRunStage, StageRequest{Stage: "score_events", BatchSize: 5})
	require.NoError(t, err)
	var out StageResult
	require.NoError(t, val.Get(&out))
	require.True(t, out.More)
	require.EqualValues(t, 5, out.Result["batch_size"])

	_, err = env.ExecuteActivity(ActivityRunStage, StageRequest{Stage: "nope"})
	require.Error(t, err)
}
