package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Activities struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Registry *jobrt.Registry
}

// RunStage executes one pass of a stage. Stage errors are returned so the workflow's retry
// policy applies; row-level failures are already absorbed inside the stage.
func (a *Activities) RunStage(ctx context.Context, req StageRequest) (StageResult, error) {
	res := StageResult{Stage: strings.TrimSpace(req.Stage)}
	if a == nil || a.Registry == nil || a.Log == nil {
		return res, fmt.Errorf("sweep: activity not configured")
	}
	payload := map[string]any{}
	if req.WorkspaceID != "" {
		payload["workspace_id"] = req.WorkspaceID
	}
	if req.BatchSize > 0 {
		payload["batch_size"] = req.BatchSize
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return res, err
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	trigger := ctxutil.Trigger{Source: "temporal"}
	if activity.IsActivity(ctx) {
		trigger.Worker = activity.GetInfo(ctx).WorkflowExecution.ID
	}
	jc, err := a.Registry.Run(ctxutil.WithTrigger(ctx, trigger), a.DB, a.Log, res.Stage, raw)
	if err != nil {
		return res, err
	}
	res.More = jc.More()
	res.Result = jc.Result()
	return res, nil
}

func startHeartbeat(ctx context.Context) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
