package score_events

import (
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	in := steps.ScoreEventsInput{
		BatchSize:     jc.PayloadInt("batch_size", p.batchSize),
		SkipThreshold: jc.PayloadFloat("skip_threshold"),
	}
	if ws, ok := jc.PayloadUUID("workspace_id"); ok {
		in.WorkspaceID = &ws
	}
	out, err := steps.ScoreEvents(jc.Ctx, steps.ScoreEventsDeps{
		DB:     p.db,
		Log:    p.log,
		Locks:  p.locks,
		Scorer: p.scorer,
		Wake:   p.wake,
	}, in)
	if err != nil {
		jc.Fail(err)
		return nil
	}
	jc.Succeed(out, out.Claimed >= steps.EffectiveBatchSize(in.BatchSize))
	return nil
}
