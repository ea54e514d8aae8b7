package extract_facts

import (
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	in := steps.ExtractFactsInput{
		BatchSize:   jc.PayloadInt("batch_size", p.batchSize),
		Concurrency: jc.PayloadInt("concurrency", p.concurrency),
	}
	if ws, ok := jc.PayloadUUID("workspace_id"); ok {
		in.WorkspaceID = &ws
	}
	out, err := steps.ExtractFacts(jc.Ctx, steps.ExtractFactsDeps{
		DB:       p.db,
		Log:      p.log,
		Locks:    p.set.EventLocks,
		Chunks:   p.set.Chunks,
		Facts:    p.set.Facts,
		Features: p.set.Features,
		Themes:   p.set.Themes,
		AI:       p.ai,
		Wake:     p.wake,
	}, in)
	if err != nil {
		jc.Fail(err)
		return nil
	}
	jc.Succeed(out, out.Claimed >= steps.EffectiveBatchSize(in.BatchSize))
	return nil
}
