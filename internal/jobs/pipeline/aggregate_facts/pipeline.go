package aggregate_facts

import (
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/pointers"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	in := steps.AggregateFactsInput{
		BatchSize:      jc.PayloadInt("batch_size", p.defaults.BatchSize),
		MatchThreshold: pointers.Float64(p.defaults.MatchThreshold),
		MinConfidence:  pointers.Float64(p.defaults.MinConfidence),
		MaxCandidates:  jc.PayloadInt("max_candidates", p.defaults.MaxCandidates),
	}
	if v := jc.PayloadFloat("match_threshold"); v != nil {
		in.MatchThreshold = v
	}
	if v := jc.PayloadFloat("min_confidence"); v != nil {
		in.MinConfidence = v
	}
	if ws, ok := jc.PayloadUUID("workspace_id"); ok {
		in.WorkspaceID = &ws
	}
	out, err := steps.AggregateFacts(jc.Ctx, steps.AggregateFactsDeps{
		DB:       p.db,
		Log:      p.log,
		Locks:    p.set.FactLocks,
		Facts:    p.set.Facts,
		Features: p.set.Features,
		Mentions: p.set.Mentions,
		Runs:     p.set.Runs,
		AI:       p.ai,
	}, in)
	if err != nil {
		jc.Fail(err)
		return nil
	}
	jc.Succeed(out, out.Processed >= steps.EffectiveBatchSize(in.BatchSize))
	return nil
}
