package reconcile_features

import (
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/pointers"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	in := steps.ReconcileFeaturesInput{Similarity: pointers.Float64(p.similarity)}
	if v := jc.PayloadFloat("similarity"); v != nil {
		in.Similarity = v
	}
	if ws, ok := jc.PayloadUUID("workspace_id"); ok {
		in.WorkspaceID = &ws
	}
	out, err := steps.ReconcileFeatures(jc.Ctx, steps.ReconcileFeaturesDeps{
		DB:       p.db,
		Log:      p.log,
		Facts:    p.set.Facts,
		Features: p.set.Features,
		Mentions: p.set.Mentions,
	}, in)
	if err != nil {
		jc.Fail(err)
		return nil
	}
	// one pass sees every open ask; nothing to chase
	jc.Succeed(out, false)
	return nil
}
