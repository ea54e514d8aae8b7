package reap_locks

import (
	"time"

	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil {
		return nil
	}
	ttl := p.ttl
	if secs := jc.PayloadInt("ttl_seconds", 0); secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	out, err := steps.ReapLocks(jc.Ctx, steps.ReapLocksDeps{
		Log:        p.log,
		EventLocks: p.set.EventLocks,
		FactLocks:  p.set.FactLocks,
	}, steps.ReapLocksInput{TTL: ttl})
	if err != nil {
		jc.Fail(err)
		return nil
	}
	jc.Succeed(out, false)
	return nil
}
