package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type ReapLocksDeps struct {
	Log        *logger.Logger
	EventLocks *repos.EventLocks
	FactLocks  *repos.FactLocks
}

type ReapLocksInput struct {
	TTL time.Duration `json:"ttl,omitempty"`
}

type ReapLocksOutput struct {
	EventsReleased int64 `json:"events_released"`
	FactsReleased  int64 `json:"facts_released"`
}

// ReapLocks frees locks held past the TTL by workers that died mid-batch. Stages are left
// alone; facts stuck in processing go back to pending.
func ReapLocks(ctx context.Context, deps ReapLocksDeps, in ReapLocksInput) (ReapLocksOutput, error) {
	out := ReapLocksOutput{}
	if deps.Log == nil || deps.EventLocks == nil || deps.FactLocks == nil {
		return out, fmt.Errorf("reap_locks: missing deps")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	dbc := dbctx.Context{Ctx: ctx}

	n, err := deps.EventLocks.ReapStale(dbc, ttl, nil)
	if err != nil {
		return out, err
	}
	out.EventsReleased = n

	n, err = deps.FactLocks.ReapStale(dbc, ttl, pendingReset)
	if err != nil {
		return out, err
	}
	out.FactsReleased = n
	return out, nil
}
