package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/data/repos/rowlock"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/modules/asks/scoring"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type ScoreEventsDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Locks  *repos.EventLocks
	Scorer *scoring.Scorer
	Wake   wake.Bus
}

type ScoreEventsInput struct {
	WorkspaceID   *uuid.UUID `json:"workspace_id,omitempty"`
	BatchSize     int        `json:"batch_size,omitempty"`
	SkipThreshold *float64   `json:"skip_threshold,omitempty"`
}

type ScoreEventsOutput struct {
	Claimed  int `json:"claimed"`
	Scored   int `json:"scored"`
	Skipped  int `json:"skipped"`
	LockLost int `json:"lock_lost"`
}

// ScoreEvents scores one batch of pending events. A row leaves this stage exactly once:
// the claim requires scored_at IS NULL and the release stamps it.
func ScoreEvents(ctx context.Context, deps ScoreEventsDeps, in ScoreEventsInput) (ScoreEventsOutput, error) {
	out := ScoreEventsOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Locks == nil || deps.Scorer == nil {
		return out, fmt.Errorf("score_events: missing deps")
	}
	scorer := deps.Scorer
	if in.SkipThreshold != nil {
		scorer = scorer.WithSkipThreshold(*in.SkipThreshold)
	}
	dbc := dbctx.Context{Ctx: ctx}

	where, args := workspaceScope("processing_stage = ? AND scored_at IS NULL", []any{string(asks.StagePending)}, in.WorkspaceID)
	rows, token, err := deps.Locks.Claim(dbc, rowlock.ClaimSpec{
		Where:     where,
		Args:      args,
		OrderBy:   "occurred_at ASC, id ASC",
		BatchSize: EffectiveBatchSize(in.BatchSize),
	})
	if err != nil {
		return out, err
	}
	out.Claimed = len(rows)

	for i, ev := range rows {
		res := scorer.Score(scoring.Input{
			Text:       ev.CleanedText,
			SourceType: ev.SourceType,
			ActorRole:  ev.ActorRole,
			Metadata:   asks.ParseEventMetadata(ev.Metadata),
		})
		keywords, _ := json.Marshal(res.KeywordsFound)
		err := deps.Locks.Release(dbc, ev.ID, token, rowlock.Advance{
			Column:       "processing_stage",
			From:         []string{string(asks.StagePending)},
			To:           string(asks.StageScored),
			MarkerColumn: "scored_at",
		}, map[string]any{
			"signal_score":       res.Score,
			"score_reason":       res.Reason,
			"score_keywords":     keywords,
			"skip_ai_processing": res.ShouldSkip,
		})
		if errors.Is(err, rowlock.ErrLockLost) {
			out.LockLost++
			deps.Log.Warn("Lost event lock while scoring", "event_id", ev.ID)
			continue
		}
		if err != nil {
			return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("score_events: release %s (%d/%d): %w", ev.ID, i+1, len(rows), err))
		}
		out.Scored++
		if res.ShouldSkip {
			out.Skipped++
		}
	}

	if out.Scored > out.Skipped {
		notify(ctx, deps.Log, deps.Wake, StageChunkEvents)
	}
	if out.Claimed > 0 {
		deps.Log.Info("Scored events", "claimed", out.Claimed, "scored", out.Scored, "skipped", out.Skipped, "lock_lost", out.LockLost)
	}
	return out, nil
}
