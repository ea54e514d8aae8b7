package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/data/repos/rowlock"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/modules/asks/chunking"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type ChunkEventsDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Locks  *repos.EventLocks
	Chunks repos.ChunkRepo
	Wake   wake.Bus
}

type ChunkEventsInput struct {
	WorkspaceID *uuid.UUID       `json:"workspace_id,omitempty"`
	BatchSize   int              `json:"batch_size,omitempty"`
	Options     chunking.Options `json:"-"`
}

type ChunkEventsOutput struct {
	Claimed       int `json:"claimed"`
	Chunked       int `json:"chunked"`
	Skipped       int `json:"skipped"`
	ChunksCreated int `json:"chunks_created"`
	Failed        int `json:"failed"`
	LockLost      int `json:"lock_lost"`
}

// ChunkEvents splits scored, non-skipped events into ordered chunks. Chunk inserts and the
// stage transition share a transaction; chunks left by an earlier attempt are kept.
func ChunkEvents(ctx context.Context, deps ChunkEventsDeps, in ChunkEventsInput) (ChunkEventsOutput, error) {
	out := ChunkEventsOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Locks == nil || deps.Chunks == nil {
		return out, fmt.Errorf("chunk_events: missing deps")
	}
	dbc := dbctx.Context{Ctx: ctx}

	where, args := workspaceScope("processing_stage = ? AND skip_ai_processing = ?", []any{string(asks.StageScored), false}, in.WorkspaceID)
	rows, token, err := deps.Locks.Claim(dbc, rowlock.ClaimSpec{
		Where:     where,
		Args:      args,
		OrderBy:   "scored_at ASC, id ASC",
		BatchSize: EffectiveBatchSize(in.BatchSize),
	})
	if err != nil {
		return out, err
	}
	out.Claimed = len(rows)

	for _, ev := range rows {
		if strings.TrimSpace(ev.CleanedText) == "" {
			err := deps.Locks.Release(dbc, ev.ID, token, rowlock.Advance{
				Column: "processing_stage",
				From:   []string{string(asks.StageScored)},
				To:     string(asks.StageSkipped),
			}, nil)
			if errors.Is(err, rowlock.ErrLockLost) {
				out.LockLost++
				continue
			}
			if err != nil {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("chunk_events: skip %s: %w", ev.ID, err))
			}
			out.Skipped++
			continue
		}

		pieces := chunking.Chunk(ev.CleanedText, in.Options)
		chunks := make([]*asks.EventChunk, 0, len(pieces))
		for i, p := range pieces {
			chunks = append(chunks, &asks.EventChunk{
				EventID:    ev.ID,
				ChunkIndex: i,
				Text:       p,
				CharCount:  utf8.RuneCountInString(p),
			})
		}

		var created int64
		txErr := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inner := dbctx.Context{Ctx: ctx, Tx: tx}
			n, err := deps.Chunks.CreateIgnoreConflict(inner, chunks)
			if err != nil {
				return err
			}
			created = n
			return deps.Locks.Release(inner, ev.ID, token, rowlock.Advance{
				Column:       "processing_stage",
				From:         []string{string(asks.StageScored)},
				To:           string(asks.StageChunked),
				MarkerColumn: "chunked_at",
			}, nil)
		})
		switch {
		case txErr == nil:
			out.Chunked++
			out.ChunksCreated += int(created)
		case errors.Is(txErr, rowlock.ErrLockLost):
			out.LockLost++
			deps.Log.Warn("Lost event lock while chunking", "event_id", ev.ID)
		default:
			out.Failed++
			if err := deps.Locks.ReleaseWithError(dbc, ev.ID, token, "chunk: "+errString(txErr), true, nil); err != nil && !errors.Is(err, rowlock.ErrLockLost) {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("chunk_events: %s: %w", ev.ID, err))
			}
		}
	}

	if out.Chunked > 0 {
		notify(ctx, deps.Log, deps.Wake, StageExtractFacts)
	}
	if out.Claimed > 0 {
		deps.Log.Info("Chunked events", "claimed", out.Claimed, "chunked", out.Chunked, "skipped", out.Skipped, "chunks_created", out.ChunksCreated, "failed", out.Failed)
	}
	return out, nil
}

// abandonEvents frees whatever the batch still holds and returns cause.
func abandonEvents(dbc dbctx.Context, log *logger.Logger, locks *repos.EventLocks, token string, cause error) error {
	if n, err := locks.Abandon(dbctx.Context{Ctx: context.WithoutCancel(dbc.Ctx)}, token, nil); err != nil {
		log.Warn("Abandon after failure failed", "error", err)
	} else if n > 0 {
		log.Warn("Abandoned claimed events", "count", n, "error", cause)
	}
	return cause
}
