package steps

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yungbote/askflow-backend/internal/observability"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

// Stage job names, as registered with the worker pool and the trigger API.
const (
	StageScoreEvents       = "score_events"
	StageChunkEvents       = "chunk_events"
	StageExtractFacts      = "extract_facts"
	StageAggregateFacts    = "aggregate_facts"
	StageReconcileFeatures = "reconcile_features"
	StageReapLocks         = "reap_locks"
)

const (
	DefaultBatchSize      = 50
	DefaultMatchThreshold = 0.7
	DefaultMinConfidence  = 0.5
	DefaultMaxCandidates  = 25
	DefaultLockTTL        = 15 * time.Minute
)

// EffectiveBatchSize clamps a requested batch size to [1, 500], zero meaning the default.
func EffectiveBatchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	if n > 500 {
		return 500
	}
	return n
}

// workspaceScope appends a workspace filter to a claim condition.
func workspaceScope(where string, args []any, workspaceID *uuid.UUID) (string, []any) {
	if workspaceID == nil || *workspaceID == uuid.Nil {
		return where, args
	}
	return where + " AND workspace_id = ?", append(args, *workspaceID)
}

// passes is the single threshold rule used everywhere: equal passes.
func passes(value, threshold float64) bool {
	return value >= threshold
}

// isConflict reports store errors caused by a concurrent writer. They are retried per row.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", // unique_violation
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "database is locked")
}

// notify sends a best-effort wake-up for the next stage.
func notify(ctx context.Context, log *logger.Logger, bus wake.Bus, stage string) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, stage); err != nil {
		log.Debug("wake publish failed", "stage", stage, "error", err)
		return
	}
	observability.Current().IncWake(stage)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
