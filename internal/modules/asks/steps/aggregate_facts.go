package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/data/repos/rowlock"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type AggregateFactsDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Locks    *repos.FactLocks
	Facts    repos.FactRepo
	Features repos.FeatureRepo
	Mentions repos.MentionRepo
	Runs     repos.RunRepo
	AI       asksai.Service
}

type AggregateFactsInput struct {
	WorkspaceID    *uuid.UUID `json:"workspace_id,omitempty"`
	BatchSize      int        `json:"batch_size,omitempty"`
	MatchThreshold *float64   `json:"match_threshold,omitempty"`
	MinConfidence  *float64   `json:"min_confidence,omitempty"`
	MaxCandidates  int        `json:"max_candidates,omitempty"`
}

type AggregateFactsOutput struct {
	RunID           uuid.UUID `json:"run_id"`
	Processed       int       `json:"processed"`
	Aggregated      int       `json:"aggregated"`
	Skipped         int       `json:"skipped"`
	DuplicatesFound int       `json:"duplicates_found"`
	FeaturesCreated int       `json:"features_created"`
	FeaturesUpdated int       `json:"features_updated"`
	Failed          int       `json:"failed"`
	LockLost        int       `json:"lock_lost"`
}

// runConfig is persisted on the AggregationRun for audit.
type runConfig struct {
	BatchSize      int     `json:"batch_size"`
	MatchThreshold float64 `json:"match_threshold"`
	MinConfidence  float64 `json:"min_confidence"`
	MaxCandidates  int     `json:"max_candidates"`
}

var pendingReset = map[string]any{"aggregation_status": string(asks.AggregationPending)}

type factOutcome int

const (
	outcomeAggregatedNew factOutcome = iota
	outcomeAggregatedExisting
	outcomeDuplicate
)

// AggregateFacts merges pending facts into canonical asks and records the batch as an
// AggregationRun. Each fact's write phase is one transaction guarded by its lock.
func AggregateFacts(ctx context.Context, deps AggregateFactsDeps, in AggregateFactsInput) (AggregateFactsOutput, error) {
	out := AggregateFactsOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Locks == nil || deps.Facts == nil || deps.Features == nil || deps.Mentions == nil || deps.Runs == nil || deps.AI == nil {
		return out, fmt.Errorf("aggregate_facts: missing deps")
	}
	cfg := runConfig{
		BatchSize:      EffectiveBatchSize(in.BatchSize),
		MatchThreshold: DefaultMatchThreshold,
		MinConfidence:  DefaultMinConfidence,
		MaxCandidates:  in.MaxCandidates,
	}
	if in.MatchThreshold != nil {
		cfg.MatchThreshold = *in.MatchThreshold
	}
	if in.MinConfidence != nil {
		cfg.MinConfidence = *in.MinConfidence
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	dbc := dbctx.Context{Ctx: ctx}

	rawCfg, _ := json.Marshal(cfg)
	run, err := deps.Runs.Create(dbc, &asks.AggregationRun{
		WorkspaceID: in.WorkspaceID,
		Status:      asks.RunRunning,
		Config:      rawCfg,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		return out, fmt.Errorf("aggregate_facts: create run: %w", err)
	}
	out.RunID = run.ID

	runErr := aggregateBatch(ctx, deps, in.WorkspaceID, cfg, &out)
	finalizeRun(ctx, deps, run.ID, &out, runErr)
	if runErr != nil {
		return out, runErr
	}
	if out.Processed > 0 {
		deps.Log.Info("Aggregated facts",
			"run_id", run.ID,
			"processed", out.Processed,
			"aggregated", out.Aggregated,
			"skipped", out.Skipped,
			"duplicates", out.DuplicatesFound,
			"features_created", out.FeaturesCreated,
			"features_updated", out.FeaturesUpdated,
			"failed", out.Failed,
		)
	}
	return out, nil
}

func aggregateBatch(ctx context.Context, deps AggregateFactsDeps, workspaceID *uuid.UUID, cfg runConfig, out *AggregateFactsOutput) error {
	dbc := dbctx.Context{Ctx: ctx}
	where, args := workspaceScope("aggregation_status = ? AND is_duplicate = ?", []any{string(asks.AggregationPending), false}, workspaceID)
	facts, token, err := deps.Locks.Claim(dbc, rowlock.ClaimSpec{
		Where:     where,
		Args:      args,
		OrderBy:   "created_at ASC, id ASC",
		BatchSize: cfg.BatchSize,
		Set:       map[string]any{"aggregation_status": string(asks.AggregationProcessing)},
	})
	if err != nil {
		return fmt.Errorf("aggregate_facts: %w", err)
	}
	out.Processed = len(facts)

	abandon := func(cause error) error {
		n, err := deps.Locks.Abandon(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, token, pendingReset)
		if err != nil {
			deps.Log.Warn("Abandon after failure failed", "error", err)
		} else if n > 0 {
			deps.Log.Warn("Abandoned claimed facts", "count", n, "error", cause)
		}
		return cause
	}
	// transient records a retryable row failure; only a store failure aborts the batch.
	transient := func(fact *asks.ExtractedFact, msg string) error {
		out.Failed++
		err := deps.Locks.ReleaseWithError(dbc, fact.ID, token, msg, true, pendingReset)
		if err != nil && !errors.Is(err, rowlock.ErrLockLost) {
			return abandon(fmt.Errorf("aggregate_facts: release %s: %w", fact.ID, err))
		}
		return nil
	}

	for _, fact := range facts {
		if ctx.Err() != nil {
			return abandon(fmt.Errorf("aggregate_facts: %w", ctx.Err()))
		}

		if !passes(fact.ExtractionConfidence, cfg.MinConfidence) {
			err := deps.Locks.Release(dbc, fact.ID, token, rowlock.Advance{
				Column: "aggregation_status",
				From:   []string{string(asks.AggregationProcessing)},
				To:     string(asks.AggregationSkipped),
			}, map[string]any{"skip_reason": asks.SkipReasonLowConfidence})
			if errors.Is(err, rowlock.ErrLockLost) {
				out.LockLost++
				continue
			}
			if err != nil {
				return abandon(fmt.Errorf("aggregate_facts: skip %s: %w", fact.ID, err))
			}
			out.Skipped++
			continue
		}

		candidates, err := deps.Features.ListCandidates(dbc, fact.WorkspaceID, fact.ThemeID, cfg.MaxCandidates)
		if err != nil {
			return abandon(fmt.Errorf("aggregate_facts: candidates %s: %w", fact.ID, err))
		}

		var match *asksai.MatchResult
		if len(candidates) > 0 {
			req := asksai.MatchRequest{
				WorkspaceID: fact.WorkspaceID,
				Fact: asksai.CandidateFact{
					Title:        fact.Title,
					Description:  fact.Description,
					Confidence:   fact.ExtractionConfidence,
					PriorityHint: fact.PriorityHint,
					UrgencyHint:  fact.UrgencyHint,
					PersonaHint:  fact.PersonaHint,
				},
				Candidates: make([]asksai.MatchCandidate, 0, len(candidates)),
			}
			for _, c := range candidates {
				req.Candidates = append(req.Candidates, asksai.MatchCandidate{ID: c.ID, Name: c.Name, Description: c.Description})
			}
			match, err = deps.AI.Match(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return abandon(fmt.Errorf("aggregate_facts: %w", ctx.Err()))
				}
				deps.Log.Warn("Match failed", "fact_id", fact.ID, "malformed", errors.Is(err, asksai.ErrMalformed), "error", err)
				if err := transient(fact, "match: "+err.Error()); err != nil {
					return err
				}
				continue
			}
		}
		target := matchedCandidate(match, candidates, cfg.MatchThreshold)

		var outcome factOutcome
		txErr := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			o, err := applyFact(dbc.WithTx(tx), deps, token, fact, target, match)
			outcome = o
			return err
		})
		switch {
		case txErr == nil:
			switch outcome {
			case outcomeAggregatedNew:
				out.Aggregated++
				out.FeaturesCreated++
			case outcomeAggregatedExisting:
				out.Aggregated++
				out.FeaturesUpdated++
			case outcomeDuplicate:
				out.DuplicatesFound++
			}
		case errors.Is(txErr, rowlock.ErrLockLost):
			out.LockLost++
			deps.Log.Warn("Lost fact lock while aggregating", "fact_id", fact.ID)
		case errors.Is(txErr, gorm.ErrRecordNotFound), isConflict(txErr):
			if err := transient(fact, "aggregate: "+txErr.Error()); err != nil {
				return err
			}
		default:
			return abandon(fmt.Errorf("aggregate_facts: persist %s: %w", fact.ID, txErr))
		}
	}
	return nil
}

// matchedCandidate returns the candidate the matcher picked, or nil when the answer does
// not clear the threshold or names an ask outside the offered set.
func matchedCandidate(res *asksai.MatchResult, candidates []*asks.Feature, threshold float64) *asks.Feature {
	if res == nil || !res.Matched || res.AskID == nil {
		return nil
	}
	if !passes(res.Confidence, threshold) {
		return nil
	}
	for _, c := range candidates {
		if c.ID == *res.AskID {
			return c
		}
	}
	return nil
}

func applyFact(dbc dbctx.Context, deps AggregateFactsDeps, token string, fact *asks.ExtractedFact, target *asks.Feature, match *asksai.MatchResult) (factOutcome, error) {
	now := time.Now().UTC()
	var (
		featureID  uuid.UUID
		reason     asks.MatchReason
		confidence float64
		outcome    factOutcome
	)

	if target != nil {
		existing, err := deps.Mentions.GetByEventFeature(dbc, fact.EventID, target.ID)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			dupOf := existing.FactID
			err := deps.Locks.Release(dbc, fact.ID, token, rowlock.Advance{
				Column: "aggregation_status",
				From:   []string{string(asks.AggregationProcessing)},
				To:     string(asks.AggregationSkipped),
			}, map[string]any{
				"is_duplicate":    true,
				"duplicate_of_id": dupOf,
				"skip_reason":     asks.SkipReasonDuplicate,
			})
			return outcomeDuplicate, err
		}
		if err := deps.Features.RecordMention(dbc, target.ID, now, match.Confidence); err != nil {
			return 0, err
		}
		featureID, reason, confidence, outcome = target.ID, asks.MatchReasonMatchedExisting, match.Confidence, outcomeAggregatedExisting
	} else {
		f, err := deps.Features.Create(dbc, &asks.Feature{
			WorkspaceID:      fact.WorkspaceID,
			ThemeID:          fact.ThemeID,
			Name:             fact.Title,
			Description:      fact.Description,
			Urgency:          fact.UrgencyHint,
			Status:           asks.FeatureOpen,
			MentionCount:     1,
			MatchConfidence:  fact.ExtractionConfidence,
			FirstMentionedAt: now,
			LastMentionedAt:  now,
		})
		if err != nil {
			return 0, err
		}
		featureID, reason, confidence, outcome = f.ID, asks.MatchReasonCreatedNew, fact.ExtractionConfidence, outcomeAggregatedNew
	}

	hasPrimary, err := deps.Mentions.HasPrimary(dbc, fact.EventID)
	if err != nil {
		return 0, err
	}
	chunkID := fact.ChunkID
	if _, err := deps.Mentions.Create(dbc, &asks.MessageCustomerAsk{
		EventID:         fact.EventID,
		FeatureID:       featureID,
		FactID:          fact.ID,
		ChunkID:         &chunkID,
		MatchConfidence: confidence,
		MatchReason:     reason,
		IsPrimary:       !hasPrimary,
	}); err != nil {
		return 0, err
	}

	err = deps.Locks.Release(dbc, fact.ID, token, rowlock.Advance{
		Column:       "aggregation_status",
		From:         []string{string(asks.AggregationProcessing)},
		To:           string(asks.AggregationAggregated),
		MarkerColumn: "aggregated_at",
	}, map[string]any{"feature_id": featureID})
	return outcome, err
}

func finalizeRun(ctx context.Context, deps AggregateFactsDeps, runID uuid.UUID, out *AggregateFactsOutput, runErr error) {
	status := asks.RunCompleted
	if runErr != nil {
		status = asks.RunFailed
	}
	updates := map[string]any{
		"status":           string(status),
		"facts_processed":  out.Processed,
		"facts_aggregated": out.Aggregated,
		"facts_skipped":    out.Skipped,
		"duplicates_found": out.DuplicatesFound,
		"features_created": out.FeaturesCreated,
		"features_updated": out.FeaturesUpdated,
		"facts_failed":     out.Failed,
		"error":            errString(runErr),
		"finished_at":      time.Now().UTC(),
	}
	if _, err := deps.Runs.Finalize(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, runID, updates); err != nil {
		deps.Log.Error("Finalize aggregation run failed", "run_id", runID, "error", err)
	}
}
