package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/data/repos/rowlock"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

const (
	defaultExtractConcurrency = 4
	contextAskLimit           = 50
)

type ExtractFactsDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Locks    *repos.EventLocks
	Chunks   repos.ChunkRepo
	Facts    repos.FactRepo
	Features repos.FeatureRepo
	Themes   repos.ThemeRepo
	AI       asksai.Service
	Wake     wake.Bus
}

type ExtractFactsInput struct {
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`
	BatchSize   int        `json:"batch_size,omitempty"`
	// Concurrency bounds in-flight collaborator calls per event.
	Concurrency int `json:"concurrency,omitempty"`
}

type ExtractFactsOutput struct {
	Claimed      int `json:"claimed"`
	Extracted    int `json:"extracted"`
	FactsCreated int `json:"facts_created"`
	Duplicates   int `json:"duplicates"`
	// Malformed counts items skipped for unusable output; the rest of the event still lands.
	Malformed int `json:"malformed"`
	Failed    int `json:"failed"`
	LockLost  int `json:"lock_lost"`
}

// ExtractFacts asks the collaborator for candidate facts in every chunk of a chunked event
// and persists them with the stage transition in one transaction. If any chunk call fails
// nothing is written for that event; a bad item inside an answer only skips that item.
func ExtractFacts(ctx context.Context, deps ExtractFactsDeps, in ExtractFactsInput) (ExtractFactsOutput, error) {
	out := ExtractFactsOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Locks == nil || deps.Chunks == nil || deps.Facts == nil || deps.Features == nil || deps.Themes == nil || deps.AI == nil {
		return out, fmt.Errorf("extract_facts: missing deps")
	}
	concurrency := in.Concurrency
	if concurrency <= 0 {
		concurrency = defaultExtractConcurrency
	}
	dbc := dbctx.Context{Ctx: ctx}

	where, args := workspaceScope("processing_stage = ?", []any{string(asks.StageChunked)}, in.WorkspaceID)
	rows, token, err := deps.Locks.Claim(dbc, rowlock.ClaimSpec{
		Where:     where,
		Args:      args,
		OrderBy:   "chunked_at ASC, id ASC",
		BatchSize: EffectiveBatchSize(in.BatchSize),
	})
	if err != nil {
		return out, err
	}
	out.Claimed = len(rows)

	queued := 0
	wsContext := map[uuid.UUID]asksai.WorkspaceContext{}
	for _, ev := range rows {
		if ctx.Err() != nil {
			return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("extract_facts: %w", ctx.Err()))
		}

		chunks, err := deps.Chunks.ListByEvent(dbc, ev.ID)
		if err != nil {
			return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("extract_facts: load chunks %s: %w", ev.ID, err))
		}
		if len(chunks) == 0 {
			out.Failed++
			if err := deps.Locks.ReleaseWithError(dbc, ev.ID, token, "extract: event has no chunks", true, nil); err != nil && !errors.Is(err, rowlock.ErrLockLost) {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, err)
			}
			continue
		}

		wc, ok := wsContext[ev.WorkspaceID]
		if !ok {
			wc, err = loadWorkspaceContext(dbc, deps, ev.WorkspaceID)
			if err != nil {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("extract_facts: workspace context: %w", err))
			}
			wsContext[ev.WorkspaceID] = wc
		}

		results := make([][]asksai.CandidateFact, len(chunks))
		rejected := make([]int, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, ch := range chunks {
			i, ch := i, ch
			g.Go(func() error {
				resp, err := deps.AI.Extract(gctx, asksai.ExtractRequest{
					WorkspaceID: ev.WorkspaceID,
					EventID:     ev.ID,
					ChunkIndex:  ch.ChunkIndex,
					Text:        ch.Text,
					SourceType:  string(ev.SourceType),
					ActorRole:   string(ev.ActorRole),
					Context:     wc,
				})
				if err != nil {
					return fmt.Errorf("chunk %d: %w", ch.ChunkIndex, err)
				}
				if resp != nil {
					results[i] = resp.Facts
					rejected[i] = len(resp.Rejected)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("extract_facts: %w", ctx.Err()))
			}
			out.Failed++
			deps.Log.Warn("Extraction failed", "event_id", ev.ID, "malformed", errors.Is(err, asksai.ErrMalformed), "error", err)
			if rerr := deps.Locks.ReleaseWithError(dbc, ev.ID, token, "extract: "+err.Error(), true, nil); rerr != nil && !errors.Is(rerr, rowlock.ErrLockLost) {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, rerr)
			}
			continue
		}
		if err := deps.Locks.Touch(dbc, token); err != nil {
			deps.Log.Warn("Lock touch failed", "error", err)
		}

		var created, dups, bad, pending int
		txErr := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inner := dbc.WithTx(tx)
			facts, stats, err := buildFacts(inner, deps, ev, chunks, results)
			if err != nil {
				return err
			}
			if len(facts) > 0 {
				if _, err := deps.Facts.Create(inner, facts); err != nil {
					return err
				}
			}
			created, dups, bad, pending = len(facts), stats.duplicates, stats.malformed, stats.pending
			return deps.Locks.Release(inner, ev.ID, token, rowlock.Advance{
				Column:       "processing_stage",
				From:         []string{string(asks.StageChunked)},
				To:           string(asks.StageExtracted),
				MarkerColumn: "extracted_at",
			}, nil)
		})
		switch {
		case txErr == nil:
			out.Extracted++
			out.FactsCreated += created
			out.Duplicates += dups
			out.Malformed += bad
			queued += pending
			for _, n := range rejected {
				out.Malformed += n
			}
		case errors.Is(txErr, rowlock.ErrLockLost):
			out.LockLost++
			deps.Log.Warn("Lost event lock while extracting", "event_id", ev.ID)
		case isConflict(txErr):
			out.Failed++
			if err := deps.Locks.ReleaseWithError(dbc, ev.ID, token, "extract: "+txErr.Error(), true, nil); err != nil && !errors.Is(err, rowlock.ErrLockLost) {
				return out, abandonEvents(dbc, deps.Log, deps.Locks, token, err)
			}
		default:
			return out, abandonEvents(dbc, deps.Log, deps.Locks, token, fmt.Errorf("extract_facts: persist %s: %w", ev.ID, txErr))
		}
	}

	if queued > 0 {
		notify(ctx, deps.Log, deps.Wake, StageAggregateFacts)
	}
	if out.Claimed > 0 {
		deps.Log.Info("Extracted facts", "claimed", out.Claimed, "extracted", out.Extracted, "facts_created", out.FactsCreated, "duplicates", out.Duplicates, "malformed", out.Malformed, "failed", out.Failed)
	}
	return out, nil
}

func loadWorkspaceContext(dbc dbctx.Context, deps ExtractFactsDeps, workspaceID uuid.UUID) (asksai.WorkspaceContext, error) {
	wc := asksai.WorkspaceContext{Themes: []string{}, ExistingAsks: []string{}}
	themes, err := deps.Themes.ListByWorkspace(dbc, workspaceID)
	if err != nil {
		return wc, err
	}
	for _, t := range themes {
		wc.Themes = append(wc.Themes, t.Name)
	}
	names, err := deps.Features.OpenNames(dbc, workspaceID, contextAskLimit)
	if err != nil {
		return wc, err
	}
	wc.ExistingAsks = append(wc.ExistingAsks, names...)
	return wc, nil
}

type buildStats struct {
	pending    int
	duplicates int
	malformed  int
}

// buildFacts turns collaborator output into rows. The first fact with a given content hash
// in an event is canonical; later ones, including ones from a previous attempt, point at it.
// Malformed items are stored as skipped and never become canonical.
func buildFacts(dbc dbctx.Context, deps ExtractFactsDeps, ev *asks.NormalizedEvent, chunks []*asks.EventChunk, results [][]asksai.CandidateFact) ([]*asks.ExtractedFact, buildStats, error) {
	var stats buildStats
	canonical, err := deps.Facts.CanonicalHashes(dbc, ev.ID)
	if err != nil {
		return nil, stats, err
	}
	themeIDs := map[string]*uuid.UUID{}
	resolveTheme := func(name string) (*uuid.UUID, error) {
		key := asks.ThemeKey(name)
		if key == "" {
			return nil, nil
		}
		if id, ok := themeIDs[key]; ok {
			return id, nil
		}
		th, err := deps.Themes.Resolve(dbc, ev.WorkspaceID, name)
		if err != nil {
			return nil, err
		}
		var id *uuid.UUID
		if th != nil {
			tid := th.ID
			id = &tid
		}
		themeIDs[key] = id
		return id, nil
	}

	var facts []*asks.ExtractedFact
	for i, ch := range chunks {
		for _, cf := range results[i] {
			title := strings.TrimSpace(cf.Title)
			if title == "" {
				stats.malformed++
				continue
			}
			themeID, err := resolveTheme(cf.Theme)
			if err != nil {
				return nil, stats, err
			}
			f := &asks.ExtractedFact{
				ID:                   uuid.New(),
				WorkspaceID:          ev.WorkspaceID,
				EventID:              ev.ID,
				ChunkID:              ch.ID,
				ThemeID:              themeID,
				Title:                title,
				Description:          strings.TrimSpace(cf.Description),
				PriorityHint:         cf.PriorityHint,
				UrgencyHint:          cf.UrgencyHint,
				PersonaHint:          cf.PersonaHint,
				Keywords:             jsonOrNil(cf.Keywords),
				HintsExtra:           jsonOrNil(cf.Extra),
				ExtractionConfidence: cf.Confidence,
				ContentHash:          asks.ContentHash(cf.Title, cf.Description),
				AggregationStatus:    asks.AggregationPending,
			}
			switch first, seen := canonical[f.ContentHash]; {
			case cf.Malformed != "":
				f.ExtractionConfidence = 0
				f.AggregationStatus = asks.AggregationSkipped
				f.SkipReason = asks.SkipReasonMalformed
				stats.malformed++
			case seen:
				dupOf := first
				f.IsDuplicate = true
				f.DuplicateOfID = &dupOf
				f.AggregationStatus = asks.AggregationSkipped
				f.SkipReason = asks.SkipReasonDuplicate
				stats.duplicates++
			default:
				canonical[f.ContentHash] = f.ID
				stats.pending++
			}
			facts = append(facts, f)
		}
	}
	return facts, stats, nil
}

func jsonOrNil(v any) datatypes.JSON {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
