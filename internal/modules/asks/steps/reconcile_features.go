package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

const DefaultReconcileSimilarity = 0.85

type ReconcileFeaturesDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Facts    repos.FactRepo
	Features repos.FeatureRepo
	Mentions repos.MentionRepo
}

type ReconcileFeaturesInput struct {
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`
	Similarity  *float64   `json:"similarity,omitempty"`
}

type ReconcileFeaturesOutput struct {
	Workspaces     int `json:"workspaces"`
	Groups         int `json:"groups"`
	FeaturesMerged int `json:"features_merged"`
	LinksRepointed int `json:"links_repointed"`
	LinksCollapsed int `json:"links_collapsed"`
	// Stale counts groups whose winner was merged or closed before the lock was taken.
	Stale  int `json:"stale"`
	Failed int `json:"failed"`
}

// ReconcileFeatures merges open asks that concurrent aggregators created for the same
// request. Within a theme, asks whose names normalize equal (or whose token overlap reaches
// the similarity bar) fold into the oldest one.
func ReconcileFeatures(ctx context.Context, deps ReconcileFeaturesDeps, in ReconcileFeaturesInput) (ReconcileFeaturesOutput, error) {
	out := ReconcileFeaturesOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Facts == nil || deps.Features == nil || deps.Mentions == nil {
		return out, fmt.Errorf("reconcile_features: missing deps")
	}
	similarity := DefaultReconcileSimilarity
	if in.Similarity != nil {
		similarity = *in.Similarity
	}
	dbc := dbctx.Context{Ctx: ctx}

	var workspaces []uuid.UUID
	if in.WorkspaceID != nil && *in.WorkspaceID != uuid.Nil {
		workspaces = []uuid.UUID{*in.WorkspaceID}
	} else {
		ws, err := deps.Features.WorkspacesWithOpen(dbc)
		if err != nil {
			return out, fmt.Errorf("reconcile_features: workspaces: %w", err)
		}
		workspaces = ws
	}

	for _, ws := range workspaces {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Workspaces++
		open, err := deps.Features.ListOpen(dbc, ws)
		if err != nil {
			return out, fmt.Errorf("reconcile_features: list %s: %w", ws, err)
		}
		for _, group := range groupDuplicates(open, similarity) {
			out.Groups++
			winner, losers := group[0], group[1:]
			var res mergeResult
			err := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				res, err = mergeGroup(dbc.WithTx(tx), deps, winner, losers)
				return err
			})
			if errors.Is(err, errStaleGroup) {
				out.Stale++
				continue
			}
			if err != nil {
				if isConflict(err) {
					out.Failed++
					deps.Log.Warn("Reconcile group conflicted, will retry next pass", "feature_id", winner.ID, "error", err)
					continue
				}
				return out, fmt.Errorf("reconcile_features: merge into %s: %w", winner.ID, err)
			}
			if res.merged == 0 {
				out.Stale++
				continue
			}
			out.FeaturesMerged += res.merged
			out.LinksRepointed += res.repointed
			out.LinksCollapsed += res.collapsed
			deps.Log.Info("Merged duplicate asks", "feature_id", winner.ID, "merged", res.merged, "links_repointed", res.repointed, "links_collapsed", res.collapsed)
		}
	}
	return out, nil
}

var errStaleGroup = errors.New("reconcile_features: winner no longer open")

type mergeResult struct {
	merged    int
	repointed int
	collapsed int
}

// mergeGroup folds losers into winner inside the caller's transaction.
//
// Lock order: every feature of the group is row-locked in id order before any link is
// read. The aggregator locks one feature per transaction (RecordMention) before inserting
// its link, so a merge waits for in-flight mentions to commit and counts their links, and
// a mention arriving later either lands on the winner after the recount or finds its
// loser merged and retries.
func mergeGroup(dbc dbctx.Context, deps ReconcileFeaturesDeps, winner *asks.Feature, losers []*asks.Feature) (mergeResult, error) {
	var res mergeResult
	ids := make([]uuid.UUID, 0, len(losers)+1)
	ids = append(ids, winner.ID)
	for _, l := range losers {
		ids = append(ids, l.ID)
	}
	locked, err := deps.Features.LockOpen(dbc, ids)
	if err != nil {
		return res, err
	}
	stillOpen := make(map[uuid.UUID]bool, len(locked))
	for _, f := range locked {
		stillOpen[f.ID] = true
	}
	if !stillOpen[winner.ID] {
		return res, errStaleGroup
	}

	loserIDs := make([]uuid.UUID, 0, len(losers))
	for _, l := range losers {
		if !stillOpen[l.ID] {
			continue
		}
		if err := deps.Features.MarkMerged(dbc, l.ID, winner.ID); err != nil {
			return res, err
		}
		loserIDs = append(loserIDs, l.ID)
	}
	if len(loserIDs) == 0 {
		return res, nil
	}
	res.merged = len(loserIDs)

	kept, err := deps.Mentions.ListByFeatures(dbc, []uuid.UUID{winner.ID})
	if err != nil {
		return res, err
	}
	byEvent := make(map[uuid.UUID]*asks.MessageCustomerAsk, len(kept))
	for _, m := range kept {
		byEvent[m.EventID] = m
	}

	moving, err := deps.Mentions.ListByFeatures(dbc, loserIDs)
	if err != nil {
		return res, err
	}
	for _, m := range moving {
		existing, ok := byEvent[m.EventID]
		if !ok {
			if err := deps.Mentions.Repoint(dbc, m.ID, winner.ID); err != nil {
				return res, err
			}
			m.FeatureID = winner.ID
			byEvent[m.EventID] = m
			res.repointed++
			continue
		}
		if err := deps.Facts.MarkDuplicateOf(dbc, m.FactID, existing.FactID); err != nil {
			return res, err
		}
		if err := deps.Mentions.Delete(dbc, m.ID); err != nil {
			return res, err
		}
		if m.IsPrimary && !existing.IsPrimary {
			if err := deps.Mentions.SetPrimary(dbc, existing.ID, true); err != nil {
				return res, err
			}
			existing.IsPrimary = true
		}
		res.collapsed++
	}

	if _, err := deps.Facts.RepointFeature(dbc, loserIDs, winner.ID); err != nil {
		return res, err
	}
	n, err := deps.Mentions.CountByFeature(dbc, winner.ID)
	if err != nil {
		return res, err
	}
	if err := deps.Features.SetMentionCount(dbc, winner.ID, n); err != nil {
		return res, err
	}
	return res, nil
}

// groupDuplicates returns groups of two or more features, oldest first in each group.
// open must be ordered by creation.
func groupDuplicates(open []*asks.Feature, similarity float64) [][]*asks.Feature {
	parent := make([]int, len(open))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	names := make([]string, len(open))
	tokens := make([]map[string]struct{}, len(open))
	for i, f := range open {
		names[i] = asks.NormalizeText(f.Name)
		tokens[i] = tokenSet(names[i])
	}
	for i := 0; i < len(open); i++ {
		for j := i + 1; j < len(open); j++ {
			if !sameTheme(open[i].ThemeID, open[j].ThemeID) {
				continue
			}
			if names[i] == "" || names[j] == "" {
				continue
			}
			if names[i] == names[j] || passes(jaccard(tokens[i], tokens[j]), similarity) {
				union(i, j)
			}
		}
	}

	byRoot := map[int][]*asks.Feature{}
	var roots []int
	for i, f := range open {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], f)
	}
	sort.Ints(roots)
	var out [][]*asks.Feature
	for _, r := range roots {
		if len(byRoot[r]) > 1 {
			out = append(out, byRoot[r])
		}
	}
	return out
}

func sameTheme(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func tokenSet(normalized string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(normalized) {
		out[tok] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
