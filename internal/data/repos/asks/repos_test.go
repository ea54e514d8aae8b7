package asks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
)

func TestChunkRepoIgnoresConflicts(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	ev := testutil.SeedEvent(t, ctx, db, uuid.New(), "a. b.")
	repo := NewChunkRepo(db, testutil.Logger(t))

	n, err := repo.CreateIgnoreConflict(dbc, []*asks.EventChunk{
		{EventID: ev.ID, ChunkIndex: 0, Text: "a.", CharCount: 2},
		{EventID: ev.ID, ChunkIndex: 1, Text: "b.", CharCount: 2},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CreateIgnoreConflict(dbc, []*asks.EventChunk{
		{EventID: ev.ID, ChunkIndex: 0, Text: "changed", CharCount: 7},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	chunks, err := repo.ListByEvent(dbc, ev.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.", chunks[0].Text)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestFeatureCandidatesScopedByThemeAndStatus(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	ws := uuid.New()
	repo := NewFeatureRepo(db, testutil.Logger(t))

	billing := testutil.SeedTheme(t, ctx, db, ws, "Billing")
	reports := testutil.SeedTheme(t, ctx, db, ws, "Reports")
	a := testutil.SeedFeature(t, ctx, db, ws, &billing.ID, "Invoice PDF export")
	b := testutil.SeedFeature(t, ctx, db, ws, &reports.ID, "CSV export")
	shipped := testutil.SeedFeature(t, ctx, db, ws, &billing.ID, "Stripe sync")
	require.NoError(t, db.Model(shipped).Update("status", string(asks.FeatureShipped)).Error)

	got, err := repo.ListCandidates(dbc, ws, &billing.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.RecordMention(dbc, b.ID, later, 0.8))
	all, err := repo.ListCandidates(dbc, ws, nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "most recently mentioned first")
	assert.Equal(t, 1, all[0].MentionCount)

	// an older mention never moves last_mentioned_at backwards
	require.NoError(t, repo.RecordMention(dbc, b.ID, later.Add(-48*time.Hour), 0.9))
	fb, err := repo.GetByID(dbc, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fb.MentionCount)
	assert.WithinDuration(t, later, fb.LastMentionedAt, time.Second)
}

func TestLockOpenSkipsClosedFeatures(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ws := uuid.New()
	repo := NewFeatureRepo(db, testutil.Logger(t))

	a := testutil.SeedFeature(t, ctx, db, ws, nil, "CSV export")
	b := testutil.SeedFeature(t, ctx, db, ws, nil, "csv export")
	c := testutil.SeedFeature(t, ctx, db, ws, nil, "Dark mode")
	require.NoError(t, repo.MarkMerged(dbctx.Context{Ctx: ctx}, b.ID, a.ID))

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := repo.LockOpen(dbctx.Context{Ctx: ctx, Tx: tx}, []uuid.UUID{c.ID, b.ID, a.ID})
		if err != nil {
			return err
		}
		ids := map[uuid.UUID]bool{}
		for _, f := range got {
			ids[f.ID] = true
		}
		assert.Len(t, got, 2)
		assert.True(t, ids[a.ID])
		assert.True(t, ids[c.ID])
		assert.False(t, ids[b.ID])
		return nil
	})
	require.NoError(t, err)
}

func TestMentionUniqueness(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	ws := uuid.New()
	ev := testutil.SeedEvent(t, ctx, db, ws, "x")
	f1 := testutil.SeedFeature(t, ctx, db, ws, nil, "one")
	f2 := testutil.SeedFeature(t, ctx, db, ws, nil, "two")
	repo := NewMentionRepo(db, testutil.Logger(t))

	_, err := repo.Create(dbc, &asks.MessageCustomerAsk{EventID: ev.ID, FeatureID: f1.ID, FactID: uuid.New(), MatchConfidence: 1, MatchReason: asks.MatchReasonCreatedNew, IsPrimary: true})
	require.NoError(t, err)

	_, err = repo.Create(dbc, &asks.MessageCustomerAsk{EventID: ev.ID, FeatureID: f1.ID, FactID: uuid.New(), MatchConfidence: 1, MatchReason: asks.MatchReasonCreatedNew})
	assert.Error(t, err, "second link for the same (event, feature)")

	_, err = repo.Create(dbc, &asks.MessageCustomerAsk{EventID: ev.ID, FeatureID: f2.ID, FactID: uuid.New(), MatchConfidence: 1, MatchReason: asks.MatchReasonCreatedNew, IsPrimary: true})
	assert.Error(t, err, "second primary link for the same event")

	_, err = repo.Create(dbc, &asks.MessageCustomerAsk{EventID: ev.ID, FeatureID: f2.ID, FactID: uuid.New(), MatchConfidence: 0.8, MatchReason: asks.MatchReasonMatchedExisting})
	require.NoError(t, err)

	has, err := repo.HasPrimary(dbc, ev.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRunFinalizeOnce(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewRunRepo(db, testutil.Logger(t))

	run, err := repo.Create(dbc, &asks.AggregationRun{StartedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, asks.RunRunning, run.Status)

	ok, err := repo.Finalize(dbc, run.ID, map[string]any{"status": string(asks.RunCompleted), "facts_processed": 3, "finished_at": time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Finalize(dbc, run.ID, map[string]any{"status": string(asks.RunFailed), "finished_at": time.Now().UTC()})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, asks.RunCompleted, got.Status)
	assert.Equal(t, 3, got.FactsProcessed)
}

func TestThemeEnsureIsCaseInsensitive(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	ws := uuid.New()
	repo := NewThemeRepo(db, testutil.Logger(t))

	a, err := repo.Ensure(dbc, ws, "Integrations")
	require.NoError(t, err)
	b, err := repo.Ensure(dbc, ws, "  integrations ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	missing, err := repo.Resolve(dbc, ws, "Security")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
