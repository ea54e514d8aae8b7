package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
)

func SeedEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, text string) *asks.NormalizedEvent {
	tb.Helper()
	e := &asks.NormalizedEvent{
		WorkspaceID:     workspaceID,
		SourceType:      asks.SourceSlack,
		SourceRef:       "C123/" + uuid.NewString(),
		ActorRole:       asks.ActorCustomer,
		CleanedText:     text,
		ProcessingStage: asks.StagePending,
		OccurredAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed event: %v", err)
	}
	return e
}

func SeedEventAt(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, stage asks.EventStage, text string) *asks.NormalizedEvent {
	tb.Helper()
	now := time.Now().UTC()
	e := &asks.NormalizedEvent{
		WorkspaceID:     workspaceID,
		SourceType:      asks.SourceSlack,
		ActorRole:       asks.ActorCustomer,
		CleanedText:     text,
		ProcessingStage: stage,
		OccurredAt:      now,
	}
	if stage != asks.StagePending {
		e.ScoredAt = &now
		e.SignalScore = 0.8
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed event: %v", err)
	}
	return e
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, eventID uuid.UUID, index int, text string) *asks.EventChunk {
	tb.Helper()
	c := &asks.EventChunk{EventID: eventID, ChunkIndex: index, Text: text, CharCount: len([]rune(text))}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedTheme(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, name string) *asks.Theme {
	tb.Helper()
	th := &asks.Theme{WorkspaceID: workspaceID, Name: name}
	if err := tx.WithContext(ctx).Create(th).Error; err != nil {
		tb.Fatalf("seed theme: %v", err)
	}
	return th
}

func SeedFact(tb testing.TB, ctx context.Context, tx *gorm.DB, ev *asks.NormalizedEvent, chunkID uuid.UUID, title string, confidence float64) *asks.ExtractedFact {
	tb.Helper()
	f := &asks.ExtractedFact{
		WorkspaceID:          ev.WorkspaceID,
		EventID:              ev.ID,
		ChunkID:              chunkID,
		Title:                title,
		Description:          title,
		ExtractionConfidence: confidence,
		ContentHash:          asks.ContentHash(title, title),
		AggregationStatus:    asks.AggregationPending,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed fact: %v", err)
	}
	return f
}

func SeedFeature(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, themeID *uuid.UUID, name string) *asks.Feature {
	tb.Helper()
	now := time.Now().UTC()
	f := &asks.Feature{
		WorkspaceID:      workspaceID,
		ThemeID:          themeID,
		Name:             name,
		Description:      name,
		Status:           asks.FeatureOpen,
		FirstMentionedAt: now,
		LastMentionedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed feature: %v", err)
	}
	return f
}
