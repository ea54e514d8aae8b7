package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/askflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/askflow-backend/internal/domain/asks"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("score_events", nil, time.Second, map[string]any{"claimed": 1})
	m.ObserveLLMRequest("extract_facts", "ok", time.Second, 10, 5)
	m.IncWake("chunk_events")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
}

func TestObserveStageCountsNumericResults(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage("score_events", nil, 200*time.Millisecond, map[string]any{
		"claimed":   float64(5),
		"skipped":   float64(2),
		"lock_lost": float64(0),
		"run_id":    "abc",
	})
	m.ObserveStage("score_events", errors.New("boom"), time.Second, map[string]any{"claimed": 3})

	if got := m.StageRows("score_events", "claimed"); got != 8 {
		t.Fatalf("claimed=%v want 8", got)
	}
	if got := m.StageRows("score_events", "lock_lost"); got != 0 {
		t.Fatalf("lock_lost=%v want 0", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`askflow_stage_runs_total{stage="score_events",status="failed"} 1.000000`,
		`askflow_stage_runs_total{stage="score_events",status="succeeded"} 1.000000`,
		`askflow_stage_duration_seconds_count{stage="score_events"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, `status="failed"`) > strings.Index(out, `status="succeeded"`) {
		t.Fatalf("series not written in label order")
	}
}

func TestCollectBacklog(t *testing.T) {
	db := testutil.DB(t)
	if db.Dialector.Name() != "sqlite" {
		t.Skip("backlog counts are only exact on a private database")
	}
	ctx := context.Background()
	ws := uuid.New()
	testutil.SeedEvent(t, ctx, db, ws, "one")
	testutil.SeedEvent(t, ctx, db, ws, "two")
	testutil.SeedEventAt(t, ctx, db, ws, asks.StageScored, "three")

	m := NewMetrics()
	if err := m.CollectBacklog(ctx, db, 3); err != nil {
		t.Fatalf("CollectBacklog: %v", err)
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`askflow_backlog_rows{table="normalized_event",state="pending"} 2.000000`,
		`askflow_backlog_rows{table="normalized_event",state="scored"} 1.000000`,
		`askflow_backlog_rows{table="extracted_fact",state="pending"} 0.000000`,
		`askflow_terminal_rows{table="normalized_event"} 0.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
