package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pkgerrors "github.com/yungbote/askflow-backend/internal/pkg/errors"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type stubHandler struct {
	typ string
	run func(jc *Context) error
}

func (s stubHandler) Type() string          { return s.typ }
func (s stubHandler) Run(jc *Context) error { return s.run(jc) }

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	h := stubHandler{typ: "score_events", run: func(*Context) error { return nil }}
	if err := r.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(h); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := r.Register(stubHandler{run: func(*Context) error { return nil }}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if got := r.Types(); len(got) != 1 || got[0] != "score_events" {
		t.Fatalf("Types = %v", got)
	}
}

func TestRunDecodesPayloadAndReportsResult(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubHandler{typ: "aggregate_facts", run: func(jc *Context) error {
		if jc.PayloadInt("batch_size", 0) != 7 {
			t.Errorf("batch_size = %d", jc.PayloadInt("batch_size", 0))
		}
		if v := jc.PayloadFloat("match_threshold"); v == nil || *v != 0.75 {
			t.Errorf("match_threshold = %v", v)
		}
		if jc.PayloadFloat("min_confidence") != nil {
			t.Errorf("absent float should be nil")
		}
		if _, ok := jc.PayloadUUID("workspace_id"); ok {
			t.Errorf("invalid uuid should not parse")
		}
		jc.Succeed(struct {
			Processed int `json:"processed"`
		}{Processed: 7}, true)
		return nil
	}})

	payload := json.RawMessage(`{"batch_size":7,"match_threshold":0.75,"workspace_id":"nope"}`)
	jc, err := r.Run(context.Background(), nil, logger.Nop(), "aggregate_facts", payload)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !jc.More() {
		t.Fatalf("expected more=true")
	}
	if got := jc.Result()["processed"]; got != float64(7) {
		t.Fatalf("processed = %v", got)
	}
}

func TestRunUnknownStage(t *testing.T) {
	_, err := NewRegistry().Run(context.Background(), nil, logger.Nop(), "nope", nil)
	if !errors.Is(err, pkgerrors.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(stubHandler{typ: "chunk_events", run: func(*Context) error { panic("boom") }})
	jc, err := r.Run(context.Background(), nil, logger.Nop(), "chunk_events", nil)
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if jc == nil || jc.Err() == nil || jc.More() {
		t.Fatalf("expected failed context, got %+v", jc)
	}
}

func TestHandlerErrorIsSurfaced(t *testing.T) {
	r := NewRegistry()
	want := errors.New("store down")
	_ = r.Register(stubHandler{typ: "score_events", run: func(*Context) error { return want }})
	_, err := r.Run(context.Background(), nil, logger.Nop(), "score_events", nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
