package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

type countingHandler struct {
	typ   string
	calls atomic.Int32
	more  func(n int32) bool
}

func (h *countingHandler) Type() string { return h.typ }

func (h *countingHandler) Run(jc *runtime.Context) error {
	n := h.calls.Add(1)
	jc.Succeed(map[string]any{"claimed": n}, h.more(n))
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestLoopDrainsWhileMoreWork(t *testing.T) {
	h := &countingHandler{typ: "score_events", more: func(n int32) bool { return n < 3 }}
	reg := runtime.NewRegistry()
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	bus := wake.NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(nil, logger.Nop(), reg, bus, Config{
		Concurrency:  1,
		PollInterval: time.Hour,
		Stages:       []string{"score_events"},
	})
	w.Start(ctx)

	if err := bus.Publish(ctx, "score_events"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, func() bool { return h.calls.Load() == 3 })
	time.Sleep(20 * time.Millisecond)
	if got := h.calls.Load(); got != 3 {
		t.Fatalf("expected drain to stop after 3 passes, got %d", got)
	}
	cancel()
	w.Wait()
}

func TestPeriodicStageRunsOnInterval(t *testing.T) {
	h := &countingHandler{typ: "reap_locks", more: func(int32) bool { return true }}
	reg := runtime.NewRegistry()
	_ = reg.Register(h)
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(nil, logger.Nop(), reg, nil, Config{
		Periodic: map[string]time.Duration{"reap_locks": 10 * time.Millisecond},
	})
	w.Start(ctx)
	waitFor(t, func() bool { return h.calls.Load() >= 2 })
	cancel()
	w.Wait()
}

func TestUnknownStageIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(nil, logger.Nop(), runtime.NewRegistry(), nil, Config{Stages: []string{"nope"}})
	w.Start(ctx)
	if len(w.wakes) != 0 {
		t.Fatalf("expected no loops for unknown stage")
	}
}
