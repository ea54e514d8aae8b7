package wake

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func collect(t *testing.T, bus Bus, ctx context.Context) (func() []string, *sync.WaitGroup) {
	t.Helper()
	var mu sync.Mutex
	var got []string
	wg := &sync.WaitGroup{}
	wg.Add(1)
	if err := bus.Subscribe(ctx, func(stage string) {
		mu.Lock()
		got = append(got, stage)
		mu.Unlock()
		wg.Done()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}, wg
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for wake message")
	}
}

func TestLocalBusDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewLocal()
	got, wg := collect(t, bus, ctx)
	if err := bus.Publish(ctx, "chunk_events"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitOrFail(t, wg)
	if g := got(); len(g) != 1 || g[0] != "chunk_events" {
		t.Fatalf("unexpected messages: %v", g)
	}
}

func TestRedisBusDelivers(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis wake bus tests")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus, err := NewRedis(logger.Nop(), addr, "askflow:wake:test")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer bus.Close()
	got, wg := collect(t, bus, ctx)
	if err := bus.Publish(ctx, "extract_facts"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitOrFail(t, wg)
	if g := got(); len(g) != 1 || g[0] != "extract_facts" {
		t.Fatalf("unexpected messages: %v", g)
	}
}
