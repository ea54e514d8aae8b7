package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(250*time.Millisecond, 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("Unavailable should retry")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("PermissionDenied should not retry")
	}
	if !isRetryableRPC(context.DeadlineExceeded) {
		t.Fatalf("deadline should retry")
	}
	if isRetryableRPC(errors.New("boom")) {
		t.Fatalf("plain error should not retry")
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(context.Background(), logger.Nop(), Config{})
	if err != nil || c != nil {
		t.Fatalf("expected disabled client, got %v %v", c, err)
	}
}

func TestLoadConfigSplitsStages(t *testing.T) {
	t.Setenv("TEMPORAL_SWEEP_STAGES", " score_events, chunk_events ,,")
	t.Setenv("TEMPORAL_ADDRESS", "localhost:7233")
	cfg := LoadConfig(logger.Nop())
	if !cfg.Enabled() {
		t.Fatalf("expected enabled")
	}
	if len(cfg.SweepStages) != 2 || cfg.SweepStages[1] != "chunk_events" {
		t.Fatalf("SweepStages = %v", cfg.SweepStages)
	}
	if cfg.Namespace != "askflow" {
		t.Fatalf("Namespace = %q", cfg.Namespace)
	}
}
