package app

import (
	"strings"
	"testing"
	"time"

	"github.com/yungbote/askflow-backend/internal/clients/asksai"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	"github.com/yungbote/askflow-backend/internal/modules/asks/scoring"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/realtime/wake"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(logger.Nop())
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries=%d", cfg.MaxRetries)
	}
	if cfg.MatchThreshold != steps.DefaultMatchThreshold || cfg.MinConfidence != steps.DefaultMinConfidence {
		t.Fatalf("thresholds=%v/%v", cfg.MatchThreshold, cfg.MinConfidence)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("MATCH_THRESHOLD", "0.9")
	t.Setenv("LOCK_TTL", "30m")
	t.Setenv("CHUNK_MAX_CHARS", "1200")
	t.Setenv("CHUNK_THRESHOLD", "800")
	t.Setenv("WORKER_POLL_INTERVAL", "2")

	cfg := LoadConfig(logger.Nop())
	if cfg.MaxRetries != 5 || cfg.MatchThreshold != 0.9 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.LockTTL != 30*time.Minute || cfg.PollInterval != 2*time.Second {
		t.Fatalf("durations: lock_ttl=%s poll=%s", cfg.LockTTL, cfg.PollInterval)
	}
	if cfg.Chunking.MaxChars != 1200 || cfg.Chunking.Threshold != 800 {
		t.Fatalf("chunking=%+v", cfg.Chunking)
	}
}

func TestOtelSettingsComeFromConfig(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-team=flow")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "1")
	t.Setenv("OTEL_SAMPLER_RATIO", "0.5")
	t.Setenv("INSTANCE_ID", "worker-3")

	cfg := LoadConfig(logger.Nop())
	oc := cfg.Otel([]string{"score_events"})
	if !oc.Enabled || oc.Endpoint != "collector:4318" || !oc.Insecure || oc.SampleRatio != 0.5 {
		t.Fatalf("otel=%+v", oc)
	}
	if oc.Headers["x-team"] != "flow" || oc.InstanceID != "worker-3" {
		t.Fatalf("identity=%+v", oc)
	}
	if len(oc.Stages) != 1 || !oc.WorkerEnabled || oc.ServiceName != "askflow" {
		t.Fatalf("process=%+v", oc)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := LoadConfig(logger.Nop())
	cases := map[string]func(*Config){
		"MAX_RETRIES":        func(c *Config) { c.MaxRetries = 0 },
		"MATCH_THRESHOLD":    func(c *Config) { c.MatchThreshold = 1.2 },
		"MIN_CONFIDENCE":     func(c *Config) { c.MinConfidence = -0.1 },
		"CHUNK_THRESHOLD":    func(c *Config) { c.Chunking.Threshold = c.Chunking.MaxChars + 1 },
		"LOCK_TTL":           func(c *Config) { c.LockTTL = c.StageSoftTimeout },
		"OTEL_SAMPLER_RATIO": func(c *Config) { c.OtelSampleRatio = 2 },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected error mentioning it, got %v", want, err)
		}
	}
}

func TestWireRegistryWithoutAI(t *testing.T) {
	log := logger.Nop()
	cfg := LoadConfig(log)
	set := repos.NewSet(nil, log, cfg.MaxRetries)
	reg, err := wireRegistry(nil, log, cfg, set, Clients{Wake: wake.NewLocal(), Scorer: scoring.Default()})
	if err != nil {
		t.Fatalf("wireRegistry: %v", err)
	}
	got := strings.Join(reg.Types(), ",")
	if got != "chunk_events,reap_locks,reconcile_features,score_events" {
		t.Fatalf("stages=%s", got)
	}

	wc := workerConfig(cfg, reg)
	if strings.Join(wc.Stages, ",") != "score_events,chunk_events" {
		t.Fatalf("batch stages=%v", wc.Stages)
	}
	if wc.Periodic[steps.StageReapLocks] != cfg.ReapInterval {
		t.Fatalf("reap interval=%s", wc.Periodic[steps.StageReapLocks])
	}
}

func TestWireRegistryWithAI(t *testing.T) {
	log := logger.Nop()
	cfg := LoadConfig(log)
	set := repos.NewSet(nil, log, cfg.MaxRetries)
	reg, err := wireRegistry(nil, log, cfg, set, Clients{Wake: wake.NewLocal(), Scorer: scoring.Default(), AI: &asksai.Fake{}})
	if err != nil {
		t.Fatalf("wireRegistry: %v", err)
	}
	if n := len(reg.Types()); n != 6 {
		t.Fatalf("expected 6 stages, got %d (%v)", n, reg.Types())
	}
	wc := workerConfig(cfg, reg)
	if strings.Join(wc.Stages, ",") != "score_events,chunk_events,extract_facts,aggregate_facts" {
		t.Fatalf("batch stages=%v", wc.Stages)
	}
}
