package app

import (
	"fmt"
	"os"
	"time"

	"github.com/yungbote/askflow-backend/internal/modules/asks/chunking"
	"github.com/yungbote/askflow-backend/internal/modules/asks/steps"
	"github.com/yungbote/askflow-backend/internal/observability"
	"github.com/yungbote/askflow-backend/internal/pkg/envutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	ServiceName string
	Environment string
	Version     string

	MaxRetries int

	WorkerEnabled     bool
	WorkerConcurrency int
	PollInterval      time.Duration
	StageSoftTimeout  time.Duration

	LockTTL             time.Duration
	ReapInterval        time.Duration
	ReconcileInterval   time.Duration
	ReconcileSimilarity float64

	ScoreBatchSize     int
	ChunkBatchSize     int
	ExtractBatchSize   int
	AggregateBatchSize int

	ExtractConcurrency int
	MatchThreshold     float64
	MinConfidence      float64
	MaxCandidates      int

	Chunking        chunking.Options
	ScorerRulesPath string

	RedisAddr   string
	WakeChannel string

	LLMCallTimeout   time.Duration
	LLMRatePerSecond float64
	LLMBurst         int

	TriggerJWTSecret string
	TriggerJWTIssuer string

	InstanceID      string
	OtelEnabled     bool
	OtelEndpoint    string
	OtelHeaders     map[string]string
	OtelInsecure    bool
	OtelStdout      bool
	OtelSampleRatio float64
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080", log),
		MetricsAddr: envutil.String("METRICS_ADDR", "", log),
		ServiceName: envutil.String("SERVICE_NAME", "askflow", log),
		Environment: envutil.String("ENVIRONMENT", "development", log),
		Version:     envutil.String("SERVICE_VERSION", "dev", log),

		MaxRetries: envutil.Int("MAX_RETRIES", 3, log),

		WorkerEnabled:     envutil.Bool("WORKER_ENABLED", true, log),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 2, log),
		PollInterval:      envutil.Duration("WORKER_POLL_INTERVAL", 5*time.Second, log),
		StageSoftTimeout:  envutil.Duration("STAGE_SOFT_TIMEOUT", 10*time.Minute, log),

		LockTTL:             envutil.Duration("LOCK_TTL", steps.DefaultLockTTL, log),
		ReapInterval:        envutil.Duration("REAP_INTERVAL", time.Minute, log),
		ReconcileInterval:   envutil.Duration("RECONCILE_INTERVAL", 10*time.Minute, log),
		ReconcileSimilarity: envutil.Float("RECONCILE_SIMILARITY", steps.DefaultReconcileSimilarity, log),

		ScoreBatchSize:     envutil.Int("SCORE_BATCH_SIZE", steps.DefaultBatchSize, log),
		ChunkBatchSize:     envutil.Int("CHUNK_BATCH_SIZE", steps.DefaultBatchSize, log),
		ExtractBatchSize:   envutil.Int("EXTRACT_BATCH_SIZE", 20, log),
		AggregateBatchSize: envutil.Int("AGGREGATE_BATCH_SIZE", steps.DefaultBatchSize, log),

		ExtractConcurrency: envutil.Int("EXTRACT_CONCURRENCY", 4, log),
		MatchThreshold:     envutil.Float("MATCH_THRESHOLD", steps.DefaultMatchThreshold, log),
		MinConfidence:      envutil.Float("MIN_CONFIDENCE", steps.DefaultMinConfidence, log),
		MaxCandidates:      envutil.Int("MAX_CANDIDATES", steps.DefaultMaxCandidates, log),

		Chunking: chunking.Options{
			MaxChars:  envutil.Int("CHUNK_MAX_CHARS", chunking.DefaultMaxChars, log),
			Threshold: envutil.Int("CHUNK_THRESHOLD", chunking.DefaultThreshold, log),
		},
		ScorerRulesPath: envutil.String("SCORER_RULES_PATH", "", log),

		RedisAddr:   envutil.String("REDIS_ADDR", "", log),
		WakeChannel: envutil.String("WAKE_CHANNEL", "askflow:wake", log),

		LLMCallTimeout:   envutil.Duration("LLM_CALL_TIMEOUT", 60*time.Second, log),
		LLMRatePerSecond: envutil.Float("LLM_RATE_PER_SECOND", 5, log),
		LLMBurst:         envutil.Int("LLM_BURST", 5, log),

		TriggerJWTSecret: envutil.String("TRIGGER_JWT_SECRET", "", log),
		TriggerJWTIssuer: envutil.String("TRIGGER_JWT_ISSUER", "", log),

		InstanceID:      envutil.String("INSTANCE_ID", defaultInstanceID(), log),
		OtelEnabled:     envutil.Bool("OTEL_ENABLED", false, log),
		OtelEndpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OtelHeaders:     envutil.KeyValues("OTEL_EXPORTER_OTLP_HEADERS", log),
		OtelInsecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
		OtelStdout:      envutil.Bool("OTEL_STDOUT", false, log),
		OtelSampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1, log),
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// Otel maps tracing settings plus the process identity onto the observability config.
func (c Config) Otel(stages []string) observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:       c.OtelEnabled,
		ServiceName:   c.ServiceName,
		Environment:   c.Environment,
		Version:       c.Version,
		InstanceID:    c.InstanceID,
		Stages:        stages,
		WorkerEnabled: c.WorkerEnabled,
		Endpoint:      c.OtelEndpoint,
		Headers:       c.OtelHeaders,
		Insecure:      c.OtelInsecure,
		Stdout:        c.OtelStdout,
		SampleRatio:   c.OtelSampleRatio,
	}
}

// Validate rejects settings the stages cannot honor.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}
	for name, v := range map[string]float64{
		"MATCH_THRESHOLD":      c.MatchThreshold,
		"OTEL_SAMPLER_RATIO":   c.OtelSampleRatio,
		"MIN_CONFIDENCE":       c.MinConfidence,
		"RECONCILE_SIMILARITY": c.ReconcileSimilarity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.Chunking.Threshold > c.Chunking.MaxChars {
		return fmt.Errorf("CHUNK_THRESHOLD (%d) must not exceed CHUNK_MAX_CHARS (%d)", c.Chunking.Threshold, c.Chunking.MaxChars)
	}
	if c.LockTTL <= c.StageSoftTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed STAGE_SOFT_TIMEOUT (%s)", c.LockTTL, c.StageSoftTimeout)
	}
	return nil
}
