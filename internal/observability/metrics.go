package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	stageRuns     *CounterVec
	stageDuration *HistogramVec
	stageRows     *CounterVec
	llmRequests   *CounterVec
	llmLatency    *HistogramVec
	llmTokens     *CounterVec
	wakes         *CounterVec
	backlog       *GaugeVec
	terminal      *GaugeVec
	pgStats       *GaugeVec
	redisUp       *Gauge
	redisPing     *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current is nil unless Init ran with metrics enabled; every method is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 15 * time.Second
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 15 * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an unregistered metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("askflow_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"askflow_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("askflow_api_inflight_requests", "In-flight API requests."),
		stageRuns:   NewCounterVec("askflow_stage_runs_total", "Stage passes by stage/status.", []string{"stage", "status"}),
		stageDuration: NewHistogramVec(
			"askflow_stage_duration_seconds",
			"Stage pass duration in seconds.",
			[]string{"stage"},
			[]float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		),
		stageRows:   NewCounterVec("askflow_stage_rows_total", "Rows handled per stage by outcome counter.", []string{"stage", "outcome"}),
		llmRequests: NewCounterVec("askflow_llm_requests_total", "LLM requests by schema/status.", []string{"schema", "status"}),
		llmLatency: NewHistogramVec(
			"askflow_llm_request_duration_seconds",
			"LLM request latency in seconds.",
			[]string{"schema"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		),
		llmTokens: NewCounterVec("askflow_llm_tokens_total", "LLM tokens by schema/kind.", []string{"schema", "kind"}),
		wakes:     NewCounterVec("askflow_wake_published_total", "Wake notifications published by target stage.", []string{"stage"}),
		backlog:   NewGaugeVec("askflow_backlog_rows", "Rows waiting per table/state.", []string{"table", "state"}),
		terminal:  NewGaugeVec("askflow_terminal_rows", "Rows that exhausted their retries.", []string{"table"}),
		pgStats:   NewGaugeVec("askflow_postgres_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:   NewGauge("askflow_redis_up", "1 when the wake bus redis answered the last ping."),
		redisPing: NewGauge("askflow_redis_ping_seconds", "Last redis ping latency."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageRuns, m.stageDuration, m.stageRows,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.wakes, m.backlog, m.terminal,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveStage records one pass. Numeric result fields (claimed, scored, failed, ...) feed
// the per-outcome row counter.
func (m *Metrics) ObserveStage(stage string, err error, dur time.Duration, result map[string]any) {
	if m == nil {
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.stageRuns.Inc(stage, status)
	m.stageDuration.Observe(dur.Seconds(), stage)
	for k, v := range result {
		if n, ok := numeric(v); ok && n > 0 {
			m.stageRows.Add(n, stage, k)
		}
	}
}

func (m *Metrics) StageRows(stage, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.stageRows.Value(stage, outcome)
}

func (m *Metrics) ObserveLLMRequest(schema, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(schema, status)
	m.llmLatency.Observe(dur.Seconds(), schema)
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), schema, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), schema, "output")
	}
}

func (m *Metrics) IncWake(stage string) {
	if m == nil {
		return
	}
	m.wakes.Inc(stage)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartBacklogCollector polls how many events sit in each processing stage and how many
// facts wait for aggregation.
func (m *Metrics) StartBacklogCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, maxRetries int) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectBacklog(ctx, db, maxRetries); err != nil && log != nil {
					log.Warn("metrics: backlog query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) CollectBacklog(ctx context.Context, db *gorm.DB, maxRetries int) error {
	if m == nil {
		return nil
	}
	var events []struct {
		State string
		Count int64
	}
	if err := db.WithContext(ctx).Model(&asks.NormalizedEvent{}).
		Select("processing_stage as state, count(*) as count").
		Group("processing_stage").
		Scan(&events).Error; err != nil {
		return err
	}
	for _, s := range []asks.EventStage{asks.StagePending, asks.StageScored, asks.StageChunked, asks.StageExtracted, asks.StageSkipped} {
		m.backlog.Set(0, asks.NormalizedEvent{}.TableName(), string(s))
	}
	for _, row := range events {
		m.backlog.Set(float64(row.Count), asks.NormalizedEvent{}.TableName(), row.State)
	}

	var facts []struct {
		State string
		Count int64
	}
	if err := db.WithContext(ctx).Model(&asks.ExtractedFact{}).
		Select("aggregation_status as state, count(*) as count").
		Group("aggregation_status").
		Scan(&facts).Error; err != nil {
		return err
	}
	for _, s := range []asks.AggregationStatus{asks.AggregationPending, asks.AggregationProcessing, asks.AggregationAggregated, asks.AggregationSkipped} {
		m.backlog.Set(0, asks.ExtractedFact{}.TableName(), string(s))
	}
	for _, row := range facts {
		m.backlog.Set(float64(row.Count), asks.ExtractedFact{}.TableName(), row.State)
	}

	if maxRetries > 0 {
		for _, model := range []interface{ TableName() string }{asks.NormalizedEvent{}, asks.ExtractedFact{}} {
			var n int64
			if err := db.WithContext(ctx).Table(model.TableName()).
				Where("retry_count >= ?", maxRetries).
				Count(&n).Error; err != nil {
				return err
			}
			m.terminal.Set(float64(n), model.TableName())
		}
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
