package app

import (
	"context"
	"fmt"
	"os"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/db"
	"github.com/yungbote/askflow-backend/internal/data/repos"
	httpserver "github.com/yungbote/askflow-backend/internal/http"
	httpH "github.com/yungbote/askflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/askflow-backend/internal/http/middleware"
	jobrt "github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/jobs/worker"
	"github.com/yungbote/askflow-backend/internal/observability"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/temporalx"
	"github.com/yungbote/askflow-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    *repos.Set
	Clients  Clients
	Registry *jobrt.Registry
	Worker   *worker.Worker
	Server   *httpserver.Server
	Metrics  *observability.Metrics

	temporalCfg    temporalx.Config
	temporalClient temporalsdkclient.Client
	pg             *db.PostgresService
	otelShutdown   func(context.Context) error
	cancel         context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	if err := cfg.Validate(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("config: %w", err)
	}

	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := repos.NewSet(theDB, log, cfg.MaxRetries)

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	registry, err := wireRegistry(theDB, log, cfg, reposet, clients)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel(registry.Types()))

	var stageWorker *worker.Worker
	if cfg.WorkerEnabled {
		stageWorker = worker.NewWorker(theDB, log, registry, clients.Wake, workerConfig(cfg, registry))
	}

	server := httpserver.NewServer(cfg.HTTPAddr, httpserver.RouterConfig{
		ServiceName:   cfg.ServiceName,
		Log:           log,
		Metrics:       metrics,
		SchedulerAuth: httpMW.NewSchedulerAuth(log, cfg.TriggerJWTSecret, cfg.TriggerJWTIssuer),
		StageHandler:  httpH.NewStageHandler(log, theDB, registry),
		HealthHandler: httpH.NewHealthHandler(theDB),
	})
	if cfg.TriggerJWTSecret == "" {
		log.Warn("TRIGGER_JWT_SECRET not set; stage trigger routes are unauthenticated")
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Registry:     registry,
		Worker:       stageWorker,
		Server:       server,
		Metrics:      metrics,
		temporalCfg:  temporalx.LoadConfig(log),
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops. Temporal failures are logged, not fatal: the
// in-process worker pool keeps the pipeline moving without it.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Worker != nil {
		a.Worker.Start(ctx)
	}

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
		a.Metrics.StartBacklogCollector(ctx, a.Log, a.DB, a.Cfg.MaxRetries)
	}

	if a.temporalCfg.Enabled() {
		a.startTemporal(ctx)
	}
}

func (a *App) startTemporal(ctx context.Context) {
	tc, err := temporalx.NewClient(ctx, a.Log, a.temporalCfg)
	if err != nil {
		a.Log.Error("Temporal client init failed; continuing without scheduler", "error", err)
		return
	}
	if tc == nil {
		return
	}
	a.temporalClient = tc
	runner, err := temporalworker.NewRunner(a.Log, a.temporalCfg, tc, a.DB, a.Registry)
	if err != nil {
		a.Log.Error("Temporal runner init failed", "error", err)
		return
	}
	go func() {
		if err := runner.Start(ctx); err != nil {
			a.Log.Error("Temporal worker failed to start", "error", err)
			return
		}
		if err := runner.StartSweep(ctx); err != nil {
			a.Log.Error("Pipeline sweep failed to start", "error", err)
		}
	}()
}

// Run serves the trigger API until Shutdown.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Serving trigger API", "addr", a.Cfg.HTTPAddr, "stages", a.Registry.Types())
	return a.Server.Run()
}

// Close stops the HTTP server, lets in-flight stage passes finish, then releases clients.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Worker != nil {
		done := make(chan struct{})
		go func() {
			a.Worker.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Log.Warn("Stage workers did not stop before shutdown deadline; the reaper will free their locks")
		}
	}
	if a.temporalClient != nil {
		a.temporalClient.Close()
	}
	if a.Clients.Wake != nil {
		_ = a.Clients.Wake.Close()
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
