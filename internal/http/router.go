package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/askflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/askflow-backend/internal/http/middleware"
	"github.com/yungbote/askflow-backend/internal/observability"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics

	SchedulerAuth *httpMW.SchedulerAuth
	StageHandler  *httpH.StageHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	service := cfg.ServiceName
	if service == "" {
		service = "askflow"
	}
	r.Use(otelgin.Middleware(service))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	internal := r.Group("/internal")
	{
		if cfg.SchedulerAuth != nil {
			internal.Use(cfg.SchedulerAuth.RequireScheduler())
		}

		// Stages
		if cfg.StageHandler != nil {
			internal.GET("/stages", cfg.StageHandler.List)
			internal.POST("/stages/:stage/run", cfg.StageHandler.Run)
		}
	}

	return r
}
