package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	httpMW "github.com/yungbote/askflow-backend/internal/http/middleware"
	"github.com/yungbote/askflow-backend/internal/http/response"
	"github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/askflow-backend/internal/pkg/errors"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

// StageHandler lets a scheduler run one pass of a stage on demand.
type StageHandler struct {
	log      *logger.Logger
	db       *gorm.DB
	registry *runtime.Registry
}

func NewStageHandler(log *logger.Logger, db *gorm.DB, registry *runtime.Registry) *StageHandler {
	return &StageHandler{log: log.With("handler", "StageHandler"), db: db, registry: registry}
}

type StageThresholds struct {
	SkipThreshold  *float64 `json:"skip_threshold,omitempty"`
	MatchThreshold *float64 `json:"match_threshold,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	Similarity     *float64 `json:"similarity,omitempty"`
}

type RunStageRequest struct {
	WorkspaceID   string           `json:"workspace_id,omitempty"`
	BatchSize     int              `json:"batch_size,omitempty"`
	Concurrency   int              `json:"concurrency,omitempty"`
	MaxCandidates int              `json:"max_candidates,omitempty"`
	TTLSeconds    int              `json:"ttl_seconds,omitempty"`
	Thresholds    *StageThresholds `json:"thresholds,omitempty"`
}

type RunStageResponse struct {
	Stage  string         `json:"stage"`
	More   bool           `json:"more"`
	Result map[string]any `json:"result"`
}

// GET /internal/stages
func (h *StageHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"stages": h.registry.Types()})
}

// POST /internal/stages/:stage/run
func (h *StageHandler) Run(c *gin.Context) {
	stage := strings.TrimSpace(c.Param("stage"))
	if _, ok := h.registry.Get(stage); !ok {
		response.RespondError(c, http.StatusNotFound, "unknown_stage", pkgerrors.ErrUnknownStage)
		return
	}

	var req RunStageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	payload, err := req.payload()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := ctxutil.WithTrigger(c.Request.Context(), ctxutil.Trigger{Source: "http", Worker: httpMW.Subject(c)})
	jc, err := h.registry.Run(ctx, h.db, h.log, stage, payload)
	if errors.Is(err, pkgerrors.ErrUnknownStage) {
		response.RespondError(c, http.StatusNotFound, "unknown_stage", err)
		return
	}
	if err != nil {
		h.log.Error("Stage run failed", "stage", stage, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "stage_failed", err)
		return
	}
	response.RespondOK(c, RunStageResponse{Stage: stage, More: jc.More(), Result: jc.Result()})
}

func (r RunStageRequest) payload() (json.RawMessage, error) {
	m := map[string]any{}
	if ws := strings.TrimSpace(r.WorkspaceID); ws != "" {
		if _, err := uuid.Parse(ws); err != nil {
			return nil, fmt.Errorf("%w: workspace_id must be a uuid", pkgerrors.ErrInvalidArgument)
		}
		m["workspace_id"] = ws
	}
	if r.BatchSize < 0 || r.Concurrency < 0 || r.MaxCandidates < 0 || r.TTLSeconds < 0 {
		return nil, fmt.Errorf("%w: sizes must not be negative", pkgerrors.ErrInvalidArgument)
	}
	setInt := func(key string, v int) {
		if v > 0 {
			m[key] = v
		}
	}
	setInt("batch_size", r.BatchSize)
	setInt("concurrency", r.Concurrency)
	setInt("max_candidates", r.MaxCandidates)
	setInt("ttl_seconds", r.TTLSeconds)

	if t := r.Thresholds; t != nil {
		for key, v := range map[string]*float64{
			"skip_threshold":  t.SkipThreshold,
			"match_threshold": t.MatchThreshold,
			"min_confidence":  t.MinConfidence,
			"similarity":      t.Similarity,
		} {
			if v == nil {
				continue
			}
			if *v < 0 || *v > 1 {
				return nil, fmt.Errorf("%w: %s must be within [0,1]", pkgerrors.ErrInvalidArgument, key)
			}
			m[key] = *v
		}
	}
	return json.Marshal(m)
}
