package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/observability"
	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/askflow-backend/internal/pkg/errors"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for stage=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(stage string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}

// Types lists registered stages in name order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run executes one pass of stage. Every trigger surface (worker loop, HTTP, Temporal)
// goes through here so tracing and panic handling live in one place.
func (r *Registry) Run(ctx context.Context, db *gorm.DB, log *logger.Logger, stage string, payload json.RawMessage) (jc *Context, err error) {
	h, ok := r.Get(stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrUnknownStage, stage)
	}

	ctx, span := otel.Tracer("askflow/jobs").Start(ctx, "stage."+stage)
	span.SetAttributes(attribute.String("askflow.stage", stage))
	if t, ok := ctxutil.GetTrigger(ctx); ok {
		span.SetAttributes(attribute.String("askflow.trigger", t.Source), attribute.String("askflow.worker", t.Worker))
	}
	defer span.End()

	jc = NewContext(ctx, db, log, stage, payload)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Stage handler panic", "stage", stage, "panic", rec)
			err = &panicError{Val: rec}
			jc.Fail(err)
		}
		if err == nil {
			err = jc.Err()
		}
		observability.Current().ObserveStage(stage, err, time.Since(start), jc.Result())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(attribute.Bool("askflow.more", jc.More()))
	}()

	if runErr := h.Run(jc); runErr != nil {
		// most handlers call jc.Fail themselves; this is a safety net
		jc.Fail(runErr)
	}
	return jc, nil
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
