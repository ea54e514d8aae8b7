package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

/*
Context is the execution handle for a single stage pass.
  - Ctx: cancellation and soft deadline for the pass
  - DB: store handle for pipelines
  - Stage: the registered stage name
  - payload: decoded trigger parameters (workspace_id, batch_size, thresholds)

Pipelines report their outcome through Succeed/Fail and tell the caller whether another
pass would find work through the more flag set by Succeed.
*/
type Context struct {
	Ctx   context.Context
	DB    *gorm.DB
	Log   *logger.Logger
	Stage string

	payload map[string]any
	raw     json.RawMessage
	result  map[string]any
	err     error
	more    bool
	started time.Time
}

func NewContext(ctx context.Context, db *gorm.DB, baseLog *logger.Logger, stage string, payload json.RawMessage) *Context {
	c := &Context{
		Ctx:     ctxutil.Default(ctx),
		DB:      db,
		Log:     baseLog.With("stage", stage),
		Stage:   stage,
		raw:     payload,
		started: time.Now(),
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

// decodePayload leaves an empty map on malformed input; handlers validate what they need.
func (c *Context) decodePayload() error {
	if len(c.raw) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.raw, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	if m == nil {
		m = map[string]any{}
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
		Stage:     c.Stage,
	})
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// Decode unmarshals the raw payload into v.
func (c *Context) Decode(v any) error {
	if len(c.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Stage, err)
	}
	return nil
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadUUID returns (id, true) only for a present, parseable, non-nil UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) PayloadInt(key string, def int) int {
	switch v := c.Payload()[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// PayloadFloat returns nil when key is absent so callers can fall back to their defaults.
func (c *Context) PayloadFloat(key string) *float64 {
	switch v := c.Payload()[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// Succeed records the pass result. more reports that the pass claimed rows, so an
// immediate follow-up pass is likely to find more.
func (c *Context) Succeed(result any, more bool) {
	c.result = toMap(result)
	c.more = more
	c.err = nil
	c.Log.Debug("Stage pass finished", "more", more, "duration_ms", time.Since(c.started).Milliseconds())
}

func (c *Context) Fail(err error) {
	if err == nil {
		return
	}
	c.err = err
	c.more = false
	c.Log.Warn("Stage pass failed", "error", err, "duration_ms", time.Since(c.started).Milliseconds())
}

func (c *Context) Result() map[string]any {
	if c.result == nil {
		return map[string]any{}
	}
	return c.result
}

func (c *Context) Err() error { return c.err }
func (c *Context) More() bool { return c.more }

func toMap(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
