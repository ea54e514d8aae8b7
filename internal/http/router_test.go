package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/askflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/askflow-backend/internal/http/middleware"
	"github.com/yungbote/askflow-backend/internal/jobs/runtime"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type recordingStage struct {
	name    string
	payload map[string]any
	fail    error
}

func (s *recordingStage) Type() string { return s.name }

func (s *recordingStage) Run(jc *runtime.Context) error {
	s.payload = jc.Payload()
	if s.fail != nil {
		jc.Fail(s.fail)
		return s.fail
	}
	jc.Succeed(map[string]any{"claimed": 2}, true)
	return nil
}

func newTestRouter(t *testing.T, secret string, stages ...runtime.Handler) (*gin.Engine, *httpMW.SchedulerAuth) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	reg := runtime.NewRegistry()
	for _, s := range stages {
		if err := reg.Register(s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	auth := httpMW.NewSchedulerAuth(log, secret, "askflow-scheduler")
	return NewRouter(RouterConfig{
		Log:           log,
		SchedulerAuth: auth,
		StageHandler:  httpH.NewStageHandler(log, nil, reg),
		HealthHandler: httpH.NewHealthHandler(nil),
	}), auth
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthcheckIsPublic(t *testing.T) {
	r, _ := newTestRouter(t, "s3cret")
	w := do(r, http.MethodGet, "/healthcheck", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestStageRoutesRequireToken(t *testing.T) {
	r, auth := newTestRouter(t, "s3cret", &recordingStage{name: "score_events"})

	if w := do(r, http.MethodGet, "/internal/stages", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", w.Code)
	}

	other := httpMW.NewSchedulerAuth(logger.Nop(), "wrong", "askflow-scheduler")
	bad, err := other.Sign("cron", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if w := do(r, http.MethodGet, "/internal/stages", bad, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status=%d", w.Code)
	}

	expired, err := auth.Sign("cron", -time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if w := do(r, http.MethodGet, "/internal/stages", expired, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired: status=%d", w.Code)
	}

	good, err := auth.Sign("cron", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := do(r, http.MethodGet, "/internal/stages", good, "")
	if w.Code != http.StatusOK {
		t.Fatalf("good token: status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Stages []string `json:"stages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Stages) != 1 || body.Stages[0] != "score_events" {
		t.Fatalf("stages=%v", body.Stages)
	}
}

func TestRunStagePassesPayload(t *testing.T) {
	stage := &recordingStage{name: "aggregate_facts"}
	r, _ := newTestRouter(t, "", stage)

	body := `{"workspace_id":"8f0f3c1e-5d8a-4a43-9a55-0f0b2b7d9c11","batch_size":10,"thresholds":{"match_threshold":0.8}}`
	w := do(r, http.MethodPost, "/internal/stages/aggregate_facts/run", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp httpH.RunStageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != "aggregate_facts" || !resp.More {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := stage.payload["match_threshold"]; got != 0.8 {
		t.Fatalf("match_threshold=%v", got)
	}
	if got := stage.payload["batch_size"]; got != float64(10) {
		t.Fatalf("batch_size=%v", got)
	}
	if got := stage.payload["workspace_id"]; got != "8f0f3c1e-5d8a-4a43-9a55-0f0b2b7d9c11" {
		t.Fatalf("workspace_id=%v", got)
	}
}

func TestRunStageWithoutBody(t *testing.T) {
	stage := &recordingStage{name: "reap_locks"}
	r, _ := newTestRouter(t, "", stage)
	w := do(r, http.MethodPost, "/internal/stages/reap_locks/run", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(stage.payload) != 0 {
		t.Fatalf("expected empty payload, got %v", stage.payload)
	}
}

func TestRunStageErrors(t *testing.T) {
	failing := &recordingStage{name: "extract_facts", fail: errors.New("store unavailable")}
	r, _ := newTestRouter(t, "", failing)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown stage", "/internal/stages/nope/run", "", http.StatusNotFound},
		{"bad json", "/internal/stages/extract_facts/run", "{", http.StatusBadRequest},
		{"bad workspace", "/internal/stages/extract_facts/run", `{"workspace_id":"abc"}`, http.StatusBadRequest},
		{"threshold out of range", "/internal/stages/extract_facts/run", `{"thresholds":{"min_confidence":1.5}}`, http.StatusBadRequest},
		{"stage failure", "/internal/stages/extract_facts/run", "", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tc.path, "", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
		})
	}
}
