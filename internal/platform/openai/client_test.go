package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func responseBody(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
	})
	return b
}

func TestGenerateJSONRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(responseBody(`{"facts":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, Model: "m", MaxRetries: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := c.GenerateJSON(context.Background(), "sys", "user", "x", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if _, ok := out["facts"]; !ok {
		t.Fatalf("unexpected output: %v", out)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestGenerateJSONDropsRejectedTemperature(t *testing.T) {
	var sawTemp []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, has := req["temperature"]
		sawTemp = append(sawTemp, has)
		if has {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		_, _ = w.Write(responseBody(`{"ok":true}`))
	}))
	defer srv.Close()

	temp := 0.2
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, Model: "m", Temperature: &temp, NoTempTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{"type": "object"}); err != nil {
			t.Fatalf("GenerateJSON #%d: %v", i, err)
		}
	}
	want := []bool{true, false, false}
	if len(sawTemp) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), sawTemp)
	}
	for i := range want {
		if sawTemp[i] != want[i] {
			t.Fatalf("call %d temperature=%v, want %v", i, sawTemp[i], want[i])
		}
	}
}

func TestGenerateJSONEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if _, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{"type": "object"}); err != ErrEmptyOutput {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}
