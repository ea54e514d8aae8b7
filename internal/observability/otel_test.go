package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func TestResourceCarriesProcessIdentity(t *testing.T) {
	attrs := resourceAttributes(OtelConfig{
		ServiceName:   "askflow",
		Environment:   "staging",
		Version:       "1.2.3",
		InstanceID:    "worker-7",
		Stages:        []string{"score_events", "chunk_events"},
		WorkerEnabled: true,
	})
	got := map[attribute.Key]attribute.Value{}
	for _, kv := range attrs {
		got[kv.Key] = kv.Value
	}
	if got["service.instance.id"].AsString() != "worker-7" {
		t.Fatalf("instance id: got %v", got["service.instance.id"])
	}
	if got["askflow.role"].AsString() != "worker" {
		t.Fatalf("role: got %v", got["askflow.role"])
	}
	if stages := got["askflow.stages"].AsStringSlice(); len(stages) != 2 || stages[0] != "score_events" {
		t.Fatalf("stages: got %v", stages)
	}
	if got["deployment.environment"].AsString() != "staging" {
		t.Fatalf("environment: got %v", got["deployment.environment"])
	}

	api := resourceAttributes(OtelConfig{})
	for _, kv := range api {
		if kv.Key == "service.name" && kv.Value.AsString() != "askflow" {
			t.Fatalf("default service name: got %v", kv.Value)
		}
		if kv.Key == "askflow.role" && kv.Value.AsString() != "trigger-api" {
			t.Fatalf("api role: got %v", kv.Value)
		}
		if kv.Key == "service.instance.id" {
			t.Fatalf("empty instance id must not be tagged")
		}
	}
}

func TestTraceExporterFollowsConfig(t *testing.T) {
	ctx := context.Background()
	exp, err := traceExporter(ctx, OtelConfig{})
	if err != nil || exp != nil {
		t.Fatalf("no endpoint, no stdout: got %v, %v", exp, err)
	}
	exp, err = traceExporter(ctx, OtelConfig{Stdout: true})
	if err != nil || exp == nil {
		t.Fatalf("stdout exporter: got %v, %v", exp, err)
	}
	_ = exp.Shutdown(ctx)

	exp, err = traceExporter(ctx, OtelConfig{Endpoint: "localhost:4318", Insecure: true, Headers: map[string]string{"x-team": "flow"}})
	if err != nil || exp == nil {
		t.Fatalf("otlp exporter: got %v, %v", exp, err)
	}
	_ = exp.Shutdown(ctx)
}

func TestTracerProviderWithoutExporter(t *testing.T) {
	tp, err := newTracerProvider(context.Background(), logger.Nop(), OtelConfig{SampleRatio: 4})
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "stage.score_events")
	if !span.SpanContext().IsSampled() {
		t.Fatalf("ratio above 1 should clamp to always sample")
	}
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
