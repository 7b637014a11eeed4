package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanTagsSessionAndCorrelation(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := WithSession(WithCorrelation(context.Background(), "corr-1"), "s1")
	_, span := StartSpan(ctx, "chat", "chat.fetch")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["session.id"] != "s1" {
		t.Errorf("session.id = %q, want s1", got["session.id"])
	}
	if got["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %q, want corr-1", got["correlation_id"])
	}
}

func TestGetSessionEmpty(t *testing.T) {
	if id := GetSession(context.Background()); id != "" {
		t.Fatalf("expected empty session id, got %q", id)
	}
}
