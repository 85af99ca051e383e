package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstall(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	recorder := tracetest.NewSpanRecorder()
	p := Install("kankei-test", sdktrace.WithSpanProcessor(recorder))

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()
	_, span = p.Tracer("test").Start(context.Background(), "op2")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	found := false
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" && kv.Value.AsString() == "kankei-test" {
			found = true
		}
	}
	if !found {
		t.Error("span resource should carry service.name")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
