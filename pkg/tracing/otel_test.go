package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCaptionSpanRecorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartCaptionSpan(context.Background(), "static:default", 3)
	EndSpan(span, errors.New("boom"))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "caption.image" {
		t.Errorf("span name = %q", ended[0].Name())
	}
	if ended[0].Status().Description != "boom" {
		t.Errorf("span status = %+v", ended[0].Status())
	}
}

func TestInitTracerInstallsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	tp, err := InitTracer(context.Background(), OTelConfig{
		ServiceName:    "caption-test",
		ExportEndpoint: "127.0.0.1:4318",
		Insecure:       true,
	})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()
	if otel.GetTracerProvider() != tp {
		t.Error("global tracer provider not installed")
	}
}
