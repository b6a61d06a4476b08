package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer_DisabledReturnsNoop(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if _, ok := tp.(*trace.TracerProvider); ok {
		t.Fatal("InitTracer(Enabled: false) returned an *sdktrace.TracerProvider, want the no-op provider")
	}
	if err := ShutdownTracerProvider(context.Background(), tp); err != nil {
		t.Errorf("ShutdownTracerProvider() error = %v, want nil for no-op provider", err)
	}
}

func TestInitTracer_EnabledReturnsSDKProvider(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{
		Enabled:      true,
		ServiceName:  "fabric-test",
		SamplingRate: 1.0,
	})
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	sdktp, ok := tp.(*trace.TracerProvider)
	if !ok {
		t.Fatal("InitTracer(Enabled: true) did not return an *sdktrace.TracerProvider")
	}
	if err := ShutdownTracerProvider(context.Background(), sdktp); err != nil {
		t.Errorf("ShutdownTracerProvider() error = %v", err)
	}
}

func TestTracer_ReturnsNamedTracer(t *testing.T) {
	if _, err := InitTracer(context.Background(), TracerConfig{Enabled: false}); err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	tracer := Tracer("fabric-test")
	if tracer == nil {
		t.Fatal("Tracer() returned nil")
	}
}
