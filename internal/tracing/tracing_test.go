package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/otiai10/orderhook/internal/config"
)

func TestInit_NoEndpoint(t *testing.T) {
	for _, cfg := range []*config.TracingConfig{nil, {ServiceName: "x"}} {
		tp, shutdown, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, ok := tp.(noop.TracerProvider); !ok {
			t.Errorf("provider = %T, want noop.TracerProvider", tp)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	}
}

func TestInit_WithEndpoint(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), &config.TracingConfig{
		Endpoint: "http://127.0.0.1:4318",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); ok {
		t.Error("provider is no-op with an endpoint configured")
	}
	_, span := tp.Tracer("test").Start(context.Background(), "check")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestSampleRate(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 1}, {-1, 1}, {2, 1}, {0.25, 0.25}, {1, 1},
	}
	for _, tt := range tests {
		if got := sampleRate(tt.in); got != tt.want {
			t.Errorf("sampleRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	if n := len(clientOptions(&config.TracingConfig{Endpoint: "collector:4318"})); n != 1 {
		t.Errorf("len(options) = %d, want 1", n)
	}
	if n := len(clientOptions(&config.TracingConfig{Endpoint: "http://collector:4318", Insecure: true})); n != 2 {
		t.Errorf("len(options) = %d, want 2", n)
	}
}
