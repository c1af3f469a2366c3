package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newStdoutTracer(t *testing.T, buf *bytes.Buffer) *Tracer {
	t.Helper()
	tracer, err := New(context.Background(), Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "scribesync-test",
		Environment:  "test",
		SampleRate:   1.0,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tracer
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("ExporterType = %q, want none", cfg.ExporterType)
	}
	if cfg.ServiceName != "scribesync" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v", cfg.SampleRate)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantErr      string
		wantProvider bool
	}{
		{name: "disabled", cfg: Config{ExporterType: ExporterStdout}},
		{name: "enabled without exporter", cfg: Config{Enabled: true, ExporterType: ExporterNone}},
		{name: "stdout", cfg: Config{Enabled: true, ExporterType: ExporterStdout, Output: &bytes.Buffer{}}, wantProvider: true},
		{name: "unknown exporter", cfg: Config{Enabled: true, ExporterType: "zipkin"}, wantErr: "unsupported exporter type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := tracer.provider != nil; got != tt.wantProvider {
				t.Errorf("has provider = %v, want %v", got, tt.wantProvider)
			}
			if err := tracer.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{1.5, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-0.5, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.TraceIDRatioBased(0.25).Description()},
	}

	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestDefaultAndNoop(t *testing.T) {
	for name, tracer := range map[string]*Tracer{"default": Default(), "noop": Noop()} {
		t.Run(name, func(t *testing.T) {
			ctx, cs := tracer.StartCycleSpan(context.Background(), "recordings", "c-1")
			_, is := tracer.StartItemSpan(ctx, "item-1", 0)
			is.End()
			cs.SetTotal(1)
			cs.End()
			if err := tracer.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}
