package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdout(t *testing.T) {
	var out bytes.Buffer
	cfg := TracingConfig{Enabled: true, ServiceName: "vesselsim-test", Exporter: "stdout", SampleRatio: 1, Output: &out}
	shutdown, err := InitTracing(context.Background(), cfg, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() { _, _ = InitTracing(context.Background(), TracingConfig{}, nil) })

	_, span := otel.Tracer("test").Start(context.Background(), "sampled")
	if !span.SpanContext().IsSampled() {
		t.Fatalf("span not sampled at ratio 1")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
	if !strings.Contains(out.String(), `"Name": "sampled"`) {
		t.Fatalf("stdout exporter output missing span:\n%s", out.String())
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestSamplerFromConfig(t *testing.T) {
	cases := []struct {
		sampler string
		ratio   float64
		want    string
	}{
		{sampler: "always", want: "AlwaysOnSampler"},
		{sampler: "never", want: "AlwaysOffSampler"},
		{sampler: "ratio", ratio: 1, want: "AlwaysOnSampler"},
		{sampler: "", ratio: 0.5, want: "ParentBased{root:TraceIDRatioBased{0.5}"},
		{sampler: "PARENT_RATIO", ratio: 0.5, want: "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tc := range cases {
		got, err := samplerFromConfig(TracingConfig{Sampler: tc.sampler, SampleRatio: tc.ratio})
		if err != nil {
			t.Fatalf("samplerFromConfig(%q): %v", tc.sampler, err)
		}
		if !strings.HasPrefix(got.Description(), tc.want) {
			t.Fatalf("samplerFromConfig(%q) = %s, want prefix %s", tc.sampler, got.Description(), tc.want)
		}
	}

	if _, err := samplerFromConfig(TracingConfig{Sampler: "sometimes"}); err == nil {
		t.Fatalf("expected error for unknown sampler")
	}
}

func TestInitTracingNeverSampler(t *testing.T) {
	cfg := TracingConfig{Enabled: true, Exporter: "stdout", Sampler: "never", Output: &bytes.Buffer{}}
	shutdown, err := InitTracing(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() { _, _ = InitTracing(context.Background(), TracingConfig{}, nil) })

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	if span.SpanContext().IsSampled() {
		t.Fatalf("span sampled with the never sampler")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}
