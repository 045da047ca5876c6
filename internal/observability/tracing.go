package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracingConfig governs how tracing is initialised. The stdout exporter
// writes to stderr unless Output is set, so spans stay out of command output.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter" validate:"omitempty,oneof=stdout otlp otlpgrpc"`
	// Endpoint and Insecure are only used by the otlp exporter.
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	Sampler     string  `mapstructure:"sampler" validate:"omitempty,oneof=always never ratio parent_ratio"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`

	Output io.Writer `mapstructure:"-"`
}

const defaultOTLPEndpoint = "localhost:4317"

type exporterFactory func(context.Context, TracingConfig) (sdktrace.SpanExporter, error)

// exporters maps the tracing.exporter config key to a constructor. An empty
// key selects stdout.
var exporters = map[string]exporterFactory{
	"":         newStdoutExporter,
	"stdout":   newStdoutExporter,
	"otlp":     newOTLPExporter,
	"otlpgrpc": newOTLPExporter,
}

// InitTracing installs a global tracer provider built from cfg and returns
// its shutdown function. Disabled tracing installs a noop provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp.TracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", exporterName(cfg)),
		logging.String("service_name", cfg.ServiceName),
		logging.String("sampler", tp.sampler.Description()),
	)
	return tp.Shutdown, nil
}

type tracerProvider struct {
	*sdktrace.TracerProvider
	sampler sdktrace.Sampler
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*tracerProvider, error) {
	factory, ok := exporters[strings.ToLower(cfg.Exporter)]
	if !ok {
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
	sampler, err := samplerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	exp, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", exporterName(cfg), err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "vesselsim"),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	return &tracerProvider{TracerProvider: tp, sampler: sampler}, nil
}

// samplerFromConfig maps tracing.sampler to an SDK sampler. The default,
// parent_ratio, follows the parent decision and falls back to the ratio.
func samplerFromConfig(cfg TracingConfig) (sdktrace.Sampler, error) {
	switch strings.ToLower(cfg.Sampler) {
	case "always":
		return sdktrace.AlwaysSample(), nil
	case "never":
		return sdktrace.NeverSample(), nil
	case "ratio":
		return sdktrace.TraceIDRatioBased(cfg.SampleRatio), nil
	case "parent_ratio", "":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio)), nil
	default:
		return nil, fmt.Errorf("unsupported tracing sampler: %s", cfg.Sampler)
	}
}

func exporterName(cfg TracingConfig) string {
	if cfg.Exporter == "" {
		return "stdout"
	}
	return strings.ToLower(cfg.Exporter)
}

func newStdoutExporter(_ context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
}

func newOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.String("error", err.Error()))
	}
}
