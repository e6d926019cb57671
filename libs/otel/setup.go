package otelx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/clinicazen/platform/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config controls trace export. Tracing is off unless an OTLP endpoint is
// configured or OTEL_ENABLED forces it on against the default collector.
type Config struct {
	ServiceName string
	Version     string
	Environment string
	Endpoint    string // host:port of an OTLP gRPC collector
	Insecure    bool
	SampleRatio float64
}

func (c Config) Enabled() bool { return c.Endpoint != "" }

func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		ServiceName: serviceName,
		Version:     config.String("SERVICE_VERSION", "dev"),
		Environment: config.String("APP_ENV", "development"),
		Endpoint:    config.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Insecure:    config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio: 1,
	}
	if cfg.Endpoint == "" && config.Bool("OTEL_ENABLED", false) {
		cfg.Endpoint = "localhost:4317"
	}
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		cfg.SampleRatio = f
	}
	return cfg
}

// Setup installs the W3C propagators and, when enabled, a batching tracer
// provider. The returned func flushes spans on shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(3 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", cfg.Endpoint, err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
