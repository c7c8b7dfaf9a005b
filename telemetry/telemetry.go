// Package telemetry installs the global OpenTelemetry meter and tracer
// providers the relay packages report to.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

type Options struct {
	ServiceName string
	// OTLPEndpoint sends spans to a collector over gRPC.
	OTLPEndpoint string
	OTLPInsecure bool
	// StdoutTraces prints spans when no collector is configured.
	StdoutTraces bool
}

// Setup installs the providers and returns the /metrics handler and a
// shutdown func that flushes both.
func Setup(ctx context.Context, opts Options, logger *log.Logger) (http.Handler, func(context.Context) error, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "notetaker"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	shutdowns := []func(context.Context) error{meterProvider.Shutdown}

	tracerProvider, err := newTracerProvider(ctx, opts, res, logger)
	if err != nil {
		meterProvider.Shutdown(ctx)
		return nil, nil, err
	}
	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
		shutdowns = append(shutdowns, tracerProvider.Shutdown)
	}

	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, f := range shutdowns {
			if err := f(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return promhttp.Handler(), shutdown, nil
}

// newTracerProvider returns nil when tracing is off; the global no-op
// tracer then stays in place.
func newTracerProvider(
	ctx context.Context,
	opts Options,
	res *resource.Resource,
	logger *log.Logger,
) (*sdktrace.TracerProvider, error) {
	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if opts.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}
		logger.Info("tracing", "exporter", "otlp", "endpoint", endpoint)
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	if !opts.StdoutTraces {
		return nil, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	logger.Info("tracing", "exporter", "stdout")
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
