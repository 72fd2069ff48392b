package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const metricExportInterval = 30 * time.Second

// telemetry holds the providers authd hands to the engine and the metrics
// exporter. Without an endpoint both are no-ops.
type telemetry struct {
	tracer   trace.TracerProvider
	meter    metric.MeterProvider
	shutdown func(context.Context) error
}

// setupTelemetry installs OTLP/HTTP trace and metric providers when endpoint
// is set. endpoint is the collector base URL, e.g. http://collector:4318. Metrics are pushed every metricExportInterval and flushed once more
// on shutdown.
func setupTelemetry(ctx context.Context, endpoint, serviceName string) (telemetry, error) {
	t := telemetry{
		tracer:   otel.GetTracerProvider(),
		meter:    metricnoop.NewMeterProvider(),
		shutdown: func(context.Context) error { return nil },
	}
	if endpoint == "" {
		return t, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return t, err
	}

	traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(signalURL(endpoint, "/v1/traces")))
	if err != nil {
		return t, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(signalURL(endpoint, "/v1/metrics")))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return t, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(metricExportInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.tracer = tp
	t.meter = mp
	t.shutdown = func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return t, nil
}

func signalURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
