package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/version"
)

const stdoutEndpoint = "stdout"

type Telemetry struct {
	ctx            context.Context
	metricProvider *metric.MeterProvider
	traceProvider  *trace.TracerProvider
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	if t.metricProvider != nil {
		if err := t.metricProvider.Shutdown(ctx); err != nil {
			log.Warn("shutdown metric provider", log.ErrorField(err))
		}
	}
	if t.traceProvider != nil {
		if err := t.traceProvider.Shutdown(ctx); err != nil {
			log.Warn("shutdown trace provider", log.ErrorField(err))
		}
	}
}

// SetupTelemetry installs global meter and tracer providers.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName("weblynx"),
			semconv.ServiceVersion(version.Version),
		))
	if err != nil {
		return nil, err
	}
	ret := &Telemetry{ctx: ctx}
	if ret.metricProvider, err = newMeterProvider(ctx, res); err != nil {
		return nil, err
	}
	otel.SetMeterProvider(ret.metricProvider)

	if ret.traceProvider, err = newTraceProvider(ctx, res); err != nil {
		return nil, errors.Join(err, ret.metricProvider.Shutdown(ctx))
	}
	otel.SetTracerProvider(ret.traceProvider)
	return ret, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	var exporter metric.Exporter
	var err error
	if TelemetryEndpoint == stdoutEndpoint {
		exporter, err = stdoutmetric.New()
	} else {
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(15*time.Second))),
	), nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error
	if TelemetryEndpoint == stdoutEndpoint {
		exporter, err = stdouttrace.New()
	} else {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
	), nil
}
