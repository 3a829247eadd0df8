// Package observer provides OTEL-based observability for Hearth
// orchestration.
//
// It emits traces for the routing pipeline, metrics for request and agent
// activity, and logs via OpenTelemetry. Users export to any
// OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/hearthkit/hearth/observer"

// Instruments holds all OTEL instruments used by the orchestration
// observer.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	Requests         metric.Int64Counter
	RoutingDecisions metric.Int64Counter
	AgentExecutions  metric.Int64Counter
	Clarifications   metric.Int64Counter

	// Histograms
	AgentDuration   metric.Float64Histogram
	RequestDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("hearth")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	requests, err := meter.Int64Counter("orchestrator.requests",
		metric.WithDescription("User requests entering the engine"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	routingDecisions, err := meter.Int64Counter("orchestrator.routing.decisions",
		metric.WithDescription("Routing decisions by primary agent"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, err
	}

	agentExecutions, err := meter.Int64Counter("orchestrator.agent.executions",
		metric.WithDescription("Agent invocation count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	clarifications, err := meter.Int64Counter("orchestrator.clarifications",
		metric.WithDescription("Requests answered with a clarifying question"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	agentDuration, err := meter.Float64Histogram("orchestrator.agent.duration",
		metric.WithDescription("Agent invocation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram("orchestrator.request.duration",
		metric.WithDescription("Summed agent time per aggregated request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		Logger:           logger,
		Requests:         requests,
		RoutingDecisions: routingDecisions,
		AgentExecutions:  agentExecutions,
		Clarifications:   clarifications,
		AgentDuration:    agentDuration,
		RequestDuration:  requestDuration,
	}, nil
}
