package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/outpatient-scheduling"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount       metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	BatchRunCount      metric.Int64Counter
	BatchStepDuration  metric.Float64Histogram
	TriageCallDuration metric.Float64Histogram
	NotificationCount  metric.Int64Counter
	QueueTransitions   metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing and metric export
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		GetLogger().Warn().Err(err).Msg("runtime instrumentation not started")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.BatchRunCount, err = meter.Int64Counter(
		"batch.run.count",
		metric.WithDescription("Number of triage batch runs by trigger and outcome"),
	); err != nil {
		return nil, err
	}

	if m.BatchStepDuration, err = meter.Float64Histogram(
		"batch.step.duration",
		metric.WithDescription("Duration of each batch pipeline step in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.TriageCallDuration, err = meter.Float64Histogram(
		"triage.call.duration",
		metric.WithDescription("Triage provider call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.NotificationCount, err = meter.Int64Counter(
		"notification.count",
		metric.WithDescription("Notifications attempted by kind and outcome"),
	); err != nil {
		return nil, err
	}

	if m.QueueTransitions, err = meter.Int64Counter(
		"queue.transition.count",
		metric.WithDescription("Operator queue transitions by operation"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records an HTTP request
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordBatchRun counts a finished batch run
func RecordBatchRun(ctx context.Context, metrics *Metrics, trigger, status string) {
	if metrics == nil {
		return
	}
	metrics.BatchRunCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("batch.trigger", trigger),
		attribute.String("batch.status", status),
	))
}

// RecordBatchStep records how long a pipeline step took
func RecordBatchStep(ctx context.Context, metrics *Metrics, step string, ok bool, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.BatchStepDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("batch.step", step),
		attribute.Bool("batch.step.ok", ok),
	))
}

// RecordTriageCall records a triage provider call
func RecordTriageCall(ctx context.Context, metrics *Metrics, provider, outcome string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.TriageCallDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("triage.provider", provider),
		attribute.String("triage.outcome", outcome),
	))
}

// RecordNotification counts one notification attempt
func RecordNotification(ctx context.Context, metrics *Metrics, kind string, ok bool) {
	if metrics == nil {
		return
	}
	metrics.NotificationCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("notification.kind", kind),
		attribute.Bool("notification.ok", ok),
	))
}

// RecordQueueTransition counts one operator queue operation
func RecordQueueTransition(ctx context.Context, metrics *Metrics, operation string, ok bool) {
	if metrics == nil {
		return
	}
	metrics.QueueTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue.operation", operation),
		attribute.Bool("queue.ok", ok),
	))
}
