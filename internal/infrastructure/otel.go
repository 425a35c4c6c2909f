package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "divrec"
	ServiceVersion = "1.0.0"
	MeterName      = "divrec"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "stdout", // Use stdout for development
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0, // Sample all traces in development
	}
}

// InitializeOTel initializes OpenTelemetry with comprehensive observability
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	// Create resource
	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Logger: logger,
	}

	// Initialize tracing
	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	// Initialize metrics
	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	// Set up global propagators for trace context
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case "none":
		// No exporter - tracing disabled
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics sets up OpenTelemetry metrics
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		// Create Prometheus exporter
		exporter, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		// Create Prometheus HTTP handler
		providers.PrometheusHTTP = promhttp.Handler()

		// Create meter provider with Prometheus reader
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

		// Set global meter provider
		otel.SetMeterProvider(mp)

	case "none":
		// No exporter - metrics disabled
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.InfoContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	// HTTP metrics
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	// Analysis metrics
	analysisRunsTotal, err := meter.Int64Counter(
		"analysis_runs_total",
		metric.WithDescription("Total number of analysis runs"),
	)
	if err != nil {
		return nil, err
	}

	analysisDuration, err := meter.Float64Histogram(
		"analysis_duration_seconds",
		metric.WithDescription("Analysis run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	instrumentsAnalyzed, err := meter.Int64Counter(
		"analysis_instruments_total",
		metric.WithDescription("Total number of per-instrument analyses"),
	)
	if err != nil {
		return nil, err
	}

	instrumentDuration, err := meter.Float64Histogram(
		"analysis_instrument_duration_seconds",
		metric.WithDescription("Per-instrument analysis duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	eventsProcessed, err := meter.Int64Counter(
		"analysis_events_processed_total",
		metric.WithDescription("Total number of distribution events processed"),
	)
	if err != nil {
		return nil, err
	}

	eventFailures, err := meter.Int64Counter(
		"analysis_event_failures_total",
		metric.WithDescription("Total number of distribution events skipped due to errors"),
	)
	if err != nil {
		return nil, err
	}

	activeJobs, err := meter.Int64UpDownCounter(
		"analysis_active_jobs",
		metric.WithDescription("Number of analysis jobs currently running"),
	)
	if err != nil {
		return nil, err
	}

	jobErrors, err := meter.Int64Counter(
		"analysis_job_errors_total",
		metric.WithDescription("Total number of analysis job errors"),
	)
	if err != nil {
		return nil, err
	}

	jobCancellations, err := meter.Int64Counter(
		"analysis_job_cancellations_total",
		metric.WithDescription("Total number of analysis job cancellations"),
	)
	if err != nil {
		return nil, err
	}

	// Query metrics
	correlationRuns, err := meter.Int64Counter(
		"correlation_runs_total",
		metric.WithDescription("Total number of correlation analyses"),
	)
	if err != nil {
		return nil, err
	}

	similarityQueries, err := meter.Int64Counter(
		"similarity_queries_total",
		metric.WithDescription("Total number of similarity queries"),
	)
	if err != nil {
		return nil, err
	}

	// Export metrics
	reportsExported, err := meter.Int64Counter(
		"reports_exported_total",
		metric.WithDescription("Total number of report files written"),
	)
	if err != nil {
		return nil, err
	}

	// System metrics
	systemErrors, err := meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
	)
	if err != nil {
		return nil, err
	}

	systemUptime, err := meter.Float64UpDownCounter(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		// HTTP metrics
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,

		// Analysis metrics
		AnalysisRunsTotal:   analysisRunsTotal,
		AnalysisDuration:    analysisDuration,
		InstrumentsAnalyzed: instrumentsAnalyzed,
		InstrumentDuration:  instrumentDuration,
		EventsProcessed:     eventsProcessed,
		EventFailures:       eventFailures,
		ActiveJobs:          activeJobs,
		JobErrors:           jobErrors,
		JobCancellations:    jobCancellations,

		// Query metrics
		CorrelationRuns:   correlationRuns,
		SimilarityQueries: similarityQueries,

		// Export metrics
		ReportsExported: reportsExported,

		// System metrics
		SystemErrors: systemErrors,
		SystemUptime: systemUptime,
	}, nil
}

// BusinessMetrics holds all application-specific metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Analysis metrics
	AnalysisRunsTotal   metric.Int64Counter
	AnalysisDuration    metric.Float64Histogram
	InstrumentsAnalyzed metric.Int64Counter
	InstrumentDuration  metric.Float64Histogram
	EventsProcessed     metric.Int64Counter
	EventFailures       metric.Int64Counter
	ActiveJobs          metric.Int64UpDownCounter
	JobErrors           metric.Int64Counter
	JobCancellations    metric.Int64Counter

	// Query metrics
	CorrelationRuns   metric.Int64Counter
	SimilarityQueries metric.Int64Counter

	// Export metrics
	ReportsExported metric.Int64Counter

	// System metrics
	SystemErrors metric.Int64Counter
	SystemUptime metric.Float64UpDownCounter
}

// Shutdown gracefully shuts down OpenTelemetry providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// SpanFromContext returns the current span from context
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span with structured attributes
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String(k, val))
		case int:
			span.SetAttributes(attribute.Int(k, val))
		case int64:
			span.SetAttributes(attribute.Int64(k, val))
		case float64:
			span.SetAttributes(attribute.Float64(k, val))
		case bool:
			span.SetAttributes(attribute.Bool(k, val))
		default:
			span.SetAttributes(attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
}

// RecordAnalysisMetrics records metrics for a full analysis run
func RecordAnalysisMetrics(ctx context.Context, metrics *BusinessMetrics, jobID string, kind string, duration time.Duration, success bool, err error) {
	if metrics == nil {
		return
	}

	// Common attributes
	attrs := []attribute.KeyValue{
		attribute.String("job.id", jobID),
		attribute.String("analysis.kind", kind),
	}

	// Record execution
	metrics.AnalysisRunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	// Record duration
	statusAttr := attribute.String("status", "success")
	if !success {
		statusAttr = attribute.String("status", "failure")
	}
	durationAttrs := append(attrs, statusAttr)
	metrics.AnalysisDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(durationAttrs...))

	// Record errors
	if err != nil {
		errorAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
		metrics.JobErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}

	// Add span event
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("analysis.metrics_recorded",
			trace.WithAttributes(
				attribute.String("job.id", jobID),
				attribute.Bool("success", success),
				attribute.Float64("duration_seconds", duration.Seconds()),
			),
		)
	}
}

// RecordInstrumentMetrics records metrics for one instrument within a run
func RecordInstrumentMetrics(ctx context.Context, metrics *BusinessMetrics, jobID, instrument string, events, failures int, duration time.Duration) {
	if metrics == nil {
		return
	}

	// Common attributes
	attrs := []attribute.KeyValue{
		attribute.String("job.id", jobID),
		attribute.String("instrument", instrument),
	}

	metrics.InstrumentsAnalyzed.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.InstrumentDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if events > 0 {
		metrics.EventsProcessed.Add(ctx, int64(events), metric.WithAttributes(attrs...))
	}
	if failures > 0 {
		metrics.EventFailures.Add(ctx, int64(failures), metric.WithAttributes(attrs...))
	}
}

// RecordActiveJobChange records changes in active job count
func RecordActiveJobChange(ctx context.Context, metrics *BusinessMetrics, delta int64, kind string) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("analysis.kind", kind),
	}

	metrics.ActiveJobs.Add(ctx, delta, metric.WithAttributes(attrs...))
}

// RecordJobCancellation records an analysis job cancellation
func RecordJobCancellation(ctx context.Context, metrics *BusinessMetrics, jobID, kind, reason string) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("job.id", jobID),
		attribute.String("analysis.kind", kind),
		attribute.String("reason", reason),
	}

	metrics.JobCancellations.Add(ctx, 1, metric.WithAttributes(attrs...))
}
