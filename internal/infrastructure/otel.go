package infrastructure

import (
	"context"
	"errors"
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

	"retailsales/internal/config"
)

const (
	ServiceName = "retailsales"
	MeterName   = "retailsales"

	// censusDataset is attached to the resource so exported telemetry says
	// which upstream series it is about.
	censusDataset = "timeseries/eits/marts"
)

// OTelConfig selects exporters for one process
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // stdout | none
	MetricExporter string // prometheus | none
	SampleRatio    float64
}

// NewOTelConfig builds the OTel settings for the telemetry config section
func NewOTelConfig(t config.TelemetryConfig, version string) *OTelConfig {
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Environment:    t.Environment,
		TraceExporter:  t.TraceExporter,
		MetricExporter: t.MetricExporter,
		SampleRatio:    t.SampleRatio,
	}
}

// DefaultOTelConfig is NewOTelConfig over the default telemetry section
func DefaultOTelConfig() *OTelConfig {
	return NewOTelConfig(config.Default().Telemetry, "dev")
}

// OTelProviders holds what InitializeOTel built. Meter and PrometheusHTTP
// are nil when metrics are not exported.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel installs the global tracer provider, meter provider and
// W3C propagator. Tracing is always on so trace ids reach the logs even
// when spans are not exported.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		semconv.ServiceInstanceID(instanceID()),
		attribute.String("census.dataset", censusDataset),
	)

	p := &OTelProviders{Logger: logger}

	tp, err := newTracerProvider(cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	p.TracerProvider = tp
	p.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		p.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter))
		p.Meter = p.MeterProvider.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		p.PrometheusHTTP = promhttp.Handler()
		otel.SetMeterProvider(p.MeterProvider)
	case "none", "":
	default:
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		slog.String("environment", cfg.Environment),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return p, nil
}

func newTracerProvider(cfg *OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// Shutdown flushes pending spans and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("opentelemetry shutdown: %w", err)
	}
	return nil
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// BusinessMetrics are the HTTP and export instruments shared by the
// middleware and the retail service.
type BusinessMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	ExportsTotal   metric.Int64Counter
	ExportBytes    metric.Int64Counter
	ExportDuration metric.Float64Histogram
}

// CreateBusinessMetrics registers the instruments on meter, or on the
// global meter provider when meter is nil.
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	m := &BusinessMetrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests by route and status"))
	check(err)
	m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("s"))
	check(err)
	m.HTTPActiveRequests, err = meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("HTTP requests in flight"))
	check(err)
	m.ExportsTotal, err = meter.Int64Counter("retail_exports_total",
		metric.WithDescription("Workbook and CSV exports by format and outcome"))
	check(err)
	m.ExportBytes, err = meter.Int64Counter("retail_export_bytes",
		metric.WithDescription("Bytes of exported documents"), metric.WithUnit("By"))
	check(err)
	m.ExportDuration, err = meter.Float64Histogram("retail_export_duration_seconds",
		metric.WithDescription("Time spent rendering an export"), metric.WithUnit("s"))
	check(err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create business metrics: %w", err)
	}
	return m, nil
}

// RecordExport counts one export. Bytes are only added for successful ones.
func RecordExport(ctx context.Context, m *BusinessMetrics, format string, size int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("outcome", outcome),
	)

	m.ExportsTotal.Add(ctx, 1, attrs)
	m.ExportDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err == nil {
		m.ExportBytes.Add(ctx, int64(size), metric.WithAttributes(attribute.String("format", format)))
	}
}

// TraceIDFromContext returns the active span's trace id, or ""
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// RecordError marks the active span as failed with err
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
