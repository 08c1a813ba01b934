package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "wps-sheets-mcp"

	defaultMaxAttributeSize = 4096
	minAttributeSize        = 1024
	maxAttributeSize        = 65536
)

var (
	globalMutex          sync.RWMutex
	globalTracer         trace.Tracer
	globalTracerProvider *sdktrace.TracerProvider
	tracingEnabled       bool
	serviceVersion       = "dev"
)

// otelErrorHandler routes SDK errors into logrus. In stdio mode anything on
// stderr would corrupt the MCP stream.
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.WithError(err).Debug("OTEL: SDK error occurred")
}

// InitTracer sets up OTLP tracing when OTEL_EXPORTER_OTLP_ENDPOINT is set and
// falls back to a noop tracer otherwise. The returned function flushes and
// shuts the provider down.
func InitTracer(logger *logrus.Logger, version string) (func() error, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if version != "" {
		serviceVersion = version
	}

	noopShutdown := func() error { return nil }

	if strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("OTEL: Explicitly disabled via OTEL_SDK_DISABLED")
		globalTracer = noop.NewTracerProvider().Tracer(instrumentationName)
		tracingEnabled = false
		return noopShutdown, nil
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("OTEL: OTEL_EXPORTER_OTLP_ENDPOINT not set, using noop tracer")
		globalTracer = noop.NewTracerProvider().Tracer(instrumentationName)
		tracingEnabled = false
		return noopShutdown, nil
	}

	logger.WithField("endpoint", endpoint).Info("OTEL: Initialising tracer")
	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var exporter *otlptrace.Exporter
	var err error
	switch protocol := getOTLPProtocol(); protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlptracehttp.New(ctx)
	default:
		logger.WithField("protocol", protocol).Warn("OTEL: Unknown protocol, defaulting to http")
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		globalTracer = noop.NewTracerProvider().Tracer(instrumentationName)
		tracingEnabled = false
		return noopShutdown, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(ctx, logger)),
		sdktrace.WithSampler(createSampler(logger)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracer = tp.Tracer(instrumentationName)
	globalTracerProvider = tp
	tracingEnabled = true
	logger.Info("OTEL: Tracer initialised successfully")

	return func() error {
		globalMutex.Lock()
		defer globalMutex.Unlock()

		if globalTracerProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := globalTracerProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		globalTracerProvider = nil
		return nil
	}, nil
}

// GetTracer returns the global tracer, or a noop tracer before InitTracer.
func GetTracer() trace.Tracer {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if globalTracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return globalTracer
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return tracingEnabled
}

// StartSpan starts an internal span. Callers must end it with EndSpan.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return GetTracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if span == nil || !span.IsRecording() {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StartToolSpan starts the span wrapping one MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, args map[string]any) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanNameToolExecute, attribute.String(AttrMCPToolName, toolName))
	if !span.IsRecording() {
		return ctx, span
	}

	sanitisedArgs := SanitiseArguments(args)
	if limit := getMaxAttributeSize(); len(sanitisedArgs) > limit {
		span.SetAttributes(
			attribute.String("mcp.tool.arguments", TruncateString(sanitisedArgs, limit)),
			attribute.Bool("mcp.tool.arguments.truncated", true),
		)
	} else {
		span.SetAttributes(attribute.String("mcp.tool.arguments", sanitisedArgs))
	}
	return ctx, span
}

// EndToolSpan ends a tool execution span with success or error
func EndToolSpan(span trace.Span, err error) {
	if span == nil || !span.IsRecording() {
		return
	}
	if err != nil {
		span.SetAttributes(
			attribute.Bool(AttrMCPToolSuccess, false),
			attribute.String(AttrMCPToolError, err.Error()),
		)
	} else {
		span.SetAttributes(attribute.Bool(AttrMCPToolSuccess, true))
	}
	EndSpan(span, err)
}

func newResource(ctx context.Context, logger *logrus.Logger) *resource.Resource {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(getServiceName()),
			semconv.ServiceVersionKey.String(serviceVersion),
			attribute.String("deployment.environment", getDeploymentEnvironment()),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		return resource.Default()
	}
	return res
}

func getOTLPProtocol() string {
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	if protocol != "" {
		return protocol
	}
	if strings.Contains(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), ":4317") {
		return "grpc"
	}
	return "http/protobuf"
}

func getServiceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return instrumentationName
}

func getDeploymentEnvironment() string {
	for _, envVar := range []string{"ENVIRONMENT", "ENV", "DEPLOYMENT_ENV"} {
		if env := os.Getenv(envVar); env != "" {
			return env
		}
	}
	return "development"
}

func createSampler(logger *logrus.Logger) sdktrace.Sampler {
	ratio := parseRatio(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 1.0)

	switch samplerType := os.Getenv("OTEL_TRACES_SAMPLER"); samplerType {
	case "", "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(ratio)
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		logger.WithField("sampler", samplerType).Warn("OTEL: Unknown sampler type, using always_on")
		return sdktrace.AlwaysSample()
	}
}

func parseRatio(s string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return defaultVal
	}
	return min(max(f, 0.0), 1.0)
}

func getMaxAttributeSize() int {
	size, err := strconv.Atoi(os.Getenv("WPS_TRACING_MAX_ATTRIBUTE_SIZE"))
	if err != nil {
		return defaultMaxAttributeSize
	}
	return min(max(size, minAttributeSize), maxAttributeSize)
}
