package telemetry

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultMetricExportInterval = 60 * time.Second

var (
	metricsMutex        sync.RWMutex
	globalMeterProvider *sdkmetric.MeterProvider
	metricsEnabled      bool
	enabledMetricGroups map[string]bool

	toolCallsCounter      metric.Int64Counter
	toolDurationHistogram metric.Float64Histogram
	toolErrorsCounter     metric.Int64Counter

	remoteCallsCounter      metric.Int64Counter
	remoteDurationHistogram metric.Float64Histogram

	scanPagesHistogram    metric.Int64Histogram
	scanTruncationCounter metric.Int64Counter
)

// InitMetrics sets up the OTLP meter provider. Metric groups are chosen with
// WPS_METRICS_GROUPS (tool, remote, scan); all are on by default.
func InitMetrics(logger *logrus.Logger) (func() error, error) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	noopShutdown := func() error { return nil }
	enabledMetricGroups = parseMetricGroups(os.Getenv("WPS_METRICS_GROUPS"))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" || strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("OTEL Metrics: Not configured, metrics disabled")
		metricsEnabled = false
		return noopShutdown, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var exporter sdkmetric.Exporter
	var err error
	if getOTLPProtocol() == "grpc" {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = otlpmetrichttp.New(ctx)
	}
	if err != nil {
		logger.WithError(err).Warn("OTEL Metrics: Failed to create exporter, metrics disabled")
		metricsEnabled = false
		return noopShutdown, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(getMetricExportInterval(logger)),
		)),
		sdkmetric.WithResource(newResource(ctx, logger)),
	)
	otel.SetMeterProvider(provider)
	globalMeterProvider = provider

	if err := initInstruments(provider.Meter(instrumentationName)); err != nil {
		logger.WithError(err).Error("OTEL Metrics: Failed to initialise instruments")
		metricsEnabled = false
		return noopShutdown, err
	}
	metricsEnabled = true
	logger.WithField("endpoint", endpoint).Info("OTEL Metrics: Meter initialised successfully")

	return func() error {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()

		if globalMeterProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := globalMeterProvider.Shutdown(shutdownCtx)
		globalMeterProvider = nil
		return err
	}, nil
}

// initInstruments creates every instrument of the enabled groups. Caller holds
// metricsMutex.
func initInstruments(meter metric.Meter) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	if enabledMetricGroups["tool"] {
		toolCallsCounter, err = meter.Int64Counter("wps.tool.calls",
			metric.WithDescription("Tool invocations"), metric.WithUnit("{call}"))
		collect(err)
		toolDurationHistogram, err = meter.Float64Histogram("wps.tool.duration",
			metric.WithDescription("Tool execution duration"), metric.WithUnit("ms"),
			metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000))
		collect(err)
		toolErrorsCounter, err = meter.Int64Counter("wps.tool.errors",
			metric.WithDescription("Tool errors by category"), metric.WithUnit("{error}"))
		collect(err)
	}

	if enabledMetricGroups["remote"] {
		remoteCallsCounter, err = meter.Int64Counter("wps.remote.calls",
			metric.WithDescription("Webhook invocations by action and outcome"), metric.WithUnit("{call}"))
		collect(err)
		remoteDurationHistogram, err = meter.Float64Histogram("wps.remote.duration",
			metric.WithDescription("Webhook round-trip duration"), metric.WithUnit("ms"),
			metric.WithExplicitBucketBoundaries(50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000))
		collect(err)
	}

	if enabledMetricGroups["scan"] {
		scanPagesHistogram, err = meter.Int64Histogram("wps.scan.pages",
			metric.WithDescription("Pages fetched per filtered scan"), metric.WithUnit("{page}"),
			metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 10, 20, 50))
		collect(err)
		scanTruncationCounter, err = meter.Int64Counter("wps.scan.truncations",
			metric.WithDescription("Scans stopped by the record cap"), metric.WithUnit("{scan}"))
		collect(err)
	}

	return errors.Join(errs...)
}

func isMetricGroupEnabled(group string) bool {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return metricsEnabled && enabledMetricGroups[group]
}

// RecordToolCall records a tool invocation metric
func RecordToolCall(ctx context.Context, toolName, transport string, success bool, durationMs float64) {
	if !isMetricGroupEnabled("tool") {
		return
	}

	result := "success"
	if !success {
		result = "error"
	}
	toolCallsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPTransport, transport),
		attribute.String("result", result),
	))
	toolDurationHistogram.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
	))
}

// RecordToolError records a categorised tool error
func RecordToolError(ctx context.Context, toolName, errorType string) {
	if !isMetricGroupEnabled("tool") {
		return
	}
	toolErrorsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
		attribute.String("error.type", errorType),
	))
}

// RecordRemoteCall records one webhook round trip.
func RecordRemoteCall(ctx context.Context, workbook, action, outcome string, durationMs float64) {
	if !isMetricGroupEnabled("remote") {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrWorkbook, workbook),
		attribute.String(AttrWebhookAction, action),
		attribute.String("outcome", outcome),
	)
	remoteCallsCounter.Add(ctx, 1, attrs)
	remoteDurationHistogram.Record(ctx, durationMs, attrs)
}

// RecordScan records how many pages a filtered scan needed and whether the cap
// cut it short.
func RecordScan(ctx context.Context, table string, pages int, truncated bool) {
	if !isMetricGroupEnabled("scan") {
		return
	}
	scanPagesHistogram.Record(ctx, int64(pages), metric.WithAttributes(attribute.String(AttrTableName, table)))
	if truncated {
		scanTruncationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTableName, table)))
	}
}

// CategoriseToolError maps errors to metric-friendly categories
func CategoriseToolError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "http 401") || strings.Contains(errStr, "http 403"):
		return "auth"
	case strings.Contains(errStr, "dial tcp") || strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "rejected:"):
		return "remote"
	case strings.Contains(errStr, "failed to parse response"):
		return "parse"
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "unknown") || strings.Contains(errStr, "required"):
		return "validation"
	default:
		return "other"
	}
}

func parseMetricGroups(value string) map[string]bool {
	groups := make(map[string]bool)
	for group := range strings.SplitSeq(value, ",") {
		if group = strings.TrimSpace(strings.ToLower(group)); group != "" {
			groups[group] = true
		}
	}
	if len(groups) == 0 {
		return map[string]bool{"tool": true, "remote": true, "scan": true}
	}
	return groups
}

func getMetricExportInterval(logger *logrus.Logger) time.Duration {
	raw := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")
	if raw == "" {
		return defaultMetricExportInterval
	}
	ms, err := time.ParseDuration(raw + "ms")
	if err != nil || ms <= 0 {
		logger.WithField("value", raw).Warn("OTEL Metrics: Invalid OTEL_METRIC_EXPORT_INTERVAL, using default")
		return defaultMetricExportInterval
	}
	return ms
}
