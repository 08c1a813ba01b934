package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/telemetry"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/utils/httpclient"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultTokenHeader      = "AirScript-Token"
	DefaultTimeout          = 30 * time.Second
	DefaultRateLimit        = 5.0
	DefaultMaxResponseBytes = 10 << 20

	defaultUserAgent = "wps-sheets-mcp"
	errorBodyLimit   = 512
)

// Doer is the part of *http.Client the gateway needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Caller is the call boundary every other package depends on.
type Caller interface {
	Call(ctx context.Context, action string, params map[string]any) (json.RawMessage, error)
}

// Config describes one script webhook. Each workbook gets its own Config and
// therefore its own Gateway.
type Config struct {
	Name             string
	URL              string
	Token            string
	TokenHeader      string
	Timeout          time.Duration
	RateLimit        float64 // requests per second, 0 or less disables limiting
	Burst            int
	FlatBody         bool // send argv as the whole body instead of {"Context":{"argv":...}}
	UserAgent        string
	MaxResponseBytes int64
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL scheme %q", u.Scheme)
	}
	if c.Token == "" {
		return fmt.Errorf("webhook token is required")
	}

	if c.TokenHeader == "" {
		c.TokenHeader = DefaultTokenHeader
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return nil
}

// RawResponse is an HTTP answer that has not been through Parse yet.
type RawResponse struct {
	StatusCode int
	Body       []byte
	RequestID  string
	Duration   time.Duration
}

// Gateway performs single, unretried calls against the script endpoint.
type Gateway struct {
	cfg     Config
	client  Doer
	limiter *rate.Limiter
	logger  *logrus.Logger
}

type Option func(*Gateway)

func WithHTTPClient(client Doer) Option {
	return func(g *Gateway) { g.client = client }
}

func New(cfg Config, logger *logrus.Logger, opts ...Option) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	g := &Gateway{cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		// Per-call deadlines come from the context.
		g.client = httpclient.NewHTTPClientWithProxyAndLogger(0, logger)
	}
	return g, nil
}

func (g *Gateway) Name() string { return g.cfg.Name }

// Invoke posts one action to the webhook. Non-2xx answers and network
// failures become *TransportError.
func (g *Gateway) Invoke(ctx context.Context, action string, params map[string]any) (resp *RawResponse, err error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanNameWebhookInvoke,
		attribute.String(telemetry.AttrWorkbook, g.cfg.Name),
		attribute.String(telemetry.AttrWebhookAction, action),
		attribute.String(telemetry.AttrWebhookURL, telemetry.SanitiseURL(g.cfg.URL)),
		attribute.String(telemetry.AttrRequestID, requestID),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		telemetry.RecordRemoteCall(ctx, g.cfg.Name, action, callOutcome(err), float64(time.Since(start).Milliseconds()))
	}()

	if g.limiter != nil {
		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			return nil, &TransportError{Action: action, Kind: limiterErrorKind(ctx, waitErr), Err: waitErr}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(requestBody(action, params, g.cfg.FlatBody))
	if err != nil {
		return nil, fmt.Errorf("encode webhook request for %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request for %s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set(g.cfg.TokenHeader, g.cfg.Token)

	logger := g.logger.WithFields(logrus.Fields{
		"workbook":   g.cfg.Name,
		"action":     action,
		"request_id": requestID,
	})
	logger.Debug("Invoking webhook")

	httpResp, err := g.client.Do(req)
	if err != nil {
		kind := classifyNetworkError(err)
		logger.WithError(err).WithField("kind", kind).Warn("Webhook request failed")
		return nil, &TransportError{Action: action, Kind: kind, Err: err}
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			logger.WithError(closeErr).Debug("Failed to close webhook response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, g.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, &TransportError{Action: action, Kind: classifyNetworkError(err), StatusCode: httpResp.StatusCode, Err: err}
	}
	if int64(len(body)) > g.cfg.MaxResponseBytes {
		return nil, &TransportError{
			Action:     action,
			Kind:       KindResponseTooLarge,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("response exceeds %d bytes", g.cfg.MaxResponseBytes),
		}
	}

	duration := time.Since(start)
	logger = logger.WithFields(logrus.Fields{
		"status":      httpResp.StatusCode,
		"duration_ms": duration.Milliseconds(),
		"bytes":       len(body),
	})

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		logger.Warn("Webhook returned non-success status")
		return nil, &TransportError{
			Action:     action,
			Kind:       KindHTTPStatus,
			StatusCode: httpResp.StatusCode,
			Status:     statusText(httpResp),
			Body:       truncateBody(body),
		}
	}

	logger.Debug("Webhook call completed")
	return &RawResponse{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		RequestID:  requestID,
		Duration:   duration,
	}, nil
}

// Call invokes the action and reconstructs its payload. A script answering
// success:false yields *RemoteError; an unrecoverable body yields *ParseError.
func (g *Gateway) Call(ctx context.Context, action string, params map[string]any) (json.RawMessage, error) {
	raw, err := g.Invoke(ctx, action, params)
	if err != nil {
		return nil, err
	}

	res := Parse(raw.Body)
	if res.Success {
		return res.Data, nil
	}

	logger := g.logger.WithFields(logrus.Fields{
		"workbook":   g.cfg.Name,
		"action":     action,
		"request_id": raw.RequestID,
	})
	if res.Remote {
		logger.WithField("remote_error", res.Error).Info("Remote script reported failure")
		return nil, &RemoteError{Action: action, Message: res.Error, Detail: res.Message}
	}
	logger.Warn("Webhook response carried no usable payload")
	return nil, &ParseError{Action: action, Reason: res.Error, Detail: res.Message}
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var te *TransportError
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return "error"
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= errorBodyLimit {
		return s
	}
	return s[:errorBodyLimit] + "..."
}
