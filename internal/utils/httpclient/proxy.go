package httpclient

import (
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// ProxyEnvironmentVariables lists the proxy variables in order of preference,
// following curl and wget conventions.
var ProxyEnvironmentVariables = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

// NewHTTPClientWithProxyAndLogger creates an HTTP client that honours the proxy
// environment variables. The transport is wrapped with OTEL instrumentation
// when tracing is enabled. A zero timeout leaves deadlines to the request
// context.
func NewHTTPClientWithProxyAndLogger(timeout time.Duration, logger *logrus.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL := getProxyURL(); proxyURL != "" {
		parsedProxy, err := url.Parse(proxyURL)
		switch {
		case err != nil:
			if logger != nil {
				logger.WithError(err).WithField("proxy_url", redactProxyCredentials(proxyURL)).Warn("Failed to parse proxy URL, using direct connection")
			}
		default:
			transport.Proxy = http.ProxyURL(parsedProxy)
			if logger != nil {
				logger.WithField("proxy_url", redactProxyCredentials(proxyURL)).Debug("HTTP client configured with proxy")
			}
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: telemetry.WrapHTTPTransport(transport),
	}
}

func getProxyURL() string {
	for _, envVar := range ProxyEnvironmentVariables {
		proxyURL := os.Getenv(envVar)
		// Skip unexpanded placeholders some shells leave behind
		if proxyURL != "" && proxyURL != "$HTTPS_PROXY" && proxyURL != "$HTTP_PROXY" {
			return proxyURL
		}
	}
	return ""
}

func redactProxyCredentials(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}
	return parsed.String()
}
