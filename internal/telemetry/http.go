package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WrapHTTPTransport adds OTEL client instrumentation to a transport when
// tracing is enabled. Proxy and timeout settings of the wrapped transport are
// untouched.
func WrapHTTPTransport(transport http.RoundTripper) http.RoundTripper {
	if !IsEnabled() {
		return transport
	}
	return otelhttp.NewTransport(transport)
}
