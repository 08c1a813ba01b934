package webhook

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	KindHTTPStatus        ErrorKind = "http_status"
	KindTimeout           ErrorKind = "timeout"
	KindCanceled          ErrorKind = "canceled"
	KindDNS               ErrorKind = "dns"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindTLS               ErrorKind = "tls"
	KindResponseTooLarge  ErrorKind = "response_too_large"
	KindNetwork           ErrorKind = "network"
)

// TransportError is a failure to get any usable HTTP answer from the webhook.
type TransportError struct {
	Action     string
	Kind       ErrorKind
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == KindHTTPStatus {
		msg := fmt.Sprintf("webhook %s failed: HTTP %d %s", e.Action, e.StatusCode, e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("webhook %s failed (%s): %v", e.Action, e.Kind, e.Err)
	}
	return fmt.Sprintf("webhook %s failed (%s)", e.Action, e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *TransportError) Timeout() bool { return e.Kind == KindTimeout }

// RemoteError is the script answering success:false. The request reached the
// sheet but was rejected there.
type RemoteError struct {
	Action  string
	Message string
	Detail  string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "remote script reported failure"
	}
	if e.Detail != "" && e.Detail != msg {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("webhook %s rejected: %s", e.Action, msg)
}

// ParseError means the webhook answered but no payload could be recovered.
type ParseError struct {
	Action string
	Reason string
	Detail string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("webhook %s: %s", e.Action, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func classifyNetworkError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) {
		return KindTLS
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "connection refused"):
		return KindConnectionRefused
	case strings.Contains(lower, "tls") || strings.Contains(lower, "certificate"):
		return KindTLS
	}
	return KindNetwork
}

// limiterErrorKind classifies a rate limiter wait failure. The limiter refuses
// up front when the wait would outlast the deadline, without wrapping
// context.DeadlineExceeded.
func limiterErrorKind(ctx context.Context, err error) ErrorKind {
	kind := classifyNetworkError(err)
	if kind == KindCanceled || kind == KindTimeout {
		return kind
	}
	if _, ok := ctx.Deadline(); ok && (ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return KindTimeout
	}
	return kind
}
