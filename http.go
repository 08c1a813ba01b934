package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// startStreamableHTTPServer serves the MCP endpoint until ctx is cancelled.
func startStreamableHTTPServer(ctx context.Context, cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	authToken := cmd.String("auth-token")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
		mcpserver.WithHTTPContextFunc(protocolVersionContext(logger)),
	}
	if sessionTimeout > 0 {
		opts = append(opts, mcpserver.WithSessionIdManager(newTimeoutSessionManager(sessionTimeout, logger)))
	}

	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))

	var handler http.Handler = mcpserver.NewStreamableHTTPServer(mcpServer, opts...)
	if authToken != "" {
		handler = requireBearer(authToken, logger, handler)
		logger.Info("Bearer token authentication enabled")
	}
	handler = checkOrigin(logger, handler)

	mux := http.NewServeMux()
	mux.Handle(endpointPath, handler)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}
	logger.Info("HTTP server stopped gracefully")
	return nil
}

// requireBearer rejects requests without "Authorization: Bearer <token>".
func requireBearer(expected string, logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logger.WithField("remote_addr", r.RemoteAddr).Warn("Rejected request with missing or invalid bearer token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+appName+`"`)
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin blocks browser requests from non-local origins (DNS rebinding).
// Requests without an Origin header are not from a browser and pass.
func checkOrigin(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && !isValidOrigin(origin) {
			logger.Warnf("Invalid Origin header: %s", origin)
			http.Error(w, "forbidden origin", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func protocolVersionContext(logger *logrus.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		if v := req.Header.Get("MCP-Protocol-Version"); v != "" && !isValidProtocolVersion(v) {
			logger.Warnf("Unsupported MCP Protocol Version: %s", v)
		}
		return ctx
	}
}

func isValidProtocolVersion(version string) bool {
	return slices.Contains([]string{"2025-06-18", "2025-03-26", "2024-11-05"}, version)
}

func isValidOrigin(origin string) bool {
	for _, allowed := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if origin == allowed || strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}

// timeoutSessionManager issues random session ids and expires sessions that
// have been idle for longer than timeout.
type timeoutSessionManager struct {
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func newTimeoutSessionManager(timeout time.Duration, logger *logrus.Logger) *timeoutSessionManager {
	return &timeoutSessionManager{
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// Generate also drops every session idle past the timeout.
func (m *timeoutSessionManager) Generate() string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for sessionID, seen := range m.lastSeen {
		if now.Sub(seen) > m.timeout {
			delete(m.lastSeen, sessionID)
		}
	}
	m.lastSeen[id] = now
	return id
}

// Validate reports an expired session as terminated and refreshes live ones.
func (m *timeoutSessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen, ok := m.lastSeen[sessionID]
	if !ok {
		return false, fmt.Errorf("unknown session ID")
	}
	now := m.now()
	if now.Sub(seen) > m.timeout {
		delete(m.lastSeen, sessionID)
		m.logger.Debugf("Session expired: %s", sessionID)
		return true, nil
	}
	m.lastSeen[sessionID] = now
	return false, nil
}

func (m *timeoutSessionManager) Terminate(sessionID string) (bool, error) {
	m.mu.Lock()
	delete(m.lastSeen, sessionID)
	m.mu.Unlock()
	m.logger.Debugf("Session terminated: %s", sessionID)
	return false, nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
