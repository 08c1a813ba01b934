package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/config"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/registry"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/telemetry"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools/sheetquery"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools/utilities/toolhelp"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	appName = "wps-sheets-mcp"

	// DefaultMemoryLimit is the default soft memory limit (1GB)
	DefaultMemoryLimit = 1024 * 1024 * 1024
)

// Resources released by performCleanup. Atomic so signal handling and normal
// exit cannot race.
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

// cleanup collects shutdown functions registered while starting up.
var cleanup struct {
	mu  sync.Mutex
	fns []func()
}

func onCleanup(fn func()) {
	cleanup.mu.Lock()
	defer cleanup.mu.Unlock()
	cleanup.fns = append(cleanup.fns, fn)
}

// parseLogLevel reads LOG_LEVEL, defaulting to warn.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit
	if s := os.Getenv("WPS_SHEETS_MEMORY_LIMIT"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}
	debug.SetMemoryLimit(memLimit)
}

func main() {
	setMemoryLimit()

	// A .env next to the binary or in the working directory may carry tokens.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard until the transport is known; stdout belongs to the protocol in stdio mode.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	defer performCleanup(logger)

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the workbook configuration file",
		Value:   config.DefaultPath(),
		Sources: cli.EnvVars(config.EnvConfigPath),
	}

	app := &cli.Command{
		Name:    appName,
		Usage:   "MCP server for searching WPS/Kdocs spreadsheets through AirScript webhooks",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Bearer token required by the Streamable HTTP transport (optional)",
				Sources: cli.EnvVars("WPS_SHEETS_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("%s version %s\n", appName, Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			tablesCommand(logger),
			cliCommand(logger),
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			isStdioMode.Store(transport == "stdio")
			configureLogging(logger)

			if transport != "stdio" {
				logger.Infof("Starting %s version %s (commit: %s, built: %s)", appName, Version, Commit, BuildDate)
			}

			initTelemetry(logger)

			reg, err := buildRegistry(cmd.String("config"), logger)
			if err != nil {
				return err
			}

			errorLogger := newErrorLogger(logger)
			mcpSrv := mcpserver.NewMCPServer(appName, Version, mcpserver.WithToolCapabilities(false))
			registerTools(mcpSrv, reg, errorLogger, transport, logger)

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(cmd.String("base-url")+"/sse"))
				return sseServer.Start(":" + cmd.String("port"))
			case "http":
				return startStreamableHTTPServer(cliCtx, cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// Nothing may reach stdout or stderr in stdio mode.
		if !isStdioMode.Load() {
			logger.SetOutput(os.Stderr)
			logger.Errorf("Error: %v", err)
		}
		performCleanup(logger)
		os.Exit(1)
	}
}

// configureLogging sends logs to ~/.wps-sheets-mcp/logs/server.log. When the
// file cannot be opened, logs are dropped in stdio mode and go to stderr
// otherwise.
func configureLogging(logger *logrus.Logger) {
	level := parseLogLevel()
	if isStdioMode.Load() && level < logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	logrus.SetLevel(level)

	var out io.Writer = os.Stderr
	if isStdioMode.Load() {
		out = io.Discard
	}
	if file, err := openLogFile(); err == nil {
		debugLogFile.Store(file)
		out = file
	}
	logger.SetOutput(out)
	logrus.SetOutput(out)
	logger.WithField("level", level.String()).Debug("Logging configured")
}

func logDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "."+appName, "logs"), nil
}

func openLogFile() (*os.File, error) {
	dir, err := logDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "server.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func initTelemetry(logger *logrus.Logger) {
	shutdownTracer, err := telemetry.InitTracer(logger, Version)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing")
	} else {
		onCleanup(func() { _ = shutdownTracer() })
	}

	shutdownMetrics, err := telemetry.InitMetrics(logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise metrics")
	} else {
		onCleanup(func() { _ = shutdownMetrics() })
	}
}

// openWorkbooks loads the configuration and wires every workbook.
func openWorkbooks(path string, logger *logrus.Logger) ([]*sheetquery.Workbook, error) {
	cfg, err := config.Load(path, logger)
	if err != nil {
		return nil, err
	}
	workbooks, err := sheetquery.OpenAll(cfg, logger)
	if err != nil {
		return nil, err
	}
	onCleanup(func() {
		for _, wb := range workbooks {
			wb.Close()
		}
	})
	return workbooks, nil
}

func buildRegistry(configPath string, logger *logrus.Logger) (*registry.Registry, error) {
	workbooks, err := openWorkbooks(configPath, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(logger)
	reg.Register(sheetquery.New(workbooks...))
	reg.Register(toolhelp.New(reg))
	return reg, nil
}

func newErrorLogger(logger *logrus.Logger) *tools.ToolErrorLogger {
	dir, err := logDir()
	if err != nil {
		return nil
	}
	errorLogger, err := tools.ToolErrorLoggerFromEnv(dir, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tool error logger")
		return nil
	}
	if errorLogger.IsEnabled() {
		go func() {
			if err := errorLogger.RotateOldLogs(); err != nil {
				logger.WithError(err).Debug("Failed to rotate tool error log")
			}
		}()
	}
	return errorLogger
}

// registerTools exposes every registered tool on the MCP server, wrapping
// calls with tracing, metrics and the optional error log.
func registerTools(mcpSrv *mcpserver.MCPServer, reg *registry.Registry, errorLogger *tools.ToolErrorLogger, transport string, logger *logrus.Logger) {
	for name, tool := range reg.Tools() {
		if transport != "stdio" {
			logger.Infof("Registering tool: %s", name)
		}

		mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, ok := request.Params.Arguments.(map[string]any)
			if !ok {
				if request.Params.Arguments != nil {
					return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
				}
				args = map[string]any{}
			}

			start := time.Now()
			spanCtx, span := telemetry.StartToolSpan(toolCtx, name, args)
			result, err := tool.Execute(spanCtx, logger, args)
			telemetry.EndToolSpan(span, err)
			telemetry.RecordToolCall(spanCtx, name, transport, err == nil, float64(time.Since(start).Milliseconds()))

			if err != nil {
				telemetry.RecordToolError(spanCtx, name, telemetry.CategoriseToolError(err))
				if transport != "stdio" {
					logger.WithError(err).Errorf("Tool execution failed: %s", name)
				}
				if errorLogger != nil && errorLogger.IsEnabled() {
					function, _ := args["function"].(string)
					workbook, _ := args["workbook"].(string)
					errorLogger.LogToolError(tools.ToolErrorLogEntry{
						ToolName:  name,
						Function:  function,
						Workbook:  workbook,
						Arguments: args,
						Transport: transport,
					}, err)
				}
				return nil, fmt.Errorf("tool execution failed: %w", err)
			}
			return result, nil
		})
	}
}

// performCleanup runs registered shutdown functions once, newest first, then
// closes the log file.
func performCleanup(logger *logrus.Logger) {
	cleanup.mu.Lock()
	fns := cleanup.fns
	cleanup.fns = nil
	cleanup.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
	logger.Debug("Cleanup complete")

	if file := debugLogFile.Swap(nil); file != nil {
		logger.SetOutput(io.Discard)
		logrus.SetOutput(io.Discard)
		_ = file.Close()
	}
}
