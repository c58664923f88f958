package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sheetmcp/mcp-sheets/internal/registry"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/sheetmcp/mcp-sheets/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
// Using atomic operations to prevent race conditions between signal handlers and cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the
// appropriate logrus level. Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		return logrus.WarnLevel // Default to warn
	}

	// Normalise to lowercase for comparison
	logLevelStr = strings.ToLower(strings.TrimSpace(logLevelStr))

	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		// Invalid value, default to warn
		return logrus.WarnLevel
	}
}

func main() {
	// Create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create a logger with default configuration
	// Initially discard output - reconfigured in Action based on transport mode
	logger := logrus.New()
	logger.SetOutput(io.Discard) // Prevent any early logging before we know the transport mode
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Initialise the registry
	registry.Init(logger)

	// Ensure cleanup runs on normal exit OR signal
	defer performCleanup()

	// Create and run the CLI app
	app := &cli.Command{
		Name:    "mcp-sheets",
		Usage:   "MCP server for reading, rendering, and editing spreadsheet files",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for the Streamable HTTP transport",
			},
			&cli.StringFlag{
				Name:  "auth-token",
				Usage: "Bearer token required by the Streamable HTTP transport (optional)",
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for the Streamable HTTP transport",
			},
			&cli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for the Streamable HTTP transport",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("mcp-sheets version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:  "tools",
				Usage: "List registered tools",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					for _, name := range registry.GetEnabledToolNames() {
						fmt.Println(name)
					}
					return nil
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			port := cmd.String("port")

			isStdioMode.Store(transport == "stdio")
			configureLogging(logger, transport)

			// Only log startup info for non-stdio transports
			if transport != "stdio" {
				logger.Infof("Starting mcp-sheets version %s (commit: %s, built: %s)",
					Version, Commit, BuildDate)
			}

			// Create MCP server
			logger.Debug("Creating MCP server")
			mcpSrv := mcpserver.NewMCPServer("mcp-sheets", "Spreadsheet MCP Server")

			enabledTools := registry.GetTools()
			logger.WithField("tool_count", len(enabledTools)).Debug("MCP server created, registering tools")

			for toolName, toolImpl := range enabledTools {
				// Capture variables to avoid closure race condition
				name := toolName
				tool := toolImpl

				if transport != "stdio" {
					logger.Infof("Registering tool: %s", name)
				}

				mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					// Get fresh reference from registry to ensure consistency
					currentTool, ok := registry.GetTool(name)
					if !ok {
						return nil, fmt.Errorf("tool not found: %s", name)
					}

					// Type assert the arguments to map[string]interface{}
					args, ok := request.Params.Arguments.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("invalid arguments type: expected map[string]interface{}, got %T", request.Params.Arguments)
					}

					result, err := currentTool.Execute(toolCtx, registry.GetLogger(), registry.GetCache(), args)
					if err != nil {
						// Log error to stderr for debugging (won't interfere with stdio)
						if transport != "stdio" {
							logger.WithError(err).Errorf("Tool execution failed: %s", name)
						}
						return nil, fmt.Errorf("tool execution failed: %w", err)
					}

					return result, nil
				})
			}

			// Start the server
			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				logger.Debug("Starting stdio server")
				return mcpserver.ServeStdio(mcpSrv)
			case "http":
				logger.WithField("port", port).Debug("Starting HTTP server")
				return startStreamableHTTPServer(cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// CRITICAL: In stdio mode, we must NOT log to stdout or stderr as it
		// breaks the MCP protocol. Initialisation errors could occur before
		// the protocol starts, so we avoid all logging in stdio mode.
		if !isStdioMode.Load() {
			logger.Fatalf("Error: %v", err)
		}
		os.Exit(1)
	}
}

// configureLogging routes log output for the chosen transport. Stdio mode
// writes to a log file (stdout belongs to the protocol); HTTP mode writes
// to stderr.
func configureLogging(logger *logrus.Logger, transport string) {
	logLevel := parseLogLevel()

	if transport != "stdio" {
		logger.SetOutput(os.Stderr)
		logrus.SetOutput(os.Stderr)
		logger.SetLevel(logLevel)
		logrus.SetLevel(logLevel)
		return
	}

	// Stdio mode uses warn level minimum
	if logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		logDir := filepath.Join(homeDir, ".mcp-sheets", "logs")
		if err := os.MkdirAll(logDir, 0700); err == nil {
			logFile := filepath.Join(logDir, "mcp-sheets.log")
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
				// Store file handle for cleanup
				debugLogFile.Store(file)
				logger.SetOutput(file)
				logrus.SetOutput(file)
				logger.SetLevel(logLevel)
				logrus.SetLevel(logLevel)
				logger.WithField("level", logLevel.String()).Debug("Logging configured")
				return
			}
		}
	}

	// Cannot create the log file - discard to prevent protocol breakage
	logger.SetOutput(io.Discard)
	logrus.SetOutput(io.Discard)
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)
}

// performCleanup handles cleanup of resources on shutdown
func performCleanup() {
	// Close the debug log file if it was opened (atomic load to prevent races)
	if file := debugLogFile.Load(); file != nil {
		// Silently close - we're in cleanup and can't safely log errors
		_ = file.Close()
	}
}

// startStreamableHTTPServer configures and starts the Streamable HTTP server
func startStreamableHTTPServer(cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	authToken := cmd.String("auth-token")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
	}

	if authToken != "" {
		opts = append(opts, mcpserver.WithHTTPContextFunc(createAuthMiddleware(authToken, logger)))
		logger.Info("Token authentication enabled")
	}

	// Heartbeat keeps idle sessions alive at 1/4 of the session timeout
	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))
	opts = append(opts, mcpserver.WithLogger(&logrusAdapter{logger: logger}))

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)

	logger.Infof("Heartbeat interval: %v", heartbeatInterval)
	logger.Info("Server supports multiple simultaneous connections")

	return httpServer.Start(":" + port)
}

// createAuthMiddleware creates an HTTP context function for token authentication
func createAuthMiddleware(expectedToken string, logger *logrus.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			logger.Warn("Request missing Authorization header")
			return ctx
		}

		// Extract Bearer token
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			logger.Warn("Invalid authorization format, expected Bearer token")
			return ctx
		}

		token := strings.TrimPrefix(authHeader, bearerPrefix)
		if token != expectedToken {
			logger.Warn("Invalid authentication token")
			return ctx
		}

		logger.Debug("Request authenticated successfully")
		return ctx
	}
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Debugf(format string, args ...any) {
	l.logger.Debugf(format, args...)
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Warnf(format string, args ...any) {
	l.logger.Warnf(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
