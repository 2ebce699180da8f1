package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/nudge/internal/inject"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/ratelimit"
	"github.com/nvandessel/nudge/internal/session"
)

// limiterIdle is how long a session's rate limit buckets survive unused.
const limiterIdle = 30 * time.Minute

// Server wraps the MCP SDK server and the activation pipeline.
type Server struct {
	server       *sdk.Server
	pipeline     *pipeline.Pipeline
	sessions     *session.Registry
	watch        *library.File
	format       inject.Format
	maxTokens    int
	root         string
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "nudge")
	Version string // Server version
	Root    string // Project root directory

	Pipeline *pipeline.Pipeline
	Sessions *session.Registry

	// Watch, when set, is reloaded on change for as long as Run runs.
	Watch *library.File

	// Format and MaxTokens shape the rendered reminders.
	Format    inject.Format
	MaxTokens int

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with nudge tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("mcp server needs a pipeline")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("mcp server needs a session registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	format := cfg.Format
	if format == "" {
		format = inject.FormatMarkdown
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		pipeline:     cfg.Pipeline,
		sessions:     cfg.Sessions,
		watch:        cfg.Watch,
		format:       format,
		maxTokens:    cfg.MaxTokens,
		root:         cfg.Root,
		logger:       logger,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.watch != nil {
		go func() {
			if err := s.watch.Watch(ctx); err != nil {
				s.logger.Warn("library watch stopped", "error", err)
			}
		}()
	}
	go s.pruneLimiters(ctx)

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.auditLogger.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

func (s *Server) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.toolLimiters.Prune(limiterIdle)
		}
	}
}
