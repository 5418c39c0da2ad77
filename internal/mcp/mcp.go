// Package mcp provides the runner MCP server, registering the script and
// file tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	runnerpkg "github.com/foward955/runner"
	"github.com/foward955/runner/internal/logging"
	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/supervisor"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	sup    *supervisor.Supervisor
	store  report.Store
	notes  *notify.Buffer
	log    *slog.Logger
	recent func(n int) []*report.Run // nil when the store keeps no in-memory history

	mu        sync.Mutex
	workspace string // relative paths resolve against it; updated via roots
}

// NewServer creates an MCP server with all runner tools registered. The
// supervisor's notification sink should include notes so that
// script_notifications can replay them.
func NewServer(sup *supervisor.Supervisor, store report.Store, notes *notify.Buffer, workspace string, opts ...ServerOption) *mcp.Server {
	var so serverOptions
	for _, o := range opts {
		o(&so)
	}
	if so.logger == nil {
		so.logger = logging.Discard()
	}

	h := &handler{
		sup:       sup,
		store:     store,
		notes:     notes,
		log:       so.logger,
		workspace: workspace,
	}
	if lru, ok := store.(*report.LRUStore); ok {
		h.recent = lru.Recent
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "runner", Version: runnerpkg.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "script_start",
		Description: `Start a script. Only one script runs at a time.

Returns the run ID, or a busy warning if a script is already running (stop it first with script_stop).
Output streams to the console notifications; read them with script_notifications, or with
script_output once the run has finished.`,
	}, h.startHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "script_stop",
		Description: "Ask the running script to terminate. Does nothing when idle. Returns immediately; the run then ends as terminated.",
	}, h.stopHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "script_status",
		Description: "Report whether a script is running, whether a stop was requested, and the outcome of the most recent runs.",
	}, h.statusHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "script_output",
		Description: `Show the output of a finished run.

Use the run_id from script_start. Optionally filter by source: stdout, stderr, or engine.`,
	}, h.outputHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "script_notifications",
		Description: `Return the console and toast notifications emitted since a sequence number.

Pass the last seq you saw as since (0 for everything still buffered).`,
	}, h.notificationsHandler)

	registerFileTools(s, h)

	return s
}

// ServerOption configures the runner MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *slog.Logger
}

// WithLogger attaches a logger to the server's handlers.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and uses the
// first file root as the workspace for relative paths.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	h.mu.Lock()
	h.workspace = u.Path
	h.mu.Unlock()
	h.log.Debug("workspace updated from roots", "workspace", u.Path)
}

// resolve makes path absolute against the workspace.
func (h *handler) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return filepath.Join(h.workspace, path)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
