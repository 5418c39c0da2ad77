package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foward955/runner/internal/files"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/supervisor"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type startParams struct {
	Path string `json:"path" jsonschema:"path of the script to run, absolute or relative to the workspace"`
}

func (h *handler) startHandler(ctx context.Context, req *mcp.CallToolRequest, params startParams) (*mcp.CallToolResult, any, error) {
	if params.Path == "" {
		return errorResult("path is required")
	}
	path := h.resolve(params.Path)
	if !files.Exists(path) {
		return errorResult(fmt.Sprintf("Script %s does not exist.", path))
	}

	// Read before Start so the advertised cursor covers the whole run.
	since := h.notes.Last()
	runID, ok := h.sup.Start(path)
	if !ok {
		return textResult(fmt.Sprintf("Busy: %s.\nCurrent run: %s\nCall script_stop to stop it.", supervisor.BusyMessage, h.sup.Current()))
	}

	var b strings.Builder
	fmt.Fprintln(&b, "Status: RUNNING")
	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "Script: %s\n", path)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Follow with script_notifications(since=%d), or script_output(run_id=%q) once finished.\n", since, runID)
	return textResult(b.String())
}

type stopParams struct{}

func (h *handler) stopHandler(ctx context.Context, req *mcp.CallToolRequest, _ stopParams) (*mcp.CallToolResult, any, error) {
	current := h.sup.Current()
	if current == "" {
		return textResult("No script is running.")
	}
	h.sup.Stop()
	return textResult(fmt.Sprintf("Stop requested for run %s.", current))
}

type statusParams struct{}

func (h *handler) statusHandler(ctx context.Context, req *mcp.CallToolRequest, _ statusParams) (*mcp.CallToolResult, any, error) {
	var runs []*report.Run
	if h.recent != nil {
		runs = h.recent(5)
	} else if last := h.sup.Last(); last != nil {
		runs = []*report.Run{last}
	}
	return textResult(formatStatus(h.sup.State(), h.sup.Current(), runs))
}

func formatStatus(state supervisor.RunState, current string, runs []*report.Run) string {
	var b strings.Builder

	switch {
	case state.CancelRequested:
		fmt.Fprintln(&b, "Status: STOPPING")
	case state.Running:
		fmt.Fprintln(&b, "Status: RUNNING")
	default:
		fmt.Fprintln(&b, "Status: IDLE")
	}
	if current != "" {
		fmt.Fprintf(&b, "Run: %s\n", current)
	}

	if len(runs) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Recent runs:")
		for _, r := range runs {
			fmt.Fprintf(&b, "  %s: %s", r.ID, r.Status)
			if r.Reason != "" {
				fmt.Fprintf(&b, " (%s)", r.Reason)
			}
			fmt.Fprintf(&b, " %s in %s\n", r.Script, r.Duration().Round(time.Millisecond))
		}
	}
	return b.String()
}
