package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/foward955/runner/internal/notify"
	"github.com/foward955/runner/internal/report"
	"github.com/foward955/runner/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type outputParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID returned by script_start"`
	Source string `json:"source,omitempty" jsonschema:"only show output from this source: stdout, stderr or engine"`
}

func (h *handler) outputHandler(ctx context.Context, req *mcp.CallToolRequest, params outputParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	src := runner.Source(params.Source)
	switch src {
	case "", runner.Stdout, runner.Stderr, runner.Engine:
	default:
		return errorResult(fmt.Sprintf("unknown source %q (want stdout, stderr or engine)", params.Source))
	}

	if params.RunID == h.sup.Current() {
		return textResult(fmt.Sprintf("Run %s is still running. Use script_notifications to follow it.", params.RunID))
	}

	run, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	return textResult(formatOutput(run, src))
}

func formatOutput(run *report.Run, src runner.Source) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", run.ID, run.Strategy)
	fmt.Fprintf(&b, "Script: %s\n", run.Script)
	fmt.Fprintf(&b, "Status: %s", run.Status)
	if run.Reason != "" {
		fmt.Fprintf(&b, " (%s)", run.Reason)
	}
	if run.Status == runner.Completed && run.ExitCode != 0 {
		fmt.Fprintf(&b, ", exit code %d", run.ExitCode)
	}
	fmt.Fprintln(&b)
	if run.Error != "" && run.Status == runner.Failed {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	if run.Truncated {
		fmt.Fprintln(&b, "Output was truncated.")
	}
	fmt.Fprintln(&b)

	chunks := report.BySource(run, src)
	if len(chunks) == 0 {
		if src == "" {
			fmt.Fprintln(&b, "No output.")
		} else {
			fmt.Fprintf(&b, "No %s output.\n", src)
		}
		return b.String()
	}

	fmt.Fprintln(&b, "Output:")
	for _, c := range chunks {
		prefix := ""
		if src == "" && c.Source != runner.Stdout {
			prefix = "[" + string(c.Source) + "] "
		}
		for _, line := range strings.Split(strings.TrimRight(c.Text, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s%s\n", prefix, line)
		}
	}
	return b.String()
}

type notificationsParams struct {
	Since uint64 `json:"since,omitempty" jsonschema:"return notifications with a sequence number greater than this"`
}

func (h *handler) notificationsHandler(ctx context.Context, req *mcp.CallToolRequest, params notificationsParams) (*mcp.CallToolResult, any, error) {
	entries := h.notes.Since(params.Since)
	if len(entries) == 0 {
		return textResult(fmt.Sprintf("No notifications after %d.", params.Since))
	}
	return textResult(formatNotifications(entries))
}

func formatNotifications(entries []notify.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%d %s\n", e.Seq, e.Message)
	}
	fmt.Fprintf(&b, "\nNext: script_notifications(since=%d)\n", entries[len(entries)-1].Seq)
	return b.String()
}
