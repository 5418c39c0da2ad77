package mcp

import (
	"context"
	"fmt"

	"github.com/foward955/runner/internal/files"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerFileTools(s *mcp.Server, h *handler) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "file_read",
		Description: "Read a script or any text file, absolute or relative to the workspace.",
	}, h.fileReadHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "file_write",
		Description: "Replace the contents of a file, creating it if needed.",
	}, h.fileWriteHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "file_rename",
		Description: "Rename or move a file.",
	}, h.fileRenameHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "file_exists",
		Description: "Report whether a path exists.",
	}, h.fileExistsHandler)
}

type filePathParams struct {
	Path string `json:"path" jsonschema:"file path, absolute or relative to the workspace"`
}

func (h *handler) fileReadHandler(ctx context.Context, req *mcp.CallToolRequest, params filePathParams) (*mcp.CallToolResult, any, error) {
	path := h.resolve(params.Path)
	content, ok := files.Read(path)
	if !ok {
		return errorResult(fmt.Sprintf("Cannot read %s.", path))
	}
	return textResult(content)
}

type fileWriteParams struct {
	Path    string `json:"path" jsonschema:"file path, absolute or relative to the workspace"`
	Content string `json:"content" jsonschema:"the complete new file contents"`
}

func (h *handler) fileWriteHandler(ctx context.Context, req *mcp.CallToolRequest, params fileWriteParams) (*mcp.CallToolResult, any, error) {
	path := h.resolve(params.Path)
	if !files.Write(path, params.Content) {
		return errorResult(fmt.Sprintf("Cannot write %s.", path))
	}
	return textResult(fmt.Sprintf("Wrote %d bytes to %s.", len(params.Content), path))
}

type fileRenameParams struct {
	Old string `json:"old" jsonschema:"current path"`
	To  string `json:"to" jsonschema:"new path"`
}

func (h *handler) fileRenameHandler(ctx context.Context, req *mcp.CallToolRequest, params fileRenameParams) (*mcp.CallToolResult, any, error) {
	old, to := h.resolve(params.Old), h.resolve(params.To)
	if !files.Rename(old, to) {
		return errorResult(fmt.Sprintf("Cannot rename %s to %s.", old, to))
	}
	return textResult(fmt.Sprintf("Renamed %s to %s.", old, to))
}

func (h *handler) fileExistsHandler(ctx context.Context, req *mcp.CallToolRequest, params filePathParams) (*mcp.CallToolResult, any, error) {
	path := h.resolve(params.Path)
	return textResult(fmt.Sprintf("%t", files.Exists(path)))
}
