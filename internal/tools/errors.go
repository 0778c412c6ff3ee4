package tools

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrToolNotImplemented means declarations and implementations drifted
	// apart. Returned at construction time, never during a conversation.
	ErrToolNotImplemented = errors.New("tool not implemented")

	// ErrDuplicateTool means a tool name was declared twice.
	ErrDuplicateTool = errors.New("duplicate tool declaration")
)

// ErrFunctionNotFound is the result error for calls to unknown tools.
const ErrFunctionNotFound = "Function not found"

// errMissingArg reports a required argument that is absent or not a string.
func errMissingArg(name string) error {
	return fmt.Errorf("missing required argument %q", name)
}

// ErrorResult creates an MCP tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so the calling agent can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
