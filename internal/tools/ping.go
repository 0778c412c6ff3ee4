package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// PingInput defines the input schema for the ping tool.
type PingInput struct {
	Echo string `json:"echo,omitempty" jsonschema:"Text to echo back"`
}

// PingResult lets an agent confirm which cartridge tools this server exposes.
type PingResult struct {
	Status string   `json:"status"`
	Echo   string   `json:"echo,omitempty"`
	Tools  []string `json:"tools"`
}

// NewPingHandler reports readiness and the domain tools bound for the
// configured cartridge.
func NewPingHandler(deps *Dependencies) mcp.ToolHandlerFor[PingInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input PingInput) (*mcp.CallToolResult, any, error) {
		deps.logger().Debug("ping tool called", "echo", input.Echo)

		res := PingResult{Status: "pong", Echo: input.Echo, Tools: []string{}}
		if deps.Registry != nil {
			res.Tools = deps.Registry.Names()
		}
		out, err := json.Marshal(res)
		if err != nil {
			return ErrorResult("Failed to encode result", ""), nil, nil
		}
		return TextResult(string(out)), nil, nil
	}
}
