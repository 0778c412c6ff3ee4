package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RetrieveInput defines the input schema for retrieve_context.
type RetrieveInput struct {
	CartridgeID string `json:"cartridgeId" jsonschema:"Cartridge whose documents are searched"`
	Query       string `json:"query" jsonschema:"The search query text"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Max chunks 1-50, default 5"`
}

// IngestInput defines the input schema for ingest_document.
type IngestInput struct {
	TenantID    string `json:"tenantId" jsonschema:"Owner of the document"`
	CartridgeID string `json:"cartridgeId" jsonschema:"Cartridge the document belongs to"`
	Filename    string `json:"filename" jsonschema:"Document name for provenance"`
	Text        string `json:"text" jsonschema:"Raw document text; paragraphs separated by blank lines"`
}

// CheckRoomInput mirrors the checkRoomAvailability declaration.
type CheckRoomInput struct {
	Date     string `json:"date" jsonschema:"Reservation date (YYYY-MM-DD)"`
	RoomType string `json:"roomType" jsonschema:"Room type (suite, standard, deluxe)"`
}

// AccountInput mirrors the lookupAccountBalance declaration.
type AccountInput struct {
	AccountID string `json:"accountId" jsonschema:"Unique bank account identifier"`
}

// CartInput mirrors the recoverAbandonedCart declaration.
type CartInput struct {
	Email string `json:"email" jsonschema:"Customer email"`
}

// RegisterMCP registers retrieval, ingestion, the domain tools present in
// deps.Registry, and ping with the MCP server.
func RegisterMCP(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve the document chunks of one cartridge most similar to a query",
	}, NewRetrieveHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Split a document into paragraphs, embed them and store them for a cartridge",
	}, NewIngestHandler(deps))

	if deps.Registry.Has(CheckRoomAvailability) {
		mcp.AddTool(server, mcpTool(checkRoomAvailabilityDecl()),
			dispatchHandler[CheckRoomInput](deps, CheckRoomAvailability, func(in CheckRoomInput) map[string]any {
				return map[string]any{"date": in.Date, "roomType": in.RoomType}
			}))
	}
	if deps.Registry.Has(LookupAccountBalance) {
		mcp.AddTool(server, mcpTool(lookupAccountBalanceDecl()),
			dispatchHandler[AccountInput](deps, LookupAccountBalance, func(in AccountInput) map[string]any {
				return map[string]any{"accountId": in.AccountID}
			}))
	}
	if deps.Registry.Has(RecoverAbandonedCart) {
		mcp.AddTool(server, mcpTool(recoverAbandonedCartDecl()),
			dispatchHandler[CartInput](deps, RecoverAbandonedCart, func(in CartInput) map[string]any {
				return map[string]any{"email": in.Email}
			}))
	}
}

func mcpTool(d Declaration) *mcp.Tool {
	return &mcp.Tool{Name: d.Name, Description: d.Description}
}

// dispatchHandler routes a typed MCP call through Registry.Dispatch so agents
// see the same results as the live model.
func dispatchHandler[In any](deps *Dependencies, name string, toArgs func(In) map[string]any) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		result := deps.Registry.Dispatch(ctx, name, toArgs(input))
		if msg, ok := result["error"]; ok {
			return ErrorResult(fmt.Sprint(msg), ""), nil, nil
		}
		out, err := json.MarshalIndent(result["result"], "", "  ")
		if err != nil {
			return ErrorResult("Failed to encode result", ""), nil, nil
		}
		return TextResult(string(out)), nil, nil
	}
}

// NewRetrieveHandler creates the retrieve_context tool handler.
func NewRetrieveHandler(deps *Dependencies) mcp.ToolHandlerFor[RetrieveInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}
		if input.CartridgeID == "" {
			return ErrorResult("cartridgeId is required", "Retrieval is always scoped to one cartridge"), nil, nil
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			return ErrorResult("Limit must be 1-50", "Reduce limit value"), nil, nil
		}

		chunks, err := deps.Retriever.RetrieveChunks(ctx, input.CartridgeID, input.Query, limit)
		if err != nil {
			deps.logger().Error("retrieve failed", "cartridge", input.CartridgeID, "error", err)
			return ErrorResult("Retrieval failed", "Embedding service or database may be unavailable"), nil, nil
		}

		out, _ := json.MarshalIndent(map[string]any{"chunks": chunks, "count": len(chunks)}, "", "  ")
		deps.logger().Info("retrieve completed", "cartridge", input.CartridgeID, "results", len(chunks))
		return TextResult(string(out)), nil, nil
	}
}

// NewIngestHandler creates the ingest_document tool handler.
func NewIngestHandler(deps *Dependencies) mcp.ToolHandlerFor[IngestInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, any, error) {
		if input.CartridgeID == "" || input.TenantID == "" {
			return ErrorResult("tenantId and cartridgeId are required", ""), nil, nil
		}
		if input.Filename == "" {
			input.Filename = "mcp-input.txt"
		}

		res, err := deps.Ingester.Ingest(ctx, input.TenantID, input.CartridgeID, input.Filename, input.Text)
		if err != nil {
			deps.logger().Error("ingest failed", "cartridge", input.CartridgeID, "error", err)
			return ErrorResult("Ingestion failed", err.Error()), nil, nil
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		return TextResult(string(out)), nil, nil
	}
}
