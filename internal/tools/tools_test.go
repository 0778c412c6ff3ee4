package tools_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

// testLogger creates a logger for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string, string, int) (string, error) {
	return "Check-in is at 3pm.", nil
}

func (stubRetriever) RetrieveChunks(_ context.Context, cartridgeID, _ string, _ int) ([]models.ChunkResult, error) {
	return []models.ChunkResult{{ID: "c1", CartridgeID: cartridgeID, Text: "Check-in is at 3pm."}}, nil
}

type stubIngester struct{}

func (stubIngester) Ingest(_ context.Context, _, cartridgeID, filename, _ string) (*service.IngestResult, error) {
	return &service.IngestResult{CartridgeID: cartridgeID, Filename: filename, Stored: 1}, nil
}

func connect(t *testing.T) (*mcp.ClientSession, func()) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-omnicall", Version: "0.0.1-test"}, nil)

	registry, err := tools.Builtin(tools.DefaultBackends(), "default")
	require.NoError(t, err)
	tools.RegisterMCP(server, &tools.Dependencies{
		Retriever: stubRetriever{},
		Ingester:  stubIngester{},
		Registry:  registry,
		Logger:    testLogger(),
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")

	return session, func() {
		_ = session.Close()
		cancel()
		select {
		case <-serverErr:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop within timeout")
		}
	}
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be TextContent")
	return text.Text, result.IsError
}

func TestMCPTools(t *testing.T) {
	session, done := connect(t)
	defer done()

	t.Run("tools/list", func(t *testing.T) {
		result, err := session.ListTools(context.Background(), nil)
		require.NoError(t, err)

		names := make([]string, len(result.Tools))
		for i, tool := range result.Tools {
			names[i] = tool.Name
		}
		assert.ElementsMatch(t, []string{
			"ping", "retrieve_context", "ingest_document",
			tools.CheckRoomAvailability, tools.LookupAccountBalance, tools.RecoverAbandonedCart,
		}, names)
	})

	t.Run("ping", func(t *testing.T) {
		text, isErr := callText(t, session, "ping", map[string]any{})
		assert.False(t, isErr)
		var res tools.PingResult
		require.NoError(t, json.Unmarshal([]byte(text), &res))
		assert.Equal(t, "pong", res.Status)
		assert.Contains(t, res.Tools, tools.LookupAccountBalance)

		text, _ = callText(t, session, "ping", map[string]any{"echo": "hello world"})
		require.NoError(t, json.Unmarshal([]byte(text), &res))
		assert.Equal(t, "hello world", res.Echo)
	})

	t.Run("retrieve_context", func(t *testing.T) {
		text, isErr := callText(t, session, "retrieve_context", map[string]any{"cartridgeId": "hotel-pro", "query": "check-in"})
		assert.False(t, isErr)
		assert.Contains(t, text, "3pm")
		assert.Contains(t, text, `"count": 1`)
	})

	t.Run("retrieve_context requires cartridge", func(t *testing.T) {
		_, isErr := callText(t, session, "retrieve_context", map[string]any{"query": "check-in"})
		assert.True(t, isErr)
	})

	t.Run("ingest_document", func(t *testing.T) {
		text, isErr := callText(t, session, "ingest_document", map[string]any{
			"tenantId": "t1", "cartridgeId": "hotel-pro", "filename": "faq.md", "text": "whatever",
		})
		assert.False(t, isErr)
		assert.Contains(t, text, "faq.md")
	})

	t.Run("domain tool error is visible", func(t *testing.T) {
		text, isErr := callText(t, session, tools.LookupAccountBalance, map[string]any{"accountId": "unknown"})
		assert.True(t, isErr)
		assert.Contains(t, text, "not found")
	})

	t.Run("domain tool success", func(t *testing.T) {
		text, isErr := callText(t, session, tools.RecoverAbandonedCart, map[string]any{"email": "cliente@example.com"})
		assert.False(t, isErr)
		assert.Contains(t, text, "OFF15")
	})
}
