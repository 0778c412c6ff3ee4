package tools

import (
	"context"
	"log/slog"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
)

// ChunkRetriever is the retrieval surface used by MCP tools.
type ChunkRetriever interface {
	ContextRetriever
	RetrieveChunks(ctx context.Context, cartridgeID, query string, limit int) ([]models.ChunkResult, error)
}

// DocumentIngester stores a document's paragraphs for a cartridge.
type DocumentIngester interface {
	Ingest(ctx context.Context, tenantID, cartridgeID, filename, rawText string) (*service.IngestResult, error)
}

// Dependencies holds shared services for MCP tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Retriever ChunkRetriever
	Ingester  DocumentIngester
	// Registry provides the domain tools exposed to agents.
	Registry *Registry
	Logger   *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
