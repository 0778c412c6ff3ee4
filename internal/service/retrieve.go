package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmbento/omnicall-ai/internal/embedding"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

const (
	// DefaultRetrieveLimit applies when the caller passes limit <= 0.
	DefaultRetrieveLimit = 5

	// ContextSeparator sits between chunks in a joined context.
	ContextSeparator = "\n\n---\n\n"
)

// Retriever answers cartridge-scoped similarity queries.
type Retriever struct {
	store        store.ChunkStore
	embedder     embedding.Embedder
	defaultLimit int
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewRetriever creates a retriever. emb must be the embedder used at ingestion.
func NewRetriever(st store.ChunkStore, emb embedding.Embedder, defaultLimit int, m *metrics.Collector, logger *slog.Logger) *Retriever {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRetrieveLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:        st,
		embedder:     emb,
		defaultLimit: defaultLimit,
		metrics:      m,
		logger:       logger,
	}
}

// RetrieveChunks returns the top chunks of cartridgeID for query, most similar
// first and newest first among equals. An unknown cartridge yields no chunks.
func (r *Retriever) RetrieveChunks(ctx context.Context, cartridgeID, query string, limit int) ([]models.ChunkResult, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if strings.TrimSpace(cartridgeID) == "" || strings.TrimSpace(query) == "" {
		return []models.ChunkResult{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	chunks, err := r.store.SearchChunks(ctx, cartridgeID, vec, limit)
	if err != nil {
		r.metrics.RecordError(metrics.OpDBSearch)
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	r.metrics.RecordTiming(metrics.OpDBSearch, time.Since(start))

	r.logger.Debug("chunks retrieved", "cartridge", cartridgeID, "limit", limit, "found", len(chunks))
	return chunks, nil
}

// Retrieve returns the matching chunk texts joined by ContextSeparator, or ""
// when nothing matches.
func (r *Retriever) Retrieve(ctx context.Context, cartridgeID, query string, limit int) (string, error) {
	chunks, err := r.RetrieveChunks(ctx, cartridgeID, query, limit)
	if err != nil {
		return "", err
	}
	return JoinContext(chunks), nil
}

// JoinContext joins chunk texts with ContextSeparator.
func JoinContext(chunks []models.ChunkResult) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, ContextSeparator)
}
