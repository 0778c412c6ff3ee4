// Package embedding turns text into fixed-length vectors with multiple
// backend support.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch means a backend returned a vector whose length differs
// from the configured dimension. Vectors of different sizes are not comparable,
// so this is never retried or truncated.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector index dimension of the store.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai"
	ProviderVoyage ProviderType = "voyage"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider ProviderType

	// Model is the provider-specific model name; empty selects the default.
	Model string

	// Dimension is the required output dimension; 0 uses the provider default.
	Dimension int

	GeminiAPIKey string
	OpenAIAPIKey string
	VoyageAPIKey string

	// OllamaHost overrides OLLAMA_HOST when set.
	OllamaHost string
}

// New creates an Embedder based on the provided configuration.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.Dimension)

	case ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.Dimension)

	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Model, cfg.Dimension)

	case ProviderVoyage:
		return NewVoyageClient(cfg.VoyageAPIKey, cfg.Model, cfg.Dimension)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// checkDimensions verifies every vector has exactly want entries.
func checkDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("embedding %d: got %d, want %d: %w", i, len(v), want, ErrDimensionMismatch)
		}
	}
	return nil
}

// first returns the single vector of a one-element batch.
func first(vectors [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vectors[0], nil
}
