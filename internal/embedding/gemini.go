package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is the Gemini text embedding model.
	DefaultGeminiModel = "text-embedding-004"

	// DefaultGeminiDimension is the native size of text-embedding-004.
	DefaultGeminiDimension = 768

	// geminiBatchLimit is the most contents one EmbedContent call accepts.
	geminiBatchLimit = 100
)

// GeminiClient implements Embedder with the Gemini API.
type GeminiClient struct {
	models    *genai.Models
	model     string
	dimension int
}

var _ Embedder = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini embedding client. An empty apiKey falls
// back to GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiClient(ctx context.Context, apiKey, model string, expectedDimension int) (*GeminiClient, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if expectedDimension == 0 {
		expectedDimension = DefaultGeminiDimension
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		models:    client.Models,
		model:     model,
		dimension: expectedDimension,
	}, nil
}

// Model returns the configured embedding model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Dimension returns the expected embedding dimension.
func (c *GeminiClient) Dimension() int {
	return c.dimension
}

// Embed generates an embedding vector for the given text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(c.EmbedBatch(ctx, []string{text}))
}

// EmbedBatch embeds texts, splitting into API-sized requests.
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	dim := int32(c.dimension)

	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := c.models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			if e == nil {
				return nil, fmt.Errorf("nil embedding in response")
			}
			out = append(out, e.Values)
		}
	}

	if err := checkDimensions(out, c.dimension); err != nil {
		return nil, fmt.Errorf("model %s: %w", c.model, err)
	}
	return out, nil
}
