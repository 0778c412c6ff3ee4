package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/jmbento/omnicall-ai/internal/metrics"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiModel generates text with the Gemini API.
type GeminiModel struct {
	models    *genai.Models
	modelName string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

var _ Generator = (*GeminiModel)(nil)

// NewGeminiModel creates a Gemini generator. An empty apiKey falls back to
// the environment.
func NewGeminiModel(ctx context.Context, apiKey, model string, m *metrics.Collector, logger *slog.Logger) (*GeminiModel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiModel{
		models:    client.Models,
		modelName: model,
		metrics:   m,
		logger:    logger.With("component", "llm", "model", model),
	}, nil
}

// Generate runs one GenerateContent call.
func (g *GeminiModel) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	duration := time.Since(start)
	if err != nil {
		g.metrics.RecordError(metrics.OpLLMGenerate)
		g.logger.Warn("generation failed", "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("generate: %w", classify(err))
	}

	var in, out int64
	if u := resp.UsageMetadata; u != nil {
		in, out = int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, in, out)

	return resp.Text(), nil
}

// Model returns the model name.
func (g *GeminiModel) Model() string {
	return g.modelName
}
