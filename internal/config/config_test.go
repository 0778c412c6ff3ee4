package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OMNICALL_STORE", "")
	t.Setenv("OMNICALL_EMBED_DIMENSION", "")
	t.Setenv("OMNICALL_MIN_CHUNK_LEN", "")

	cfg := Load()

	assert.Equal(t, StoreSurrealDB, cfg.Store)
	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, 768, cfg.EmbedDimension)
	assert.Equal(t, 50, cfg.MinChunkLength)
	assert.Equal(t, 16000, cfg.CaptureRate)
	assert.Equal(t, 24000, cfg.PlaybackRate)
	assert.Equal(t, "omnicall-verify", cfg.WhatsAppVerifyToken)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OMNICALL_STORE", "Postgres")
	t.Setenv("OMNICALL_EMBED_PROVIDER", "OLLAMA")
	t.Setenv("OMNICALL_EMBED_DIMENSION", "384")
	t.Setenv("OMNICALL_RETRIEVE_LIMIT", "not-a-number")

	cfg := Load()

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, ProviderOllama, cfg.EmbedProvider)
	assert.Equal(t, 384, cfg.EmbedDimension)
	assert.Equal(t, 5, cfg.RetrieveLimit, "invalid ints fall back to the default")
}

func TestValidate(t *testing.T) {
	base := Config{
		Store:          StoreSurrealDB,
		EmbedProvider:  ProviderOllama,
		LLMProvider:    ProviderOllama,
		EmbedDimension: 768,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "mysql" }, wantErr: "unknown store"},
		{name: "memory store", mutate: func(c *Config) { c.Store = StoreMemory }},
		{name: "gemini without key", mutate: func(c *Config) { c.EmbedProvider = ProviderGemini }, wantErr: "GEMINI_API_KEY"},
		{name: "gemini with key", mutate: func(c *Config) {
			c.EmbedProvider = ProviderGemini
			c.LLMProvider = ProviderGemini
			c.GeminiAPIKey = "k"
		}},
		{name: "unknown llm", mutate: func(c *Config) { c.LLMProvider = "davinci" }, wantErr: "unknown llm provider"},
		{name: "zero dimension", mutate: func(c *Config) { c.EmbedDimension = 0 }, wantErr: "dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("Error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var text, jsonOut bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &jsonOut, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("ingest complete", "chunks", 3)

	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "ingest complete")

	line := strings.TrimSpace(jsonOut.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "ingest complete", entry["msg"])
	assert.Equal(t, "omnicall", entry["app"])
	assert.EqualValues(t, 3, entry["chunks"])
}
