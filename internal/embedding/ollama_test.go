package embedding_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/embedding"
)

// fakeOllama answers /api/embed with one vector of dim values per input.
func fakeOllama(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = make([]float32, dim)
			vecs[i][0] = float32(len(req.Input[i]))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vecs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaClientDefaults(t *testing.T) {
	client, err := embedding.NewOllamaClient("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOllamaModel, client.Model())
	assert.Equal(t, embedding.DefaultOllamaDimension, client.Dimension())

	_, err = embedding.NewOllamaClient("://bad", "", 0)
	assert.Error(t, err)
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := fakeOllama(t, 8)
	client, err := embedding.NewOllamaClient(srv.URL, "nomic-embed-text", 8)
	require.NoError(t, err)

	vecs, err := client.EmbedBatch(t.Context(), []string{"Check-in is at 3pm.", "Pool on the roof."})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 8)
	assert.Equal(t, float32(len("Check-in is at 3pm.")), vecs[0][0])

	one, err := client.Embed(t.Context(), "hi")
	require.NoError(t, err)
	assert.Equal(t, float32(2), one[0])

	empty, err := client.EmbedBatch(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOllamaDimensionMismatch(t *testing.T) {
	srv := fakeOllama(t, 4)
	client, err := embedding.NewOllamaClient(srv.URL, "tiny", 768)
	require.NoError(t, err)

	_, err = client.Embed(t.Context(), "Check-in is at 3pm.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiny")
}
