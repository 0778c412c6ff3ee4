package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestRetrieve(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, "h-concierge-1", r.URL.Query().Get("cartridgeId"))
		assert.Equal(t, "pool hours", r.URL.Query().Get("query"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"context":"Pool opens at 9.","chunks":[{"id":"c1","text":"Pool opens at 9."}]}`)
	})

	got, err := c.Retrieve(t.Context(), "h-concierge-1", "pool hours", 3)
	require.NoError(t, err)
	assert.Equal(t, "Pool opens at 9.", got.Context)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "c1", got.Chunks[0].ID)
}

func TestUpload(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "u1", r.FormValue("userId"))
		assert.Equal(t, "true", r.FormValue("async"))
		f, h, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "faq.md", h.Filename)
		assert.Equal(t, "hello", string(body))
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"success":true,"filename":"faq.md","job":{"id":"j1","status":"pending","total":1}}`)
	})

	got, err := c.Upload(t.Context(), "u1", "default", "faq.md", strings.NewReader("hello"), true)
	require.NoError(t, err)
	require.NotNil(t, got.Job)
	assert.Equal(t, "j1", got.Job.ID)
}

func TestErrors(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/credits":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = io.WriteString(w, `{"error":"Insufficient credits"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"job not found"}`)
		}
	})

	_, err := c.DeductCredits(t.Context(), "u1", 5, "test")
	require.Error(t, err)
	assert.True(t, IsPaymentRequired(err))
	assert.Contains(t, err.Error(), "Insufficient credits")

	job, err := c.GetJob(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestChat(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Message)
		_, _ = io.WriteString(w, `{"sessionId":"s1","reply":"hello","balance":4}`)
	})

	got, err := c.Chat(t.Context(), ChatRequest{UserID: "u1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 4, got.Balance)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("OMNICALL_SERVER_URL", "")
	assert.Equal(t, DefaultEndpoint, New("").Endpoint())
	assert.Equal(t, "http://x:1", New("http://x:1/").Endpoint())
}
