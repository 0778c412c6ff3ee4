package api

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/live/livetest"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/session"
	"github.com/jmbento/omnicall-ai/internal/store"
	"github.com/jmbento/omnicall-ai/internal/tools"
	"github.com/jmbento/omnicall-ai/internal/whatsapp"
)

const testDim = 16

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDim)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%testDim]++
	}
	return vec, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Model() string  { return "hash" }
func (hashEmbedder) Dimension() int { return testDim }

type cannedGenerator struct{ reply string }

func (g cannedGenerator) Generate(context.Context, string, string) (string, error) {
	return g.reply, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+": "+body)
	return nil
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type testServer struct {
	*Server
	store  *store.Memory
	dialer *livetest.Dialer
	sender *recordingSender
	router http.Handler
}

func newTestServer(t *testing.T, mutate ...func(*Deps)) *testServer {
	t.Helper()

	st := store.NewMemory()
	require.NoError(t, st.InitSchema(context.Background(), testDim))
	catalog := cartridge.Builtin()
	emb := hashEmbedder{}

	retriever := service.NewRetriever(st, emb, 5, nil, nil)
	chat := service.NewChat(retriever, st, cannedGenerator{reply: "We have rooms available."}, catalog, nil)
	credits := service.NewCredits(st)
	sender := &recordingSender{}
	backends := tools.DefaultBackends()
	backends.Retriever = retriever

	ts := &testServer{store: st, dialer: &livetest.Dialer{}, sender: sender}
	deps := Deps{
		Store:       st,
		Ingester:    service.NewIngester(st, emb),
		Retriever:   retriever,
		Jobs:        service.NewJobManager(2, nil),
		Credits:     credits,
		Chat:        chat,
		Catalog:     catalog,
		WhatsApp:    whatsapp.NewProcessor(credits, st, chat, sender, cartridge.DefaultID, nil),
		VerifyToken: "secret",
		Dialer:      ts.dialer,
		Tools: func(id string) (*tools.Registry, error) {
			return tools.ForCartridge(backends, id, catalog.Tools(id))
		},
		Persistence: session.NewPersistence(st, nil),
	}
	for _, m := range mutate {
		m(&deps)
	}
	ts.Server = New(deps)
	ts.router = ts.Routes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doRaw(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/embeddings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
