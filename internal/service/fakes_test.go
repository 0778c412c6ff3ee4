package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

const testDim = 8

// hashEmbedder maps each word to a bucket, so texts sharing words are similar.
type hashEmbedder struct {
	dim   int
	calls int
	mu    sync.Mutex
}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{dim: testDim} }

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	vec := make([]float32, h.dim)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dim)]++
	}
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := h.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Model() string  { return "hash" }
func (h *hashEmbedder) Dimension() int { return h.dim }

// flakyStore fails InsertChunks on the listed call numbers (1-based).
type flakyStore struct {
	*store.Memory
	failOn map[int]bool
	n      int
}

func (f *flakyStore) InsertChunks(ctx context.Context, chunks []models.ChunkInput) (int, error) {
	f.n++
	if f.failOn[f.n] {
		return 0, errors.New("connection reset")
	}
	return f.Memory.InsertChunks(ctx, chunks)
}

type recordingGenerator struct {
	reply  string
	err    error
	prompt string
	system string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt, systemInstruction string) (string, error) {
	g.prompt = prompt
	g.system = systemInstruction
	return g.reply, g.err
}

type staticPersonas map[string]string

func (p staticPersonas) Persona(id string) string { return p[id] }
