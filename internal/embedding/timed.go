package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmbento/omnicall-ai/internal/metrics"
)

// Timed decorates an Embedder with timing metrics and debug logging.
type Timed struct {
	Embedder
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewTimed wraps e. A nil collector disables metrics.
func NewTimed(e Embedder, m *metrics.Collector, logger *slog.Logger) *Timed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timed{Embedder: e, metrics: m, logger: logger}
}

// Embed records the duration of one embedding call.
func (t *Timed) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := t.Embedder.Embed(ctx, text)
	t.record(start, 1, len(text), err)
	return v, err
}

// EmbedBatch records the duration of one batch call.
func (t *Timed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := t.Embedder.EmbedBatch(ctx, texts)
	chars := 0
	for _, s := range texts {
		chars += len(s)
	}
	t.record(start, len(texts), chars, err)
	return v, err
}

func (t *Timed) record(start time.Time, n, chars int, err error) {
	d := time.Since(start)
	if err != nil {
		t.metrics.RecordError(metrics.OpEmbedding)
		t.logger.Warn("embedding failed", "model", t.Model(), "texts", n, "duration_ms", d.Milliseconds(), "error", err)
		return
	}
	t.metrics.RecordTiming(metrics.OpEmbedding, d)
	t.logger.Debug("embedding complete", "model", t.Model(), "texts", n, "chars", chars, "duration_ms", d.Milliseconds())
}
