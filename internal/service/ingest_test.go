package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/parser"
	"github.com/jmbento/omnicall-ai/internal/store"
)

func newMemory(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.InitSchema(context.Background(), testDim))
	return m
}

func allChunks(t *testing.T, m *store.Memory, cartridge string) []string {
	t.Helper()
	got, err := m.SearchChunks(context.Background(), cartridge, make([]float32, testDim), 1000)
	require.NoError(t, err)
	texts := make([]string, len(got))
	for i, c := range got {
		texts[i] = c.Text
	}
	return texts
}

func TestIngestDiscardsShortFragments(t *testing.T) {
	m := newMemory(t)
	ing := NewIngester(m, newHashEmbedder())

	raw := strings.Join([]string{
		"# Hotel",
		"Breakfast is served daily from 6:30am to 10:30am in the lobby restaurant.",
		"***",
		"   ",
		"Pets up to 10kg are welcome in deluxe rooms for an extra nightly fee.",
		"p. 2",
	}, "\n\n")

	res, err := ing.Ingest(context.Background(), "t1", "hotel-pro", "faq.md", raw)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Paragraphs)
	assert.Equal(t, 2, res.Stored)
	assert.Empty(t, res.Errors)

	for _, text := range allChunks(t, m, "hotel-pro") {
		assert.GreaterOrEqual(t, len(text), 50)
	}
}

func TestIngestEmbeddingDimensionConstant(t *testing.T) {
	m := newMemory(t)
	emb := newHashEmbedder()
	ing := NewIngester(m, emb, WithBatchSize(2))

	paras := make([]string, 5)
	for i := range paras {
		paras[i] = strings.Repeat("room service menu item ", 4) + string(rune('a'+i))
	}
	_, err := ing.Ingest(context.Background(), "t1", "c", "menu.txt", strings.Join(paras, "\n\n"))
	require.NoError(t, err)

	// The store rejects any vector of another length, so five stored chunks
	// means five vectors of testDim.
	assert.Len(t, allChunks(t, m, "c"), 5)
}

func TestIngestPartialFailureKeepsEarlierChunks(t *testing.T) {
	fs := &flakyStore{Memory: newMemory(t), failOn: map[int]bool{2: true}}
	ing := NewIngester(fs, newHashEmbedder(), WithBatchSize(1))

	para := strings.Repeat("x", 60)
	raw := strings.Join([]string{para + "1", para + "2", para + "3"}, "\n\n")

	res, err := ing.Ingest(context.Background(), "t1", "c", "doc.txt", raw)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Paragraphs)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "connection reset")
	assert.Len(t, allChunks(t, fs.Memory, "c"), 2)
}

func TestIngestValidation(t *testing.T) {
	ing := NewIngester(newMemory(t), newHashEmbedder())
	ctx := context.Background()

	_, err := ing.Ingest(ctx, "", "c", "f", "text")
	assert.True(t, errors.Is(err, ErrMissingField))

	_, err = ing.Ingest(ctx, "t", " ", "f", "text")
	assert.True(t, errors.Is(err, ErrMissingField))

	_, err = ing.Ingest(ctx, "t", "c", "f", " \n\n ")
	assert.True(t, errors.Is(err, ErrEmptyDocument))
}

func TestIngestFrontmatterDoesNotOverrideCartridge(t *testing.T) {
	m := newMemory(t)
	ing := NewIngester(m, newHashEmbedder(), WithSplitConfig(parser.SplitConfig{MinLength: 10, MaxLength: 500}))

	res, err := ing.Ingest(context.Background(), "t", "bank", "doc.md",
		"---\ncartridge: hotel\ntitle: Fees\n---\nWire transfers cost 5 BRL each.")
	require.NoError(t, err)
	assert.Equal(t, "hotel", res.FrontmatterCartridge)
	assert.Equal(t, "Fees", res.Title)
	assert.Len(t, allChunks(t, m, "bank"), 1)
	assert.Empty(t, allChunks(t, m, "hotel"))
}

func TestIngestRecordsMetrics(t *testing.T) {
	c := metrics.NewCollector()
	ing := NewIngester(newMemory(t), newHashEmbedder(), WithIngestMetrics(c))

	_, err := ing.Ingest(context.Background(), "t", "c", "f", "Check-in is at 3pm. Check-out is at 11am.")
	require.NoError(t, err)

	snap := c.Snapshot()
	require.Contains(t, snap.Operations, metrics.OpIngest)
	assert.Equal(t, int64(1), snap.Operations[metrics.OpIngest].Count)
}

func TestIngestFilesWorkerPool(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, body := range []string{
		"Spa treatments must be booked at least one day in advance at reception.",
		"The rooftop bar opens at 5pm and closes at midnight on weekdays only.",
	} {
		p := filepath.Join(dir, "doc"+string(rune('0'+i))+".txt")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(dir, "missing.txt"))

	m := newMemory(t)
	ing := NewIngester(m, newHashEmbedder())
	jobs := NewJobManager(2, nil)
	job := jobs.CreateJob("ingest", "c", paths)

	res, err := ing.IngestFiles(context.Background(), jobs, job, "t", "c", paths, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesFailed)
	assert.Equal(t, 2, res.ChunksCreated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "missing.txt")
	assert.Equal(t, 3, job.Snapshot().Progress)
}

func TestIngestAsync(t *testing.T) {
	m := newMemory(t)
	ing := NewIngester(m, newHashEmbedder())
	jobs := NewJobManager(2, nil)

	job := ing.IngestAsync(jobs, "t", "c", []FileContent{
		{Path: "a.txt", Content: "Check-in is at 3pm. Check-out is at 11am."},
	})
	require.NotNil(t, jobs.GetJob(job.ID))

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	snap := job.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.ChunksCreated)
	assert.NotNil(t, snap.CompletedAt)
}

func TestIngestAsyncFailsWhenNothingStored(t *testing.T) {
	ing := NewIngester(newMemory(t), newHashEmbedder())
	jobs := NewJobManager(1, nil)

	job := ing.IngestAsync(jobs, "t", "c", []FileContent{{Path: "empty.txt", Content: "  "}})

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, job.Snapshot().Error, "empty.txt")
}
