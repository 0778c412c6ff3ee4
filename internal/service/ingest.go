package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmbento/omnicall-ai/internal/embedding"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/parser"
	"github.com/jmbento/omnicall-ai/internal/store"
)

var (
	// ErrEmptyDocument means the document had no text worth embedding.
	ErrEmptyDocument = errors.New("document has no retainable paragraphs")

	// ErrMissingField is returned when tenant, cartridge or filename is blank.
	ErrMissingField = errors.New("missing required field")
)

// DefaultBatchSize is how many paragraphs are embedded per request.
const DefaultBatchSize = 16

// Ingester splits documents into paragraphs, embeds them and stores the chunks.
type Ingester struct {
	store     store.ChunkStore
	embedder  embedding.Embedder
	split     parser.SplitConfig
	batchSize int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// IngestOption configures an Ingester.
type IngestOption func(*Ingester)

// WithSplitConfig overrides paragraph splitting thresholds.
func WithSplitConfig(cfg parser.SplitConfig) IngestOption {
	return func(s *Ingester) { s.split = cfg }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) IngestOption {
	return func(s *Ingester) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithIngestMetrics records ingest timings.
func WithIngestMetrics(m *metrics.Collector) IngestOption {
	return func(s *Ingester) { s.metrics = m }
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(s *Ingester) { s.logger = l }
}

// NewIngester creates an ingestion pipeline.
func NewIngester(st store.ChunkStore, emb embedding.Embedder, opts ...IngestOption) *Ingester {
	s := &Ingester{
		store:     st,
		embedder:  emb,
		split:     parser.DefaultSplitConfig(),
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestResult summarizes one document ingestion. Stored < Paragraphs means
// some batches failed; the chunks that were written stay written.
type IngestResult struct {
	TenantID    string   `json:"tenant_id"`
	CartridgeID string   `json:"cartridge_id"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title,omitempty"`
	Paragraphs  int      `json:"paragraphs"`
	Stored      int      `json:"stored"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors,omitempty"`

	// FrontmatterCartridge is the document's own "cartridge" key, reported
	// for the caller to compare. It never overrides the explicit cartridge.
	FrontmatterCartridge string `json:"frontmatter_cartridge,omitempty"`
}

// Ingest stores rawText as chunks of cartridgeID.
func (s *Ingester) Ingest(ctx context.Context, tenantID, cartridgeID, filename, rawText string) (*IngestResult, error) {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return nil, fmt.Errorf("%w: tenant", ErrMissingField)
	case strings.TrimSpace(cartridgeID) == "":
		return nil, fmt.Errorf("%w: cartridge", ErrMissingField)
	case strings.TrimSpace(filename) == "":
		return nil, fmt.Errorf("%w: filename", ErrMissingField)
	}

	start := time.Now()
	doc := parser.Parse(rawText)
	paragraphs := parser.SplitParagraphs(doc.Body, s.split)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("ingest %s: %w", filename, ErrEmptyDocument)
	}

	result := &IngestResult{
		TenantID:             tenantID,
		CartridgeID:          cartridgeID,
		Filename:             filename,
		Title:                doc.Title,
		Paragraphs:           len(paragraphs),
		FrontmatterCartridge: doc.FrontmatterString("cartridge"),
	}

	for lo := 0; lo < len(paragraphs); lo += s.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		hi := min(lo+s.batchSize, len(paragraphs))
		batch := paragraphs[lo:hi]

		stored, err := s.storeBatch(ctx, tenantID, cartridgeID, filename, batch)
		result.Stored += stored
		if err != nil {
			result.Failed += len(batch) - stored
			result.Errors = append(result.Errors, fmt.Sprintf("paragraphs %d-%d: %v", lo, hi-1, err))
			s.logger.Warn("ingest batch failed", "filename", filename, "cartridge", cartridgeID, "from", lo, "to", hi-1, "error", err)
		}
	}

	if result.Stored == 0 {
		s.metrics.RecordError(metrics.OpIngest)
	} else {
		s.metrics.RecordTiming(metrics.OpIngest, time.Since(start))
	}
	s.logger.Info("document ingested",
		"filename", filename,
		"tenant", tenantID,
		"cartridge", cartridgeID,
		"paragraphs", result.Paragraphs,
		"stored", result.Stored,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (s *Ingester) storeBatch(ctx context.Context, tenantID, cartridgeID, filename string, batch []parser.Paragraph) (int, error) {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embed: got %d vectors for %d paragraphs", len(vectors), len(batch))
	}

	chunks := make([]models.ChunkInput, len(batch))
	for i, p := range batch {
		chunks[i] = models.ChunkInput{
			TenantID:    tenantID,
			CartridgeID: cartridgeID,
			Filename:    filename,
			Text:        p.Text,
			Position:    p.Position,
			Embedding:   vectors[i],
		}
	}

	n, err := s.store.InsertChunks(ctx, chunks)
	if err != nil {
		return n, fmt.Errorf("insert: %w", err)
	}
	return n, nil
}

// FilesResult summarizes a multi-file ingestion.
type FilesResult struct {
	FilesProcessed int             `json:"files_processed"`
	FilesFailed    int             `json:"files_failed"`
	ChunksCreated  int             `json:"chunks_created"`
	Documents      []*IngestResult `json:"documents,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// FileContent is a document supplied by a client rather than read from disk.
type FileContent struct {
	Path    string
	Content string
}

// IngestFiles reads and ingests files from disk with a worker pool.
func (s *Ingester) IngestFiles(ctx context.Context, jobs *JobManager, job *Job, tenantID, cartridgeID string, paths []string, concurrency int) (*FilesResult, error) {
	return s.process(ctx, jobs, job, tenantID, cartridgeID, len(paths), concurrency, func(i int) (string, string, error) {
		content, err := os.ReadFile(paths[i])
		if err != nil {
			return paths[i], "", fmt.Errorf("read file: %w", err)
		}
		return paths[i], string(content), nil
	})
}

// IngestContents ingests client-supplied documents with a worker pool.
func (s *Ingester) IngestContents(ctx context.Context, jobs *JobManager, job *Job, tenantID, cartridgeID string, files []FileContent, concurrency int) (*FilesResult, error) {
	return s.process(ctx, jobs, job, tenantID, cartridgeID, len(files), concurrency, func(i int) (string, string, error) {
		return files[i].Path, files[i].Content, nil
	})
}

// process is the shared worker pool. load returns the display path and the
// content of the i-th document.
func (s *Ingester) process(ctx context.Context, jobManager *JobManager, job *Job, tenantID, cartridgeID string, total, concurrency int, load func(i int) (string, string, error)) (*FilesResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	s.logger.Info("starting file processing", "files", total, "concurrency", concurrency, "cartridge", cartridgeID)

	var (
		filesProcessed atomic.Int32
		filesFailed    atomic.Int32
		chunksCreated  atomic.Int32
		mu             sync.Mutex
		errs           []string
		docs           []*IngestResult
	)

	indexChan := make(chan int, total)
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range indexChan {
				if ctx.Err() != nil {
					return
				}

				processed := filesProcessed.Add(1)
				if jobManager != nil && job != nil {
					jobManager.UpdateProgress(job, int(processed), total)
				}

				path, content, err := load(i)
				if err == nil {
					var res *IngestResult
					res, err = s.Ingest(ctx, tenantID, cartridgeID, filepath.Base(path), content)
					if res != nil {
						chunksCreated.Add(int32(res.Stored))
						mu.Lock()
						docs = append(docs, res)
						mu.Unlock()
					}
				}
				if err != nil {
					filesFailed.Add(1)
					s.logger.Debug("file failed", "worker", workerID, "file", path, "error", err)
					mu.Lock()
					errs = append(errs, fmt.Sprintf("%s: %v", path, err))
					mu.Unlock()
				}
			}
		}(w)
	}

	for i := 0; i < total; i++ {
		indexChan <- i
	}
	close(indexChan)
	wg.Wait()

	result := &FilesResult{
		FilesProcessed: int(filesProcessed.Load()),
		FilesFailed:    int(filesFailed.Load()),
		ChunksCreated:  int(chunksCreated.Load()),
		Documents:      docs,
		Errors:         errs,
	}
	s.logger.Info("file processing complete", "files", result.FilesProcessed, "chunks", result.ChunksCreated, "errors", len(errs))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// IngestAsync starts a background job over client-supplied documents.
func (s *Ingester) IngestAsync(jobManager *JobManager, tenantID, cartridgeID string, files []FileContent) *Job {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Path
	}
	job := jobManager.CreateJob("ingest", cartridgeID, names)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("ingest job panicked", "job_id", job.ID, "panic", r)
				jobManager.Fail(job, fmt.Errorf("internal panic: %v", r))
			}
		}()

		jobManager.SetRunning(job)
		result, err := s.IngestContents(context.Background(), jobManager, job, tenantID, cartridgeID, files, jobManager.Concurrency())
		if err != nil {
			jobManager.Fail(job, err)
			return
		}
		if result.ChunksCreated == 0 && len(result.Errors) > 0 {
			jobManager.Fail(job, fmt.Errorf("no chunks stored: %s", result.Errors[0]))
			return
		}
		jobManager.Complete(job, result)
	}()

	return job
}
