// Package pgstore implements store.Store on Postgres with pgvector.
// Migrations are embedded and applied with goose; the HNSW index is created
// at InitSchema time because its size depends on the embedding model.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jmbento/omnicall-ai/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a Postgres-backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New opens a connection pool for dsn and pings it.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "postgres")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info("Postgres ready")
	return &Store{pool: pool, logger: log}, nil
}

// InitSchema applies pending migrations and creates the vector index for
// dimension. Inserts of vectors with any other length are rejected.
func (s *Store) InitSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("init schema: invalid dimension %d", dimension)
	}

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		s.logger.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS document_chunks_embedding_%[1]d
		ON document_chunks USING hnsw ((embedding::vector(%[1]d)) vector_cosine_ops)`, dimension)
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}

	s.dim = dimension
	s.logger.Info("schema ready", "dimension", dimension)
	return nil
}

// Close releases the pool.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// WipeData truncates every table. Tests only.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all data")
	_, err := s.pool.Exec(ctx, `TRUNCATE messages, sessions, calls, credits, document_chunks`)
	return err
}

// vectorLiteral renders v in pgvector's text input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
