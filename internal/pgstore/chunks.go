package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// InsertChunks writes chunks in one batch round trip.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.ChunkInput) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ch := range chunks {
		if s.dim > 0 && len(ch.Embedding) != s.dim {
			return 0, fmt.Errorf("insert chunks: embedding has %d dimensions, schema expects %d", len(ch.Embedding), s.dim)
		}
		batch.Queue(`
			INSERT INTO document_chunks (id, tenant_id, cartridge_id, filename, text, position, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7::vector)`,
			uuid.New(), ch.TenantID, ch.CartridgeID, ch.Filename, ch.Text, ch.Position, vectorLiteral(ch.Embedding),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return inserted, fmt.Errorf("insert chunks: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// SearchChunks orders the cartridge's chunks by cosine distance. The
// cartridge filter is part of the WHERE clause, never applied afterwards.
func (s *Store) SearchChunks(ctx context.Context, cartridgeID string, embedding []float32, limit int) ([]models.ChunkResult, error) {
	if limit <= 0 {
		return []models.ChunkResult{}, nil
	}

	cast := "vector"
	if s.dim > 0 {
		cast = fmt.Sprintf("vector(%d)", s.dim)
	}
	sql := fmt.Sprintf(`
		SELECT id, cartridge_id, filename, text, created_at,
			1 - (embedding::%[1]s <=> $2::%[1]s) AS similarity
		FROM document_chunks
		WHERE cartridge_id = $1
		ORDER BY embedding::%[1]s <=> $2::%[1]s, created_at DESC
		LIMIT $3`, cast)

	rows, err := s.pool.Query(ctx, sql, cartridgeID, vectorLiteral(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := []models.ChunkResult{}
	for rows.Next() {
		var (
			r  models.ChunkResult
			id uuid.UUID
		)
		if err := rows.Scan(&id, &r.CartridgeID, &r.Filename, &r.Text, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		r.ID = id.String()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return out, nil
}
