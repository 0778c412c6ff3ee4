package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// knnEf is the HNSW search breadth; higher trades latency for recall.
const knnEf = 40

type chunkRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	CartridgeID string                 `json:"cartridge_id"`
	Filename    string                 `json:"filename"`
	Text        string                 `json:"text"`
	Similarity  float64                `json:"similarity"`
	CreatedAt   time.Time              `json:"created_at"`
}

// InsertChunks writes chunks in one INSERT statement.
func (c *Client) InsertChunks(ctx context.Context, chunks []models.ChunkInput) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	rows := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		rows[i] = map[string]any{
			"tenant_id":    ch.TenantID,
			"cartridge_id": ch.CartridgeID,
			"filename":     ch.Filename,
			"text":         ch.Text,
			"position":     ch.Position,
			"embedding":    ch.Embedding,
		}
	}

	results, err := surrealdb.Query[[]chunkRow](ctx, c.db, `INSERT INTO document_chunk $rows RETURN id`, map[string]any{
		"rows": rows,
	})
	if err != nil {
		return 0, fmt.Errorf("insert chunks: %w", wrapQueryError(err))
	}
	return len(firstResult(results)), nil
}

// SearchChunks runs an HNSW nearest-neighbour query restricted to one
// cartridge. The cartridge condition sits in the same WHERE clause as the
// KNN operator, so rows of other cartridges are never candidates.
func (c *Client) SearchChunks(ctx context.Context, cartridgeID string, embedding []float32, limit int) ([]models.ChunkResult, error) {
	if limit <= 0 {
		return []models.ChunkResult{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT id, cartridge_id, filename, text, created_at,
			vector::similarity::cosine(embedding, $emb) AS similarity
		FROM document_chunk
		WHERE cartridge_id = $cartridge AND embedding <|%d,%d|> $emb
		ORDER BY similarity DESC, created_at DESC
		LIMIT $limit
	`, limit, knnEf)

	results, err := surrealdb.Query[[]chunkRow](ctx, c.db, sql, map[string]any{
		"cartridge": cartridgeID,
		"emb":       embedding,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	out := make([]models.ChunkResult, 0, len(rows))
	for _, r := range rows {
		id, err := recordID(r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ChunkResult{
			ID:          id,
			CartridgeID: r.CartridgeID,
			Filename:    r.Filename,
			Text:        r.Text,
			Similarity:  r.Similarity,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}
