package models

import "time"

// DocumentChunk is one retained, embedded paragraph of an ingested document.
// Chunks are immutable; re-ingesting a document writes new chunks.
type DocumentChunk struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	CartridgeID string    `json:"cartridge_id"`
	Filename    string    `json:"filename"`
	Text        string    `json:"text"`
	Position    int       `json:"position"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkInput is what the ingestion pipeline hands to the store.
type ChunkInput struct {
	TenantID    string
	CartridgeID string
	Filename    string
	Text        string
	Position    int
	Embedding   []float32
}

// ChunkResult is a chunk returned by a nearest-neighbour search.
// Similarity is 1 - cosine distance.
type ChunkResult struct {
	ID          string    `json:"id"`
	CartridgeID string    `json:"cartridge_id"`
	Filename    string    `json:"filename"`
	Text        string    `json:"text"`
	Similarity  float64   `json:"similarity"`
	CreatedAt   time.Time `json:"created_at"`
}
