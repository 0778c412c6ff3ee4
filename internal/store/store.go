// Package store defines the datastore boundary shared by the SurrealDB and
// Postgres backends.
package store

import (
	"context"
	"errors"

	"github.com/jmbento/omnicall-ai/internal/models"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientCredits indicates a deduction larger than the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// ChunkStore persists document chunks and answers scoped similarity queries.
type ChunkStore interface {
	// InsertChunks writes chunks and returns how many were stored.
	InsertChunks(ctx context.Context, chunks []models.ChunkInput) (int, error)

	// SearchChunks returns the chunks of cartridgeID closest to embedding.
	// The cartridge filter is part of the query predicate.
	SearchChunks(ctx context.Context, cartridgeID string, embedding []float32, limit int) ([]models.ChunkResult, error)
}

// SessionStore persists sessions and their transcripts.
type SessionStore interface {
	CreateSession(ctx context.Context, userID, cartridgeID string, channel models.Channel) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) error
	// ListMessages returns the transcript ordered by creation time.
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
}

// CreditStore holds per-user balances.
type CreditStore interface {
	GetCredits(ctx context.Context, userID string) (models.Credit, error)
	AddCredits(ctx context.Context, userID string, amount int) (models.Credit, error)
	// DeductCredits fails with ErrInsufficientCredits and leaves the balance
	// untouched when amount exceeds it.
	DeductCredits(ctx context.Context, userID string, amount int) (models.Credit, error)
}

// CallStore records per-interaction usage.
type CallStore interface {
	CreateCall(ctx context.Context, call models.CallInput) (string, error)
	ListCalls(ctx context.Context, userID string, limit int) ([]models.Call, error)
}

// Store is a complete backend.
type Store interface {
	ChunkStore
	SessionStore
	CreditStore
	CallStore

	InitSchema(ctx context.Context, dimension int) error
	Close(ctx context.Context) error
}
