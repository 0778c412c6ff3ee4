package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

// GetCredits returns the balance; users without a row have zero.
func (s *Store) GetCredits(ctx context.Context, userID string) (models.Credit, error) {
	c := models.Credit{UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT balance, updated_at FROM credits WHERE user_id = $1`, userID).
		Scan(&c.Balance, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return models.Credit{}, fmt.Errorf("get credits: %w", err)
	}
	return c, nil
}

// AddCredits increments the balance, creating the row on first use.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("add credits: amount must be positive, got %d", amount)
	}

	c := models.Credit{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO credits (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
			SET balance = credits.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance, updated_at`, userID, amount).
		Scan(&c.Balance, &c.UpdatedAt)
	if err != nil {
		return models.Credit{}, fmt.Errorf("add credits: %w", err)
	}
	return c, nil
}

// DeductCredits decrements the balance in a single conditional UPDATE.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("deduct credits: amount must be positive, got %d", amount)
	}

	c := models.Credit{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		UPDATE credits SET balance = balance - $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance, updated_at`, userID, amount).
		Scan(&c.Balance, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Credit{}, fmt.Errorf("deduct %d from %s: %w", amount, userID, store.ErrInsufficientCredits)
	}
	if err != nil {
		return models.Credit{}, fmt.Errorf("deduct credits: %w", err)
	}
	return c, nil
}

// CreateCall records one interaction.
func (s *Store) CreateCall(ctx context.Context, call models.CallInput) (string, error) {
	var sessionID *uuid.UUID
	if call.SessionID != "" {
		if id, err := uuid.Parse(call.SessionID); err == nil {
			sessionID = &id
		}
	}

	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (id, user_id, session_id, cartridge_id, channel, credits_used, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, call.UserID, sessionID, call.CartridgeID, string(call.Channel), call.CreditsUsed, call.DurationSeconds,
	)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	return id.String(), nil
}

// ListCalls returns a user's most recent calls, newest first.
func (s *Store) ListCalls(ctx context.Context, userID string, limit int) ([]models.Call, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, cartridge_id, channel, credits_used, duration_seconds, created_at
		FROM calls WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := []models.Call{}
	for rows.Next() {
		var (
			c         models.Call
			id        uuid.UUID
			sessionID *uuid.UUID
			channel   string
		)
		if err := rows.Scan(&id, &sessionID, &c.CartridgeID, &channel, &c.CreditsUsed, &c.DurationSeconds, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.ID = id.String()
		c.UserID = userID
		c.Channel = models.Channel(channel)
		if sessionID != nil {
			c.SessionID = sessionID.String()
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
