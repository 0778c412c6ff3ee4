package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

type creditRow struct {
	UserID    string    `json:"user_id"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type callRow struct {
	ID              surrealmodels.RecordID `json:"id"`
	UserID          string                 `json:"user_id"`
	SessionID       *string                `json:"session_id,omitempty"`
	CartridgeID     string                 `json:"cartridge_id"`
	Channel         string                 `json:"channel"`
	CreditsUsed     int                    `json:"credits_used"`
	DurationSeconds int                    `json:"duration_seconds"`
	CreatedAt       time.Time              `json:"created_at"`
}

func (r creditRow) toModel() models.Credit {
	return models.Credit{UserID: r.UserID, Balance: r.Balance, UpdatedAt: r.UpdatedAt}
}

// GetCredits returns the balance; users without a record have zero.
func (c *Client) GetCredits(ctx context.Context, userID string) (models.Credit, error) {
	sql := `SELECT user_id, balance, updated_at FROM type::record("credit", $user_id)`
	results, err := surrealdb.Query[[]creditRow](ctx, c.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return models.Credit{}, fmt.Errorf("get credits: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return models.Credit{UserID: userID}, nil
	}
	return rows[0].toModel(), nil
}

// AddCredits increments the balance, creating the record on first use.
func (c *Client) AddCredits(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("add credits: amount must be positive, got %d", amount)
	}

	sql := `
		UPSERT type::record("credit", $user_id) SET
			user_id = $user_id,
			balance = (balance ?? 0) + $amount,
			updated_at = time::now()
		RETURN AFTER
	`
	results, err := surrealdb.Query[[]creditRow](ctx, c.db, sql, map[string]any{
		"user_id": userID,
		"amount":  amount,
	})
	if err != nil {
		return models.Credit{}, fmt.Errorf("add credits: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return models.Credit{}, fmt.Errorf("add credits: no result returned")
	}
	return rows[0].toModel(), nil
}

// DeductCredits decrements the balance only when it covers amount. The
// condition and the write are one statement, so concurrent deductions cannot
// drive the balance negative.
func (c *Client) DeductCredits(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("deduct credits: amount must be positive, got %d", amount)
	}

	sql := `
		UPDATE type::record("credit", $user_id) SET
			balance -= $amount,
			updated_at = time::now()
		WHERE balance >= $amount
		RETURN AFTER
	`
	results, err := surrealdb.Query[[]creditRow](ctx, c.db, sql, map[string]any{
		"user_id": userID,
		"amount":  amount,
	})
	if err != nil {
		return models.Credit{}, fmt.Errorf("deduct credits: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return models.Credit{}, fmt.Errorf("deduct %d from %s: %w", amount, userID, store.ErrInsufficientCredits)
	}
	return rows[0].toModel(), nil
}

// CreateCall records one interaction.
func (c *Client) CreateCall(ctx context.Context, call models.CallInput) (string, error) {
	var sessionID *string
	if call.SessionID != "" {
		sessionID = &call.SessionID
	}

	sql := `
		CREATE call SET
			user_id = $user_id,
			session_id = $session_id,
			cartridge_id = $cartridge_id,
			channel = $channel,
			credits_used = $credits_used,
			duration_seconds = $duration_seconds
		RETURN id
	`
	results, err := surrealdb.Query[[]callRow](ctx, c.db, sql, map[string]any{
		"user_id":          call.UserID,
		"session_id":       sessionID,
		"cartridge_id":     call.CartridgeID,
		"channel":          string(call.Channel),
		"credits_used":     call.CreditsUsed,
		"duration_seconds": call.DurationSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("create call: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return "", fmt.Errorf("create call: no result returned")
	}
	return recordID(rows[0].ID)
}

// ListCalls returns a user's most recent calls, newest first.
func (c *Client) ListCalls(ctx context.Context, userID string, limit int) ([]models.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := `SELECT * FROM call WHERE user_id = $user_id ORDER BY created_at DESC LIMIT $limit`
	results, err := surrealdb.Query[[]callRow](ctx, c.db, sql, map[string]any{
		"user_id": userID,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	calls := make([]models.Call, 0, len(rows))
	for _, r := range rows {
		id, err := recordID(r.ID)
		if err != nil {
			return nil, err
		}
		call := models.Call{
			ID:              id,
			UserID:          r.UserID,
			CartridgeID:     r.CartridgeID,
			Channel:         models.Channel(r.Channel),
			CreditsUsed:     r.CreditsUsed,
			DurationSeconds: r.DurationSeconds,
			CreatedAt:       r.CreatedAt,
		}
		if r.SessionID != nil {
			call.SessionID = *r.SessionID
		}
		calls = append(calls, call)
	}
	return calls, nil
}
