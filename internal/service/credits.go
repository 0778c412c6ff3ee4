package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

// ErrNoCredits means the user has no balance left to start an interaction.
var ErrNoCredits = errors.New("no credits remaining")

// ErrInvalidAmount is returned for non-positive credit amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Credits wraps the credit store with the usage rules.
type Credits struct {
	store store.CreditStore
}

// NewCredits creates a credits service.
func NewCredits(st store.CreditStore) *Credits {
	return &Credits{store: st}
}

// Balance returns the user's balance.
func (c *Credits) Balance(ctx context.Context, userID string) (models.Credit, error) {
	return c.store.GetCredits(ctx, userID)
}

// Add tops up a balance.
func (c *Credits) Add(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("add %d: %w", amount, ErrInvalidAmount)
	}
	return c.store.AddCredits(ctx, userID, amount)
}

// Deduct charges amount, failing with store.ErrInsufficientCredits when the
// balance does not cover it.
func (c *Credits) Deduct(ctx context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("deduct %d: %w", amount, ErrInvalidAmount)
	}
	return c.store.DeductCredits(ctx, userID, amount)
}

// EnsureCanStart returns ErrNoCredits when the user may not start a session.
func (c *Credits) EnsureCanStart(ctx context.Context, userID string) error {
	credit, err := c.store.GetCredits(ctx, userID)
	if err != nil {
		return fmt.Errorf("check credits: %w", err)
	}
	if credit.Balance <= 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNoCredits)
	}
	return nil
}
