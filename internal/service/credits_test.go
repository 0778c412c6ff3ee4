package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/store"
)

func TestCredits(t *testing.T) {
	ctx := context.Background()
	c := NewCredits(store.NewMemory())

	assert.ErrorIs(t, c.EnsureCanStart(ctx, "u"), ErrNoCredits)

	_, err := c.Add(ctx, "u", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	bal, err := c.Add(ctx, "u", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, bal.Balance)
	assert.NoError(t, c.EnsureCanStart(ctx, "u"))

	_, err = c.Deduct(ctx, "u", 3)
	assert.ErrorIs(t, err, store.ErrInsufficientCredits)

	bal, err = c.Balance(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, bal.Balance)

	bal, err = c.Deduct(ctx, "u", 2)
	require.NoError(t, err)
	assert.Zero(t, bal.Balance)
	assert.ErrorIs(t, c.EnsureCanStart(ctx, "u"), ErrNoCredits)
}
