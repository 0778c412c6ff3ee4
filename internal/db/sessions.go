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

type sessionRow struct {
	ID surrealmodels.RecordID `json:"id"`
}

type messageRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	SessionID string                 `json:"session_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
}

// CreateSession inserts an active session and returns its id.
func (c *Client) CreateSession(ctx context.Context, userID, cartridgeID string, channel models.Channel) (string, error) {
	sql := `
		CREATE session SET
			user_id = $user_id,
			cartridge_id = $cartridge_id,
			channel = $channel,
			status = "active"
		RETURN id
	`
	results, err := surrealdb.Query[[]sessionRow](ctx, c.db, sql, map[string]any{
		"user_id":      userID,
		"cartridge_id": cartridgeID,
		"channel":      string(channel),
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return "", fmt.Errorf("create session: no result returned")
	}
	return recordID(rows[0].ID)
}

// EndSession marks a session ended. Ending an ended session is a no-op.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	sql := `
		UPDATE type::record("session", $id) SET
			status = "ended",
			ended_at = ended_at ?? time::now()
		RETURN id
	`
	results, err := surrealdb.Query[[]sessionRow](ctx, c.db, sql, map[string]any{"id": sessionID})
	if err != nil {
		return fmt.Errorf("end session: %w", wrapQueryError(err))
	}
	if len(firstResult(results)) == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, store.ErrNotFound)
	}
	return nil
}

// InsertMessage appends a transcript entry.
func (c *Client) InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) error {
	sql := `CREATE message SET session_id = $session_id, role = $role, content = $content RETURN NONE`
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"session_id": sessionID,
		"role":       string(role),
		"content":    content,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", wrapQueryError(err))
	}
	return nil
}

// ListMessages returns a session transcript, oldest first.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	sql := `SELECT * FROM message WHERE session_id = $session_id ORDER BY created_at ASC`
	results, err := surrealdb.Query[[]messageRow](ctx, c.db, sql, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	msgs := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		id, err := recordID(r.ID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, models.Message{
			ID:        id,
			SessionID: r.SessionID,
			Role:      models.Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		})
	}
	return msgs, nil
}
