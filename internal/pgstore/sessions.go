package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

// CreateSession inserts an active session and returns its id.
func (s *Store) CreateSession(ctx context.Context, userID, cartridgeID string, channel models.Channel) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, cartridge_id, channel, status)
		VALUES ($1, $2, $3, $4, 'active')`,
		id, userID, cartridgeID, string(channel),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id.String(), nil
}

// EndSession marks a session ended, keeping the first end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, store.ErrNotFound)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = 'ended', ended_at = COALESCE(ended_at, now())
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, store.ErrNotFound)
	}
	return nil
}

// InsertMessage appends a transcript entry.
func (s *Store) InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("insert message: session %s: %w", sessionID, store.ErrNotFound)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), id, string(role), content,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session transcript, oldest first.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return []models.Message{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, role, content, created_at FROM messages
		WHERE session_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			m     models.Message
			msgID uuid.UUID
			role  string
		)
		if err := rows.Scan(&msgID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = msgID.String()
		m.SessionID = sessionID
		m.Role = models.Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
