package store

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// Memory is a process-local Store with brute-force cosine search. It backs
// OMNICALL_STORE=memory and the unit tests of the services built on Store.
type Memory struct {
	mu       sync.Mutex
	dim      int
	seq      int
	now      func() time.Time
	chunks   []models.DocumentChunk
	sessions map[string]*models.Session
	messages map[string][]models.Message
	credits  map[string]models.Credit
	calls    []models.Call
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
		credits:  make(map[string]models.Credit),
	}
}

// WithClock replaces the timestamp source; used by tests to force ties.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) InitSchema(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("init schema: dimension must be positive, got %d", dimension)
	}
	m.mu.Lock()
	m.dim = dimension
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

func (m *Memory) InsertChunks(_ context.Context, chunks []models.ChunkInput) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ch := range chunks {
		if m.dim > 0 && len(ch.Embedding) != m.dim {
			return 0, fmt.Errorf("insert chunks: chunk %d has dimension %d, want %d", i, len(ch.Embedding), m.dim)
		}
	}
	for _, ch := range chunks {
		m.chunks = append(m.chunks, models.DocumentChunk{
			ID:          m.nextID("chunk"),
			TenantID:    ch.TenantID,
			CartridgeID: ch.CartridgeID,
			Filename:    ch.Filename,
			Text:        ch.Text,
			Position:    ch.Position,
			Embedding:   slices.Clone(ch.Embedding),
			CreatedAt:   m.now(),
		})
	}
	return len(chunks), nil
}

func (m *Memory) SearchChunks(_ context.Context, cartridgeID string, embedding []float32, limit int) ([]models.ChunkResult, error) {
	if limit <= 0 {
		return []models.ChunkResult{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.ChunkResult{}
	for _, ch := range m.chunks {
		if ch.CartridgeID != cartridgeID {
			continue
		}
		out = append(out, models.ChunkResult{
			ID:          ch.ID,
			CartridgeID: ch.CartridgeID,
			Filename:    ch.Filename,
			Text:        ch.Text,
			Similarity:  cosine(ch.Embedding, embedding),
			CreatedAt:   ch.CreatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b models.ChunkResult) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *Memory) CreateSession(_ context.Context, userID, cartridgeID string, channel models.Channel) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID("session")
	m.sessions[id] = &models.Session{
		ID:          id,
		UserID:      userID,
		CartridgeID: cartridgeID,
		Channel:     channel,
		Status:      models.SessionActive,
		CreatedAt:   m.now(),
	}
	return id, nil
}

func (m *Memory) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("end session %s: %w", sessionID, ErrNotFound)
	}
	if s.EndedAt == nil {
		now := m.now()
		s.EndedAt = &now
	}
	s.Status = models.SessionEnded
	return nil
}

// Session returns a copy of a session record.
func (m *Memory) Session(sessionID string) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return *s, true
}

func (m *Memory) InsertMessage(_ context.Context, sessionID string, role models.Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], models.Message{
		ID:        m.nextID("message"),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
	})
	return nil
}

func (m *Memory) ListMessages(_ context.Context, sessionID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages[sessionID]), nil
}

func (m *Memory) GetCredits(_ context.Context, userID string) (models.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[userID]
	if !ok {
		return models.Credit{UserID: userID}, nil
	}
	return c, nil
}

func (m *Memory) AddCredits(_ context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("add credits: amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.credits[userID]
	c.UserID = userID
	c.Balance += amount
	c.UpdatedAt = m.now()
	m.credits[userID] = c
	return c, nil
}

func (m *Memory) DeductCredits(_ context.Context, userID string, amount int) (models.Credit, error) {
	if amount <= 0 {
		return models.Credit{}, fmt.Errorf("deduct credits: amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.credits[userID]
	if c.Balance < amount {
		return models.Credit{}, fmt.Errorf("deduct %d from %s: %w", amount, userID, ErrInsufficientCredits)
	}
	c.Balance -= amount
	c.UpdatedAt = m.now()
	m.credits[userID] = c
	return c, nil
}

func (m *Memory) CreateCall(_ context.Context, call models.CallInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID("call")
	m.calls = append(m.calls, models.Call{
		ID:              id,
		UserID:          call.UserID,
		SessionID:       call.SessionID,
		CartridgeID:     call.CartridgeID,
		Channel:         call.Channel,
		CreditsUsed:     call.CreditsUsed,
		DurationSeconds: call.DurationSeconds,
		CreatedAt:       m.now(),
	})
	return id, nil
}

func (m *Memory) ListCalls(_ context.Context, userID string, limit int) ([]models.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Call
	for i := len(m.calls) - 1; i >= 0 && len(out) < limit; i-- {
		if m.calls[i].UserID == userID {
			out = append(out, m.calls[i])
		}
	}
	return out, nil
}
