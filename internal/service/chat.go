package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmbento/omnicall-ai/internal/llm"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

// Personas resolves a cartridge's persona instruction.
type Personas interface {
	Persona(cartridgeID string) string
}

// historyLimit bounds how many prior messages go into the prompt.
const historyLimit = 20

// Chat answers text messages with retrieved context.
type Chat struct {
	retriever *Retriever
	sessions  store.SessionStore
	gen       llm.Generator
	personas  Personas
	logger    *slog.Logger
}

// NewChat creates a chat service. sessions may be nil, in which case no
// history is loaded.
func NewChat(r *Retriever, sessions store.SessionStore, gen llm.Generator, personas Personas, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{retriever: r, sessions: sessions, gen: gen, personas: personas, logger: logger}
}

// Reply generates the model's answer to userText. The user message itself is
// expected to be persisted by the caller; history is read up to but excluding
// a trailing copy of it.
func (c *Chat) Reply(ctx context.Context, cartridgeID, sessionID, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", fmt.Errorf("%w: message", ErrMissingField)
	}

	retrieved, err := c.retriever.Retrieve(ctx, cartridgeID, userText, 0)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	history := c.history(ctx, sessionID, userText)

	var persona string
	if c.personas != nil {
		persona = c.personas.Persona(cartridgeID)
	}

	reply, err := c.gen.Generate(ctx, userText, Compose(persona, retrieved, history))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Intent classifies userText in the cartridge's context.
func (c *Chat) Intent(ctx context.Context, cartridgeID, userText string) llm.Intent {
	var persona string
	if c.personas != nil {
		persona = c.personas.Persona(cartridgeID)
	}
	return llm.AnalyzeIntent(ctx, c.gen, userText, persona)
}

// history loads the transcript. Read failures are logged and yield no history.
func (c *Chat) history(ctx context.Context, sessionID, current string) []models.Message {
	if c.sessions == nil || sessionID == "" {
		return nil
	}
	msgs, err := c.sessions.ListMessages(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to load history", "session_id", sessionID, "error", err)
		return nil
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == models.RoleUser && strings.TrimSpace(msgs[n-1].Content) == current {
		msgs = msgs[:n-1]
	}
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	return msgs
}
