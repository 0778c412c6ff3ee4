package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/store"
)

const (
	// UserPrefix namespaces WhatsApp senders as users.
	UserPrefix = "whatsapp_"

	// CreditsPerMessage is charged for every answered message.
	CreditsPerMessage = 1

	noCreditsNotice = "You do not have enough credits. Visit our platform to top up."
	textOnlyNotice  = "Sorry, I can only read text messages for now."
)

// TextSender delivers an outbound text.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Replier produces the grounded answer to a user message.
type Replier interface {
	Reply(ctx context.Context, cartridgeID, sessionID, userText string) (string, error)
}

// Store is what the processor records per message.
type Store interface {
	store.SessionStore
	store.CallStore
}

// Processor answers inbound messages under one cartridge.
type Processor struct {
	credits     *service.Credits
	store       Store
	chat        Replier
	sender      TextSender
	cartridgeID string
	logger      *slog.Logger
}

// NewProcessor creates a processor answering as cartridgeID.
func NewProcessor(credits *service.Credits, st Store, chat Replier, sender TextSender, cartridgeID string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		credits:     credits,
		store:       st,
		chat:        chat,
		sender:      sender,
		cartridgeID: cartridgeID,
		logger:      logger,
	}
}

// Handle answers each message in order and stops at the first failure.
func (p *Processor) Handle(ctx context.Context, msgs []Message) error {
	for _, m := range msgs {
		if err := p.handle(ctx, m); err != nil {
			return fmt.Errorf("message %s from %s: %w", m.ID, m.From, err)
		}
	}
	return nil
}

func (p *Processor) handle(ctx context.Context, m Message) error {
	userID := UserPrefix + m.From
	log := p.logger.With("from", m.From, "user", userID)

	if !m.IsText() {
		log.Info("non-text message ignored", "type", m.Type)
		p.send(ctx, log, m.From, textOnlyNotice)
		return nil
	}

	if err := p.credits.EnsureCanStart(ctx, userID); err != nil {
		if !errors.Is(err, service.ErrNoCredits) {
			return err
		}
		log.Info("out of credits")
		p.send(ctx, log, m.From, noCreditsNotice)
		return nil
	}

	sessionID, err := p.store.CreateSession(ctx, userID, p.cartridgeID, models.ChannelWhatsApp)
	if err != nil {
		log.Warn("create session failed, answering without history", "error", err)
		sessionID = ""
	}
	if _, err := p.store.CreateCall(ctx, models.CallInput{
		UserID:      userID,
		SessionID:   sessionID,
		CartridgeID: p.cartridgeID,
		Channel:     models.ChannelWhatsApp,
		CreditsUsed: CreditsPerMessage,
	}); err != nil {
		log.Warn("record call failed", "error", err)
	}

	text := m.Body()
	p.save(ctx, log, sessionID, models.RoleUser, text)

	reply, err := p.chat.Reply(ctx, p.cartridgeID, sessionID, text)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	p.save(ctx, log, sessionID, models.RoleModel, reply)
	p.send(ctx, log, m.From, reply)

	if _, err := p.credits.Deduct(ctx, userID, CreditsPerMessage); err != nil {
		log.Warn("deduct credits failed", "error", err)
	}
	log.Info("whatsapp reply sent", "session", sessionID)
	return nil
}

func (p *Processor) save(ctx context.Context, log *slog.Logger, sessionID string, role models.Role, content string) {
	if sessionID == "" || content == "" {
		return
	}
	if err := p.store.InsertMessage(ctx, sessionID, role, content); err != nil {
		log.Warn("save message failed", "role", role, "error", err)
	}
}

// send logs delivery failures; a failed send does not fail the webhook.
func (p *Processor) send(ctx context.Context, log *slog.Logger, to, body string) {
	if err := p.sender.SendText(ctx, to, body); err != nil {
		log.Error("send whatsapp message failed", "error", err)
	}
}
