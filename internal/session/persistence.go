package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/store"
)

// writeTimeout bounds one detached write.
const writeTimeout = 10 * time.Second

// Persistence writes session records off the live path. Failures are logged
// and dropped; they never reach the session.
type Persistence struct {
	store  store.SessionStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewPersistence wraps st. A nil store turns every call into a no-op.
func NewPersistence(st store.SessionStore, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{store: st, logger: logger}
}

// CreateSession is awaited once at session start. It returns "" when the
// record could not be created; later writes for "" are skipped.
func (p *Persistence) CreateSession(ctx context.Context, userID, cartridgeID string, channel models.Channel) string {
	if p == nil || p.store == nil {
		return ""
	}
	id, err := p.store.CreateSession(ctx, userID, cartridgeID, channel)
	if err != nil {
		p.logger.Warn("create session failed, continuing without persistence",
			"user", userID, "cartridge", cartridgeID, "error", err)
		return ""
	}
	return id
}

// PersistMessage appends a transcript message in the background.
func (p *Persistence) PersistMessage(sessionID string, role models.Role, content string) {
	if p == nil || p.store == nil || sessionID == "" {
		return
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	p.detach("persist message", func(ctx context.Context) error {
		return p.store.InsertMessage(ctx, sessionID, role, content)
	}, "session", sessionID, "role", role)
}

// EndSession marks the session ended in the background.
func (p *Persistence) EndSession(sessionID string) {
	if p == nil || p.store == nil || sessionID == "" {
		return
	}
	p.detach("end session", func(ctx context.Context) error {
		return p.store.EndSession(ctx, sessionID)
	}, "session", sessionID)
}

// Drain waits for in-flight writes or until ctx is done. Shutdown only.
func (p *Persistence) Drain(ctx context.Context) error {
	if p == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persistence) detach(op string, write func(context.Context) error, attrs ...any) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			p.logger.Error(op+" failed", append(attrs, "error", err)...)
		}
	}()
}
