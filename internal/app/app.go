// Package app wires configuration into the services shared by the server,
// the CLI and the MCP binary. It is the dependency injection root.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmbento/omnicall-ai/internal/api"
	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/config"
	"github.com/jmbento/omnicall-ai/internal/db"
	"github.com/jmbento/omnicall-ai/internal/embedding"
	"github.com/jmbento/omnicall-ai/internal/live"
	"github.com/jmbento/omnicall-ai/internal/llm"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/parser"
	"github.com/jmbento/omnicall-ai/internal/pgstore"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/session"
	"github.com/jmbento/omnicall-ai/internal/store"
	"github.com/jmbento/omnicall-ai/internal/tools"
	"github.com/jmbento/omnicall-ai/internal/whatsapp"
)

// App holds every long-lived dependency.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Prom    *metrics.Registry

	Store     store.Store
	Embedder  embedding.Embedder
	Generator llm.Generator
	Catalog   *cartridge.Catalog
	Backends  tools.Backends

	Retriever   *service.Retriever
	Ingester    *service.Ingester
	Jobs        *service.JobManager
	Credits     *service.Credits
	Chat        *service.Chat
	Persistence *session.Persistence
	WhatsApp    *whatsapp.Processor

	// Dialer is nil when no Gemini key is configured; live voice is then
	// unavailable.
	Dialer live.Dialer
}

// Parts are the pluggable backends; nil fields are built from Config.
type Parts struct {
	Store     store.Store
	Embedder  embedding.Embedder
	Generator llm.Generator
	Dialer    live.Dialer
	Sender    whatsapp.TextSender
}

// New connects the configured backends and builds the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	return NewWithParts(ctx, cfg, Parts{}, logger)
}

// NewWithParts is New with some backends supplied by the caller.
func NewWithParts(ctx context.Context, cfg config.Config, parts Parts, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()
	prom := metrics.NewRegistry(mc)

	catalog, err := cartridge.Load(cfg.CartridgesFile)
	if err != nil {
		return nil, err
	}

	emb := parts.Embedder
	if emb == nil {
		emb, err = embedding.New(ctx, embedding.Config{
			Provider:     embedding.ProviderType(cfg.EmbedProvider),
			Model:        cfg.EmbedModel,
			Dimension:    cfg.EmbedDimension,
			GeminiAPIKey: cfg.GeminiAPIKey,
			OpenAIAPIKey: cfg.OpenAIAPIKey,
			VoyageAPIKey: cfg.VoyageAPIKey,
			OllamaHost:   cfg.OllamaHost,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}
	emb = embedding.NewTimed(emb, mc, logger)

	gen := parts.Generator
	if gen == nil {
		gen, err = NewGenerator(ctx, cfg, mc, logger)
		if err != nil {
			return nil, err
		}
	}

	st := parts.Store
	if st == nil {
		st, err = OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	if err := st.InitSchema(ctx, emb.Dimension()); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	dialer := parts.Dialer
	if dialer == nil && cfg.GeminiAPIKey != "" {
		dialer, err = live.NewGeminiDialer(ctx, cfg.GeminiAPIKey, prom, logger)
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("create live dialer: %w", err)
		}
	}

	split := parser.DefaultSplitConfig()
	if cfg.MinChunkLength > 0 {
		split.MinLength = cfg.MinChunkLength
	}

	retriever := service.NewRetriever(st, emb, cfg.RetrieveLimit, mc, logger)
	chat := service.NewChat(retriever, st, gen, catalog, logger)
	credits := service.NewCredits(st)

	sender := parts.Sender
	if sender == nil {
		sender = whatsapp.NewSender(cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneID, cfg.WhatsAppToken)
	}

	backends := tools.DefaultBackends()
	backends.Retriever = retriever

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   mc,
		Prom:      prom,
		Store:     st,
		Embedder:  emb,
		Generator: gen,
		Catalog:   catalog,
		Backends:  backends,
		Retriever: retriever,
		Ingester: service.NewIngester(st, emb,
			service.WithSplitConfig(split),
			service.WithIngestMetrics(mc),
			service.WithIngestLogger(logger)),
		Jobs:        service.NewJobManager(cfg.IngestConcurrency, logger),
		Credits:     credits,
		Chat:        chat,
		Persistence: session.NewPersistence(st, logger),
		WhatsApp:    whatsapp.NewProcessor(credits, st, chat, sender, cartridge.DefaultID, logger),
		Dialer:      dialer,
	}, nil
}

// OpenStore connects the configured datastore.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSurrealDB, "":
		c, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		return c, nil
	case config.StorePostgres:
		s, err := pgstore.New(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store)
	}
}

// NewGenerator builds the one-shot generation backend.
func NewGenerator(ctx context.Context, cfg config.Config, mc *metrics.Collector, logger *slog.Logger) (llm.Generator, error) {
	if cfg.LLMProvider == config.ProviderGemini || cfg.LLMProvider == "" {
		g, err := llm.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.LLMModel, mc, logger)
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return g, nil
	}
	m, err := llm.NewModel(ctx, llm.ModelConfig{
		Provider:        string(cfg.LLMProvider),
		Model:           cfg.LLMModel,
		OllamaHost:      cfg.OllamaHost,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	}, mc, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm: %w", err)
	}
	return m, nil
}

// Registry returns the tools a cartridge may call, bound to its documents.
func (a *App) Registry(cartridgeID string) (*tools.Registry, error) {
	cart, err := a.Catalog.Get(cartridgeID)
	if err != nil {
		return nil, err
	}
	return tools.ForCartridge(a.Backends, cart.ID, cart.Tools,
		tools.WithMetrics(a.Metrics), tools.WithLogger(a.Logger))
}

// SessionConfig is the live session configuration from Config.
func (a *App) SessionConfig() session.Config {
	return session.Config{
		Model:        a.Config.LiveModel,
		Voice:        a.Config.LiveVoice,
		CaptureRate:  a.Config.CaptureRate,
		PlaybackRate: a.Config.PlaybackRate,
	}
}

// API returns the HTTP handlers bound to the app's services.
func (a *App) API() *api.Server {
	return api.New(api.Deps{
		Store:         a.Store,
		Ingester:      a.Ingester,
		Retriever:     a.Retriever,
		Jobs:          a.Jobs,
		Credits:       a.Credits,
		Chat:          a.Chat,
		Catalog:       a.Catalog,
		WhatsApp:      a.WhatsApp,
		VerifyToken:   a.Config.WhatsAppVerifyToken,
		Dialer:        a.Dialer,
		Tools:         a.Registry,
		Persistence:   a.Persistence,
		SessionConfig: a.SessionConfig(),
		Metrics:       a.Prom,
		Logger:        a.Logger,
	})
}

// MCPDependencies exposes retrieval, ingestion and every built-in tool to
// agents. The knowledge-base tool is bound to cartridgeID.
func (a *App) MCPDependencies(cartridgeID string) (*tools.Dependencies, error) {
	registry, err := tools.Builtin(a.Backends, cartridgeID,
		tools.WithMetrics(a.Metrics), tools.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	return &tools.Dependencies{
		Retriever: a.Retriever,
		Ingester:  a.Ingester,
		Registry:  registry,
		Logger:    a.Logger,
	}, nil
}

// Close drains pending transcript writes and closes the store.
func (a *App) Close(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var errs []error
	if err := a.Persistence.Drain(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain persistence: %w", err))
	}
	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
