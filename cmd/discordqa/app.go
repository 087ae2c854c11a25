package main

import (
	"context"
	"fmt"

	"discordqa/internal/agent"
	"discordqa/internal/archive"
	"discordqa/internal/config"
	"discordqa/internal/domain"
	"discordqa/internal/ingest"
	"discordqa/internal/metrics"
	"discordqa/internal/provider"
	"discordqa/internal/retrieval"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	store    domain.Archive
	chat     *provider.OpenAI
	embedder *provider.Embedder
	recorder *metrics.Recorder
	engine   *agent.Engine
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := archive.Open(ctx, cfg.Store, cfg.LLM.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		chat:     provider.NewChatFromConfig(cfg, logger),
		embedder: provider.NewEmbedderFromConfig(cfg, logger),
		recorder: metrics.NewRecorder(metrics.NewRegistry("discordqa")),
	}

	a.engine = agent.NewEngine(agent.EngineConfig{
		Chat:      a.chat,
		Driver:    cfg.Store.Driver,
		Retriever: retrieval.NewVectorRetriever(a.embedder, store, cfg.Retrieval.TopK, logger),
		Executor: retrieval.NewExecutor(store, retrieval.ExecutorConfig{
			MaxRows: cfg.Retrieval.MaxRows,
			Guard:   cfg.Retrieval.ReadOnlyGuard,
			Logger:  logger,
		}),
		TopK:     cfg.Retrieval.TopK,
		Observer: a.recorder,
		Logger:   logger,
	})
	return a, nil
}

// scraper builds the Discord ingester. It fails when no Discord token is set.
func (a *app) scraper() (*ingest.Scraper, error) {
	session, err := ingest.NewDiscordSession(a.cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	return ingest.NewScraper(ingest.ScraperConfig{
		API:            session,
		Store:          a.store,
		Embedder:       a.embedder,
		DefaultLimit:   a.cfg.Discord.DefaultLimit,
		EmbedPerMinute: a.cfg.Discord.EmbedPerMinute,
		EmbedBurst:     a.cfg.Discord.EmbedBurst,
		Observer:       a.recorder,
		Logger:         logger,
	}), nil
}

func (a *app) Close() error {
	return a.store.Close()
}
