package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/omnifunnel/visibility-cli/internal/citations"
	"github.com/omnifunnel/visibility-cli/internal/engine"
	"github.com/omnifunnel/visibility-cli/internal/orchestrator"
	"github.com/omnifunnel/visibility-cli/internal/store"
	"github.com/omnifunnel/visibility-cli/internal/telemetry"
	"github.com/omnifunnel/visibility-cli/internal/visibility"
	"github.com/omnifunnel/visibility-cli/pkg/gemini"
	"github.com/omnifunnel/visibility-cli/pkg/notion"
	"github.com/omnifunnel/visibility-cli/pkg/perplexity"
)

// trackerEnv holds the initialized store, engine registry, and pipeline
// components shared by the track/score/engines/serve commands.
type trackerEnv struct {
	Store      store.Store
	Registry   *engine.Registry
	Health     *engine.HealthRegistry
	Extractor  *citations.Extractor
	Orch       *orchestrator.Orchestrator
	Aggregator *visibility.Aggregator
	Notion     notion.Client
}

// Close releases resources held by the environment.
func (te *trackerEnv) Close() {
	if te.Store != nil {
		_ = te.Store.Close()
	}
}

// initEnv sets up the store, engine registry, extractor, orchestrator, and
// aggregator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*trackerEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := initEngines()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	authority, err := initAuthorityTable()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	extractor := citations.NewExtractor(authority)

	health := engine.NewHealthRegistry()

	orchOpts := orchestrator.DefaultOptions()
	if cfg.Tracker.GlobalConcurrency > 0 {
		orchOpts.GlobalConcurrency = cfg.Tracker.GlobalConcurrency
	}
	if cfg.Tracker.PerEngineConcurrency > 0 {
		orchOpts.PerEngineConcurrency = cfg.Tracker.PerEngineConcurrency
	}
	if cfg.Tracker.MaxAttempts > 0 {
		orchOpts.Retry.MaxAttempts = cfg.Tracker.MaxAttempts
	}
	if cfg.Tracker.RunTimeoutSecs > 0 {
		orchOpts.RunTimeout = time.Duration(cfg.Tracker.RunTimeoutSecs) * time.Second
	}
	orch := orchestrator.New(st, extractor, health, orchOpts)

	var telemetrySource visibility.TelemetrySource
	if cfg.Telemetry.BaseURL != "" {
		telemetrySource = telemetry.New(cfg.Telemetry.BaseURL, cfg.Telemetry.Key)
	} else {
		zap.L().Debug("telemetry not configured, telemetry subscores will be zero")
	}

	aggregator, err := visibility.NewAggregator(st, telemetrySource, visibility.DefaultWeights())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}

	return &trackerEnv{
		Store:      st,
		Registry:   registry,
		Health:     health,
		Extractor:  extractor,
		Orch:       orch,
		Aggregator: aggregator,
		Notion:     notionClient,
	}, nil
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		poolCfg := &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolCfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEngines builds the engine registry from the enabled provider configs.
func initEngines() (*engine.Registry, error) {
	var engines []engine.Engine

	if cfg.Anthropic.Enabled && cfg.Anthropic.Key != "" {
		engines = append(engines, engine.NewAnthropic(cfg.Anthropic.Key, cfg.Anthropic.Model, cfg.Anthropic.RPM))
	}
	if cfg.OpenAI.Enabled && cfg.OpenAI.Key != "" {
		engines = append(engines, engine.NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.Model, cfg.OpenAI.RPM))
	}
	if cfg.Perplexity.Enabled && cfg.Perplexity.Key != "" {
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		engines = append(engines, engine.NewPerplexity(client, cfg.Perplexity.RPM))
	}
	if cfg.Gemini.Enabled && cfg.Gemini.Key != "" {
		client := gemini.NewClient(cfg.Gemini.Key,
			gemini.WithBaseURL(cfg.Gemini.BaseURL),
			gemini.WithModel(cfg.Gemini.Model),
		)
		engines = append(engines, engine.NewGemini(client, cfg.Gemini.RPM))
	}
	if cfg.Copilot.Enabled && cfg.Copilot.BaseURL != "" {
		engines = append(engines, engine.NewCopilot(cfg.Copilot.BaseURL, cfg.Copilot.RPM))
	}

	if len(engines) == 0 {
		return nil, eris.New("no engines configured: set at least one provider key")
	}

	registry, err := engine.NewRegistry(engines...)
	if err != nil {
		return nil, err
	}
	zap.L().Info("engine registry loaded", zap.Strings("engines", registry.Names()))
	return registry, nil
}

// initAuthorityTable loads the domain-authority table, merging a configured
// override file over the built-in defaults.
func initAuthorityTable() (*citations.AuthorityTable, error) {
	if cfg.Score.AuthorityTablePath == "" {
		return citations.DefaultAuthorityTable(), nil
	}
	table, err := citations.LoadAuthorityTable(cfg.Score.AuthorityTablePath)
	if err != nil {
		return nil, eris.Wrap(err, "load authority table")
	}
	return table, nil
}
