package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stablewatch/ecosystem-cli/internal/dedup"
	"github.com/stablewatch/ecosystem-cli/internal/enrich"
	"github.com/stablewatch/ecosystem-cli/internal/match"
	"github.com/stablewatch/ecosystem-cli/internal/pipeline"
	"github.com/stablewatch/ecosystem-cli/internal/refdata"
	"github.com/stablewatch/ecosystem-cli/internal/store"
	"github.com/stablewatch/ecosystem-cli/pkg/airesearch"
	"github.com/stablewatch/ecosystem-cli/pkg/coingecko"
	"github.com/stablewatch/ecosystem-cli/pkg/defillama"
	"github.com/stablewatch/ecosystem-cli/pkg/thegrid"
	"github.com/stablewatch/ecosystem-cli/pkg/webscan"
)

// initStore opens the run store named by the config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "jobs.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRefdata loads the reference data overrides, falling back to the
// built-in defaults when no file is configured.
func initRefdata() (*refdata.Set, error) {
	if cfg.Refdata.Path == "" {
		return refdata.Default(), nil
	}
	ref, err := refdata.Load(cfg.Refdata.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load refdata")
	}
	return ref, nil
}

// initDeps builds the client bundle for enrichment stages. The AI
// researcher is attached only when a key is configured; stages that need
// it refuse to run without one.
func initDeps(chain, asset string) (*enrich.Deps, error) {
	ref, err := initRefdata()
	if err != nil {
		return nil, err
	}

	gridOpts := []thegrid.Option{
		thegrid.WithBaseURL(cfg.Grid.BaseURL),
		thegrid.WithRateLimit(cfg.Grid.RateLimit),
	}
	if cfg.Grid.APIKey != "" {
		gridOpts = append(gridOpts, thegrid.WithAPIKey(cfg.Grid.APIKey))
	}

	geckoOpts := []coingecko.Option{
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithRateLimit(cfg.CoinGecko.RateLimit),
	}
	if cfg.CoinGecko.APIKey != "" {
		geckoOpts = append(geckoOpts, coingecko.WithAPIKey(cfg.CoinGecko.APIKey))
	}

	deps := &enrich.Deps{
		Registry: thegrid.NewClient(gridOpts...),
		DefiLlama: defillama.NewClient(
			defillama.WithBaseURL(cfg.DefiLlama.BaseURL),
			defillama.WithRateLimit(cfg.DefiLlama.RateLimit),
		),
		CoinGecko: coingecko.NewClient(geckoOpts...),
		Scanner: webscan.New(
			webscan.WithUserAgent(cfg.Webscan.UserAgent),
			webscan.WithRateLimit(cfg.Webscan.RateLimit),
		),
		Ref: ref,
		MatchConfig: match.Config{
			Threshold:        cfg.Match.Threshold,
			OfflineThreshold: cfg.Match.OfflineThreshold,
		},
		Asset:       asset,
		Chain:       chain,
		Concurrency: cfg.Pipeline.Concurrency,
	}

	if cfg.Anthropic.Key != "" {
		deps.Researcher = airesearch.New(cfg.Anthropic.Key,
			airesearch.WithModel(cfg.Anthropic.Model),
			airesearch.WithMaxTokens(cfg.Anthropic.MaxTokens),
		)
		zap.L().Debug("ai researcher enabled", zap.String("model", cfg.Anthropic.Model))
	}

	return deps, nil
}

// pipelineEnv holds the initialized store, clients and pipeline shared by
// the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Deps     *enrich.Deps
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the run store and all API clients and builds the
// Pipeline. With research enabled the AI stage is appended after the
// default order. Callers should defer env.Close().
func initPipeline(ctx context.Context, chain, asset string, withResearch, offline bool) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}
	if withResearch {
		if err := cfg.Validate("research"); err != nil {
			return nil, err
		}
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	deps, err := initDeps(chain, asset)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if offline {
		index, err := match.BuildIndex(ctx, deps.Registry)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "build offline index")
		}
		deps.Index = index
		zap.L().Info("offline registry index built")
	}

	stages := pipeline.DefaultStages()
	for i, s := range stages {
		if _, ok := s.(*enrich.DedupStage); ok {
			stages[i] = &enrich.DedupStage{Options: dedup.Options{FuzzyThreshold: cfg.Dedup.FuzzyThreshold}}
		}
	}
	if withResearch {
		stages = append(stages, &enrich.AIResearchStage{})
	}

	return &pipelineEnv{
		Store:    st,
		Deps:     deps,
		Pipeline: pipeline.New(deps, st, stages...),
	}, nil
}
