package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/agent"
	"github.com/lox/groundwater/internal/compare"
	"github.com/lox/groundwater/internal/config"
	"github.com/lox/groundwater/internal/extract"
	"github.com/lox/groundwater/internal/llm"
	"github.com/lox/groundwater/internal/search"
	"github.com/lox/groundwater/internal/store"
	"github.com/lox/groundwater/internal/store/pgstore"
	"github.com/lox/groundwater/internal/wris"
)

// app holds the wired pipeline and everything that must be closed on exit.
type app struct {
	agent   *agent.Agent
	store   *store.Store
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	st := store.New(db, logger)
	if err := st.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, closers: []func() error{st.Close}}

	model, err := llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider := wris.NewClient(cfg.WRISBaseURL, cfg.WRISTimeout, logger)
	if cfg.ArchiveRaw {
		provider.SetArchive(st)
	}
	if cfg.WRISBaseURL == "" {
		logger.Warn("WRIS_BASE_URL not set; every data request will report no data")
	}

	ag := agent.New(extract.New(model, logger), provider, compare.NewSummarizer(model, logger), model, logger)
	ag.SetClock(clockwork.NewRealClock())
	ag.SetConcurrency(cfg.FetchWorkers)
	ag.SetTurnRecorder(st)

	if cfg.UsePostgres() {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		ag.SetMessageLog(pg)
		logger.Info("message log using postgres")
	} else {
		ag.SetMessageLog(st)
	}

	if cfg.SerpAPIKey != "" {
		ag.SetSearcher(search.NewClient(cfg.SerpAPIKey, ""))
	} else {
		logger.Info("SERPAPI_KEY not set; general answers are not web-grounded")
	}

	a.agent = ag
	return a, nil
}
