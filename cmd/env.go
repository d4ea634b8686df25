package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/allowance"
	"github.com/prospectly/leadgen-cli/internal/generator"
	"github.com/prospectly/leadgen-cli/internal/notify"
	"github.com/prospectly/leadgen-cli/internal/scoring"
	"github.com/prospectly/leadgen-cli/internal/store"
	anthropicpkg "github.com/prospectly/leadgen-cli/pkg/anthropic"
	"github.com/prospectly/leadgen-cli/pkg/contactsearch"
	"github.com/prospectly/leadgen-cli/pkg/enrich"
)

// env bundles everything a command needs to run the pipeline.
type env struct {
	Store     store.Store
	Generator *generator.Generator
	Gate      *allowance.Gate
	Notifier  notify.Notifier
}

func (e *env) Close() {
	if err := e.Notifier.Close(); err != nil {
		zap.L().Warn("close notifier", zap.Error(err))
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "leadgen.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv builds the pipeline environment: store (migrated), provider
// clients, scorer, gate, and the optional AMQP notifier.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	searchClient := contactsearch.NewClient(cfg.Search.Key,
		contactsearch.WithBaseURL(cfg.Search.BaseURL),
		contactsearch.WithRateLimit(cfg.Search.RequestsPerS),
	)
	enrichClient := enrich.NewClient(cfg.Enrich.Key,
		enrich.WithBaseURL(cfg.Enrich.BaseURL),
		enrich.WithRateLimit(cfg.Enrich.RequestsPerS),
		enrich.WithRevealPhones(cfg.Enrich.RevealPhones),
	)
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	scorer := scoring.NewScorer(aiClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.AMQPURL != "" {
		n, err := notify.NewAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			// Notifications are best-effort; a dead broker never blocks runs.
			zap.L().Warn("amqp notifier init failed, continuing without", zap.Error(err))
		} else {
			notifier = n
		}
	}

	gen := generator.New(st, searchClient, enrichClient, scorer, notifier, scoring.BuildQuery)
	gate := allowance.NewGate(st, cfg.Allowance.RefillAmount, cfg.Allowance.Cooldown, cfg.Quota.MonthlyAllotment)

	return &env{
		Store:     st,
		Generator: gen,
		Gate:      gate,
		Notifier:  notifier,
	}, nil
}

// targetFor picks the run size by subscription tier.
func targetFor(subscribed bool) int {
	if subscribed {
		return cfg.Generation.SubscribedTarget
	}
	return cfg.Generation.DefaultTarget
}
