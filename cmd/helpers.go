package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/quillworks/quill/internal/crawl"
	"github.com/quillworks/quill/internal/engage"
	"github.com/quillworks/quill/internal/generate"
	"github.com/quillworks/quill/internal/guard"
	"github.com/quillworks/quill/internal/notify"
	"github.com/quillworks/quill/internal/pipeline"
	"github.com/quillworks/quill/internal/store"
	anthropicpkg "github.com/quillworks/quill/pkg/anthropic"
	"github.com/quillworks/quill/pkg/threads"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "quill.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// appEnv bundles the wired collaborators shared by the run, engage,
// serve and schedule commands.
type appEnv struct {
	Store        store.Store
	Threads      threads.Client
	Orchestrator *pipeline.Orchestrator
	Engine       *engage.Engine
}

func (e *appEnv) Close() {
	e.Engine.Wait()
	_ = e.Store.Close()
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	threadsClient := threads.NewClient(
		threads.WithBaseURL(cfg.Threads.BaseURL),
		threads.WithRateLimit(cfg.Threads.RequestsPerS),
	)
	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	generator := generate.New(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	crawler := crawl.New()
	dupGuard := guard.New(guard.NewStoreCache(st), cfg.Pipeline.DedupeTTL())
	notifier := notify.New(cfg.Notify.WebhookURL)

	orchestrator := pipeline.New(cfg, st, crawler, generator, dupGuard, threadsClient, notifier)
	engine := engage.New(cfg, st, threadsClient, generator)

	return &appEnv{
		Store:        st,
		Threads:      threadsClient,
		Orchestrator: orchestrator,
		Engine:       engine,
	}, nil
}
