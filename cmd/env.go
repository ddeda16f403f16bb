package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/refresh-cli/internal/fetch"
	"github.com/venuewatch/refresh-cli/internal/lock"
	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/monitoring"
	"github.com/venuewatch/refresh-cli/internal/pipeline"
	"github.com/venuewatch/refresh-cli/internal/registry"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
	"github.com/venuewatch/refresh-cli/internal/store"
	"github.com/venuewatch/refresh-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "refresh.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newLock() *lock.FileLock {
	var opts []lock.Option
	if cfg.Lock.StaleAfterMins > 0 {
		opts = append(opts, lock.WithStaleAfter(time.Duration(cfg.Lock.StaleAfterMins)*time.Minute))
	}
	return lock.New(cfg.Lock.Dir, opts...)
}

// initPipeline wires the full refresh pipeline and loads the venue registry.
func initPipeline(ctx context.Context) (*pipeline.Pipeline, []model.Venue, store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, nil, eris.Wrap(err, "migrate store")
	}

	snaps, err := snapshot.NewFSStore(cfg.Snapshots.Dir)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, eris.Wrap(err, "open snapshot store")
	}

	venues, err := registry.LoadVenuesFromFile(cfg.Registry.Path)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, eris.Wrap(err, "load venue registry")
	}

	fetcher := fetch.NewHTTPFetcher(fetch.Options{
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Fetch.MaxRetries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})

	p := pipeline.New(
		cfg,
		st,
		snaps,
		fetcher,
		anthropic.NewClient(cfg.Anthropic.Key,
			anthropic.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second)),
		newLock(),
		monitoring.NewAlerter(cfg.Monitoring),
	)
	return p, venues, st, nil
}
