package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/nessa01macias/spotlight/internal/features"
	"github.com/nessa01macias/spotlight/internal/generator"
	"github.com/nessa01macias/spotlight/internal/learner"
	"github.com/nessa01macias/spotlight/internal/store"
	"github.com/nessa01macias/spotlight/pkg/digitransit"
	"github.com/nessa01macias/spotlight/pkg/overpass"
	"github.com/nessa01macias/spotlight/pkg/statfin"
)

// appEnv holds the initialized store, clients and core subsystems shared by
// the serve/score/recommend/outcome commands.
type appEnv struct {
	Store     store.Store
	Collector *features.Collector
	Generator *generator.Generator
	Learner   *learner.Learner
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "spotlight.db"
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

// initEnv sets up the store, external clients and core subsystems. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	geocoder := digitransit.NewClient(cfg.Digitransit.Key,
		digitransit.WithBaseURL(cfg.Digitransit.BaseURL))
	osm := overpass.NewClient(overpass.WithBaseURL(cfg.Overpass.BaseURL))
	demo := statfin.NewClient(statfin.WithBaseURL(cfg.Statfin.BaseURL))

	population := features.StaticPopulation{}
	collector := features.NewCollector(geocoder, osm, demo, population)
	gen := generator.New(geocoder, osm, population)

	return &appEnv{
		Store:     st,
		Collector: collector,
		Generator: gen,
		Learner:   learner.New(st),
	}, nil
}
