package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kandelab/stocktake/internal/remote"
)

// initStore builds the remote store for the configured driver.
func initStore(ctx context.Context) (remote.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return remote.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return remote.NewSQLite(cfg.Store.SQLitePath)
	case "rest":
		return remote.NewREST(cfg.Rest.BaseURL, cfg.Rest.APIKey,
			remote.WithRateLimit(cfg.Rest.RPS)), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
