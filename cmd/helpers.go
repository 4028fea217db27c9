package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/region"
	"github.com/commonwealth-analytics/thriving-index/internal/store"
)

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// loadRegionIndex builds the FIPS → region index from the configured
// locality and membership tables.
func loadRegionIndex(geo config.GeographyConfig) (*region.Index, *region.BuildReport, error) {
	localities, err := region.LoadLocalities(geo.LocalityDir)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load localities")
	}
	memberships, err := region.LoadMemberships(geo.MembershipDir)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load memberships")
	}
	return region.Build(localities, memberships)
}

// newFetcher builds the shared fetcher from config. FTP routing covers the
// Census archives still published only on ftp2.census.gov.
func newFetcher() fetcher.Fetcher {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return &fetcher.SchemeFetcher{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      timeout,
			MaxRetries:   cfg.Fetch.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}),
		FTP: fetcher.NewFTPFetcher(timeout),
	}
}
