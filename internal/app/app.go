// Package app wires configuration, storage, discovery and the session
// into the fetch command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stealthfetch"
	"stealthfetch/internal/shared/config"
	"stealthfetch/internal/shared/logger"
	"stealthfetch/internal/shared/types"
	"stealthfetch/proxypool"
	"stealthfetch/proxypool/discovery"
	"stealthfetch/proxypool/storage"
	"stealthfetch/session"
)

// App runs one fetch cycle: provision the pool, fetch the requested URLs,
// report and persist.
type App struct {
	cfg           *types.Config
	providersPath string

	log zerolog.Logger
}

func New(cfg *types.Config, providersPath string) *App {
	return &App{
		cfg:           cfg,
		providersPath: providersPath,
		log:           logger.WithComponent("App"),
	}
}

// Run executes the fetch cycle for urls. Fetch failures are logged per
// URL and do not abort the cycle; configuration and persistence problems
// do.
func (a *App) Run(ctx context.Context, urls []string) error {
	store, closeStore, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	opts, cleanup, err := a.buildOptions()
	if err != nil {
		return err
	}
	defer cleanup()

	pool := stealthfetch.NewPool(opts)

	if store != nil {
		restored, err := store.Load(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("Failed to load persisted pool state.")
		} else if len(restored) > 0 {
			admitted := pool.BulkAdd(restored)
			a.log.Info().Int("count", admitted).Msg("Restored persisted proxies.")
		}
	}

	sess, err := session.New(pool, session.Config{
		Timeout:        time.Duration(a.cfg.SessionConf.TimeoutSeconds) * time.Second,
		MaxRetries:     a.cfg.SessionConf.MaxRetries,
		DomainDelayMin: secondsToDuration(a.cfg.SessionConf.DomainDelayMin),
		DomainDelayMax: secondsToDuration(a.cfg.SessionConf.DomainDelayMax),
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	for _, u := range urls {
		resp, err := sess.Get(ctx, u)
		if err != nil {
			a.log.Error().Err(err).Str("url", u).Msg("Fetch failed.")
			continue
		}
		a.log.Info().
			Str("url", u).
			Int("status", resp.StatusCode).
			Int("bytes", len(resp.Body)).
			Int("attempt", resp.Attempt).
			Str("proxy", resp.Proxy).
			Msg("Fetch completed.")
	}

	fmt.Println(pool.Report())

	if store != nil {
		if err := store.Save(ctx, pool.Snapshot()); err != nil {
			return fmt.Errorf("persist pool snapshot: %w", err)
		}
		a.log.Info().Msg("Pool snapshot persisted.")
	}
	return nil
}

// openStorage builds the snapshot Store selected by the configuration.
// An empty backend disables persistence.
func (a *App) openStorage(ctx context.Context) (storage.Store, func(), error) {
	switch backend := a.cfg.StorageConf.Backend; backend {
	case "", "none":
		return nil, nil, nil
	case "file":
		if a.cfg.StorageConf.FilePath == "" {
			return nil, nil, errors.New("storage backend 'file' requires file_path")
		}
		return storage.NewFileStorage(a.cfg.StorageConf.FilePath), nil, nil
	case "postgres":
		if a.cfg.StorageConf.DSN == "" {
			return nil, nil, errors.New("storage backend 'postgres' requires dsn")
		}
		sqlStore, err := storage.NewSQLStorage(ctx, a.cfg.StorageConf.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		closer := func() {
			if err := sqlStore.Close(); err != nil {
				a.log.Warn().Err(err).Msg("Failed to close storage.")
			}
		}
		return sqlStore, closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// buildOptions translates the file configuration into provisioning
// options. The returned cleanup releases the GeoLite2 handle, if any.
func (a *App) buildOptions() (stealthfetch.Options, func(), error) {
	opts := stealthfetch.Options{
		Country: a.cfg.DiscoveryConf.Country,
		Limit:   a.cfg.DiscoveryConf.Limit,
		Pool: proxypool.Config{
			MaxSize:           a.cfg.PoolConf.MaxSize,
			MinScore:          a.cfg.PoolConf.MinScore,
			EvictionThreshold: a.cfg.PoolConf.EvictionThreshold,
		},
		BaseTimeout:    time.Duration(a.cfg.SessionConf.TimeoutSeconds) * time.Second,
		MaxRetries:     a.cfg.SessionConf.MaxRetries,
		DomainDelayMin: secondsToDuration(a.cfg.SessionConf.DomainDelayMin),
		DomainDelayMax: secondsToDuration(a.cfg.SessionConf.DomainDelayMax),
	}
	cleanup := func() {}

	records, err := config.LoadProviderRecords(a.providersPath)
	if err != nil {
		return opts, cleanup, err
	}
	opts.ProviderData = records

	if a.cfg.DiscoveryConf.Enabled {
		opts.Sources = []discovery.Source{
			discovery.NewFreeProxyListSource(""),
			discovery.NewProxyListDownloadSource(""),
		}
		if a.cfg.DiscoveryConf.CheckProxies {
			checkTimeout := time.Duration(a.cfg.DiscoveryConf.CheckTimeoutSeconds) * time.Second
			opts.Checker = discovery.NewChecker("", checkTimeout, 0)
		}
		if path := a.cfg.DiscoveryConf.GeoDBPath; path != "" {
			resolver, err := discovery.NewGeoLite2Resolver(path)
			if err != nil {
				a.log.Warn().Err(err).Str("path", path).Msg("GeoLite2 database unavailable, skipping country tagging.")
			} else {
				opts.Geo = resolver
				cleanup = func() { _ = resolver.Close() }
			}
		}
	}
	return opts, cleanup, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
