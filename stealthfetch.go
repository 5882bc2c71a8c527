// Package stealthfetch assembles the proxy pool, discovery sources and the
// stealth session into ready-to-use entry points. Most callers only need
// NewSession.
package stealthfetch

import (
	"time"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool"
	"stealthfetch/proxypool/discovery"
	"stealthfetch/session"
)

const (
	// DefaultLimit is the target proxy count when none is given.
	DefaultLimit = 30

	// poolSizeFactor scales pool capacity relative to the target count,
	// leaving headroom for churn before eviction kicks in.
	poolSizeFactor = 3
)

// Options configures NewPool and NewSession. The zero value gives a
// pool provisioned purely from discovery with default session tuning.
type Options struct {
	// Country hints discovery toward one country. Best effort; provider
	// records are taken as-is.
	Country string

	// Limit is the target number of proxies. Pool capacity is provisioned
	// at three times this value.
	Limit int

	// ProviderData seeds the pool before any discovery runs. Provider
	// proxies are preferred for quality, so they count against Limit.
	ProviderData []proxypool.ProviderRecord

	// Sources supply public proxies when the provider records fall short
	// of Limit.
	Sources []discovery.Source

	// Checker, when set, filters discovered proxies for reachability
	// before admission. Provider records are trusted and never checked.
	Checker *discovery.Checker

	// Geo, when set, fills missing country tags on discovered proxies.
	Geo discovery.GeoResolver

	// Pool overrides the pool tuning. Zero fields keep the provisioned
	// defaults, including the capacity derived from Limit.
	Pool proxypool.Config

	// BaseTimeout bounds each request attempt.
	BaseTimeout time.Duration

	// MaxRetries bounds attempts per request.
	MaxRetries int

	// DomainDelayMin and DomainDelayMax bound the per-domain pacing gap.
	DomainDelayMin time.Duration
	DomainDelayMax time.Duration
}

// NewPool provisions a proxy pool: provider records first, then public
// discovery for whatever remains of the target count.
func NewPool(opts Options) *proxypool.Pool {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := logger.WithComponent("Provision")

	cfg := opts.Pool
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = limit * poolSizeFactor
	}
	pool := proxypool.New(cfg)

	if len(opts.ProviderData) > 0 {
		admitted := pool.BulkAdd(proxypool.FromProviderRecords(opts.ProviderData))
		log.Info().Int("count", admitted).Msg("Integrated provider proxies.")
	}

	remaining := limit - len(opts.ProviderData)
	if remaining > 0 && len(opts.Sources) > 0 {
		discovered := discovery.Gather(opts.Sources, remaining, opts.Country, opts.Geo)
		if opts.Checker != nil {
			discovered = opts.Checker.Check(discovered)
		}
		admitted := pool.BulkAdd(discovered)
		log.Info().Int("count", admitted).Msg("Integrated discovered proxies.")
	}

	log.Info().Msg(pool.Report())
	return pool
}

// NewSession is the main entry point: it provisions a pool per opts and
// returns a stealth session bound to it.
func NewSession(opts Options) (*session.Session, error) {
	pool := NewPool(opts)
	return session.New(pool, session.Config{
		Timeout:        opts.BaseTimeout,
		MaxRetries:     opts.MaxRetries,
		DomainDelayMin: opts.DomainDelayMin,
		DomainDelayMax: opts.DomainDelayMax,
	})
}
