package proxypool

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

const (
	DefaultMaxSize           = 200
	DefaultMinScore          = 0.25
	DefaultEvictionThreshold = 0.05

	// Proxies with fewer recorded attempts than this are never evicted,
	// so a single early failure cannot erase an untested entry.
	evictionGraceAttempts = 5
)

// Config controls pool capacity and scoring thresholds. Zero values fall
// back to the package defaults.
type Config struct {
	MaxSize           int
	MinScore          float64
	EvictionThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.EvictionThreshold <= 0 {
		c.EvictionThreshold = DefaultEvictionThreshold
	}
	return c
}

// Pool is a thread-safe set of proxies with health scoring, round-robin
// rotation and per-domain sticky assignments. A single mutex covers every
// operation; the pool never sleeps or performs I/O while holding it.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	proxies []*model.Proxy
	sticky  map[string]*model.Proxy // domain -> last proxy handed out
	cursor  int
	now     func() time.Time
	log     zerolog.Logger
}

// Option customizes a Pool at construction time.
type Option func(*Pool)

// WithClock overrides the pool's time source. Tests use it to drive
// cooldown expiry and score decay deterministically.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New creates an empty pool.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:    cfg.withDefaults(),
		sticky: make(map[string]*model.Proxy),
		now:    time.Now,
		log:    logger.WithComponent("ProxyPool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add inserts a single proxy. Entries beyond MaxSize are silently dropped.
func (p *Pool) Add(proxy *model.Proxy) {
	if proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLocked(proxy)
}

func (p *Pool) addLocked(proxy *model.Proxy) bool {
	if len(p.proxies) >= p.cfg.MaxSize {
		return false
	}
	p.proxies = append(p.proxies, proxy)
	return true
}

// BulkAdd inserts proxies until the pool reaches capacity and returns how
// many were admitted. Callers must rely on the returned count rather than
// assume every entry fit.
func (p *Pool) BulkAdd(proxies []*model.Proxy) int {
	p.mu.Lock()
	added := 0
	for _, proxy := range proxies {
		if proxy == nil {
			continue
		}
		if !p.addLocked(proxy) {
			break
		}
		added++
	}
	p.mu.Unlock()

	if added < len(proxies) {
		p.log.Debug().
			Int("added", added).
			Int("dropped", len(proxies)-added).
			Msg("Pool at capacity, surplus proxies dropped.")
	}
	return added
}

// GetNext returns the next usable proxy, preferring the domain's sticky
// assignment while it remains available and above the minimum score.
// Selection relaxes the score requirement before giving up: a cooling-down
// pool returns nil only when nothing is available at all.
func (p *Pool) GetNext(domain string, enableSticky bool) *model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.evictLocked(now)

	if enableSticky && domain != "" {
		if sticky, ok := p.sticky[domain]; ok && sticky.Available(now) && sticky.Score(now) >= p.cfg.MinScore {
			return sticky
		}
	}

	candidates := make([]*model.Proxy, 0, len(p.proxies))
	for _, proxy := range p.proxies {
		if proxy.Available(now) && proxy.Score(now) >= p.cfg.MinScore {
			candidates = append(candidates, proxy)
		}
	}
	if len(candidates) == 0 {
		// Nothing healthy: fall back to anything not cooling down.
		for _, proxy := range p.proxies {
			if proxy.Available(now) {
				candidates = append(candidates, proxy)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	p.cursor = (p.cursor + 1) % len(candidates)
	chosen := candidates[p.cursor]

	if enableSticky && domain != "" {
		p.sticky[domain] = chosen
	}
	return chosen
}

// evictLocked drops proxies whose score fell below the eviction threshold
// after the grace period, and clears sticky assignments that pointed at
// them so no domain keeps routing to a removed proxy.
func (p *Pool) evictLocked(now time.Time) {
	var gone map[*model.Proxy]struct{}
	kept := p.proxies[:0]
	for _, proxy := range p.proxies {
		if proxy.Score(now) >= p.cfg.EvictionThreshold || proxy.Attempts() < evictionGraceAttempts {
			kept = append(kept, proxy)
			continue
		}
		if gone == nil {
			gone = make(map[*model.Proxy]struct{})
		}
		gone[proxy] = struct{}{}
	}
	if len(gone) == 0 {
		return
	}
	p.proxies = kept
	for domain, proxy := range p.sticky {
		if _, evicted := gone[proxy]; evicted {
			delete(p.sticky, domain)
		}
	}
	p.log.Debug().
		Int("evicted", len(gone)).
		Int("remaining", len(p.proxies)).
		Msg("Evicted low-score proxies.")
}

// MarkResult records a request outcome against the proxy. A nil proxy is
// ignored so callers can report aborted attempts unconditionally.
func (p *Pool) MarkResult(proxy *model.Proxy, success bool, softFail bool) {
	if proxy == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		proxy.MarkSuccess(p.now())
	} else {
		proxy.MarkFail(p.now(), softFail)
	}
}

// Stats summarizes pool health.
type Stats struct {
	Total    int
	Healthy  int
	MinScore float64
}

// Stats counts the pooled proxies and how many currently meet the minimum
// score, regardless of cooldown state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	healthy := 0
	for _, proxy := range p.proxies {
		if proxy.Score(now) >= p.cfg.MinScore {
			healthy++
		}
	}
	return Stats{Total: len(p.proxies), Healthy: healthy, MinScore: p.cfg.MinScore}
}

// Report renders a human-readable pool summary for logs and monitoring.
func (p *Pool) Report() string {
	s := p.Stats()
	return fmt.Sprintf(
		"Proxy Pool Report\n- Total proxies: %d\n- Healthy (score >= %.2f): %d\n",
		s.Total, s.MinScore, s.Healthy,
	)
}

// Snapshot returns the current entries in insertion order. The slice is a
// copy; the entries themselves are the live shared objects.
func (p *Pool) Snapshot() []*model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Proxy, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// NextAddr returns the next rotation's "host:port", or "" when nothing is
// available. For legacy callers that consume bare proxy address strings.
func (p *Pool) NextAddr() string {
	proxy := p.GetNext("", false)
	if proxy == nil {
		return ""
	}
	return proxy.Addr()
}

// Addrs returns "host:port" strings for every pooled proxy.
func (p *Pool) Addrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.proxies))
	for _, proxy := range p.proxies {
		out = append(out, proxy.Addr())
	}
	return out
}
