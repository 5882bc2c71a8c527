// Package session provides a stealth HTTP client that routes every request
// through the proxy pool. Each attempt uses a fresh proxy, a randomized
// browser-like header set and human-ish pacing, and feeds its outcome back
// into the pool's health scores.
package session

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool"
	"stealthfetch/proxypool/model"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultMaxRetries     = 6
	DefaultDomainDelayMin = 1 * time.Second
	DefaultDomainDelayMax = 4 * time.Second

	// Pre-attempt pause window. The jitter keeps consecutive attempts from
	// forming a measurable rhythm.
	attemptPauseMin = 300 * time.Millisecond
	attemptPauseMax = 1800 * time.Millisecond
	pauseJitter     = 250 * time.Millisecond

	// minSleep is the floor for any computed pause.
	minSleep = 50 * time.Millisecond

	// mobileFallbackChance is the odds of presenting a mobile identity to a
	// domain that does not obviously serve mobile traffic.
	mobileFallbackChance = 0.25
)

// ErrAttemptsExhausted is returned by Request when every attempt failed.
// Per-attempt outcomes are recorded in the pool, not surfaced to callers.
var ErrAttemptsExhausted = errors.New("session: all request attempts exhausted")

// Config carries the tunable knobs of a Session. Zero values fall back to
// the package defaults.
type Config struct {
	// Timeout bounds each individual attempt, not the whole call.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per Request call.
	MaxRetries int

	// DomainDelayMin and DomainDelayMax bound the randomized gap enforced
	// between consecutive requests to the same domain.
	DomainDelayMin time.Duration
	DomainDelayMax time.Duration
}

// RequestOptions adjusts a single Request call.
type RequestOptions struct {
	// Headers are merged over the generated header set and win on conflict.
	Headers map[string]string

	// Referer is attached to most attempts when non-empty.
	Referer string

	// Body is the request payload. A byte slice rather than a reader so
	// every retry can replay it from the start.
	Body []byte

	// ContentType is set on the request when non-empty.
	ContentType string

	// Timeout overrides the session's per-attempt timeout when positive.
	Timeout time.Duration

	// DisableRedirects makes the attempt return the first response as-is
	// instead of following 3xx chains.
	DisableRedirects bool
}

// Response is the outcome of a successful Request call. The body has
// already been read in full and decoded.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte

	// FinalURL is the URL that produced the response, after any redirects.
	FinalURL string

	// Proxy is the host:port of the proxy that served the response.
	Proxy string

	// Attempt is the 1-based attempt number that succeeded.
	Attempt int
}

// Session is a retrying HTTP client with proxy rotation, header
// randomization and per-domain pacing. Safe for concurrent use.
type Session struct {
	pool       *proxypool.Pool
	timeout    time.Duration
	maxRetries int
	delayMin   time.Duration
	delayMax   time.Duration

	mu         sync.Mutex
	domainLast map[string]time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	now   func() time.Time
	sleep func(time.Duration)

	log zerolog.Logger
}

// Option adjusts a Session at construction time.
type Option func(*Session)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSleep replaces the sleep function. Used by tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Session) { s.sleep = sleep }
}

// WithRand replaces the randomness source. Used by tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// New builds a Session on top of pool. Invalid configuration is rejected
// here rather than surfacing as odd behavior mid-crawl.
func New(pool *proxypool.Pool, cfg Config, opts ...Option) (*Session, error) {
	if pool == nil {
		return nil, errors.New("session: pool is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DomainDelayMin == 0 && cfg.DomainDelayMax == 0 {
		cfg.DomainDelayMin = DefaultDomainDelayMin
		cfg.DomainDelayMax = DefaultDomainDelayMax
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("session: timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("session: max retries must be positive, got %d", cfg.MaxRetries)
	}
	if cfg.DomainDelayMin < 0 || cfg.DomainDelayMax < cfg.DomainDelayMin {
		return nil, fmt.Errorf("session: invalid domain delay range [%v, %v]", cfg.DomainDelayMin, cfg.DomainDelayMax)
	}

	s := &Session{
		pool:       pool,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		delayMin:   cfg.DomainDelayMin,
		delayMax:   cfg.DomainDelayMax,
		domainLast: make(map[string]time.Time),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		sleep:      time.Sleep,
		log:        logger.WithComponent("Session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get issues a GET request through the pool.
func (s *Session) Get(ctx context.Context, rawURL string) (*Response, error) {
	return s.Request(ctx, http.MethodGet, rawURL, nil)
}

// Post issues a POST request with the given payload through the pool.
func (s *Session) Post(ctx context.Context, rawURL, contentType string, body []byte) (*Response, error) {
	return s.Request(ctx, http.MethodPost, rawURL, &RequestOptions{
		Body:        body,
		ContentType: contentType,
	})
}

// Request performs an HTTP request with up to MaxRetries attempts, each on
// a freshly selected proxy. It returns the first successful response, or
// ErrAttemptsExhausted once all attempts failed. A canceled context is
// returned as the context's error.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid url %q: %w", rawURL, err)
	}
	domain := parsed.Host

	traceID := uuid.NewString()
	l := s.log.With().
		Str("trace_id", traceID).
		Str("method", method).
		Str("url", rawURL).
		Logger()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.humanPause()

		resp := s.requestOnce(ctx, l, method, rawURL, domain, opts)
		if resp != nil {
			resp.Attempt = attempt
			l.Info().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Str("proxy", resp.Proxy).
				Msg("Request succeeded.")
			return resp, nil
		}
		l.Debug().Int("attempt", attempt).Msg("Attempt failed, rotating proxy.")
	}

	l.Error().Int("attempts", s.maxRetries).Msg("All attempts failed.")
	return nil, ErrAttemptsExhausted
}

// requestOnce performs a single attempt: pace the domain, pick a proxy,
// fire the request and classify the outcome into the pool. It returns a
// non-nil Response only on success.
func (s *Session) requestOnce(ctx context.Context, l zerolog.Logger, method, rawURL, domain string, opts *RequestOptions) *Response {
	s.respectRateLimit(domain)

	proxy := s.pool.GetNext(domain, true)
	if proxy == nil {
		l.Warn().Msg("No available proxies in pool.")
		return nil
	}

	mobile := strings.Contains(domain, "m.") || s.chance(mobileFallbackChance)
	headers := s.randomHeaders(mobile, opts.Referer, opts.Headers)

	timeout := s.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	client := buildClient(proxy, timeout, opts.DisableRedirects)
	defer client.CloseIdleConnections()

	var payload io.Reader
	if len(opts.Body) > 0 {
		payload = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), rawURL, payload)
	if err != nil {
		l.Debug().Err(err).Str("proxy", proxy.Addr()).Msg("Failed to build request.")
		s.pool.MarkResult(proxy, false, false)
		return nil
	}
	req.Header = headers
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Caller gave up; not the proxy's fault.
			return nil
		}
		soft := isSoftTransportError(err)
		l.Debug().Err(err).Str("proxy", proxy.Addr()).Bool("soft", soft).Msg("Request error.")
		s.pool.MarkResult(proxy, false, soft)
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		l.Debug().Err(err).Str("proxy", proxy.Addr()).Msg("Failed to read response body.")
		s.pool.MarkResult(proxy, false, true)
		return nil
	}
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		l.Debug().Err(err).Str("proxy", proxy.Addr()).Msg("Failed to decode response body.")
		s.pool.MarkResult(proxy, false, false)
		return nil
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		if looksBlocked(body) {
			l.Info().Int("status", code).Str("proxy", proxy.Addr()).Msg("Soft block detected in response body.")
			s.pool.MarkResult(proxy, false, true)
			return nil
		}
		s.pool.MarkResult(proxy, true, false)
		return buildResponse(resp, body, proxy)

	case isSoftStatus(code):
		l.Info().Int("status", code).Str("proxy", proxy.Addr()).Msg("Soft block status received.")
		s.pool.MarkResult(proxy, false, true)
		return nil

	case code >= 300 && code < 400:
		// Redirects only reach here when following them is disabled;
		// the proxy did its job.
		s.pool.MarkResult(proxy, true, false)
		return buildResponse(resp, body, proxy)

	default:
		l.Debug().Int("status", code).Str("proxy", proxy.Addr()).Msg("Unexpected status code.")
		s.pool.MarkResult(proxy, false, true)
		return nil
	}
}

// respectRateLimit enforces a randomized minimum gap between requests to
// the same domain. The next slot is reserved under the lock and the wait
// happens outside it, so one slow domain never stalls the others. Recorded
// timestamps only ever move forward.
func (s *Session) respectRateLimit(domain string) {
	if domain == "" {
		return
	}
	gap := s.uniform(s.delayMin, s.delayMax)

	s.mu.Lock()
	now := s.now()
	var wait time.Duration
	if last, ok := s.domainLast[domain]; ok {
		if next := last.Add(gap); next.After(now) {
			wait = next.Sub(now)
			if wait < minSleep {
				wait = minSleep
			}
		}
	}
	s.domainLast[domain] = now.Add(wait)
	s.mu.Unlock()

	if wait > 0 {
		s.sleep(wait)
	}
}

// humanPause sleeps a short randomized interval before an attempt.
func (s *Session) humanPause() {
	base := s.uniform(attemptPauseMin, attemptPauseMax)
	jitter := s.uniform(0, 2*pauseJitter) - pauseJitter
	d := base + jitter
	if d < minSleep {
		d = minSleep
	}
	s.sleep(d)
}

func (s *Session) randomHeaders(mobile bool, referer string, extra map[string]string) http.Header {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return RandomHeaders(s.rng, mobile, referer, extra)
}

func (s *Session) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *Session) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

// buildClient assembles a throwaway client routed through the given proxy.
// A fresh transport per attempt keeps connection state, cookies and TLS
// sessions from leaking between proxies.
func buildClient(proxy *model.Proxy, timeout time.Duration, disableRedirects bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(proxy.URL()),
		DialContext:           dialer.DialContext,
		IdleConnTimeout:       timeout,
		TLSHandshakeTimeout:   timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
	if disableRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func buildResponse(resp *http.Response, body []byte, proxy *model.Proxy) *Response {
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
		Proxy:      proxy.Addr(),
	}
}

// decodeBody reverses the Content-Encoding we advertise. Setting
// Accept-Encoding by hand disables the transport's automatic gzip
// handling, so decoding is on us.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// isSoftTransportError separates proxy flakiness (timeouts, refused or
// reset connections) from harder protocol-level failures.
func isSoftTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}
