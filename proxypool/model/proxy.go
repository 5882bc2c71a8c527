package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scoring and cooldown constants. Scores live in [0,1]; cooldowns are
// absolute timestamps before which a proxy must not be handed out.
const (
	// InitialScore is the health score of a proxy with no recorded
	// attempts. No history is neither good nor bad.
	InitialScore = 0.5

	// MaxScoreDecay caps how much age alone can subtract from a score,
	// so very old entries with a perfect ratio cannot dominate forever.
	MaxScoreDecay = 0.2

	// ScoreDecayPerHour is the decay applied per hour of proxy age.
	ScoreDecayPerHour = 0.05

	// SoftFailPenalty is the base cooldown for recoverable failures
	// (soft-block status codes, detected challenge pages).
	SoftFailPenalty = 20 * time.Second

	// HardFailPenalty is the base cooldown for transport-level failures.
	HardFailPenalty = 90 * time.Second

	// MaxPenaltyMultiplier bounds how far repeated failures can scale
	// the base penalty.
	MaxPenaltyMultiplier = 3

	// FailureStep is the number of failures per multiplier increment.
	FailureStep = 3

	// SuccessCooldownReduction is subtracted from an active cooldown
	// when a proxy redeems itself with a successful request.
	SuccessCooldownReduction = 5 * time.Second
)

// Proxy is a single upstream relay endpoint with accumulated
// success/failure statistics. Identity fields are fixed at construction;
// the mutable health state is only reachable through MarkSuccess and
// MarkFail, which the pool invokes under its lock.
type Proxy struct {
	Host     string
	Port     int
	Protocol string // "http" or "https", lower-cased at construction
	Country  string // optional ISO code, may be empty
	Source   string // origin tag, e.g. "provider" or "public"

	success       int
	fail          int
	lastUsed      time.Time
	cooldownUntil time.Time
	createdAt     time.Time
}

// New creates a Proxy with defaulted protocol ("http") and source
// ("public"), matching what untagged discovery records carry.
func New(host string, port int, protocol, country, source string) *Proxy {
	if protocol == "" {
		protocol = "http"
	}
	if source == "" {
		source = "public"
	}
	return &Proxy{
		Host:      host,
		Port:      port,
		Protocol:  strings.ToLower(protocol),
		Country:   country,
		Source:    source,
		createdAt: time.Now(),
	}
}

// Restore rebuilds a Proxy from persisted state. Storage backends use it
// to rehydrate snapshots; tests use it to pin ages and cooldowns.
func Restore(host string, port int, protocol, country, source string,
	success, fail int, lastUsed, cooldownUntil, createdAt time.Time) *Proxy {
	p := New(host, port, protocol, country, source)
	p.success = success
	p.fail = fail
	p.lastUsed = lastUsed
	p.cooldownUntil = cooldownUntil
	p.createdAt = createdAt
	return p
}

// HealthScore is the pure scoring function: the success ratio (or
// InitialScore when there is no history) minus an age-based decay,
// clamped to [0,1]. Age below one second is treated as one second.
func HealthScore(success, fail int, age time.Duration) float64 {
	total := success + fail
	base := InitialScore
	if total > 0 {
		base = float64(success) / float64(total)
	}
	if age < time.Second {
		age = time.Second
	}
	decay := age.Hours() * ScoreDecayPerHour
	if decay > MaxScoreDecay {
		decay = MaxScoreDecay
	}
	score := base - decay
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// FailPenalty is the pure penalty function: the base penalty for the
// failure class, scaled by a multiplier that steps up once every
// FailureStep failures and is capped at MaxPenaltyMultiplier.
// failCount is the total number of failures including the current one.
func FailPenalty(soft bool, failCount int) time.Duration {
	base := HardFailPenalty
	if soft {
		base = SoftFailPenalty
	}
	multiplier := 1 + failCount/FailureStep
	if multiplier > MaxPenaltyMultiplier {
		multiplier = MaxPenaltyMultiplier
	}
	return base * time.Duration(multiplier)
}

// Score reports the proxy's health at the given instant.
func (p *Proxy) Score(now time.Time) float64 {
	return HealthScore(p.success, p.fail, now.Sub(p.createdAt))
}

// Available reports whether the proxy is out of cooldown.
func (p *Proxy) Available(now time.Time) bool {
	return !now.Before(p.cooldownUntil)
}

// MarkSuccess records a successful request. An active cooldown is
// shortened by SuccessCooldownReduction, but never below now, giving a
// penalized proxy a faster path back into rotation. An expired cooldown
// is left untouched; success never extends one.
func (p *Proxy) MarkSuccess(now time.Time) {
	p.success++
	p.lastUsed = now
	if p.cooldownUntil.After(now) {
		reduced := p.cooldownUntil.Add(-SuccessCooldownReduction)
		if reduced.Before(now) {
			reduced = now
		}
		p.cooldownUntil = reduced
	}
}

// MarkFail records a failed request and extends the cooldown by the
// scaled penalty. Cooldowns only ever move forward on failure: the new
// deadline is the later of the existing one and now+penalty.
func (p *Proxy) MarkFail(now time.Time, soft bool) {
	p.fail++
	p.lastUsed = now
	deadline := now.Add(FailPenalty(soft, p.fail))
	if deadline.After(p.cooldownUntil) {
		p.cooldownUntil = deadline
	}
}

// Success returns the accumulated success count.
func (p *Proxy) Success() int { return p.success }

// Fail returns the accumulated failure count.
func (p *Proxy) Fail() int { return p.fail }

// Attempts returns the total number of recorded attempts.
func (p *Proxy) Attempts() int { return p.success + p.fail }

// LastUsed returns the time of the most recent mark.
func (p *Proxy) LastUsed() time.Time { return p.lastUsed }

// CooldownUntil returns the current cooldown deadline.
func (p *Proxy) CooldownUntil() time.Time { return p.cooldownUntil }

// CreatedAt returns the construction time used for age decay.
func (p *Proxy) CreatedAt() time.Time { return p.createdAt }

// URL renders the proxy endpoint for http.Transport.Proxy.
func (p *Proxy) URL() *url.URL {
	return &url.URL{
		Scheme: p.Protocol,
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
	}
}

// Addr renders the bare "host:port" form used by legacy consumers.
func (p *Proxy) Addr() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}

func (p *Proxy) String() string {
	return fmt.Sprintf("%s://%s:%d src=%s score=%.2f",
		p.Protocol, p.Host, p.Port, p.Source, p.Score(time.Now()))
}
