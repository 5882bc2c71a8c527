package model

import (
	"testing"
	"time"
)

func TestHealthScore_Bounds(t *testing.T) {
	cases := []struct {
		name          string
		success, fail int
		age           time.Duration
	}{
		{"no history", 0, 0, 0},
		{"perfect ratio", 50, 0, time.Minute},
		{"all failures", 0, 50, time.Minute},
		{"very old perfect", 100, 0, 1000 * time.Hour},
		{"very old terrible", 0, 100, 1000 * time.Hour},
		{"negative age", 5, 5, -time.Hour},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := HealthScore(c.success, c.fail, c.age)
			if got < 0.0 || got > 1.0 {
				t.Errorf("HealthScore(%d, %d, %v) = %v, want within [0,1]", c.success, c.fail, c.age, got)
			}
		})
	}
}

func TestHealthScore_NoHistoryIsNeutral(t *testing.T) {
	got := HealthScore(0, 0, 0)
	if got < 0.4 || got > 0.6 {
		t.Errorf("fresh score = %v, want within [0.4, 0.6]", got)
	}
}

func TestHealthScore_SuccessesApproachOne(t *testing.T) {
	got := HealthScore(20, 0, time.Second)
	if got < 0.99 {
		t.Errorf("score after 20 successes with negligible age = %v, want >= 0.99", got)
	}
}

func TestHealthScore_AgeDecayIsCapped(t *testing.T) {
	const eps = 1e-9
	// 2 hours of age removes 0.10; anything past 4 hours is pinned at 0.20.
	if got := HealthScore(10, 0, 2*time.Hour); got < 0.9-eps || got > 0.9+eps {
		t.Errorf("score at 2h = %v, want 0.9", got)
	}
	if got := HealthScore(10, 0, 400*time.Hour); got < 0.8-eps || got > 0.8+eps {
		t.Errorf("score at 400h = %v, want 0.8 (decay capped)", got)
	}
}

func TestFailPenalty_Scaling(t *testing.T) {
	cases := []struct {
		soft      bool
		failCount int
		want      time.Duration
	}{
		{true, 1, 20 * time.Second},
		{true, 2, 20 * time.Second},
		{true, 3, 40 * time.Second},
		{true, 6, 60 * time.Second},
		{true, 30, 60 * time.Second},
		{false, 1, 90 * time.Second},
		{false, 3, 180 * time.Second},
		{false, 6, 270 * time.Second},
		{false, 100, 270 * time.Second},
	}
	for _, c := range cases {
		if got := FailPenalty(c.soft, c.failCount); got != c.want {
			t.Errorf("FailPenalty(soft=%v, failCount=%d) = %v, want %v", c.soft, c.failCount, got, c.want)
		}
	}
}

func TestProxy_Defaults(t *testing.T) {
	p := New("1.2.3.4", 8080, "", "", "")
	if p.Protocol != "http" {
		t.Errorf("default protocol = %q, want %q", p.Protocol, "http")
	}
	if p.Source != "public" {
		t.Errorf("default source = %q, want %q", p.Source, "public")
	}

	p = New("1.2.3.4", 8080, "HTTPS", "US", "provider")
	if p.Protocol != "https" {
		t.Errorf("protocol = %q, want lower-cased %q", p.Protocol, "https")
	}
}

func TestProxy_FreshScore(t *testing.T) {
	p := New("1.2.3.4", 8080, "http", "", "")
	score := p.Score(time.Now())
	if score < 0.4 || score > 0.6 {
		t.Errorf("fresh proxy score = %v, want within [0.4, 0.6]", score)
	}
}

func TestProxy_MarkFail_CooldownNeverShrinks(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := Restore("1.2.3.4", 8080, "http", "", "public", 0, 0, time.Time{}, time.Time{}, now)

	var prev time.Time
	for i := 0; i < 12; i++ {
		p.MarkFail(now, false)
		cd := p.CooldownUntil()
		if cd.Before(prev) {
			t.Fatalf("cooldown shrank after fail %d: %v -> %v", i+1, prev, cd)
		}
		prev = cd
	}

	// The multiplier is capped at 3x the hard penalty.
	wantMax := now.Add(MaxPenaltyMultiplier * HardFailPenalty)
	if prev.After(wantMax) {
		t.Errorf("cooldown = %v, want capped at %v", prev, wantMax)
	}
	if prev != wantMax {
		t.Errorf("cooldown after 12 hard fails = %v, want %v", prev, wantMax)
	}
	if p.Fail() != 12 {
		t.Errorf("fail count = %d, want 12", p.Fail())
	}
}

func TestProxy_MarkSuccess_NeverExtendsCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// No cooldown at all: stays zero.
	p := Restore("1.2.3.4", 8080, "http", "", "public", 0, 0, time.Time{}, time.Time{}, now)
	p.MarkSuccess(now)
	if !p.CooldownUntil().IsZero() {
		t.Errorf("success on never-penalized proxy set cooldown to %v", p.CooldownUntil())
	}

	// Active cooldown: reduced by the redemption amount.
	p.MarkFail(now, true) // 20s penalty
	before := p.CooldownUntil()
	p.MarkSuccess(now)
	after := p.CooldownUntil()
	if after.After(before) {
		t.Errorf("success extended cooldown: %v -> %v", before, after)
	}
	if want := before.Add(-SuccessCooldownReduction); after != want {
		t.Errorf("cooldown after success = %v, want %v", after, want)
	}

	// Near-expired cooldown: clamped to now, never before.
	p2 := Restore("1.2.3.4", 8080, "http", "", "public", 0, 1, now, now.Add(2*time.Second), now)
	p2.MarkSuccess(now)
	if p2.CooldownUntil() != now {
		t.Errorf("cooldown = %v, want clamped to now %v", p2.CooldownUntil(), now)
	}

	// Expired cooldown in the past: untouched.
	past := now.Add(-time.Minute)
	p3 := Restore("1.2.3.4", 8080, "http", "", "public", 0, 1, past, past, now.Add(-time.Hour))
	p3.MarkSuccess(now)
	if p3.CooldownUntil() != past {
		t.Errorf("success rewrote an expired cooldown: %v -> %v", past, p3.CooldownUntil())
	}
}

func TestProxy_Availability(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := Restore("1.2.3.4", 8080, "http", "", "public", 0, 0, time.Time{}, time.Time{}, now)

	if !p.Available(now) {
		t.Fatal("fresh proxy should be available")
	}

	p.MarkFail(now, true)
	if p.Available(now) {
		t.Error("proxy should be cooling down right after a failure")
	}
	if !p.Available(now.Add(SoftFailPenalty)) {
		t.Error("proxy should be available once the cooldown deadline passes")
	}
}

func TestProxy_CountersMonotonic(t *testing.T) {
	now := time.Now()
	p := New("1.2.3.4", 8080, "http", "", "")
	for i := 1; i <= 5; i++ {
		p.MarkSuccess(now)
		if p.Success() != i {
			t.Fatalf("success count = %d, want %d", p.Success(), i)
		}
	}
	for i := 1; i <= 5; i++ {
		p.MarkFail(now, i%2 == 0)
		if p.Fail() != i {
			t.Fatalf("fail count = %d, want %d", p.Fail(), i)
		}
	}
	if p.Attempts() != 10 {
		t.Errorf("attempts = %d, want 10", p.Attempts())
	}
}

func TestProxy_Rendering(t *testing.T) {
	p := New("10.0.0.7", 3128, "https", "DE", "provider")
	if got := p.URL().String(); got != "https://10.0.0.7:3128" {
		t.Errorf("URL() = %q, want %q", got, "https://10.0.0.7:3128")
	}
	if got := p.Addr(); got != "10.0.0.7:3128" {
		t.Errorf("Addr() = %q, want %q", got, "10.0.0.7:3128")
	}
}
