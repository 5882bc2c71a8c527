package stealthfetch

import (
	"sync"
	"testing"

	"stealthfetch/proxypool"
	"stealthfetch/proxypool/discovery"
	"stealthfetch/proxypool/model"
)

type stubSource struct {
	mu      sync.Mutex
	calls   int
	proxies []*model.Proxy
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Scrape() ([]*model.Proxy, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.proxies, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stubProxies(n int) []*model.Proxy {
	out := make([]*model.Proxy, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.New("198.51.100.1", 8000+i, "http", "", "stub"))
	}
	return out
}

func providerRecords(n int) []proxypool.ProviderRecord {
	out := make([]proxypool.ProviderRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, proxypool.ProviderRecord{Address: "203.0.113.1", Port: 9000 + i})
	}
	return out
}

func TestNewPool_SeedsProviderFirstThenDiscovers(t *testing.T) {
	src := &stubSource{proxies: stubProxies(10)}
	pool := NewPool(Options{
		Limit:        5,
		ProviderData: providerRecords(2),
		Sources:      []discovery.Source{src},
	})

	if got := pool.Stats().Total; got != 5 {
		t.Errorf("pool total = %d, want provider 2 + discovered 3", got)
	}
	if src.callCount() != 1 {
		t.Errorf("source calls = %d, want 1", src.callCount())
	}
}

func TestNewPool_SkipsDiscoveryWhenProviderCoversLimit(t *testing.T) {
	src := &stubSource{proxies: stubProxies(10)}
	pool := NewPool(Options{
		Limit:        2,
		ProviderData: providerRecords(4),
		Sources:      []discovery.Source{src},
	})

	if got := pool.Stats().Total; got != 4 {
		t.Errorf("pool total = %d, want all 4 provider records", got)
	}
	if src.callCount() != 0 {
		t.Errorf("discovery ran despite provider records covering the limit, calls = %d", src.callCount())
	}
}

func TestNewPool_DefaultLimit(t *testing.T) {
	pool := NewPool(Options{ProviderData: providerRecords(1)})
	if got := pool.Stats().Total; got != 1 {
		t.Errorf("pool total = %d, want 1", got)
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s, err := NewSession(Options{ProviderData: providerRecords(1), Limit: 1})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s == nil {
		t.Fatal("session is nil")
	}
}
