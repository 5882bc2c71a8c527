package discovery

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

const defaultCheckTarget = "https://www.gstatic.com/generate_204"

// Checker filters proxy candidates by issuing a HEAD request through each
// one before they are admitted to the pool, so obviously dead listings
// never pollute rotation.
type Checker struct {
	target      string
	timeout     time.Duration
	concurrency int
}

// NewChecker creates a checker. An empty target uses the default
// generate_204 endpoint; non-positive timeout and concurrency fall back
// to 8s and 5.
func NewChecker(target string, timeout time.Duration, concurrency int) *Checker {
	if target == "" {
		target = defaultCheckTarget
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Checker{
		target:      target,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Check probes every candidate through a bounded worker set and returns
// the ones that answered. Result order is not preserved.
func (c *Checker) Check(proxies []*model.Proxy) []*model.Proxy {
	l := logger.WithComponent("Discovery/Checker")
	if len(proxies) == 0 {
		return proxies
	}

	l.Info().Int("count", len(proxies)).Int("concurrency", c.concurrency).Msg("Starting reachability check...")

	var wg sync.WaitGroup
	resultsChan := make(chan *model.Proxy, len(proxies))
	semaphore := make(chan struct{}, c.concurrency)

	for _, p := range proxies {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(proxy *model.Proxy) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.checkOne(proxy); err != nil {
				l.Debug().Err(err).Str("proxy", proxy.Addr()).Msg("Proxy failed reachability check.")
				return
			}
			resultsChan <- proxy
		}(p)
	}

	wg.Wait()
	close(resultsChan)

	alive := make([]*model.Proxy, 0, len(proxies))
	for p := range resultsChan {
		alive = append(alive, p)
	}

	l.Info().Int("alive", len(alive)).Int("dropped", len(proxies)-len(alive)).Msg("Reachability check finished.")
	return alive
}

// checkOne issues one HEAD request to the target through the proxy.
func (c *Checker) checkOne(p *model.Proxy) error {
	dialer := &net.Dialer{
		Timeout:   c.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(p.URL()),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       c.timeout,
		TLSHandshakeTimeout:   c.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}

	req, err := http.NewRequest("HEAD", c.target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}
