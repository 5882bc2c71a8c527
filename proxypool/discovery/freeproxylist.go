package discovery

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

const freeProxyListURL = "https://free-proxy-list.net/"

// FreeProxyListSource scrapes free-proxy-list.net, a plain HTML table of
// HTTP proxies that already carries ISO country codes.
type FreeProxyListSource struct {
	collector *colly.Collector
	url       string
}

// NewFreeProxyListSource creates the source. An empty pageURL uses the
// live site; tests point it at a local server.
func NewFreeProxyListSource(pageURL string) Source {
	if pageURL == "" {
		pageURL = freeProxyListURL
	}

	c := colly.NewCollector(
		colly.UserAgent(scrapeUserAgent),
	)
	c.SetRequestTimeout(20 * time.Second)

	return &FreeProxyListSource{
		collector: c,
		url:       pageURL,
	}
}

// Name returns the source name.
func (s *FreeProxyListSource) Name() string {
	return "free-proxy-list.net"
}

// Scrape fetches the listing page and parses the proxy table.
func (s *FreeProxyListSource) Scrape() ([]*model.Proxy, error) {
	l := logger.WithComponent("Discovery")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	var proxies []*model.Proxy
	var scrapeErr error
	var mu sync.Mutex

	s.collector.OnHTML("table.table tbody tr", func(e *colly.HTMLElement) {
		cells := e.ChildTexts("td")
		if len(cells) < 3 {
			return
		}
		host := strings.TrimSpace(cells[0])
		portStr := strings.TrimSpace(cells[1])
		country := strings.ToUpper(strings.TrimSpace(cells[2]))
		if host == "" || portStr == "" {
			return
		}

		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			l.Warn().Str("host", host).Str("port", portStr).Str("source", s.Name()).Msg("Failed to parse port, skipping.")
			return
		}

		mu.Lock()
		proxies = append(proxies, model.New(host, port, "http", country, s.Name()))
		mu.Unlock()
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		l.Error().Err(err).Str("url", r.Request.URL.String()).Msg("Scrape request failed.")
		scrapeErr = err
	})

	s.collector.Visit(s.url)
	s.collector.Wait()

	if scrapeErr != nil {
		return nil, scrapeErr
	}

	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
