package discovery

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

const proxyListDownloadURL = "https://www.proxy-list.download/HTTP"

// ProxyListDownloadSource scrapes www.proxy-list.download's HTTP listing.
// The table carries no usable country code, so entries are left untagged
// for the geo resolver.
type ProxyListDownloadSource struct {
	client *http.Client
	url    string
}

// NewProxyListDownloadSource creates the source. An empty pageURL uses
// the live site; tests point it at a local server.
func NewProxyListDownloadSource(pageURL string) Source {
	if pageURL == "" {
		pageURL = proxyListDownloadURL
	}
	return &ProxyListDownloadSource{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		url: pageURL,
	}
}

// Name returns the source name.
func (s *ProxyListDownloadSource) Name() string {
	return "proxy-list.download"
}

// Scrape fetches the listing page and parses the proxy table.
func (s *ProxyListDownloadSource) Scrape() ([]*model.Proxy, error) {
	l := logger.WithComponent("Discovery")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	req, err := http.NewRequest("GET", s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page for %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", s.Name(), err)
	}

	var proxies []*model.Proxy
	doc.Find("table#example1 tbody#tabli tr").Each(func(j int, sel *goquery.Selection) {
		host := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())
		if host == "" || portStr == "" {
			return
		}

		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			l.Warn().Str("host", host).Str("port", portStr).Str("source", s.Name()).Msg("Failed to parse port, skipping.")
			return
		}

		proxies = append(proxies, model.New(host, port, "http", "", s.Name()))
	})

	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
