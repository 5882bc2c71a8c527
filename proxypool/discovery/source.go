package discovery

import (
	"strings"
	"sync"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

// scrapeUserAgent is sent by every source when fetching public listings.
const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// Source produces proxy candidates from one public listing.
type Source interface {
	// Scrape fetches and parses the listing. Implementations only scrape
	// and parse; reachability checking happens elsewhere.
	Scrape() ([]*model.Proxy, error)

	// Name returns the source name for logging.
	Name() string
}

// Gather runs every source concurrently and merges their results,
// best-effort filtering by country and trimming to limit. A failing
// source is logged and skipped so it never takes the others down with it.
// When geo is non-nil it fills missing country tags before filtering;
// candidates whose country remains unknown pass the filter.
func Gather(sources []Source, limit int, country string, geo GeoResolver) []*model.Proxy {
	l := logger.WithComponent("Discovery")
	if limit <= 0 || len(sources) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	scrapedChan := make(chan []*model.Proxy, len(sources))

	for _, s := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			proxies, err := src.Scrape()
			if err != nil {
				l.Warn().Err(err).Str("source", src.Name()).Msg("Source failed.")
				return
			}
			if len(proxies) > 0 {
				scrapedChan <- proxies
			}
		}(s)
	}

	wg.Wait()
	close(scrapedChan)

	merged := make([]*model.Proxy, 0, limit)
	for proxies := range scrapedChan {
		for _, p := range proxies {
			if len(merged) >= limit {
				break
			}
			if p.Country == "" && geo != nil {
				p.Country = geo.Country(p.Host)
			}
			if country != "" && p.Country != "" && !strings.EqualFold(p.Country, country) {
				continue
			}
			merged = append(merged, p)
		}
	}

	l.Info().Int("count", len(merged)).Int("limit", limit).Msg("Gather finished.")
	return merged
}
