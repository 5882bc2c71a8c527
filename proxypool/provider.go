package proxypool

import (
	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

// ProviderRecord is one entry of a provider proxy feed, as delivered by
// the provider's API or a local JSON data file.
type ProviderRecord struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
	Country  string `json:"country,omitempty"`
	Source   string `json:"source,omitempty"`
}

// FromProviderRecords converts feed records into pool entries. Records
// missing an address or carrying an out-of-range port are skipped with a
// warning; a bad record never aborts the batch. No network I/O happens
// here.
func FromProviderRecords(records []ProviderRecord) []*model.Proxy {
	l := logger.WithComponent("ProxyPool")

	out := make([]*model.Proxy, 0, len(records))
	for _, r := range records {
		if r.Address == "" || r.Port < 1 || r.Port > 65535 {
			l.Warn().Str("address", r.Address).Int("port", r.Port).Msg("Skipping malformed provider record.")
			continue
		}
		source := r.Source
		if source == "" {
			source = "provider"
		}
		out = append(out, model.New(r.Address, r.Port, r.Protocol, r.Country, source))
	}
	return out
}
