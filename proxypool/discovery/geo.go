package discovery

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoResolver maps a proxy host to an ISO country code. Resolvers return
// "" for hosts they cannot place; Gather treats that as "unknown" rather
// than an error.
type GeoResolver interface {
	Country(host string) string
}

// GeoLite2Resolver resolves countries from a local MaxMind database, so
// discovery stays off the network for geo lookups.
type GeoLite2Resolver struct {
	db *geoip2.Reader
}

// NewGeoLite2Resolver opens the mmdb file at path.
func NewGeoLite2Resolver(path string) (*GeoLite2Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoLite2 database: %w", err)
	}
	return &GeoLite2Resolver{db: db}, nil
}

// Country returns the ISO code for the host, or "" when the host is not
// an IP literal or has no record.
func (r *GeoLite2Resolver) Country(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	record, err := r.db.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database handle.
func (r *GeoLite2Resolver) Close() error {
	return r.db.Close()
}
