// Package geo resolves client IPs to a coarse location.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// Locator resolves an IP address. Unknown addresses yield an empty Geo.
type Locator interface {
	Locate(ip string) domain.Geo
}

// Open returns a GeoIP2 backed locator, or Nop when path is empty.
func Open(path string) (Locator, error) {
	if path == "" {
		return Nop{}, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Reader{db: reader}, nil
}

type Reader struct {
	db *geoip2.Reader
}

func (r *Reader) Locate(ip string) domain.Geo {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsPrivate() || addr.IsLoopback() {
		return domain.Geo{}
	}

	record, err := r.db.City(addr)
	if err != nil {
		return domain.Geo{}
	}

	g := domain.Geo{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		g.Region = record.Subdivisions[0].Names["en"]
	}
	return g
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// Nop resolves nothing.
type Nop struct{}

func (Nop) Locate(string) domain.Geo { return domain.Geo{} }
