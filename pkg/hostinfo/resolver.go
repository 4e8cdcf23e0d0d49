// Package hostinfo enriches host addresses with geolocation, ownership and
// history so the viewer can place, colour and describe them.
package hostinfo

import (
	"log"
	"net"
	"net/netip"
	"strings"

	"github.com/biter777/countries"
	"github.com/cloudflare/ahocorasick"
	"github.com/oschwald/maxminddb-golang"
)

// Info is what is known about a host when it first shows up.
type Info struct {
	Country     string // ISO 3166-1 alpha-2
	CountryName string
	Org         string
	Label       string
	Lat, Lng    float64
	HasLocation bool
	Private     bool
	FirstSeen   bool
	Highlight   bool
}

// mmdbRecord covers both the ipinfo lite layout and the MaxMind City/ASN layouts.
type mmdbRecord struct {
	Country     any    `maxminddb:"country"`
	CountryCode string `maxminddb:"country_code"`
	ASName      string `maxminddb:"as_name"`
	ASOrg       string `maxminddb:"autonomous_system_organization"`
	Location    struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

func (r *mmdbRecord) countryCode() string {
	if r.CountryCode != "" {
		return strings.ToUpper(r.CountryCode)
	}
	if m, ok := r.Country.(map[string]any); ok {
		if iso, ok := m["iso_code"].(string); ok {
			return strings.ToUpper(iso)
		}
	}
	return ""
}

// Resolver combines the optional GeoIP database, label store and highlight
// watchlist. Any of them may be absent.
type Resolver struct {
	geo     *maxminddb.Reader
	store   *Store
	matcher *ahocorasick.Matcher
}

func NewResolver(geo *maxminddb.Reader, store *Store, highlight []string) *Resolver {
	r := &Resolver{geo: geo, store: store}
	var words []string
	for _, w := range highlight {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, strings.ToLower(w))
		}
	}
	if len(words) > 0 {
		r.matcher = ahocorasick.NewStringMatcher(words)
	}
	return r
}

// OpenResolver opens the GeoIP database and host store at the given paths.
// Empty paths disable the corresponding lookup.
func OpenResolver(mmdbPath, storePath string, highlight []string) (*Resolver, error) {
	var geo *maxminddb.Reader
	if mmdbPath != "" {
		var err error
		geo, err = maxminddb.Open(mmdbPath)
		if err != nil {
			return nil, err
		}
		log.Printf("[GEO] Loaded %s (%s)", mmdbPath, geo.Metadata.DatabaseType)
	}
	var store *Store
	if storePath != "" {
		var err error
		store, err = OpenStore(storePath)
		if err != nil {
			if geo != nil {
				geo.Close()
			}
			return nil, err
		}
		if n, err := store.SeenCount(); err == nil {
			log.Printf("[SEEN] %d hosts known from previous sessions", n)
		}
	}
	return NewResolver(geo, store, highlight), nil
}

// Store returns the label store, if one was opened.
func (r *Resolver) Store() *Store {
	return r.store
}

func (r *Resolver) Close() error {
	var firstErr error
	if r.geo != nil {
		firstErr = r.geo.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resolve gathers everything known about addr. Lookup failures are logged and
// leave the corresponding fields empty.
func (r *Resolver) Resolve(addr netip.Addr) Info {
	addr = addr.Unmap()
	info := Info{
		Private: addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast(),
	}

	if r.geo != nil && !info.Private {
		var rec mmdbRecord
		if err := r.geo.Lookup(net.IP(addr.AsSlice()), &rec); err != nil {
			log.Printf("[GEO] Lookup %s failed: %v", addr, err)
		} else {
			info.Country = rec.countryCode()
			info.CountryName = CountryName(info.Country)
			info.Org = rec.ASName
			if info.Org == "" {
				info.Org = rec.ASOrg
			}
			if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
				info.Lat, info.Lng = rec.Location.Latitude, rec.Location.Longitude
				info.HasLocation = true
			}
		}
	}

	if r.store != nil {
		label, err := r.store.Label(addr)
		if err != nil {
			log.Printf("[SEEN] Label lookup %s failed: %v", addr, err)
		}
		info.Label = label
		isNew, err := r.store.MarkSeen(addr)
		if err != nil {
			log.Printf("[SEEN] Failed to update seen database: %v", err)
		}
		info.FirstSeen = isNew
	}

	if r.matcher != nil {
		haystack := strings.ToLower(strings.Join([]string{info.Org, info.Label, info.CountryName}, " "))
		info.Highlight = len(r.matcher.MatchThreadSafe([]byte(haystack))) > 0
	}
	return info
}

// CountryName turns an ISO code into a short display name.
func CountryName(cc string) string {
	if cc == "" {
		return ""
	}
	name := countries.ByName(cc).String()
	if name == "Unknown" {
		return cc
	}
	if idx := strings.Index(name, " ("); idx != -1 {
		name = name[:idx]
	}
	return name
}
