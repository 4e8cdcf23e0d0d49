package hostinfo

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strings"
)

// CloudPrefix is one published address block of a cloud or hosting provider.
type CloudPrefix struct {
	Prefix   netip.Prefix
	Provider string
	Service  string
	Region   string
}

// Label is the text stored for hosts inside the prefix, e.g. "AWS EC2 us-east-1".
func (p CloudPrefix) Label() string {
	parts := []string{p.Provider}
	if p.Service != "" && !strings.EqualFold(p.Service, p.Provider) {
		parts = append(parts, p.Service)
	}
	if p.Region != "" {
		parts = append(parts, p.Region)
	}
	return strings.Join(parts, " ")
}

// CloudRanges lists the providers whose ranges can be imported by name.
var CloudRanges = map[string]struct {
	URL   string
	Parse func(io.Reader) ([]CloudPrefix, error)
}{
	"aws":          {"https://ip-ranges.amazonaws.com/ip-ranges.json", ParseAWSRanges},
	"google":       {"https://www.gstatic.com/ipranges/cloud.json", ParseGoogleRanges},
	"oracle":       {"https://docs.oracle.com/en-us/iaas/tools/public_ip_ranges.json", ParseOracleRanges},
	"digitalocean": {"https://digitalocean.com/geo/google.csv", geofeedParser("DigitalOcean")},
}

// CloudProviders returns the names accepted by CloudRanges, sorted.
func CloudProviders() []string {
	names := make([]string, 0, len(CloudRanges))
	for name := range CloudRanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ParseAWSRanges(r io.Reader) ([]CloudPrefix, error) {
	var aws struct {
		Prefixes []struct {
			IPPrefix string `json:"ip_prefix"`
			Region   string `json:"region"`
			Service  string `json:"service"`
		} `json:"prefixes"`
		IPv6Prefixes []struct {
			IPv6Prefix string `json:"ipv6_prefix"`
			Region     string `json:"region"`
			Service    string `json:"service"`
		} `json:"ipv6_prefixes"`
	}
	if err := json.NewDecoder(r).Decode(&aws); err != nil {
		return nil, fmt.Errorf("decode aws ranges: %w", err)
	}

	var results []CloudPrefix
	add := func(cidr, region, service string) {
		if p, err := netip.ParsePrefix(cidr); err == nil {
			results = append(results, CloudPrefix{Prefix: p.Masked(), Provider: "AWS", Service: service, Region: region})
		}
	}
	for _, p := range aws.Prefixes {
		add(p.IPPrefix, p.Region, p.Service)
	}
	for _, p := range aws.IPv6Prefixes {
		add(p.IPv6Prefix, p.Region, p.Service)
	}
	return results, nil
}

func ParseGoogleRanges(r io.Reader) ([]CloudPrefix, error) {
	var goog struct {
		Prefixes []struct {
			IPv4Prefix string `json:"ipv4Prefix"`
			IPv6Prefix string `json:"ipv6Prefix"`
			Service    string `json:"service"`
			Scope      string `json:"scope"`
		} `json:"prefixes"`
	}
	if err := json.NewDecoder(r).Decode(&goog); err != nil {
		return nil, fmt.Errorf("decode google ranges: %w", err)
	}

	var results []CloudPrefix
	for _, g := range goog.Prefixes {
		cidr := g.IPv4Prefix
		if cidr == "" {
			cidr = g.IPv6Prefix
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		results = append(results, CloudPrefix{Prefix: p.Masked(), Provider: "Google", Service: g.Service, Region: g.Scope})
	}
	return results, nil
}

func ParseOracleRanges(r io.Reader) ([]CloudPrefix, error) {
	var oracle struct {
		Regions []struct {
			Region string `json:"region"`
			CIDRs  []struct {
				CIDR string   `json:"cidr"`
				Tags []string `json:"tags"`
			} `json:"cidrs"`
		} `json:"regions"`
	}
	if err := json.NewDecoder(r).Decode(&oracle); err != nil {
		return nil, fmt.Errorf("decode oracle ranges: %w", err)
	}

	var results []CloudPrefix
	for _, reg := range oracle.Regions {
		for _, c := range reg.CIDRs {
			p, err := netip.ParsePrefix(c.CIDR)
			if err != nil {
				continue
			}
			results = append(results, CloudPrefix{Prefix: p.Masked(), Provider: "OCI", Region: reg.Region})
		}
	}
	return results, nil
}

// ParseGeofeed reads an RFC 8805 geofeed: prefix,country,region,city,postal.
// The region is reported as "city, country" when a city is given.
func ParseGeofeed(r io.Reader, provider string) ([]CloudPrefix, error) {
	var results []CloudPrefix
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		record, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil || len(record) < 2 {
			continue
		}
		p, err := netip.ParsePrefix(strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}
		region := strings.TrimSpace(record[1])
		if len(record) >= 4 && strings.TrimSpace(record[3]) != "" {
			region = strings.TrimSpace(record[3]) + ", " + region
		}
		results = append(results, CloudPrefix{Prefix: p.Masked(), Provider: provider, Region: region})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read geofeed: %w", err)
	}
	return results, nil
}

func geofeedParser(provider string) func(io.Reader) ([]CloudPrefix, error) {
	return func(r io.Reader) ([]CloudPrefix, error) { return ParseGeofeed(r, provider) }
}

// CloudLabels turns prefixes into the CIDR -> label map accepted by Store.SetLabels.
func CloudLabels(prefixes []CloudPrefix) map[string]string {
	labels := make(map[string]string, len(prefixes))
	for _, p := range prefixes {
		labels[p.Prefix.String()] = p.Label()
	}
	return labels
}
