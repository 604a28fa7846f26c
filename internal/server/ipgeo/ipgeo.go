// Package ipgeo resolves client addresses to countries with a MaxMind MMDB
// file and decides whether a country is refused service.
package ipgeo

import (
	"net/netip"
	"slices"
	"strings"

	"github.com/oschwald/maxminddb-golang/v2"
)

// Country codes returned for addresses that never reach the database.
const (
	Local   = "local"
	Carrier = "cgnat"
)

// Checker resolves IP addresses to ISO 3166-1 alpha-2 country codes.
//
// A nil *Checker is valid and resolves every public address to "".
type Checker struct {
	reader  *maxminddb.Reader
	blocked []string
}

// Open opens an MMDB file. blocked lists the upper case country codes
// refused by Blocked.
func Open(dbPath string, blocked []string) (*Checker, error) {
	r, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Checker{reader: r, blocked: normalize(blocked)}, nil
}

// Close releases the MMDB reader.
func (c *Checker) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// 100.64.0.0/10, shared by carrier grade NAT and Tailscale.
var carrierPrefix = netip.MustParsePrefix("100.64.0.0/10")

// CountryCode returns the country code of ip, Local for loopback, private,
// link local and unspecified addresses and Carrier for 100.64.0.0/10.
// Returns "" on parse or lookup failure.
func (c *Checker) CountryCode(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Local
	}
	if carrierPrefix.Contains(addr) {
		return Carrier
	}
	if c == nil || c.reader == nil {
		return ""
	}
	var rec countryRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// Blocked reports whether requests from country must be refused. Unknown
// and local addresses are never blocked.
func (c *Checker) Blocked(country string) bool {
	if c == nil || country == "" || country == Local || country == Carrier {
		return false
	}
	_, found := slices.BinarySearch(c.blocked, country)
	return found
}

func normalize(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, cc := range codes {
		if cc = strings.ToUpper(strings.TrimSpace(cc)); cc != "" {
			out = append(out, cc)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
