package ipgeo

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCarrierPrefix(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"100.64.0.1", true},
		{"100.127.255.254", true},
		{"100.63.255.255", false},
		{"100.128.0.0", false},
	}
	for _, tt := range tests {
		addr := netip.MustParseAddr(tt.ip)
		if got := carrierPrefix.Contains(addr); got != tt.want {
			t.Errorf("carrierPrefix.Contains(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestCountryCodeWithoutDatabase(t *testing.T) {
	// Local addresses never reach the reader.
	var c *Checker
	tests := []struct {
		ip   string
		want string
	}{
		{"127.0.0.1", Local},
		{"::1", Local},
		{"::ffff:10.0.0.1", Local},
		{"10.0.0.1", Local},
		{"192.168.1.1", Local},
		{"172.16.0.1", Local},
		{"0.0.0.0", Local},
		{"169.254.1.1", Local},
		{"fe80::1", Local},
		{"100.64.0.1", Carrier},
		{"8.8.8.8", ""},
		{"not-an-ip", ""},
	}
	for _, tt := range tests {
		if got := c.CountryCode(tt.ip); got != tt.want {
			t.Errorf("CountryCode(%q) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}

func TestBlocked(t *testing.T) {
	c := &Checker{blocked: normalize([]string{"kp", " IR", "KP", ""})}
	if diff := cmp.Diff([]string{"IR", "KP"}, c.blocked); diff != "" {
		t.Errorf("normalize() mismatch (-want +got):\n%s", diff)
	}
	tests := []struct {
		country string
		want    bool
	}{
		{"KP", true},
		{"IR", true},
		{"CA", false},
		{"", false},
		{Local, false},
		{Carrier, false},
	}
	for _, tt := range tests {
		if got := c.Blocked(tt.country); got != tt.want {
			t.Errorf("Blocked(%q) = %v, want %v", tt.country, got, tt.want)
		}
	}
	var none *Checker
	if none.Blocked("KP") {
		t.Error("nil Checker blocked")
	}
	if err := none.Close(); err != nil {
		t.Error(err)
	}
}
