// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"time"

	"github.com/maruel/bibdb/internal/config"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeKey uses the user of the API key as the rate limit key.
	ScopeKey
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Limiters holds the rate limiters of each tier. A nil tier is unlimited.
type Limiters struct {
	Write      *Tier
	ReadAuth   *Tier // read with an API key
	ReadUnauth *Tier // anonymous read
}

// New creates the limiters for the configured rates. The burst of each tier
// is a sixth of its rate per minute, at least 1.
func New(c config.RateLimits) *Limiters {
	return &Limiters{
		Write:      newTier("write", c.WriteRatePerMin, ScopeKey),
		ReadAuth:   newTier("read", c.ReadAuthRatePerMin, ScopeKey),
		ReadUnauth: newTier("read", c.ReadUnauthRatePerMin, ScopeIP),
	}
}

func newTier(name string, perMin int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(perMin/6, 1)), Scope: scope}
}

// Match returns the tier of a request. Returns nil for requests that are
// not rate limited.
func (l *Limiters) Match(method, path string, authenticated bool) *Tier {
	if l == nil || path == "/health" {
		return nil
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return l.Write
	}
	if authenticated {
		return l.ReadAuth
	}
	return l.ReadUnauth
}

// Close stops all limiter cleanup goroutines.
func (l *Limiters) Close() {
	for _, t := range []*Tier{l.Write, l.ReadAuth, l.ReadUnauth} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
