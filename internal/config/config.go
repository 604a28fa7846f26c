// Package config manages the server configuration stored in
// server_config.json.
//
// The file accepts comments and trailing commas. It is created with
// defaults and a random secret when missing.
package config

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/maruel/bibdb/internal/library"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "server_config.json"

// ServerConfig stores all server-wide configuration.
type ServerConfig struct {
	// JWTSecret signs the API keys. Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret" validate:"min=32"`

	// RequireAuth enforces API keys on library routes. When false every
	// library is readable and writable anonymously.
	RequireAuth bool `json:"require_auth"`

	// Limits bounds the size of uploaded data.
	Limits library.Limits `json:"limits"`

	// Quotas defines request size limits.
	Quotas Quotas `json:"quotas"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`

	// BlockedCountries lists ISO 3166-1 alpha-2 country codes whose
	// requests are refused. Only effective with a geolocation database.
	BlockedCountries []string `json:"blocked_countries,omitempty" validate:"dive,len=2,uppercase"`

	// Git records every mutating request as a commit of the data directory.
	Git Git `json:"git"`
}

// Quotas defines request size limits.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes" validate:"gte=0"`
}

// RateLimits defines rate limiting configuration (requests per minute).
// 0 means unlimited.
type RateLimits struct {
	// WriteRatePerMin limits write operations (POST/PUT/PATCH/DELETE).
	WriteRatePerMin int `json:"write_rate_per_min" validate:"gte=0"`
	// ReadAuthRatePerMin limits reads made with an API key.
	ReadAuthRatePerMin int `json:"read_auth_rate_per_min" validate:"gte=0"`
	// ReadUnauthRatePerMin limits anonymous reads.
	ReadUnauthRatePerMin int `json:"read_unauth_rate_per_min" validate:"gte=0"`
}

// Git configures the history of the data directory.
type Git struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		WriteRatePerMin:      600,
		ReadAuthRatePerMin:   30000,
		ReadUnauthRatePerMin: 6000,
	}
}

// DefaultQuotas returns the default quotas.
func DefaultQuotas() Quotas {
	return Quotas{MaxRequestBodyBytes: 10 * 1024 * 1024}
}

// Default returns the configuration used for a missing file, without a
// secret.
func Default() *ServerConfig {
	return &ServerConfig{
		RequireAuth: true,
		Limits:      library.DefaultLimits(),
		Quotas:      DefaultQuotas(),
		RateLimits:  DefaultRateLimits(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("jwt_secret is required")
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Load loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func Load(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	if !missing {
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
		d := json.NewDecoder(bytes.NewReader(std))
		d.DisallowUnknownFields()
		if err := d.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	}

	modified := false
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if cfg.Limits == (library.Limits{}) {
		cfg.Limits = library.DefaultLimits()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	if modified || missing {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dataDir, FileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	// atomic.WriteFile keeps the mode of an existing file only.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
