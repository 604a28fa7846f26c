// Defines shared service dependencies for handlers.

// Package handlers implements the HTTP API operations on top of the library
// service.
package handlers

import (
	"github.com/maruel/bibdb/internal/config"
	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server/ipgeo"
	"github.com/maruel/bibdb/internal/storage/git"
)

// Services holds all service dependencies for handlers.
type Services struct {
	Library *library.Service
	Repo    *git.Repo      // may be nil
	Geo     *ipgeo.Checker // may be nil
}

// Config holds configuration values needed by handlers.
type Config struct {
	JWTSecret   []byte
	RequireAuth bool
	Version     string
	Quotas      config.Quotas
}
