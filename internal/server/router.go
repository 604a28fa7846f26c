// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/bibdb/internal/server/handlers"
	"github.com/maruel/bibdb/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
//
// Library routes live under /users/{id} and /groups/{id}. GET routes also
// serve HEAD requests.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, limiters *ratelimit.Limiters) http.Handler {
	mux := &http.ServeMux{}
	oh := handlers.NewObjectHandler(svc)
	lh := handlers.NewLibraryHandler(svc)
	sh := handlers.NewSchemaHandler(svc)
	kh := handlers.NewKeyHandler()
	hh := handlers.NewHealthHandler(cfg.Version)

	// Health check
	mux.Handle("GET /health", Wrap(hh.Health, svc, cfg, limiters))

	// Schema endpoints
	mux.Handle("GET /schema", Wrap(sh.Schema, svc, cfg, limiters))
	mux.Handle("GET /itemTypes", Wrap(sh.ItemTypes, svc, cfg, limiters))
	mux.Handle("GET /itemFields", Wrap(sh.ItemFields, svc, cfg, limiters))
	mux.Handle("GET /itemTypeCreatorTypes", Wrap(sh.CreatorTypes, svc, cfg, limiters))
	mux.Handle("GET /items/new", Wrap(sh.NewItem, svc, cfg, limiters))

	// Key endpoints
	mux.Handle("GET /keys/current", Wrap(kh.CurrentKey, svc, cfg, limiters))

	// Library endpoints
	mux.Handle("GET /{libraryType}/{libraryID}/deleted", Wrap(lh.Deleted, svc, cfg, limiters))
	mux.Handle("GET /{libraryType}/{libraryID}/tags", Wrap(lh.Tags, svc, cfg, limiters))
	mux.Handle("DELETE /{libraryType}/{libraryID}/tags", Wrap(lh.DeleteTags, svc, cfg, limiters))

	// Object endpoints: collections, items and searches
	mux.Handle("GET /{libraryType}/{libraryID}/{objectType}", Wrap(oh.List, svc, cfg, limiters))
	mux.Handle("POST /{libraryType}/{libraryID}/{objectType}", Wrap(oh.Write, svc, cfg, limiters))
	mux.Handle("DELETE /{libraryType}/{libraryID}/{objectType}", Wrap(oh.DeleteMany, svc, cfg, limiters))
	mux.Handle("GET /{libraryType}/{libraryID}/{objectType}/{key}", Wrap(oh.Get, svc, cfg, limiters))
	mux.Handle("PUT /{libraryType}/{libraryID}/{objectType}/{key}", Wrap(oh.Put, svc, cfg, limiters))
	mux.Handle("PATCH /{libraryType}/{libraryID}/{objectType}/{key}", Wrap(oh.Patch, svc, cfg, limiters))
	mux.Handle("DELETE /{libraryType}/{libraryID}/{objectType}/{key}", Wrap(oh.DeleteOne, svc, cfg, limiters))

	return geoFilter(svc.Geo, logRequests(mux))
}
