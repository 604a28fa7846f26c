// Handles library wide requests: changelog and tags.

package handlers

import (
	"context"
	"net/http"

	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server/dto"
)

// LibraryHandler handles the requests on a whole library.
type LibraryHandler struct {
	lib *library.Service
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(svc *Services) *LibraryHandler {
	return &LibraryHandler{lib: svc.Library}
}

// Deleted returns the keys deleted after the version in "newer".
func (h *LibraryHandler) Deleted(ctx context.Context, req *dto.DeletedRequest) (*dto.DeletedResponse, error) {
	tomb, v := h.lib.Deleted(req.Library(), req.Newer.Value)
	resp := &dto.DeletedResponse{Tombstones: tomb}
	resp.SetVersion(v)
	if req.IfModified.NotModified(v) {
		resp.SetStatus(http.StatusNotModified)
	}
	return resp, nil
}

// Tags lists the tags in use and how many items carry each.
func (h *LibraryHandler) Tags(ctx context.Context, req *dto.ListTagsRequest) (*dto.TagsResponse, error) {
	tags, v := h.lib.Tags(req.Library())
	resp := &dto.TagsResponse{Tags: tags}
	resp.SetVersion(v)
	resp.SetTotal(len(tags))
	if req.IfModified.NotModified(v) {
		resp.SetStatus(http.StatusNotModified)
	}
	return resp, nil
}

// DeleteTags removes tags from every item of the library.
func (h *LibraryHandler) DeleteTags(ctx context.Context, req *dto.DeleteTagsRequest) (*dto.EmptyResponse, error) {
	v, err := h.lib.DeleteTags(req.Library(), req.Tags(), req.IfUnmodified.OrAny())
	if err != nil {
		return nil, libraryError(err, "Tag")
	}
	return noContent(v), nil
}
