// Handles collection, item and search requests.

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server/dto"
)

// ObjectHandler handles the requests on the objects of a library.
type ObjectHandler struct {
	lib *library.Service
}

// NewObjectHandler creates a new object handler.
func NewObjectHandler(svc *Services) *ObjectHandler {
	return &ObjectHandler{lib: svc.Library}
}

// List returns the objects of one type, their keys or their versions.
func (h *ObjectHandler) List(ctx context.Context, req *dto.ListObjectsRequest) (*dto.ObjectsResponse, error) {
	typ := req.Type()
	res, err := h.lib.List(req.Library(), typ, &library.Query{
		Keys:  req.Keys(),
		Since: req.Since.Value,
		Start: req.Start,
		Limit: req.Limit,
		Q:     req.Q,
		QMode: library.QuickSearchMode(req.QMode),
	})
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	resp := &dto.ObjectsResponse{}
	resp.SetVersion(res.Version)
	if req.IfModified.NotModified(res.Version) {
		resp.SetStatus(http.StatusNotModified)
		return resp, nil
	}
	resp.SetTotal(res.Total)
	switch req.Format {
	case dto.FormatKeys:
		var b strings.Builder
		for _, o := range res.Objects {
			b.WriteString(o.Key)
			b.WriteByte('\n')
		}
		resp.SetText([]byte(b.String()))
	case dto.FormatVersions:
		resp.Versions = make(map[string]int64, len(res.Objects))
		for _, o := range res.Objects {
			resp.Versions[o.Key] = o.Version
		}
	default:
		resp.Objects = res.Objects
	}
	return resp, nil
}

// Get returns one object. If-Modified-Since-Version is compared with the
// version of the object.
func (h *ObjectHandler) Get(ctx context.Context, req *dto.GetObjectRequest) (*dto.ObjectResponse, error) {
	typ := req.Type()
	obj, v, err := h.lib.Get(req.Library(), typ, req.Key)
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	resp := &dto.ObjectResponse{Object: obj}
	resp.SetVersion(v)
	if req.IfModified.NotModified(obj.Version) {
		resp.SetStatus(http.StatusNotModified)
	}
	return resp, nil
}

// Write creates or updates a batch of objects.
func (h *ObjectHandler) Write(ctx context.Context, req *dto.WriteObjectsRequest) (*dto.WriteResponse, error) {
	typ := req.Type()
	res, err := h.lib.Write(req.Library(), typ, req.Body, req.IfUnmodified.OrAny())
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	resp := &dto.WriteResponse{WriteResult: res}
	resp.Meta.SetVersion(res.Version)
	return resp, nil
}

// Put replaces one object, creating it when it does not exist.
func (h *ObjectHandler) Put(ctx context.Context, req *dto.PutObjectRequest) (*dto.EmptyResponse, error) {
	return h.put(req, false)
}

// Patch updates the properties of one existing object.
func (h *ObjectHandler) Patch(ctx context.Context, req *dto.PutObjectRequest) (*dto.EmptyResponse, error) {
	return h.put(req, true)
}

func (h *ObjectHandler) put(req *dto.PutObjectRequest, patch bool) (*dto.EmptyResponse, error) {
	typ := req.Type()
	v, err := h.lib.Put(req.Library(), typ, req.Key, req.Body, req.IfUnmodified.OrAny(), patch)
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	return noContent(v), nil
}

// DeleteMany deletes the objects listed in the query string.
func (h *ObjectHandler) DeleteMany(ctx context.Context, req *dto.DeleteObjectsRequest) (*dto.EmptyResponse, error) {
	typ := req.Type()
	v, err := h.lib.Delete(req.Library(), typ, req.Keys(), req.IfUnmodified.OrAny())
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	return noContent(v), nil
}

// DeleteOne deletes one object.
func (h *ObjectHandler) DeleteOne(ctx context.Context, req *dto.DeleteObjectRequest) (*dto.EmptyResponse, error) {
	typ := req.Type()
	v, err := h.lib.DeleteOne(req.Library(), typ, req.Key, req.IfUnmodified.OrAny())
	if err != nil {
		return nil, libraryError(err, typ.Title())
	}
	return noContent(v), nil
}

func noContent(version int64) *dto.EmptyResponse {
	resp := &dto.EmptyResponse{}
	resp.SetVersion(version)
	resp.SetStatus(http.StatusNoContent)
	return resp
}
