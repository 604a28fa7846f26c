package handlers

import (
	"context"
	"strconv"

	"github.com/maruel/bibdb/internal/server/dto"
	"github.com/maruel/bibdb/internal/server/reqctx"
)

// KeyHandler describes API keys.
type KeyHandler struct{}

// NewKeyHandler creates a new key handler.
func NewKeyHandler() *KeyHandler {
	return &KeyHandler{}
}

// CurrentKey returns the access granted by the key of the request.
func (h *KeyHandler) CurrentKey(ctx context.Context, req *dto.CurrentKeyRequest) (*dto.KeyResponse, error) {
	k := reqctx.APIKey(ctx)
	if k == nil {
		return nil, dto.Unauthorized("API key required")
	}
	resp := &dto.KeyResponse{
		UserID: k.UserID,
		Name:   k.Name,
		Access: dto.KeyAccess{User: &dto.LibraryAccess{Library: true, Write: k.Write}},
	}
	if len(k.Groups) != 0 {
		resp.Access.Groups = make(map[string]dto.LibraryAccess, len(k.Groups))
		for _, g := range k.Groups {
			resp.Access.Groups[strconv.FormatInt(g, 10)] = dto.LibraryAccess{Library: true, Write: k.Write}
		}
	}
	return resp, nil
}
