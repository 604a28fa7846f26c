// Handles the item type schema requests.

package handlers

import (
	"context"

	"github.com/maruel/bibdb/internal/library/schema"
	"github.com/maruel/bibdb/internal/server/dto"
)

// SchemaHandler serves the item type schema.
type SchemaHandler struct {
	schema *schema.Schema
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(svc *Services) *SchemaHandler {
	return &SchemaHandler{schema: svc.Library.Schema()}
}

// Schema returns the whole schema.
func (h *SchemaHandler) Schema(ctx context.Context, req *dto.SchemaRequest) (*dto.SchemaResponse, error) {
	return &dto.SchemaResponse{Schema: h.schema}, nil
}

// ItemTypes lists the item types.
func (h *SchemaHandler) ItemTypes(ctx context.Context, req *dto.ItemTypesRequest) (*dto.ItemTypesResponse, error) {
	resp := &dto.ItemTypesResponse{ItemTypes: make([]dto.ItemTypeInfo, 0, len(h.schema.ItemTypes))}
	for i := range h.schema.ItemTypes {
		resp.ItemTypes = append(resp.ItemTypes, dto.ItemTypeInfo{ItemType: h.schema.ItemTypes[i].ItemType})
	}
	return resp, nil
}

// ItemFields lists the fields of one item type, or every field when no item
// type is given.
func (h *SchemaHandler) ItemFields(ctx context.Context, req *dto.ItemFieldsRequest) (*dto.ItemFieldsResponse, error) {
	resp := &dto.ItemFieldsResponse{Fields: []dto.FieldInfo{}}
	if req.ItemType != "" {
		it, err := h.itemType(req.ItemType)
		if err != nil {
			return nil, err
		}
		for _, f := range it.Fields {
			resp.Fields = append(resp.Fields, dto.FieldInfo{Field: f})
		}
		return resp, nil
	}
	seen := map[string]bool{}
	for i := range h.schema.ItemTypes {
		for _, f := range h.schema.ItemTypes[i].Fields {
			if !seen[f] {
				seen[f] = true
				resp.Fields = append(resp.Fields, dto.FieldInfo{Field: f})
			}
		}
	}
	return resp, nil
}

// CreatorTypes lists the creator types valid for an item type.
func (h *SchemaHandler) CreatorTypes(ctx context.Context, req *dto.ItemTypeRequest) (*dto.CreatorTypesResponse, error) {
	it, err := h.itemType(req.ItemType)
	if err != nil {
		return nil, err
	}
	resp := &dto.CreatorTypesResponse{CreatorTypes: make([]dto.CreatorTypeInfo, 0, len(it.CreatorTypes))}
	for _, ct := range it.CreatorTypes {
		resp.CreatorTypes = append(resp.CreatorTypes, dto.CreatorTypeInfo{CreatorType: ct})
	}
	return resp, nil
}

// NewItem returns the template of an empty item.
func (h *SchemaHandler) NewItem(ctx context.Context, req *dto.ItemTypeRequest) (*dto.TemplateResponse, error) {
	it, err := h.itemType(req.ItemType)
	if err != nil {
		return nil, err
	}
	return &dto.TemplateResponse{Template: it.Template()}, nil
}

func (h *SchemaHandler) itemType(name string) (*schema.ItemType, error) {
	it := h.schema.ItemType(name)
	if it == nil {
		return nil, dto.InvalidFormat("itemType", name)
	}
	return it, nil
}
