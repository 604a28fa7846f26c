// Defines the API response types.

package dto

import (
	"encoding/json"
	"net/http"

	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/library/schema"
)

// Envelope is implemented by responses that set headers or a status besides
// their JSON body.
type Envelope interface {
	ResponseMeta() *Meta
}

// Meta holds the HTTP metadata of a response. Embed it to implement
// Envelope.
type Meta struct {
	status    int
	version   int64
	versioned bool
	total     int
	counted   bool
	text      []byte
}

// ResponseMeta implements Envelope.
func (m *Meta) ResponseMeta() *Meta {
	return m
}

// SetVersion sets the Last-Modified-Version header.
func (m *Meta) SetVersion(v int64) {
	m.version = v
	m.versioned = true
}

// Version returns the Last-Modified-Version header value, if set.
func (m *Meta) Version() (int64, bool) {
	return m.version, m.versioned
}

// SetTotal sets the Total-Results header.
func (m *Meta) SetTotal(n int) {
	m.total = n
	m.counted = true
}

// Total returns the Total-Results header value, if set.
func (m *Meta) Total() (int, bool) {
	return m.total, m.counted
}

// SetStatus overrides the 200 status code.
func (m *Meta) SetStatus(code int) {
	m.status = code
}

// Status returns the status code of the response.
func (m *Meta) Status() int {
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

// SetText replaces the JSON body with plain text.
func (m *Meta) SetText(b []byte) {
	m.text = b
}

// Text returns the plain text body, or nil for a JSON body.
func (m *Meta) Text() []byte {
	return m.text
}

// HasBody reports whether the status code allows a body.
func (m *Meta) HasBody() bool {
	s := m.Status()
	return s != http.StatusNoContent && s != http.StatusNotModified
}

// ObjectsResponse is a page of objects, or their versions by key.
type ObjectsResponse struct {
	Meta
	Objects  []*library.Object
	Versions map[string]int64
}

// MarshalJSON encodes the objects as a JSON array, or the versions as an
// object.
func (r *ObjectsResponse) MarshalJSON() ([]byte, error) {
	if r.Versions != nil {
		return json.Marshal(r.Versions)
	}
	if r.Objects == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Objects)
}

// ObjectResponse is a single object.
type ObjectResponse struct {
	Meta
	Object *library.Object
}

// MarshalJSON encodes the object.
func (r *ObjectResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Object)
}

// WriteResponse is the outcome of a batch write.
type WriteResponse struct {
	Meta `json:"-"`
	*library.WriteResult
}

// EmptyResponse is a response without a body, typically 204 or 304.
type EmptyResponse struct {
	Meta `json:"-"`
}

// DeletedResponse lists the keys deleted since a version.
type DeletedResponse struct {
	Meta `json:"-"`
	*library.Tombstones
}

// TagsResponse lists the tags of a library.
type TagsResponse struct {
	Meta
	Tags []library.TagCount
}

// MarshalJSON encodes the tags as a JSON array.
func (r *TagsResponse) MarshalJSON() ([]byte, error) {
	if r.Tags == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Tags)
}

// SchemaResponse is the whole item type schema.
type SchemaResponse struct {
	Meta
	Schema *schema.Schema
}

// MarshalJSON encodes the schema.
func (r *SchemaResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Schema)
}

// ItemTypeInfo names an item type.
type ItemTypeInfo struct {
	ItemType string `json:"itemType"`
}

// ItemTypesResponse lists the item types.
type ItemTypesResponse struct {
	Meta
	ItemTypes []ItemTypeInfo
}

// MarshalJSON encodes the item types as a JSON array.
func (r *ItemTypesResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ItemTypes)
}

// FieldInfo names an item field.
type FieldInfo struct {
	Field string `json:"field"`
}

// ItemFieldsResponse lists item fields.
type ItemFieldsResponse struct {
	Meta
	Fields []FieldInfo
}

// MarshalJSON encodes the fields as a JSON array.
func (r *ItemFieldsResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// CreatorTypeInfo names a creator type.
type CreatorTypeInfo struct {
	CreatorType string `json:"creatorType"`
}

// CreatorTypesResponse lists the creator types of an item type.
type CreatorTypesResponse struct {
	Meta
	CreatorTypes []CreatorTypeInfo
}

// MarshalJSON encodes the creator types as a JSON array.
func (r *CreatorTypesResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.CreatorTypes)
}

// TemplateResponse is the JSON of an empty item.
type TemplateResponse struct {
	Meta
	Template map[string]any
}

// MarshalJSON encodes the template.
func (r *TemplateResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Template)
}

// LibraryAccess is the access a key grants to one library.
type LibraryAccess struct {
	Library bool `json:"library"`
	Write   bool `json:"write"`
}

// KeyAccess is the access a key grants.
type KeyAccess struct {
	User   *LibraryAccess           `json:"user,omitempty"`
	Groups map[string]LibraryAccess `json:"groups,omitempty"`
}

// KeyResponse describes the caller's API key.
type KeyResponse struct {
	UserID int64     `json:"userID"`
	Name   string    `json:"name,omitempty"`
	Access KeyAccess `json:"access"`
}

// HealthResponse is a response from the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
