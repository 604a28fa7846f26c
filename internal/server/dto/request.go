// Defines the API request types.

package dto

import (
	"github.com/maruel/bibdb/internal/library"
)

// Output formats of object listings.
const (
	FormatJSON     = "json"
	FormatKeys     = "keys"
	FormatVersions = "versions"
)

const (
	// DefaultLimit is the page size of JSON listings without a limit.
	DefaultLimit = 25
	// MaxLimit is the largest accepted page size of JSON listings.
	MaxLimit = 100
)

// ListObjectsRequest is a request to list the objects of one type.
type ListObjectsRequest struct {
	ObjectPath
	CollectionKey string  `query:"collectionKey"`
	ItemKey       string  `query:"itemKey"`
	SearchKey     string  `query:"searchKey"`
	Since         Version `query:"since"`
	Format        string  `query:"format"`
	Start         int     `query:"start"`
	Limit         int     `query:"limit"`
	Q             string  `query:"q"`
	QMode         string  `query:"qmode"`
	IfModified    Version `header:"If-Modified-Since-Version"`
}

// Validate validates the list objects request fields.
func (r *ListObjectsRequest) Validate() error {
	if err := r.ObjectPath.validate(); err != nil {
		return err
	}
	if err := r.Since.check("since"); err != nil {
		return err
	}
	if err := r.IfModified.check("If-Modified-Since-Version"); err != nil {
		return err
	}
	switch r.Format {
	case "":
		r.Format = FormatJSON
	case FormatJSON, FormatKeys, FormatVersions:
	default:
		return BadRequest("Invalid 'format' value '" + r.Format + "'")
	}
	if r.QMode != "" && !library.QuickSearchMode(r.QMode).Valid() {
		return BadRequest("Invalid 'qmode' value '" + r.QMode + "'")
	}
	if r.Start < 0 {
		return BadRequest("'start' must be a positive integer")
	}
	if r.Limit < 0 {
		return BadRequest("'limit' must be a positive integer")
	}
	if r.Format == FormatJSON {
		// A key list returns every listed object unless a limit is given.
		if r.Limit == 0 && len(r.Keys()) == 0 {
			r.Limit = DefaultLimit
		}
		r.Limit = min(r.Limit, MaxLimit)
	}
	return nil
}

// Keys returns the keys the listing is restricted to.
func (r *ListObjectsRequest) Keys() []string {
	switch r.typ {
	case library.Collection:
		return library.ParseKeyList(r.CollectionKey)
	case library.Search:
		return library.ParseKeyList(r.SearchKey)
	default:
		return library.ParseKeyList(r.ItemKey)
	}
}

// GetObjectRequest is a request for one object.
type GetObjectRequest struct {
	ObjectKeyPath
	IfModified Version `header:"If-Modified-Since-Version"`
}

// Validate validates the get object request fields.
func (r *GetObjectRequest) Validate() error {
	if err := r.ObjectKeyPath.validate(); err != nil {
		return err
	}
	return r.IfModified.check("If-Modified-Since-Version")
}

// WriteObjectsRequest is a batch write of the objects of one type.
type WriteObjectsRequest struct {
	ObjectPath
	IfUnmodified Version `header:"If-Unmodified-Since-Version"`

	Body []byte
}

// SetBody implements RawBody.
func (r *WriteObjectsRequest) SetBody(b []byte) {
	r.Body = b
}

// Validate validates the write objects request fields.
func (r *WriteObjectsRequest) Validate() error {
	if err := r.ObjectPath.validate(); err != nil {
		return err
	}
	return r.IfUnmodified.check("If-Unmodified-Since-Version")
}

// PutObjectRequest replaces (PUT) or updates (PATCH) one object.
type PutObjectRequest struct {
	ObjectKeyPath
	IfUnmodified Version `header:"If-Unmodified-Since-Version"`

	Body []byte
}

// SetBody implements RawBody.
func (r *PutObjectRequest) SetBody(b []byte) {
	r.Body = b
}

// Validate validates the put object request fields.
func (r *PutObjectRequest) Validate() error {
	if err := r.ObjectKeyPath.validate(); err != nil {
		return err
	}
	return r.IfUnmodified.check("If-Unmodified-Since-Version")
}

// DeleteObjectsRequest deletes several objects of one type.
type DeleteObjectsRequest struct {
	ObjectPath
	CollectionKey string  `query:"collectionKey"`
	ItemKey       string  `query:"itemKey"`
	SearchKey     string  `query:"searchKey"`
	IfUnmodified  Version `header:"If-Unmodified-Since-Version"`
}

// Validate validates the delete objects request fields.
func (r *DeleteObjectsRequest) Validate() error {
	if err := r.ObjectPath.validate(); err != nil {
		return err
	}
	if err := r.IfUnmodified.check("If-Unmodified-Since-Version"); err != nil {
		return err
	}
	if len(r.Keys()) == 0 {
		return MissingField(r.typ.KeyParam())
	}
	return nil
}

// Keys returns the keys to delete.
func (r *DeleteObjectsRequest) Keys() []string {
	switch r.typ {
	case library.Collection:
		return library.ParseKeyList(r.CollectionKey)
	case library.Search:
		return library.ParseKeyList(r.SearchKey)
	default:
		return library.ParseKeyList(r.ItemKey)
	}
}

// DeleteObjectRequest deletes one object.
type DeleteObjectRequest struct {
	ObjectKeyPath
	IfUnmodified Version `header:"If-Unmodified-Since-Version"`
}

// Validate validates the delete object request fields.
func (r *DeleteObjectRequest) Validate() error {
	if err := r.ObjectKeyPath.validate(); err != nil {
		return err
	}
	return r.IfUnmodified.check("If-Unmodified-Since-Version")
}

// DeletedRequest is a request for the changelog of a library.
type DeletedRequest struct {
	LibraryPath
	Newer      Version `query:"newer"`
	IfModified Version `header:"If-Modified-Since-Version"`
}

// Validate validates the deleted request fields.
func (r *DeletedRequest) Validate() error {
	if err := r.LibraryPath.validate(); err != nil {
		return err
	}
	if err := r.Newer.check("newer"); err != nil {
		return err
	}
	if !r.Newer.Set {
		return MissingField("newer")
	}
	return r.IfModified.check("If-Modified-Since-Version")
}

// ListTagsRequest is a request for the tags of a library.
type ListTagsRequest struct {
	LibraryPath
	IfModified Version `header:"If-Modified-Since-Version"`
}

// Validate validates the list tags request fields.
func (r *ListTagsRequest) Validate() error {
	if err := r.LibraryPath.validate(); err != nil {
		return err
	}
	return r.IfModified.check("If-Modified-Since-Version")
}

// DeleteTagsRequest deletes tags from a library.
type DeleteTagsRequest struct {
	LibraryPath
	Tag          string  `query:"tag"`
	IfUnmodified Version `header:"If-Unmodified-Since-Version"`
}

// Validate validates the delete tags request fields.
func (r *DeleteTagsRequest) Validate() error {
	if err := r.LibraryPath.validate(); err != nil {
		return err
	}
	if err := r.IfUnmodified.check("If-Unmodified-Since-Version"); err != nil {
		return err
	}
	if len(r.Tags()) == 0 {
		return MissingField("tag")
	}
	return nil
}

// Tags returns the tag names to delete.
func (r *DeleteTagsRequest) Tags() []string {
	return library.ParseTagList(r.Tag)
}

// SchemaRequest is a request for the whole item type schema.
type SchemaRequest struct{}

// Validate is a no-op for SchemaRequest.
func (r *SchemaRequest) Validate() error {
	return nil
}

// ItemTypesRequest is a request for the list of item types.
type ItemTypesRequest struct{}

// Validate is a no-op for ItemTypesRequest.
func (r *ItemTypesRequest) Validate() error {
	return nil
}

// ItemFieldsRequest is a request for the fields of one item type, or of all
// of them when ItemType is empty.
type ItemFieldsRequest struct {
	ItemType string `query:"itemType"`
}

// Validate is a no-op for ItemFieldsRequest.
func (r *ItemFieldsRequest) Validate() error {
	return nil
}

// ItemTypeRequest is a request about one item type.
type ItemTypeRequest struct {
	ItemType string `query:"itemType"`
}

// Validate validates the item type request fields.
func (r *ItemTypeRequest) Validate() error {
	if r.ItemType == "" {
		return MissingField("itemType")
	}
	return nil
}

// CurrentKeyRequest is a request for the permissions of the caller's key.
type CurrentKeyRequest struct{}

// Validate is a no-op for CurrentKeyRequest.
func (r *CurrentKeyRequest) Validate() error {
	return nil
}

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}
