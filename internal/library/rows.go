// Rows persisted in the library tables.

package library

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maruel/ksid"
)

// tagTombstone is the tombstone type of an explicitly deleted tag.
const tagTombstone = "tag"

// libraryRow holds the version counter of one library.
type libraryRow struct {
	ID      ksid.ID `json:"id" jsonschema:"description=Row identifier"`
	Library string  `json:"library" jsonschema:"description=Library reference such as u1 or g5"`
	Version int64   `json:"version" jsonschema:"description=Current library version"`
}

func (r *libraryRow) Clone() *libraryRow {
	c := *r
	return &c
}

func (r *libraryRow) GetID() ksid.ID {
	return r.ID
}

func (r *libraryRow) Validate() error {
	if r.Library == "" {
		return errors.New("library is required")
	}
	if r.Version < 0 {
		return fmt.Errorf("negative version %d", r.Version)
	}
	return nil
}

// objectRow is a live collection, item or search. Data is the canonical JSON
// of the object without its key and version.
type objectRow struct {
	ID      ksid.ID         `json:"id" jsonschema:"description=Row identifier"`
	Library string          `json:"library"`
	Type    ObjectType      `json:"type"`
	Key     string          `json:"key"`
	Version int64           `json:"version" jsonschema:"description=Library version of the last change"`
	Data    json.RawMessage `json:"data"`
}

func (r *objectRow) Clone() *objectRow {
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	return &c
}

func (r *objectRow) GetID() ksid.ID {
	return r.ID
}

func (r *objectRow) Validate() error {
	if r.Library == "" {
		return errors.New("library is required")
	}
	switch r.Type {
	case Collection, Item, Search:
	default:
		return fmt.Errorf("invalid object type %q", r.Type)
	}
	if r.Key == "" {
		return errors.New("key is required")
	}
	if len(r.Data) == 0 {
		return errors.New("data is required")
	}
	return nil
}

func (r *objectRow) ref() objectKey {
	return objectKey{Library: r.Library, Type: string(r.Type), Key: r.Key}
}

// tombstoneRow records the deletion of an object, or of a tag when Type is
// "tag" and Key the tag name.
type tombstoneRow struct {
	ID      ksid.ID `json:"id" jsonschema:"description=Row identifier"`
	Library string  `json:"library"`
	Type    string  `json:"type"`
	Key     string  `json:"key"`
	Version int64   `json:"version" jsonschema:"description=Library version of the deletion"`
}

func (r *tombstoneRow) Clone() *tombstoneRow {
	c := *r
	return &c
}

func (r *tombstoneRow) GetID() ksid.ID {
	return r.ID
}

func (r *tombstoneRow) Validate() error {
	if r.Library == "" || r.Type == "" || r.Key == "" {
		return errors.New("library, type and key are required")
	}
	if r.Version <= 0 {
		return fmt.Errorf("invalid version %d", r.Version)
	}
	return nil
}

func (r *tombstoneRow) ref() objectKey {
	return objectKey{Library: r.Library, Type: r.Type, Key: r.Key}
}

// objectKey identifies an object or a tombstone within the store.
type objectKey struct {
	Library string
	Type    string
	Key     string
}

// libraryType groups the objects of one type in one library.
type libraryType struct {
	Library string
	Type    ObjectType
}
