// Defines the parameter types shared by the library requests.

package dto

import (
	"strconv"

	"github.com/maruel/bibdb/internal/library"
)

// Version is a library or object version passed in a header or a query
// parameter. The zero value means the parameter was absent.
type Version struct {
	Value int64
	Set   bool

	raw     string
	invalid bool
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	v.raw = string(b)
	n, err := strconv.ParseInt(v.raw, 10, 64)
	if err != nil || n < 0 {
		v.invalid = true
		return InvalidFormat("version", v.raw)
	}
	v.Value = n
	v.Set = true
	return nil
}

// check returns an error when the parameter was present but malformed.
func (v *Version) check(name string) error {
	if v.invalid {
		return InvalidFormat(name, v.raw)
	}
	return nil
}

// OrAny returns the version, or [library.AnyVersion] when absent.
func (v *Version) OrAny() int64 {
	if !v.Set {
		return library.AnyVersion
	}
	return v.Value
}

// NotModified reports whether a request carrying this
// If-Modified-Since-Version is satisfied by the current library version.
func (v *Version) NotModified(current int64) bool {
	return v.Set && current <= v.Value
}

// LibraryScoped is implemented by requests that address one library.
type LibraryScoped interface {
	Library() library.Ref
}

// LibraryPath is the "/users/{id}" or "/groups/{id}" prefix of a request.
type LibraryPath struct {
	LibraryType string `path:"libraryType"`
	LibraryID   string `path:"libraryID"`

	ref library.Ref
}

// Library returns the library addressed by the request. Only valid after
// Validate.
func (p *LibraryPath) Library() library.Ref {
	return p.ref
}

func (p *LibraryPath) validate() error {
	switch p.LibraryType {
	case "users":
		p.ref.Type = library.UserLibrary
	case "groups":
		p.ref.Type = library.GroupLibrary
	default:
		return NotFound("Library")
	}
	id, err := strconv.ParseInt(p.LibraryID, 10, 64)
	if err != nil {
		return NotFound("Library")
	}
	p.ref.ID = id
	if p.ref.Validate() != nil {
		return NotFound("Library")
	}
	return nil
}

// ObjectPath is the "/{library}/{objectType}" prefix of a request.
type ObjectPath struct {
	LibraryPath
	ObjectType string `path:"objectType"`

	typ library.ObjectType
}

// Type returns the object type addressed by the request. Only valid after
// Validate.
func (p *ObjectPath) Type() library.ObjectType {
	return p.typ
}

func (p *ObjectPath) validate() error {
	if err := p.LibraryPath.validate(); err != nil {
		return err
	}
	typ, ok := library.ObjectTypeFromPlural(p.ObjectType)
	if !ok {
		return NotFound("Resource")
	}
	p.typ = typ
	return nil
}

// ObjectKeyPath is the path of a single object.
type ObjectKeyPath struct {
	ObjectPath
	Key string `path:"key"`
}

func (p *ObjectKeyPath) validate() error {
	if err := p.ObjectPath.validate(); err != nil {
		return err
	}
	if p.Key == "" {
		return MissingField(p.typ.KeyParam())
	}
	return nil
}
