// Defines libraries, object types and object keys.

package library

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// LibraryType is the kind of owner of a library.
type LibraryType string

const (
	// UserLibrary is the personal library of a user.
	UserLibrary LibraryType = "user"
	// GroupLibrary is a library shared by a group.
	GroupLibrary LibraryType = "group"
)

// Ref identifies a library.
type Ref struct {
	Type LibraryType `json:"type"`
	ID   int64       `json:"id"`
}

// UserRef returns the reference of a user library.
func UserRef(id int64) Ref {
	return Ref{Type: UserLibrary, ID: id}
}

// GroupRef returns the reference of a group library.
func GroupRef(id int64) Ref {
	return Ref{Type: GroupLibrary, ID: id}
}

// String returns the compact storage form, e.g. "u1" or "g42".
func (r Ref) String() string {
	return string(r.Type[0]) + strconv.FormatInt(r.ID, 10)
}

// Validate checks the reference.
func (r Ref) Validate() error {
	if r.Type != UserLibrary && r.Type != GroupLibrary {
		return fmt.Errorf("invalid library type %q", r.Type)
	}
	if r.ID <= 0 {
		return fmt.Errorf("invalid library ID %d", r.ID)
	}
	return nil
}

// ObjectType is the type of a versioned object stored in a library.
type ObjectType string

const (
	// Collection groups items, optionally nested under a parent collection.
	Collection ObjectType = "collection"
	// Item is a bibliographic record.
	Item ObjectType = "item"
	// Search is a saved search.
	Search ObjectType = "search"
)

// ObjectTypes lists every object type in changelog order.
var ObjectTypes = []ObjectType{Collection, Item, Search}

// Plural returns the plural form used in URLs and changelog groups.
func (t ObjectType) Plural() string {
	if t == Search {
		return "searches"
	}
	return string(t) + "s"
}

// KeyParam returns the query parameter used to filter by key, e.g. "itemKey".
func (t ObjectType) KeyParam() string {
	return string(t) + "Key"
}

// Title returns the capitalized name used in messages.
func (t ObjectType) Title() string {
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// ObjectTypeFromPlural returns the object type for a plural form.
func ObjectTypeFromPlural(plural string) (ObjectType, bool) {
	for _, t := range ObjectTypes {
		if t.Plural() == plural {
			return t, true
		}
	}
	return "", false
}

// keyAlphabet excludes characters that are easy to confuse (0, 1, O).
const keyAlphabet = "23456789ABCDEFGHIJKLMNPQRSTUVWXYZ"

// KeyLen is the length of an object key.
const KeyLen = 8

// NewKey returns a random object key. Every symbol of the alphabet is
// equally likely.
func NewKey() string {
	// Bytes at or above keyByteLimit are rejected so that the modulo is
	// uniform.
	const keyByteLimit = 256 - 256%len(keyAlphabet)
	var out [KeyLen]byte
	var buf [2 * KeyLen]byte
	for n := 0; n < KeyLen; {
		_, _ = rand.Read(buf[:])
		for _, c := range buf {
			if int(c) >= keyByteLimit {
				continue
			}
			out[n] = keyAlphabet[int(c)%len(keyAlphabet)]
			if n++; n == KeyLen {
				break
			}
		}
	}
	return string(out[:])
}

// ValidKey reports whether s is a well-formed object key.
func ValidKey(s string) bool {
	if len(s) != KeyLen {
		return false
	}
	for i := range len(s) {
		if strings.IndexByte(keyAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// ParseKeyList splits a comma separated key list. Empty entries, such as the
// one produced by a trailing comma, are dropped and duplicates are removed.
func ParseKeyList(s string) []string {
	var keys []string
	seen := make(map[string]struct{})
	for k := range strings.SplitSeq(s, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// ParseTagList splits a tag list separated by "||", as in "foo || bar".
func ParseTagList(s string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for tag := range strings.SplitSeq(s, "||") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
