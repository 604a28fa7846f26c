package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maruel/ksid"
)

// Write creates or updates the objects of the JSON array body. Each element
// succeeds, fails or is unchanged independently of the others; all the
// elements that succeed share the new library version.
//
// ifUnmodified is the If-Unmodified-Since-Version of the request, or
// [AnyVersion].
func (s *Service) Write(ref Ref, typ ObjectType, body []byte, ifUnmodified int64) (*WriteResult, error) {
	body = bytes.TrimSpace(body)
	var elems []json.RawMessage
	if len(body) == 0 || body[0] != '[' || json.Unmarshal(body, &elems) != nil {
		return nil, badRequest("Uploaded data must be a JSON array")
	}
	if len(elems) > s.limits.MaxWriteObjects {
		return nil, &Error{
			Code:    http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("Cannot add more than %d objects at a time", s.limits.MaxWriteObjects),
		}
	}
	defer s.lock(ref)()
	c := s.newChange(ref)
	if cur := c.version - 1; ifUnmodified != AnyVersion && ifUnmodified != cur {
		return nil, &VersionConflictError{What: "Library", Expected: ifUnmodified, Actual: cur}
	}
	res := &WriteResult{
		Successful: map[int]*Object{},
		Success:    map[int]string{},
		Unchanged:  map[int]string{},
		Failed:     map[int]*ObjectError{},
	}
	var written []int
	for i, raw := range elems {
		props, ok := decodeProps(raw)
		if !ok {
			res.Failed[i] = invalid("Invalid value for index %d in uploaded data; expected JSON %s object", i, typ)
			continue
		}
		row, changed, oerr := c.write(typ, props, "", false)
		switch {
		case oerr != nil:
			res.Failed[i] = oerr
		case changed:
			res.Success[i] = row.Key
			written = append(written, i)
		default:
			res.Unchanged[i] = row.Key
		}
	}
	if err := c.commit(); err != nil {
		return nil, err
	}
	res.Version = c.version - 1
	if !c.empty() {
		res.Version = c.version
	}
	for _, i := range written {
		row := c.lookup(typ, res.Success[i])
		res.Successful[i] = newObject(ref, row)
	}
	return res, nil
}

// Put writes one object at key. When patch is false the stored data is
// replaced, otherwise the properties of body are merged into it. It returns
// the library version after the write; an unchanged object does not bump it.
//
// ifUnmodified is checked against the version of the object; 0 requires
// that the object does not exist yet.
func (s *Service) Put(ref Ref, typ ObjectType, key string, body []byte, ifUnmodified int64, patch bool) (int64, error) {
	props, ok := decodeProps(body)
	if !ok {
		return 0, badRequest("Uploaded data must be a JSON object")
	}
	if raw, ok := props["key"]; ok {
		var k string
		if err := json.Unmarshal(raw, &k); err != nil || k != key {
			return 0, badRequest("Key '%s' does not match key '%s' from URI", bytes.Trim(raw, `"`), key)
		}
	}
	if !ValidKey(key) {
		return 0, badRequest("'%s' is not a valid %s key", key, typ)
	}
	defer s.lock(ref)()
	c := s.newChange(ref)
	existing := c.lookup(typ, key)
	if ifUnmodified != AnyVersion {
		var actual int64
		if existing != nil {
			actual = existing.Version
		}
		if ifUnmodified != actual {
			return 0, &VersionConflictError{What: typ.Title(), Expected: ifUnmodified, Actual: actual}
		}
	}
	if patch && existing == nil {
		return 0, fmt.Errorf("%s %s: %w", typ, key, ErrNotFound)
	}
	_, _, oerr := c.write(typ, props, key, !patch)
	if oerr != nil {
		return 0, oerr
	}
	if err := c.commit(); err != nil {
		return 0, err
	}
	if c.empty() {
		return c.version - 1, nil
	}
	return c.version, nil
}

// write stages one object. key overrides the key of props when set. It
// returns the staged row and whether the object changed.
func (c *change) write(typ ObjectType, props map[string]json.RawMessage, key string, replace bool) (*objectRow, bool, *ObjectError) {
	k, version, hasVersion, oerr := parseKeyVersion(typ, props)
	if oerr != nil {
		return nil, false, oerr
	}
	if key == "" {
		key = k
	}
	var existing *objectRow
	if key != "" {
		existing = c.lookup(typ, key)
	}
	if hasVersion {
		if existing != nil && version != existing.Version {
			oerr := objectErrorf(http.StatusPreconditionFailed, "%s has been modified since the specified version (expected %d, found %d)", typ.Title(), version, existing.Version)
			oerr.Key = key
			return nil, false, oerr
		}
		if existing == nil && version > 0 {
			oerr := objectErrorf(http.StatusNotFound, "%s doesn't exist (expected version %d; use 0 instead)", typ.Title(), version)
			oerr.Key = key
			return nil, false, oerr
		}
	}
	if key == "" {
		key = c.newKey(typ)
	}

	d := map[string]any{}
	var stored map[string]any
	if existing != nil {
		var err error
		if stored, err = decodeData(existing.Data); err != nil {
			return nil, false, &ObjectError{Key: key, Code: http.StatusInternalServerError, Message: err.Error()}
		}
		if !replace {
			for name, v := range stored {
				d[name] = v
			}
		} else if typ == Item && stored["dateAdded"] != nil {
			d["dateAdded"] = stored["dateAdded"]
		}
	}
	for name, raw := range props {
		if name == "key" || name == "version" {
			continue
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, false, &ObjectError{Key: key, Code: http.StatusBadRequest, Message: fmt.Sprintf("Invalid value for '%s'", name)}
		}
		d[name] = v
	}
	data, oerr := c.normalizer().normalize(typ, key, d)
	if oerr != nil {
		oerr.Key = key
		return nil, false, oerr
	}
	if typ == Item {
		if _, ok := data["dateAdded"]; !ok {
			data["dateAdded"] = c.now
		}
	}
	canon, err := json.Marshal(data)
	if err != nil {
		return nil, false, &ObjectError{Key: key, Code: http.StatusInternalServerError, Message: err.Error()}
	}
	if existing != nil && bytes.Equal(canon, existing.Data) {
		return existing, false, nil
	}
	if typ == Item {
		prev, _ := stored["dateModified"].(string)
		if dm, _ := data["dateModified"].(string); dm == "" || dm == prev {
			data["dateModified"] = c.now
			if canon, err = json.Marshal(data); err != nil {
				return nil, false, &ObjectError{Key: key, Code: http.StatusInternalServerError, Message: err.Error()}
			}
		}
	}
	row := &objectRow{Library: c.lib, Type: typ, Key: key, Data: canon}
	if existing != nil {
		row.ID = existing.ID
	} else {
		row.ID = ksid.NewID()
	}
	c.put(row)
	return row, true, nil
}

func parseKeyVersion(typ ObjectType, props map[string]json.RawMessage) (string, int64, bool, *ObjectError) {
	var key string
	if raw, ok := props["key"]; ok {
		if err := json.Unmarshal(raw, &key); err != nil {
			return "", 0, false, invalid("'key' must be a string")
		}
		if key != "" && !ValidKey(key) {
			return "", 0, false, invalid("'%s' is not a valid %s key", key, typ)
		}
	}
	raw, ok := props["version"]
	if !ok || string(raw) == "null" {
		return key, 0, false, nil
	}
	var version int64
	if err := json.Unmarshal(raw, &version); err != nil || version < 0 {
		return "", 0, false, invalid("Invalid version %s", raw)
	}
	return key, version, true, nil
}
