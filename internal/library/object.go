package library

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Object is a collection, item or search as returned to clients.
//
// Data holds the object's JSON with its key and version included.
type Object struct {
	Key     string          `json:"key"`
	Version int64           `json:"version"`
	Library Ref             `json:"library"`
	Data    json.RawMessage `json:"data"`
}

func newObject(ref Ref, row *objectRow) *Object {
	return &Object{
		Key:     row.Key,
		Version: row.Version,
		Library: ref,
		Data:    spliceKeyVersion(row.Data, row.Key, row.Version),
	}
}

// spliceKeyVersion prepends "key" and "version" members to a JSON object.
func spliceKeyVersion(data json.RawMessage, key string, version int64) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteString(`{"key":`)
	buf.WriteString(strconv.Quote(key))
	buf.WriteString(`,"version":`)
	buf.WriteString(strconv.FormatInt(version, 10))
	rest := bytes.TrimSpace(data)
	if len(rest) > 2 {
		buf.WriteByte(',')
		buf.Write(rest[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes()
}

// Tombstones lists deleted keys grouped by object type, in deletion order.
type Tombstones struct {
	Collections []string `json:"collections"`
	Items       []string `json:"items"`
	Searches    []string `json:"searches"`
	Tags        []string `json:"tags"`
}

// TagCount is a tag in use and the number of items carrying it.
type TagCount struct {
	Tag      string `json:"tag"`
	Type     int    `json:"type"`
	NumItems int    `json:"numItems"`
}

// WriteResult reports the outcome of each element of a batch write, by
// index in the uploaded array.
type WriteResult struct {
	Successful map[int]*Object      `json:"successful"`
	Success    map[int]string       `json:"success"`
	Unchanged  map[int]string       `json:"unchanged"`
	Failed     map[int]*ObjectError `json:"failed"`
	// Version is the library version after the write.
	Version int64 `json:"-"`
}

// Query selects objects of one type.
type Query struct {
	// Keys restricts the result to these keys when not empty.
	Keys []string
	// Since keeps only objects modified after this version.
	Since int64
	// Start is the number of matching objects to skip.
	Start int
	// Limit is the maximum number of objects returned; 0 means no limit.
	Limit int
	// Q is a quick search phrase, matched case-insensitively.
	Q string
	// QMode selects the item fields Q is matched against.
	QMode QuickSearchMode
}

// ListResult is a page of objects.
type ListResult struct {
	Objects []*Object
	// Total is the number of matching objects before paging.
	Total   int
	Version int64
}
