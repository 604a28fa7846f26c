package library

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/maruel/ksid"

	"github.com/maruel/bibdb/internal/jsonldb"
	"github.com/maruel/bibdb/internal/library/schema"
)

// Limits bounds the size of uploaded data.
type Limits struct {
	// MaxNameLength is the maximum length in characters of collection,
	// search, tag and creator names.
	MaxNameLength int `json:"max_name_length" validate:"gte=1"`
	// MaxFieldLength is the maximum length in characters of an item field.
	MaxFieldLength int `json:"max_field_length" validate:"gte=1"`
	// MaxWriteObjects is the maximum number of objects written or deleted
	// by one request.
	MaxWriteObjects int `json:"max_write_objects" validate:"gte=1"`
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{MaxNameLength: 255, MaxFieldLength: 65535, MaxWriteObjects: 50}
}

// Options configures a [Service].
type Options struct {
	Limits Limits
	// Schema defaults to [schema.Default].
	Schema *schema.Schema
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service stores the libraries and their objects.
//
// All the operations on one library are serialized by a per library lock so
// that the version a client conditions on cannot move during the operation.
type Service struct {
	limits Limits
	schema *schema.Schema
	now    func() time.Time

	libraries  *jsonldb.Table[*libraryRow]
	libByRef   *jsonldb.UniqueIndex[string, *libraryRow]
	objects    *jsonldb.Table[*objectRow]
	objByKey   *jsonldb.UniqueIndex[objectKey, *objectRow]
	objByType  *jsonldb.Index[libraryType, *objectRow]
	tombstones *jsonldb.Table[*tombstoneRow]
	tombByKey  *jsonldb.UniqueIndex[objectKey, *tombstoneRow]
	tombByLib  *jsonldb.Index[string, *tombstoneRow]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService loads the libraries stored in dir.
func NewService(dir string, opts *Options) (*Service, error) {
	s := &Service{
		limits: DefaultLimits(),
		schema: schema.Default(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	if opts != nil {
		if opts.Limits != (Limits{}) {
			s.limits = opts.Limits
		}
		if opts.Schema != nil {
			s.schema = opts.Schema
		}
		if opts.Now != nil {
			s.now = opts.Now
		}
	}
	var err error
	if s.libraries, err = jsonldb.NewTable[*libraryRow](filepath.Join(dir, "libraries.jsonl")); err != nil {
		return nil, err
	}
	if s.objects, err = jsonldb.NewTable[*objectRow](filepath.Join(dir, "objects.jsonl")); err != nil {
		return nil, err
	}
	if s.tombstones, err = jsonldb.NewTable[*tombstoneRow](filepath.Join(dir, "tombstones.jsonl")); err != nil {
		return nil, err
	}
	s.libByRef = jsonldb.NewUniqueIndex(s.libraries, func(r *libraryRow) string { return r.Library })
	s.objByKey = jsonldb.NewUniqueIndex(s.objects, (*objectRow).ref)
	s.objByType = jsonldb.NewIndex(s.objects, func(r *objectRow) libraryType {
		return libraryType{Library: r.Library, Type: r.Type}
	})
	s.tombByKey = jsonldb.NewUniqueIndex(s.tombstones, (*tombstoneRow).ref)
	s.tombByLib = jsonldb.NewIndex(s.tombstones, func(r *tombstoneRow) string { return r.Library })
	if err := s.repairVersions(); err != nil {
		return nil, err
	}
	if err := s.repairTombstones(); err != nil {
		return nil, err
	}
	return s, nil
}

// repairVersions raises library versions below the version of one of their
// objects or tombstones, which happens when the process stopped between the
// writes of one change.
func (s *Service) repairVersions() error {
	highest := map[string]int64{}
	for r := range s.objects.Iter(0) {
		highest[r.Library] = max(highest[r.Library], r.Version)
	}
	for r := range s.tombstones.Iter(0) {
		highest[r.Library] = max(highest[r.Library], r.Version)
	}
	for _, lib := range slices.Sorted(maps.Keys(highest)) {
		if s.version(lib) < highest[lib] {
			if err := s.setVersion(lib, highest[lib]); err != nil {
				return fmt.Errorf("failed to repair version of library %s: %w", lib, err)
			}
		}
	}
	return nil
}

// repairTombstones removes the tombstones of keys that were re-created, which
// remain when the process stopped before the last write of a change.
func (s *Service) repairTombstones() error {
	var stale []ksid.ID
	for t := range s.tombstones.Iter(0) {
		if o := s.objByKey.Get(t.ref()); o != nil && o.Version >= t.Version {
			stale = append(stale, t.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	err := s.tombstones.Batch(func(tx *jsonldb.Tx[*tombstoneRow]) error {
		for _, id := range stale {
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove stale tombstones: %w", err)
	}
	return nil
}

// Limits returns the limits enforced on writes.
func (s *Service) Limits() Limits {
	return s.limits
}

// Schema returns the item type schema.
func (s *Service) Schema() *schema.Schema {
	return s.schema
}

// lock acquires the lock of a library and returns its release function.
func (s *Service) lock(ref Ref) func() {
	s.mu.Lock()
	l := s.locks[ref.String()]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[ref.String()] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Service) version(lib string) int64 {
	if r := s.libByRef.Get(lib); r != nil {
		return r.Version
	}
	return 0
}

func (s *Service) setVersion(lib string, v int64) error {
	if r := s.libByRef.Get(lib); r != nil {
		r.Version = v
		return s.libraries.Update(r)
	}
	return s.libraries.Append(&libraryRow{ID: ksid.NewID(), Library: lib, Version: v})
}

// Version returns the current version of a library. A library nothing was
// ever written to is at version 0.
func (s *Service) Version(ref Ref) int64 {
	defer s.lock(ref)()
	return s.version(ref.String())
}

// Get returns one object.
func (s *Service) Get(ref Ref, typ ObjectType, key string) (*Object, int64, error) {
	defer s.lock(ref)()
	lib := ref.String()
	v := s.version(lib)
	row := s.objByKey.Get(objectKey{Library: lib, Type: string(typ), Key: key})
	if row == nil {
		return nil, v, fmt.Errorf("%s %s: %w", typ, key, ErrNotFound)
	}
	return newObject(ref, row), v, nil
}

// List returns the objects of one type matching q, in creation order.
func (s *Service) List(ref Ref, typ ObjectType, q *Query) (*ListResult, error) {
	if len(q.Keys) > s.limits.MaxWriteObjects {
		return nil, badRequest("Cannot request more than %d %s at a time", s.limits.MaxWriteObjects, typ.Plural())
	}
	defer s.lock(ref)()
	lib := ref.String()
	res := &ListResult{Version: s.version(lib), Objects: []*Object{}}
	var keys map[string]bool
	if len(q.Keys) != 0 {
		keys = make(map[string]bool, len(q.Keys))
		for _, k := range q.Keys {
			keys[k] = true
		}
	}
	quick := newQuickMatcher(q.Q, q.QMode)
	for row := range s.objByType.Iter(libraryType{Library: lib, Type: typ}) {
		if keys != nil && !keys[row.Key] {
			continue
		}
		if row.Version <= q.Since || !quick.match(typ, row.Data) {
			continue
		}
		res.Total++
		if res.Total <= q.Start {
			continue
		}
		if q.Limit > 0 && len(res.Objects) >= q.Limit {
			continue
		}
		res.Objects = append(res.Objects, newObject(ref, row))
	}
	return res, nil
}

// Tags returns the tags used by the items of a library, sorted by name.
func (s *Service) Tags(ref Ref) ([]TagCount, int64) {
	defer s.lock(ref)()
	lib := ref.String()
	counts := map[Tag]int{}
	for row := range s.objByType.Iter(libraryType{Library: lib, Type: Item}) {
		var d struct {
			Tags []Tag `json:"tags"`
		}
		if err := json.Unmarshal(row.Data, &d); err != nil {
			continue
		}
		for _, t := range d.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TagCount{Tag: t.Tag, Type: t.Type, NumItems: n})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		return cmp.Or(cmp.Compare(a.Tag, b.Tag), cmp.Compare(a.Type, b.Type))
	})
	return out, s.version(lib)
}

// Deleted returns the keys deleted after version newer, in deletion order.
func (s *Service) Deleted(ref Ref, newer int64) (*Tombstones, int64) {
	defer s.lock(ref)()
	lib := ref.String()
	var rows []*tombstoneRow
	for r := range s.tombByLib.Iter(lib) {
		if r.Version > newer {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b *tombstoneRow) int {
		return cmp.Or(cmp.Compare(a.Version, b.Version), cmp.Compare(a.ID, b.ID))
	})
	out := &Tombstones{Collections: []string{}, Items: []string{}, Searches: []string{}, Tags: []string{}}
	for _, r := range rows {
		switch r.Type {
		case string(Collection):
			out.Collections = append(out.Collections, r.Key)
		case string(Item):
			out.Items = append(out.Items, r.Key)
		case string(Search):
			out.Searches = append(out.Searches, r.Key)
		case tagTombstone:
			out.Tags = append(out.Tags, r.Key)
		}
	}
	return out, s.version(lib)
}
