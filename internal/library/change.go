// Stages the mutations of one request and commits them at one version.

package library

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maruel/ksid"

	"github.com/maruel/bibdb/internal/jsonldb"
)

// change accumulates the mutations of one request against a library. Every
// object it writes gets version, the library version after the change.
//
// The caller holds the library lock for the lifetime of the change.
type change struct {
	s       *Service
	ref     Ref
	lib     string
	version int64
	now     string

	rows    map[objectKey]*objectRow // written objects
	removed map[objectKey]ksid.ID    // deleted objects
	order   []objectKey
	touched map[objectKey]bool

	tombs     map[objectKey]*tombstoneRow // new or moved tombstones
	untombs   map[objectKey]ksid.ID       // tombstones of re-created keys
	tombOrder []objectKey
}

func (s *Service) newChange(ref Ref) *change {
	lib := ref.String()
	return &change{
		s:       s,
		ref:     ref,
		lib:     lib,
		version: s.version(lib) + 1,
		now:     s.now().UTC().Format(dateFormat),
		rows:    map[objectKey]*objectRow{},
		removed: map[objectKey]ksid.ID{},
		touched: map[objectKey]bool{},
		tombs:   map[objectKey]*tombstoneRow{},
		untombs: map[objectKey]ksid.ID{},
	}
}

func (c *change) key(typ ObjectType, key string) objectKey {
	return objectKey{Library: c.lib, Type: string(typ), Key: key}
}

// lookup returns the object as seen by the change, or nil.
func (c *change) lookup(typ ObjectType, key string) *objectRow {
	k := c.key(typ, key)
	if _, ok := c.removed[k]; ok {
		return nil
	}
	if r, ok := c.rows[k]; ok {
		return r
	}
	return c.s.objByKey.Get(k)
}

func (c *change) exists(typ ObjectType, key string) bool {
	return c.lookup(typ, key) != nil
}

func (c *change) parentOf(key string) string {
	r := c.lookup(Collection, key)
	if r == nil {
		return ""
	}
	var d struct {
		ParentCollection any `json:"parentCollection"`
	}
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return ""
	}
	p, _ := d.ParentCollection.(string)
	return p
}

// newKey returns a key used by no object or tombstone of that type.
func (c *change) newKey(typ ObjectType) string {
	for {
		k := NewKey()
		if c.lookup(typ, k) == nil && c.s.tombByKey.Get(c.key(typ, k)) == nil {
			return k
		}
	}
}

// each calls fn for every object of a type as seen by the change.
func (c *change) each(typ ObjectType, fn func(r *objectRow)) {
	seen := map[string]bool{}
	for r := range c.s.objByType.Iter(libraryType{Library: c.lib, Type: typ}) {
		seen[r.Key] = true
		if r = c.lookup(typ, r.Key); r != nil {
			fn(r)
		}
	}
	for _, k := range c.order {
		if r := c.rows[k]; r != nil && r.Type == typ && !seen[r.Key] {
			fn(r)
		}
	}
}

func (c *change) normalizer() *normalizer {
	return &normalizer{limits: c.s.limits, schema: c.s.schema, res: c}
}

func (c *change) touch(k objectKey) {
	if !c.touched[k] {
		c.touched[k] = true
		c.order = append(c.order, k)
	}
}

// put stages a created or updated object.
func (c *change) put(row *objectRow) {
	row.Version = c.version
	k := row.ref()
	c.rows[k] = row
	c.touch(k)
	if t := c.s.tombByKey.Get(k); t != nil {
		c.untombs[k] = t.ID
	}
}

// remove stages the deletion of an object and records its tombstone.
func (c *change) remove(row *objectRow) {
	k := row.ref()
	delete(c.rows, k)
	c.removed[k] = row.ID
	c.touch(k)
	c.tombstone(string(row.Type), row.Key)
}

// tombstone records a deletion at the change version. A key deleted before
// keeps its tombstone, moved to the new version.
func (c *change) tombstone(typ, key string) {
	k := objectKey{Library: c.lib, Type: typ, Key: key}
	delete(c.untombs, k)
	t := c.s.tombByKey.Get(k)
	if t == nil {
		t = &tombstoneRow{ID: ksid.NewID(), Library: c.lib, Type: typ, Key: key}
	}
	t.Version = c.version
	if _, ok := c.tombs[k]; !ok {
		c.tombOrder = append(c.tombOrder, k)
	}
	c.tombs[k] = t
}

func (c *change) empty() bool {
	return len(c.order) == 0 && len(c.tombs) == 0
}

// commit persists the change and bumps the library version. It does nothing
// when no mutation was staged.
//
// The writes are ordered so that a failure never loses a deletion: the
// version is written first, then the tombstones, then the objects. When the
// objects cannot be written the tombstones are restored. Tombstones of
// re-created keys are removed last.
func (c *change) commit() error {
	if c.empty() {
		return nil
	}
	if err := c.s.setVersion(c.lib, c.version); err != nil {
		return fmt.Errorf("failed to write version of library %s: %w", c.lib, err)
	}
	prev := make(map[objectKey]*tombstoneRow, len(c.tombOrder))
	for _, k := range c.tombOrder {
		prev[k] = c.s.tombByKey.Get(k)
	}
	err := c.s.tombstones.Batch(func(tx *jsonldb.Tx[*tombstoneRow]) error {
		for _, k := range c.tombOrder {
			if err := upsert(tx, c.tombs[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write tombstones of library %s: %w", c.lib, err)
	}
	err = c.s.objects.Batch(func(tx *jsonldb.Tx[*objectRow]) error {
		for _, k := range c.order {
			if id, ok := c.removed[k]; ok {
				if tx.Get(id) != nil {
					if err := tx.Delete(id); err != nil {
						return err
					}
				}
				continue
			}
			if err := upsert(tx, c.rows[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to write objects of library %s: %w", c.lib, err)
		if rerr := c.restoreTombstones(prev); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if len(c.untombs) == 0 {
		return nil
	}
	err = c.s.tombstones.Batch(func(tx *jsonldb.Tx[*tombstoneRow]) error {
		for _, id := range c.untombs {
			if tx.Get(id) != nil {
				if err := tx.Delete(id); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear tombstones of library %s: %w", c.lib, err)
	}
	return nil
}

// restoreTombstones puts back the tombstones as they were before the change.
func (c *change) restoreTombstones(prev map[objectKey]*tombstoneRow) error {
	err := c.s.tombstones.Batch(func(tx *jsonldb.Tx[*tombstoneRow]) error {
		for _, k := range c.tombOrder {
			if p := prev[k]; p != nil {
				if err := tx.Update(p); err != nil {
					return err
				}
			} else if id := c.tombs[k].ID; tx.Get(id) != nil {
				if err := tx.Delete(id); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to restore tombstones of library %s: %w", c.lib, err)
	}
	return nil
}

// upsert updates row when its ID exists and appends it otherwise.
func upsert[T jsonldb.Row[T]](tx *jsonldb.Tx[T], row T) error {
	var zero T
	if any(tx.Get(row.GetID())) != any(zero) {
		return tx.Update(row)
	}
	return tx.Append(row)
}
