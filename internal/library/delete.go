package library

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Delete deletes the objects with the given keys, skipping the keys that do
// not exist. It returns the library version after the delete, unchanged when
// nothing was deleted.
//
// ifUnmodified must be the current library version. Deleting collections
// also deletes their descendant collections and removes them from items.
func (s *Service) Delete(ref Ref, typ ObjectType, keys []string, ifUnmodified int64) (int64, error) {
	return s.deleteObjects(ref, typ, keys, ifUnmodified, false)
}

// DeleteOne deletes one object. It returns [ErrNotFound] when the object does
// not exist.
func (s *Service) DeleteOne(ref Ref, typ ObjectType, key string, ifUnmodified int64) (int64, error) {
	return s.deleteObjects(ref, typ, []string{key}, ifUnmodified, true)
}

func (s *Service) deleteObjects(ref Ref, typ ObjectType, keys []string, ifUnmodified int64, strict bool) (int64, error) {
	if ifUnmodified == AnyVersion {
		return 0, ErrPreconditionRequired
	}
	if len(keys) > s.limits.MaxWriteObjects {
		return 0, badRequest("Cannot delete more than %d %s at a time", s.limits.MaxWriteObjects, typ.Plural())
	}
	defer s.lock(ref)()
	c := s.newChange(ref)
	cur := c.version - 1
	if ifUnmodified != cur {
		return 0, &VersionConflictError{What: "Library", Expected: ifUnmodified, Actual: cur}
	}
	var removed []string
	for _, key := range keys {
		row := c.lookup(typ, key)
		if row == nil {
			if strict {
				return 0, fmt.Errorf("%s %s: %w", typ, key, ErrNotFound)
			}
			continue
		}
		c.remove(row)
		removed = append(removed, key)
	}
	if typ == Collection && len(removed) != 0 {
		s.cascadeCollections(c, removed)
	}
	if err := c.commit(); err != nil {
		return 0, err
	}
	if c.empty() {
		return cur, nil
	}
	return c.version, nil
}

// cascadeCollections deletes the descendants of the removed collections and
// takes every deleted collection out of the items.
func (s *Service) cascadeCollections(c *change, removed []string) {
	children := map[string][]*objectRow{}
	c.each(Collection, func(r *objectRow) {
		if p := c.parentOf(r.Key); p != "" {
			children[p] = append(children[p], r)
		}
	})
	gone := map[string]bool{}
	for queue := removed; len(queue) != 0; {
		key := queue[0]
		queue = queue[1:]
		if gone[key] {
			continue
		}
		gone[key] = true
		for _, child := range children[key] {
			if c.lookup(Collection, child.Key) != nil {
				c.remove(child)
			}
			queue = append(queue, child.Key)
		}
	}
	c.each(Item, func(r *objectRow) {
		s.rewriteItem(c, r, func(d map[string]any) bool {
			cols, _ := d["collections"].([]any)
			kept := slices.DeleteFunc(slices.Clone(cols), func(v any) bool {
				k, _ := v.(string)
				return gone[k]
			})
			if len(kept) == len(cols) {
				return false
			}
			d["collections"] = kept
			return true
		})
	})
}

// rewriteItem applies fn to the decoded data of an item and stages the item
// when fn reports a modification.
func (s *Service) rewriteItem(c *change, r *objectRow, fn func(d map[string]any) bool) {
	d, err := decodeData(r.Data)
	if err != nil || !fn(d) {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	row := r.Clone()
	row.Data = data
	c.put(row)
}

// DeleteTags removes the tags from every item and records a tombstone for
// each of them, whether an item carried it or not. It returns the new
// library version.
func (s *Service) DeleteTags(ref Ref, tags []string, ifUnmodified int64) (int64, error) {
	if ifUnmodified == AnyVersion {
		return 0, ErrPreconditionRequired
	}
	if len(tags) == 0 {
		return 0, badRequest("No tags specified")
	}
	if len(tags) > s.limits.MaxWriteObjects {
		return 0, badRequest("Cannot delete more than %d tags at a time", s.limits.MaxWriteObjects)
	}
	defer s.lock(ref)()
	c := s.newChange(ref)
	if cur := c.version - 1; ifUnmodified != cur {
		return 0, &VersionConflictError{What: "Library", Expected: ifUnmodified, Actual: cur}
	}
	names := map[string]bool{}
	for _, t := range tags {
		names[t] = true
	}
	c.each(Item, func(r *objectRow) {
		s.rewriteItem(c, r, func(d map[string]any) bool {
			ts, _ := d["tags"].([]any)
			kept := slices.DeleteFunc(slices.Clone(ts), func(v any) bool {
				m, _ := v.(map[string]any)
				name, _ := m["tag"].(string)
				return names[name]
			})
			if len(kept) == len(ts) {
				return false
			}
			d["tags"] = kept
			return true
		})
	})
	for _, t := range tags {
		c.tombstone(tagTombstone, t)
	}
	if err := c.commit(); err != nil {
		return 0, err
	}
	return c.version, nil
}
