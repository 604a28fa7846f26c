// Package library implements the versioned object store.
//
// A library belongs to a user or a group and holds collections, items and
// saved searches. Every successful mutating operation increments the library
// version by exactly one, and every object records the library version of its
// last change. Clients synchronize with conditional writes on that version and
// with the tombstones returned by [Service.Deleted].
//
// Data is kept in three JSONL tables: library versions, live objects and
// tombstones.
package library
