// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// # Overview
//
// The package centers around [Table], a generic container that stores rows in a
// JSONL (JSON Lines) file with full in-memory caching for fast reads. Tables are
// safe for concurrent use by multiple goroutines.
//
// # Concurrency
//
// Table uses pessimistic locking: [Table.Modify] and [Table.Batch] hold the
// write lock for the entire read-modify-write operation. Callers that need a
// wider critical section (for example a read-compare-write across several
// tables) must hold their own lock around the calls.
//
// # Secondary Indexes
//
// [UniqueIndex] and [Index] provide O(1) lookups by arbitrary keys, staying
// synchronized with table mutations via [TableObserver].
//
// # File Format
//
// JSONL files with line 1 as schema header, subsequent lines as JSON rows.
// Appends extend the file in place; every other mutation rewrites it
// atomically. Rows are sorted by ID on load if out of order (handles clock
// drift, manual edits).
package jsonldb
