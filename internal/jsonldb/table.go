package jsonldb

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maruel/ksid"
	"github.com/natefinch/atomic"
)

// maxLineSize bounds a single JSONL line. Rows holding long text fields can
// exceed bufio.Scanner's 64KiB default.
const maxLineSize = 16 << 20

var (
	// ErrNotFound is returned when a row ID is not in the table.
	ErrNotFound = errors.New("row not found")
	// ErrDuplicateID is returned when appending a row whose ID already exists.
	ErrDuplicateID = errors.New("duplicate row ID")
	errZeroID      = errors.New("row ID is zero")
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is implemented by every type stored in a [Table].
type Row[T any] interface {
	Cloner[T]
	GetID() ksid.ID
	Validate() error
}

// TableObserver is notified of every committed mutation. Callbacks run while
// the table write lock is held; they must not call back into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path      string
	header    schemaHeader
	mu        sync.RWMutex
	rows      []T // sorted by ID
	byID      map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directories are world readable
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	columns, err := schemaFromType[T]()
	if err != nil {
		return nil, err
	}
	table := &Table[T]{
		path:   path,
		header: schemaHeader{Version: currentVersion, Columns: columns},
	}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

// Path returns the file backing the table.
func (t *Table[T]) Path() string {
	return t.path
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.byID = make(map[ksid.ID]int)

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to unmarshal schema header in %s: %w", t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid schema header in %s: %w", t.path, err)
			}
			if h.Version != currentVersion {
				return fmt.Errorf("unsupported table version %q in %s", h.Version, t.path)
			}
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("invalid row %s in %s: %w", row.GetID(), t.path, err)
		}
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	slices.SortStableFunc(t.rows, func(a, b T) int { return cmp.Compare(a.GetID(), b.GetID()) })
	t.reindex()
	return nil
}

func (t *Table[T]) reindex() {
	t.byID = make(map[ksid.ID]int, len(t.rows))
	for i, row := range t.rows {
		t.byID[row.GetID()] = i
	}
}

// AddObserver registers o and replays every existing row to o.OnAppend.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range t.rows {
		o.OnAppend(row)
	}
	t.observers = append(t.observers, o)
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Last returns a clone of the row with the highest ID, or the zero value if
// the table is empty.
func (t *Table[T]) Last() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		var zero T
		return zero
	}
	return t.rows[len(t.rows)-1].Clone()
}

// Get returns a clone of the row with the given ID, or the zero value.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byID[id]; ok {
		return t.rows[i].Clone()
	}
	var zero T
	return zero
}

// Iter returns an iterator over clones of rows with ID strictly greater than
// startID, in ID order. Use 0 to iterate over all rows.
func (t *Table[T]) Iter(startID ksid.ID) iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		i, _ := slices.BinarySearchFunc(t.rows, startID, func(row T, id ksid.ID) int {
			return cmp.Compare(row.GetID(), id)
		})
		for ; i < len(t.rows); i++ {
			if t.rows[i].GetID() == startID {
				continue
			}
			if !yield(t.rows[i].Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := checkRow(row); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[row.GetID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, row.GetID())
	}
	if n := len(t.rows); n != 0 && t.rows[n-1].GetID() > row.GetID() {
		// Out of order ID: insert and rewrite to keep the file sorted.
		return t.batchLocked(func(tx *Tx[T]) error { return tx.Append(row) })
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if err := t.appendLine(data); err != nil {
		return err
	}
	row = row.Clone()
	t.byID[row.GetID()] = len(t.rows)
	t.rows = append(t.rows, row)
	for _, o := range t.observers {
		o.OnAppend(row)
	}
	return nil
}

func (t *Table[T]) appendLine(data []byte) error {
	needHeader := false
	if fi, err := os.Stat(t.path); err != nil || fi.Size() == 0 {
		needHeader = true
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are world readable
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	var buf bytes.Buffer
	if needHeader {
		h, err := json.Marshal(&t.header)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to marshal schema header: %w", err)
		}
		buf.Write(h)
		buf.WriteByte('\n')
	}
	buf.Write(data)
	buf.WriteByte('\n')
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	return f.Close()
}

// Update replaces the row with the same ID and persists the table.
func (t *Table[T]) Update(row T) error {
	return t.Batch(func(tx *Tx[T]) error { return tx.Update(row) })
}

// Delete removes the row with the given ID and persists the table.
func (t *Table[T]) Delete(id ksid.ID) error {
	return t.Batch(func(tx *Tx[T]) error { return tx.Delete(id) })
}

// Modify calls fn with a clone of the row with the given ID and stores the
// result. The write lock is held for the whole operation.
func (t *Table[T]) Modify(id ksid.ID, fn func(row T) error) (T, error) {
	var out T
	err := t.Batch(func(tx *Tx[T]) error {
		row := tx.Get(id)
		if any(row) == any(out) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := fn(row); err != nil {
			return err
		}
		if row.GetID() != id {
			return fmt.Errorf("modify changed row ID from %s to %s", id, row.GetID())
		}
		out = row.Clone()
		return tx.Update(row)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Replace replaces all rows with the provided slice and persists it.
func (t *Table[T]) Replace(rows []T) error {
	return t.Batch(func(tx *Tx[T]) error {
		ids := make([]ksid.ID, 0, len(tx.rows))
		for _, row := range tx.rows {
			ids = append(ids, row.GetID())
		}
		for _, id := range ids {
			if err := tx.Delete(id); err != nil {
				return err
			}
		}
		for _, row := range rows {
			if err := tx.Append(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Batch runs fn against a transaction. Mutations recorded on tx are persisted
// with a single atomic file rewrite when fn returns nil and discarded
// otherwise. Observers are notified only after the rewrite succeeded.
func (t *Table[T]) Batch(fn func(tx *Tx[T]) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batchLocked(fn)
}

func (t *Table[T]) batchLocked(fn func(tx *Tx[T]) error) error {
	tx := &Tx[T]{
		rows: slices.Clone(t.rows),
		byID: make(map[ksid.ID]int, len(t.byID)),
	}
	for id, i := range t.byID {
		tx.byID[id] = i
	}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.events) == 0 {
		return nil
	}
	if err := t.rewrite(tx.rows); err != nil {
		return err
	}
	t.rows = tx.rows
	t.reindex()
	for _, e := range tx.events {
		for _, o := range t.observers {
			switch {
			case e.deleted:
				o.OnDelete(e.prev)
			case e.appended:
				o.OnAppend(e.curr)
			default:
				o.OnUpdate(e.prev, e.curr)
			}
		}
	}
	return nil
}

func (t *Table[T]) rewrite(rows []T) error {
	var buf bytes.Buffer
	h, err := json.Marshal(&t.header)
	if err != nil {
		return fmt.Errorf("failed to marshal schema header: %w", err)
	}
	buf.Write(h)
	buf.WriteByte('\n')
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := atomic.WriteFile(t.path, &buf); err != nil {
		return fmt.Errorf("failed to write table file %s: %w", t.path, err)
	}
	return nil
}

type txEvent[T any] struct {
	prev, curr        T
	appended, deleted bool
}

// Tx is a set of pending mutations on a [Table], created by [Table.Batch].
type Tx[T Row[T]] struct {
	rows   []T
	byID   map[ksid.ID]int
	events []txEvent[T]
}

// Get returns a clone of the row with the given ID as seen by the
// transaction, or the zero value.
func (tx *Tx[T]) Get(id ksid.ID) T {
	if i, ok := tx.byID[id]; ok {
		return tx.rows[i].Clone()
	}
	var zero T
	return zero
}

// Append adds row to the transaction.
func (tx *Tx[T]) Append(row T) error {
	if err := checkRow(row); err != nil {
		return err
	}
	id := row.GetID()
	if _, ok := tx.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	row = row.Clone()
	i, _ := slices.BinarySearchFunc(tx.rows, id, func(r T, id ksid.ID) int { return cmp.Compare(r.GetID(), id) })
	tx.rows = slices.Insert(tx.rows, i, row)
	tx.reindexFrom(i)
	tx.events = append(tx.events, txEvent[T]{curr: row, appended: true})
	return nil
}

// Update replaces the row with the same ID.
func (tx *Tx[T]) Update(row T) error {
	if err := checkRow(row); err != nil {
		return err
	}
	i, ok := tx.byID[row.GetID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, row.GetID())
	}
	prev := tx.rows[i]
	row = row.Clone()
	tx.rows[i] = row
	tx.events = append(tx.events, txEvent[T]{prev: prev, curr: row})
	return nil
}

// Delete removes the row with the given ID.
func (tx *Tx[T]) Delete(id ksid.ID) error {
	i, ok := tx.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := tx.rows[i]
	tx.rows = slices.Delete(tx.rows, i, i+1)
	delete(tx.byID, id)
	tx.reindexFrom(i)
	tx.events = append(tx.events, txEvent[T]{prev: prev, deleted: true})
	return nil
}

func (tx *Tx[T]) reindexFrom(i int) {
	for ; i < len(tx.rows); i++ {
		tx.byID[tx.rows[i].GetID()] = i
	}
}

func checkRow[T Row[T]](row T) error {
	if row.GetID().IsZero() {
		return errZeroID
	}
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row %s: %w", row.GetID(), err)
	}
	return nil
}
