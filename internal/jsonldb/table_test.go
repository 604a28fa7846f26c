package jsonldb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/ksid"
)

// testRow is a simple row type for testing.
type testRow struct {
	ID   ksid.ID `json:"id" jsonschema:"description=Row identifier"`
	Name string  `json:"name"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func (r *testRow) GetID() ksid.ID {
	return r.ID
}

func (r *testRow) Validate() error {
	if r.Name == "invalid" {
		return errors.New("invalid name")
	}
	return nil
}

// setupTable creates a table in the test's temp directory.
func setupTable(t *testing.T) (*Table[*testRow], string) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table, path
}

func names(seq func(func(*testRow) bool)) []string {
	var out []string
	for r := range seq {
		out = append(out, r.Name)
	}
	return out
}

func TestTable(t *testing.T) {
	t.Run("Append", func(t *testing.T) {
		table, path := setupTable(t)
		for i, name := range []string{"one", "two", "three"} {
			if err := table.Append(&testRow{ID: ksid.ID(i + 1), Name: name}); err != nil {
				t.Fatalf("Append(%q): %v", name, err)
			}
		}
		if got := table.Len(); got != 3 {
			t.Errorf("Len() = %d, want 3", got)
		}
		if got := table.Last(); got == nil || got.Name != "three" {
			t.Errorf("Last() = %v, want three", got)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		if len(lines) != 4 {
			t.Fatalf("file has %d lines, want header + 3 rows:\n%s", len(lines), raw)
		}
		if !strings.Contains(lines[0], `"version":"1.0"`) {
			t.Errorf("header = %s", lines[0])
		}
	})

	t.Run("Append errors", func(t *testing.T) {
		table, _ := setupTable(t)
		if err := table.Append(&testRow{ID: 1, Name: "one"}); err != nil {
			t.Fatal(err)
		}
		tests := []struct {
			name string
			row  *testRow
			want error
		}{
			{"duplicate", &testRow{ID: 1, Name: "again"}, ErrDuplicateID},
			{"zero id", &testRow{Name: "zero"}, errZeroID},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := table.Append(tt.row); !errors.Is(err, tt.want) {
					t.Errorf("Append() = %v, want %v", err, tt.want)
				}
			})
		}
		if err := table.Append(&testRow{ID: 2, Name: "invalid"}); err == nil {
			t.Error("Append(invalid) succeeded")
		}
	})

	t.Run("out of order append stays sorted", func(t *testing.T) {
		table, path := setupTable(t)
		for _, id := range []int{5, 2, 9} {
			if err := table.Append(&testRow{ID: ksid.ID(id), Name: string(rune('a' + id))}); err != nil {
				t.Fatal(err)
			}
		}
		want := []string{"c", "f", "j"}
		if diff := cmp.Diff(want, names(table.Iter(0))); diff != "" {
			t.Errorf("Iter mismatch (-want +got):\n%s", diff)
		}
		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, names(reloaded.Iter(0))); diff != "" {
			t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Get returns clones", func(t *testing.T) {
		table, _ := setupTable(t)
		_ = table.Append(&testRow{ID: 1, Name: "one"})
		r := table.Get(1)
		r.Name = "mutated"
		if got := table.Get(1).Name; got != "one" {
			t.Errorf("Get(1).Name = %q, want one", got)
		}
		if got := table.Get(42); got != nil {
			t.Errorf("Get(42) = %v, want nil", got)
		}
	})

	t.Run("Iter from start ID", func(t *testing.T) {
		table, _ := setupTable(t)
		for i := 1; i <= 4; i++ {
			_ = table.Append(&testRow{ID: ksid.ID(i), Name: string(rune('a' + i))})
		}
		if diff := cmp.Diff([]string{"d", "e"}, names(table.Iter(2))); diff != "" {
			t.Errorf("Iter(2) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Update Delete Modify persist", func(t *testing.T) {
		table, path := setupTable(t)
		for i := 1; i <= 3; i++ {
			_ = table.Append(&testRow{ID: ksid.ID(i), Name: "n"})
		}
		if err := table.Update(&testRow{ID: 2, Name: "two"}); err != nil {
			t.Fatal(err)
		}
		if err := table.Delete(1); err != nil {
			t.Fatal(err)
		}
		got, err := table.Modify(3, func(r *testRow) error {
			r.Name = "three"
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "three" {
			t.Errorf("Modify returned %q", got.Name)
		}
		if err := table.Update(&testRow{ID: 7, Name: "x"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(missing) = %v", err)
		}
		if err := table.Delete(7); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(missing) = %v", err)
		}
		if _, err := table.Modify(7, func(*testRow) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Errorf("Modify(missing) = %v", err)
		}
		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"two", "three"}, names(reloaded.Iter(0))); diff != "" {
			t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Batch is all or nothing", func(t *testing.T) {
		table, path := setupTable(t)
		_ = table.Append(&testRow{ID: 1, Name: "one"})
		errBoom := errors.New("boom")
		err := table.Batch(func(tx *Tx[*testRow]) error {
			if err := tx.Append(&testRow{ID: 2, Name: "two"}); err != nil {
				return err
			}
			if err := tx.Delete(1); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("Batch() = %v", err)
		}
		if diff := cmp.Diff([]string{"one"}, names(table.Iter(0))); diff != "" {
			t.Errorf("rolled back mismatch (-want +got):\n%s", diff)
		}
		err = table.Batch(func(tx *Tx[*testRow]) error {
			if err := tx.Append(&testRow{ID: 2, Name: "two"}); err != nil {
				return err
			}
			if got := tx.Get(2); got == nil || got.Name != "two" {
				t.Errorf("tx.Get(2) = %v", got)
			}
			return tx.Delete(1)
		})
		if err != nil {
			t.Fatal(err)
		}
		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"two"}, names(reloaded.Iter(0))); diff != "" {
			t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		table, _ := setupTable(t)
		_ = table.Append(&testRow{ID: 1, Name: "one"})
		if err := table.Replace([]*testRow{{ID: 4, Name: "four"}, {ID: 3, Name: "three"}}); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"three", "four"}, names(table.Iter(0))); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("long lines", func(t *testing.T) {
		table, path := setupTable(t)
		long := strings.Repeat("x", 200_000)
		if err := table.Append(&testRow{ID: 1, Name: long}); err != nil {
			t.Fatal(err)
		}
		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatal(err)
		}
		if got := reloaded.Get(1); got == nil || len(got.Name) != len(long) {
			t.Error("long row not reloaded")
		}
	})

	t.Run("load errors", func(t *testing.T) {
		dir := t.TempDir()
		tests := []struct {
			name    string
			content string
		}{
			{"bad header", "not json\n"},
			{"missing version", `{"columns":[]}` + "\n"},
			{"bad row", `{"version":"1.0","columns":[]}` + "\n{bad\n"},
			{"invalid row", `{"version":"1.0","columns":[]}` + "\n" + `{"id":"","name":"invalid"}` + "\n"},
		}
		for i, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(dir, string(rune('a'+i))+".jsonl")
				if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
				if _, err := NewTable[*testRow](path); err == nil {
					t.Error("NewTable succeeded")
				}
			})
		}
	})
}

func TestSchemaFromType(t *testing.T) {
	cols, err := schemaFromType[*testRow]()
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, 0, len(cols))
	for _, c := range cols {
		got = append(got, c.Name)
	}
	if !slices.Equal(got, []string{"id", "name"}) {
		t.Errorf("columns = %v", got)
	}
	if cols[0].Description != "Row identifier" {
		t.Errorf("description = %q", cols[0].Description)
	}
	if cols[1].Type != columnTypeText {
		t.Errorf("name type = %q", cols[1].Type)
	}
	if _, err := schemaFromType[int](); err == nil {
		t.Error("schemaFromType[int] succeeded")
	}
}
