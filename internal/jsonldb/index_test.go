package jsonldb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUniqueIndex(t *testing.T) {
	table, _ := setupTable(t)
	_ = table.Append(&testRow{ID: 1, Name: "one"})
	idx := NewUniqueIndex(table, func(r *testRow) string { return r.Name })

	if got := idx.Get("one"); got == nil || got.ID != 1 {
		t.Fatalf("Get(one) = %v, existing rows must be indexed", got)
	}
	_ = table.Append(&testRow{ID: 2, Name: "two"})
	if got := idx.Get("two"); got == nil || got.ID != 2 {
		t.Errorf("Get(two) = %v", got)
	}
	_ = table.Update(&testRow{ID: 2, Name: "deux"})
	if got := idx.Get("two"); got != nil {
		t.Errorf("Get(two) after rename = %v", got)
	}
	if got := idx.Get("deux"); got == nil || got.ID != 2 {
		t.Errorf("Get(deux) = %v", got)
	}
	_ = table.Delete(1)
	if got := idx.Get("one"); got != nil {
		t.Errorf("Get(one) after delete = %v", got)
	}
}

func TestIndex(t *testing.T) {
	table, _ := setupTable(t)
	idx := NewIndex(table, func(r *testRow) int { return len(r.Name) })
	_ = table.Append(&testRow{ID: 3, Name: "aaa"})
	_ = table.Append(&testRow{ID: 4, Name: "bb"})
	_ = table.Append(&testRow{ID: 5, Name: "ccc"})

	if diff := cmp.Diff([]string{"aaa", "ccc"}, names(idx.Iter(3))); diff != "" {
		t.Errorf("Iter(3) mismatch (-want +got):\n%s", diff)
	}
	_ = table.Update(&testRow{ID: 3, Name: "dd"})
	if diff := cmp.Diff([]string{"dd", "bb"}, names(idx.Iter(2))); diff != "" {
		t.Errorf("Iter(2) mismatch (-want +got):\n%s", diff)
	}
	_ = table.Delete(5)
	if got := names(idx.Iter(3)); len(got) != 0 {
		t.Errorf("Iter(3) after delete = %v", got)
	}
}
