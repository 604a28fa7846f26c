package schema

import "testing"

func TestDefault(t *testing.T) {
	s := Default()
	book := s.ItemType("book")
	if book == nil {
		t.Fatal("book missing")
	}
	if !book.HasField("title") || book.HasField("publicationTitle") {
		t.Errorf("book fields = %v", book.Fields)
	}
	if got := book.PrimaryCreatorType(); got != "author" {
		t.Errorf("PrimaryCreatorType() = %q", got)
	}
	if !s.IsField("publicationTitle") || s.IsField("bogus") {
		t.Error("IsField mismatch")
	}
	if s.ItemType("bogus") != nil {
		t.Error("bogus item type found")
	}
	if note := s.ItemType("note"); note.PrimaryCreatorType() != "" {
		t.Error("note has creators")
	}
}

func TestTemplate(t *testing.T) {
	book := Default().ItemType("book").Template()
	if book["itemType"] != "book" || book["title"] != "" {
		t.Errorf("book template = %v", book)
	}
	if _, ok := book["creators"]; !ok {
		t.Error("book template has no creators")
	}
	note := Default().ItemType("note").Template()
	if _, ok := note["creators"]; ok {
		t.Errorf("note template = %v", note)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad yaml", "version: [\n"},
		{"no version", "itemTypes: []\n"},
		{"unnamed type", "version: 1\nitemTypes:\n  - fields: [title]\n"},
		{"duplicate", "version: 1\nitemTypes:\n  - itemType: a\n  - itemType: a\n"},
		{"unknown creator", "version: 1\ncreatorTypes: [author]\nitemTypes:\n  - itemType: a\n    creatorTypes: [editor]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.in)); err == nil {
				t.Error("Parse succeeded")
			}
		})
	}
}
