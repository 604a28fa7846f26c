package library

import (
	"encoding/json"
	"strings"
)

// QuickSearchMode selects the fields a quick search looks at.
type QuickSearchMode string

const (
	// TitleCreatorYear matches item titles, creator names and the year of
	// the item date. It is the default.
	TitleCreatorYear QuickSearchMode = "titleCreatorYear"
	// Everything matches every string field of an item and its tags.
	Everything QuickSearchMode = "everything"
)

// Valid reports whether m is a known mode.
func (m QuickSearchMode) Valid() bool {
	return m == TitleCreatorYear || m == Everything
}

// quickMatcher matches object data against a case-insensitive phrase.
type quickMatcher struct {
	phrase string
	mode   QuickSearchMode
}

func newQuickMatcher(phrase string, mode QuickSearchMode) *quickMatcher {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil
	}
	if mode == "" {
		mode = TitleCreatorYear
	}
	return &quickMatcher{phrase: phrase, mode: mode}
}

// match reports whether the data of an object of type typ contains the
// phrase. A nil matcher matches everything.
func (m *quickMatcher) match(typ ObjectType, data json.RawMessage) bool {
	if m == nil {
		return true
	}
	var d struct {
		Name     string    `json:"name"`
		Title    string    `json:"title"`
		Date     string    `json:"date"`
		Creators []Creator `json:"creators"`
		Tags     []Tag     `json:"tags"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return false
	}
	if typ != Item {
		return m.contains(d.Name)
	}
	if m.contains(d.Title) || m.contains(year(d.Date)) {
		return true
	}
	for _, c := range d.Creators {
		if m.contains(c.Name) || m.contains(c.FirstName) || m.contains(c.LastName) {
			return true
		}
	}
	if m.mode != Everything {
		return false
	}
	for _, t := range d.Tags {
		if m.contains(t.Tag) {
			return true
		}
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for k, v := range fields {
		switch k {
		case "itemType", "dateAdded", "dateModified":
			continue
		}
		if s, ok := v.(string); ok && m.contains(s) {
			return true
		}
	}
	return false
}

func (m *quickMatcher) contains(s string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), m.phrase)
}

// year returns the first run of four digits in a free-form date.
func year(date string) string {
	run := 0
	for i := 0; i < len(date); i++ {
		if date[i] >= '0' && date[i] <= '9' {
			run++
			if run == 4 && (i+1 == len(date) || date[i+1] < '0' || date[i+1] > '9') {
				return date[i-3 : i+1]
			}
			continue
		}
		run = 0
	}
	return ""
}
