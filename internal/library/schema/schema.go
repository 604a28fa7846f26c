// Package schema describes the item types a library accepts.
//
// The definitions are embedded from itemtypes.yaml and parsed once.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed itemtypes.yaml
var itemTypesYAML []byte

// ItemType describes one item type.
type ItemType struct {
	ItemType     string   `yaml:"itemType" json:"itemType"`
	Fields       []string `yaml:"fields" json:"fields"`
	CreatorTypes []string `yaml:"creatorTypes" json:"creatorTypes"`
}

// Schema is the set of all item types.
type Schema struct {
	Version      int        `yaml:"version" json:"version"`
	CreatorTypes []string   `yaml:"creatorTypes" json:"creatorTypes"`
	ItemTypes    []ItemType `yaml:"itemTypes" json:"itemTypes"`

	byType    map[string]*ItemType
	allFields map[string]struct{}
}

// Parse parses a YAML schema definition.
func Parse(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse item type schema: %w", err)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) init() error {
	if s.Version <= 0 {
		return errors.New("schema version must be positive")
	}
	s.byType = make(map[string]*ItemType, len(s.ItemTypes))
	s.allFields = make(map[string]struct{})
	for i := range s.ItemTypes {
		it := &s.ItemTypes[i]
		if it.ItemType == "" {
			return fmt.Errorf("item type %d has no name", i)
		}
		if _, ok := s.byType[it.ItemType]; ok {
			return fmt.Errorf("duplicate item type %q", it.ItemType)
		}
		for _, ct := range it.CreatorTypes {
			if !slices.Contains(s.CreatorTypes, ct) {
				return fmt.Errorf("item type %q: unknown creator type %q", it.ItemType, ct)
			}
		}
		s.byType[it.ItemType] = it
		for _, f := range it.Fields {
			s.allFields[f] = struct{}{}
		}
	}
	return nil
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the embedded schema. It panics if the embedded file is
// invalid, which is a build defect.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Parse(itemTypesYAML)
		if err != nil {
			panic(err)
		}
		defaultSchema = s
	})
	return defaultSchema
}

// ItemType returns the definition of the named type, or nil.
func (s *Schema) ItemType(name string) *ItemType {
	return s.byType[name]
}

// IsField reports whether name is a field of any item type.
func (s *Schema) IsField(name string) bool {
	_, ok := s.allFields[name]
	return ok
}

// HasField reports whether the item type has the field.
func (it *ItemType) HasField(name string) bool {
	return slices.Contains(it.Fields, name)
}

// HasCreatorType reports whether the item type accepts the creator type.
func (it *ItemType) HasCreatorType(name string) bool {
	return slices.Contains(it.CreatorTypes, name)
}

// Template returns the JSON data of an empty item of this type.
func (it *ItemType) Template() map[string]any {
	t := map[string]any{
		"itemType":    it.ItemType,
		"tags":        []any{},
		"collections": []any{},
		"relations":   map[string]any{},
	}
	for _, f := range it.Fields {
		t[f] = ""
	}
	if ct := it.PrimaryCreatorType(); ct != "" {
		t["creators"] = []any{map[string]any{"creatorType": ct, "firstName": "", "lastName": ""}}
	}
	return t
}

// PrimaryCreatorType returns the first creator type, or "" for types without creators.
func (it *ItemType) PrimaryCreatorType() string {
	if len(it.CreatorTypes) == 0 {
		return ""
	}
	return it.CreatorTypes[0]
}
