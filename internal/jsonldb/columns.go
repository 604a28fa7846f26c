// Derives the schema header of a table from its row type.

package jsonldb

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

var errSchemaVersionRequired = errors.New("schema version is required")

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

// columnType represents the type of a table column.
type columnType string

const (
	columnTypeText   columnType = "text"
	columnTypeNumber columnType = "number"
	columnTypeBool   columnType = "bool"
	columnTypeJSONB  columnType = "jsonb"
)

// column describes one field of the stored rows.
type column struct {
	Name        string     `json:"name"`
	Type        columnType `json:"type"`
	Required    bool       `json:"required,omitempty"`
	Description string     `json:"description,omitempty"`
}

// schemaHeader is the first line of a JSONL table file.
type schemaHeader struct {
	Version string   `json:"version"`
	Columns []column `json:"columns"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	for i, col := range h.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if col.Type == "" {
			return fmt.Errorf("column %d: type is required", i)
		}
	}
	return nil
}

// schemaFromType extracts column definitions from the JSON schema of T.
//
// It uses github.com/invopop/jsonschema so field names, required fields and
// `jsonschema:"description=..."` tags match what is written to disk.
func schemaFromType[T any]() ([]column, error) {
	t := reflect.TypeFor[T]()
	switch t.Kind() {
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
		}
		t = t.Elem()
	case reflect.Struct:
	default:
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	var columns []column
	if schema.Properties == nil {
		return columns, nil
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, column{
			Name:        pair.Key,
			Type:        schemaTypeToColumnType(pair.Value.Type),
			Required:    required[pair.Key],
			Description: pair.Value.Description,
		})
	}
	return columns, nil
}

func schemaTypeToColumnType(t string) columnType {
	switch t {
	case "string":
		return columnTypeText
	case "integer", "number":
		return columnTypeNumber
	case "boolean":
		return columnTypeBool
	default:
		return columnTypeJSONB
	}
}
