// Validates and normalizes the JSON data of collections, items and searches.

package library

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/maruel/bibdb/internal/library/schema"
)

// dateFormat is the format of dateAdded and dateModified.
const dateFormat = "2006-01-02T15:04:05Z"

// Operators lists the search condition operators.
var Operators = []string{
	"is", "isNot", "contains", "doesNotContain", "beginsWith",
	"isLessThan", "isGreaterThan", "isBefore", "isAfter", "isInTheLast",
}

// Condition is one condition of a saved search. Conditions are stored, never
// evaluated.
type Condition struct {
	Condition string `json:"condition" validate:"required,max=255"`
	Operator  string `json:"operator" validate:"required,oneof=is isNot contains doesNotContain beginsWith isLessThan isGreaterThan isBefore isAfter isInTheLast"`
	Value     string `json:"value"`
}

// Creator is a person or organization credited on an item. Either Name or
// FirstName and LastName are set.
type Creator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Tag is a tag attached to an item. Type 1 marks automatic tags.
type Tag struct {
	Tag  string `json:"tag"`
	Type int    `json:"type,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// resolver answers questions about other objects of the library while a
// change is being prepared.
type resolver interface {
	exists(typ ObjectType, key string) bool
	parentOf(key string) string
}

// normalizer validates object data against the limits and the item schema.
type normalizer struct {
	limits Limits
	schema *schema.Schema
	res    resolver
}

// normalize validates d, the decoded data of the object key of type typ
// without its key and version, and returns its canonical form.
func (n *normalizer) normalize(typ ObjectType, key string, d map[string]any) (map[string]any, *ObjectError) {
	switch typ {
	case Collection:
		return n.collection(key, d)
	case Search:
		return n.search(d)
	case Item:
		return n.item(d)
	}
	return nil, invalid("Invalid object type '%s'", typ)
}

func (n *normalizer) collection(key string, d map[string]any) (map[string]any, *ObjectError) {
	for _, k := range sortedKeys(d) {
		switch k {
		case "name", "parentCollection", "relations":
		default:
			return nil, invalid("Invalid property '%s'", k)
		}
	}
	name, oerr := n.name(Collection, d["name"])
	if oerr != nil {
		return nil, oerr
	}
	out := map[string]any{"name": name, "parentCollection": false}
	switch p := d["parentCollection"].(type) {
	case nil:
	case bool:
		if p {
			return nil, invalid("'parentCollection' must be a collection key or false")
		}
	case string:
		if p == "" {
			break
		}
		if p == key {
			return nil, invalid("Collection %s cannot be a child of itself", key)
		}
		if !n.res.exists(Collection, p) {
			return nil, objectErrorf(http.StatusConflict, "Parent collection %s doesn't exist", p)
		}
		seen := map[string]bool{p: true}
		for cur := n.res.parentOf(p); cur != "" && !seen[cur]; cur = n.res.parentOf(cur) {
			if cur == key {
				return nil, invalid("Cannot move collection %s into its own descendant %s", key, p)
			}
			seen[cur] = true
		}
		out["parentCollection"] = p
	default:
		return nil, invalid("'parentCollection' must be a collection key or false")
	}
	rel, oerr := normalizeRelations(d["relations"])
	if oerr != nil {
		return nil, oerr
	}
	out["relations"] = rel
	return out, nil
}

func (n *normalizer) search(d map[string]any) (map[string]any, *ObjectError) {
	for _, k := range sortedKeys(d) {
		switch k {
		case "name", "conditions":
		default:
			return nil, invalid("Invalid property '%s'", k)
		}
	}
	name, oerr := n.name(Search, d["name"])
	if oerr != nil {
		return nil, oerr
	}
	raw, ok := d["conditions"]
	if !ok {
		return nil, invalid("'conditions' not provided for search")
	}
	var conds []Condition
	if err := convert(raw, &conds); err != nil {
		return nil, invalid("'conditions' must be an array of condition objects")
	}
	if len(conds) == 0 {
		return nil, invalid("'conditions' cannot be empty")
	}
	for i := range conds {
		if err := validate.Struct(&conds[i]); err != nil {
			return nil, conditionError(i, &conds[i], err)
		}
		if utf8.RuneCountInString(conds[i].Value) > n.limits.MaxFieldLength {
			return nil, invalid("Search condition value cannot be longer than %d characters", n.limits.MaxFieldLength)
		}
	}
	return map[string]any{"name": name, "conditions": conds}, nil
}

func conditionError(i int, c *Condition, err error) *ObjectError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("Invalid search condition %d: %v", i, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid("'%s' not provided for search condition %d", fe.Field(), i)
	case "oneof":
		return invalid("Invalid operator '%s' in search condition %d", c.Operator, i)
	case "max":
		return invalid("'%s' of search condition %d is too long", fe.Field(), i)
	}
	return invalid("Invalid '%s' in search condition %d", fe.Field(), i)
}

// name validates the name of a collection or a search.
func (n *normalizer) name(typ ObjectType, v any) (string, *ObjectError) {
	s, ok := v.(string)
	if v != nil && !ok {
		return "", invalid("'name' must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid("%s name cannot be empty", typ.Title())
	}
	if utf8.RuneCountInString(s) > n.limits.MaxNameLength {
		return "", invalid("%s name cannot be longer than %d characters", typ.Title(), n.limits.MaxNameLength)
	}
	return s, nil
}

func (n *normalizer) item(d map[string]any) (map[string]any, *ObjectError) {
	typeName, _ := d["itemType"].(string)
	if typeName == "" {
		return nil, invalid("'itemType' property not provided")
	}
	it := n.schema.ItemType(typeName)
	if it == nil {
		return nil, invalid("'%s' is not a valid itemType", typeName)
	}
	out := map[string]any{
		"itemType":    typeName,
		"creators":    []Creator{},
		"tags":        []Tag{},
		"collections": []string{},
		"relations":   map[string]any{},
	}
	for _, k := range sortedKeys(d) {
		v := d[k]
		switch k {
		case "itemType":
		case "creators":
			creators, oerr := n.creators(it, v)
			if oerr != nil {
				return nil, oerr
			}
			out[k] = creators
		case "tags":
			tags, oerr := n.tags(v)
			if oerr != nil {
				return nil, oerr
			}
			out[k] = tags
		case "collections":
			cols, oerr := n.collections(v)
			if oerr != nil {
				return nil, oerr
			}
			out[k] = cols
		case "relations":
			rel, oerr := normalizeRelations(v)
			if oerr != nil {
				return nil, oerr
			}
			out[k] = rel
		case "dateAdded", "dateModified":
			s, ok := v.(string)
			if v != nil && !ok {
				return nil, invalid("'%s' must be a string", k)
			}
			if s == "" {
				continue
			}
			t, err := parseDate(s)
			if err != nil {
				return nil, invalid("'%s' must be in ISO 8601 or UTC 'YYYY-MM-DD[ hh:mm:ss]' format", k)
			}
			out[k] = t.Format(dateFormat)
		default:
			if !it.HasField(k) {
				if n.schema.IsField(k) {
					return nil, invalid("'%s' is not a valid field for type '%s'", k, typeName)
				}
				return nil, invalid("Invalid property '%s'", k)
			}
			var s string
			switch x := v.(type) {
			case nil:
			case string:
				s = x
			case json.Number:
				s = x.String()
			default:
				return nil, invalid("'%s' must be a string", k)
			}
			if s == "" {
				continue
			}
			if utf8.RuneCountInString(s) > n.limits.MaxFieldLength {
				return nil, invalid("Field '%s' cannot be longer than %d characters", k, n.limits.MaxFieldLength)
			}
			out[k] = s
		}
	}
	return out, nil
}

func (n *normalizer) creators(it *schema.ItemType, v any) ([]Creator, *ObjectError) {
	var in []Creator
	if v != nil {
		if err := convert(v, &in); err != nil {
			return nil, invalid("'creators' must be an array of creator objects")
		}
	}
	out := make([]Creator, 0, len(in))
	for i, c := range in {
		if c.Name == "" && c.FirstName == "" && c.LastName == "" {
			continue
		}
		if c.CreatorType == "" {
			return nil, invalid("creatorType not provided for creator %d", i)
		}
		if !it.HasCreatorType(c.CreatorType) {
			return nil, invalid("'%s' is not a valid creator type for item type '%s'", c.CreatorType, it.ItemType)
		}
		if c.Name != "" && (c.FirstName != "" || c.LastName != "") {
			return nil, invalid("Creator %d cannot have both a single name and a two-part name", i)
		}
		for _, s := range []string{c.Name, c.FirstName, c.LastName} {
			if utf8.RuneCountInString(s) > n.limits.MaxNameLength {
				return nil, invalid("Creator name cannot be longer than %d characters", n.limits.MaxNameLength)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (n *normalizer) tags(v any) ([]Tag, *ObjectError) {
	var in []Tag
	if v != nil {
		if err := convert(v, &in); err != nil {
			return nil, invalid("'tags' must be an array of tag objects")
		}
	}
	out := make([]Tag, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t.Tag = strings.TrimSpace(t.Tag)
		if t.Tag == "" {
			return nil, invalid("Tag cannot be empty")
		}
		if t.Type != 0 && t.Type != 1 {
			return nil, invalid("Invalid tag type %d for tag '%s'", t.Type, t.Tag)
		}
		if utf8.RuneCountInString(t.Tag) > n.limits.MaxNameLength {
			return nil, invalid("Tag cannot be longer than %d characters", n.limits.MaxNameLength)
		}
		if seen[t.Tag] {
			continue
		}
		seen[t.Tag] = true
		out = append(out, t)
	}
	return out, nil
}

func (n *normalizer) collections(v any) ([]string, *ObjectError) {
	var in []string
	if v != nil {
		if err := convert(v, &in); err != nil {
			return nil, invalid("'collections' must be an array of collection keys")
		}
	}
	out := make([]string, 0, len(in))
	for _, k := range in {
		if slices.Contains(out, k) {
			continue
		}
		if !n.res.exists(Collection, k) {
			return nil, objectErrorf(http.StatusConflict, "Collection %s doesn't exist", k)
		}
		out = append(out, k)
	}
	return out, nil
}

// normalizeRelations validates a relations object. Each predicate maps to a
// URI or a list of URIs.
func normalizeRelations(v any) (map[string]any, *ObjectError) {
	out := map[string]any{}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("'relations' property must be an object")
	}
	for pred, val := range m {
		if ns, name, ok := strings.Cut(pred, ":"); !ok || ns == "" || name == "" {
			return nil, invalid("Unsupported predicate '%s'", pred)
		}
		switch x := val.(type) {
		case string:
			if x != "" {
				out[pred] = x
			}
		case []any:
			var uris []string
			for _, u := range x {
				s, ok := u.(string)
				if !ok {
					return nil, invalid("Relation values for '%s' must be strings", pred)
				}
				if s != "" && !slices.Contains(uris, s) {
					uris = append(uris, s)
				}
			}
			switch len(uris) {
			case 0:
			case 1:
				out[pred] = uris[0]
			default:
				out[pred] = uris
			}
		default:
			return nil, invalid("Relation values for '%s' must be strings", pred)
		}
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid date")
}

// decodeProps decodes raw as a JSON object. It reports false when raw is any
// other JSON value.
func decodeProps(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// decodeValue decodes one JSON value, keeping numbers as json.Number.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeData decodes stored object data.
func decodeData(data []byte) (map[string]any, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("object data is not a JSON object")
	}
	return m, nil
}

// convert re-decodes a generic JSON value into dst, rejecting unknown fields.
func convert(v, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
