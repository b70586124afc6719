package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Kind is the declared type of a schema node.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Schema is a structural description of a value. Only the fields relevant to
// Kind are consulted: Items for arrays, Properties for objects, Enum for
// strings, Minimum/Maximum for integers and numbers.
type Schema struct {
	Kind        Kind
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Items       *Schema
	Properties  []Property
}

// Property is a named member of an object schema. Declaration order is kept
// so the rendered schema is deterministic.
type Property struct {
	Name     string
	Schema   Schema
	Required bool
}

// Violation describes one way a value failed its schema.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// Object builds an object schema from the given properties.
func Object(props ...Property) Schema {
	return Schema{Kind: KindObject, Properties: props}
}

// String returns a string schema.
func String(desc string) Schema { return Schema{Kind: KindString, Description: desc} }

// Integer returns an integer schema.
func Integer(desc string) Schema { return Schema{Kind: KindInteger, Description: desc} }

// Number returns a number schema.
func Number(desc string) Schema { return Schema{Kind: KindNumber, Description: desc} }

// Boolean returns a boolean schema.
func Boolean(desc string) Schema { return Schema{Kind: KindBoolean, Description: desc} }

// Array returns an array schema whose elements match items.
func Array(desc string, items Schema) Schema {
	return Schema{Kind: KindArray, Description: desc, Items: &items}
}

// Required declares a required property.
func Required(name string, s Schema) Property { return Property{Name: name, Schema: s, Required: true} }

// Optional declares an optional property.
func Optional(name string, s Schema) Property { return Property{Name: name, Schema: s} }

// Between bounds an integer or number schema, inclusive.
func (s Schema) Between(min, max float64) Schema {
	s.Minimum = &min
	s.Maximum = &max
	return s
}

// AtLeast sets an inclusive lower bound.
func (s Schema) AtLeast(min float64) Schema {
	s.Minimum = &min
	return s
}

// OneOf restricts a string schema to the given values.
func (s Schema) OneOf(values ...string) Schema {
	s.Enum = values
	return s
}

// Check reports whether the schema itself is well formed.
func (s Schema) Check() error {
	return s.check("$")
}

func (s Schema) check(path string) error {
	switch s.Kind {
	case KindString, KindInteger, KindNumber, KindBoolean:
	case KindArray:
		if s.Items == nil {
			return fmt.Errorf("%s: array schema without items", path)
		}
		return s.Items.check(path + "[]")
	case KindObject:
		seen := make(map[string]struct{}, len(s.Properties))
		for _, p := range s.Properties {
			if p.Name == "" {
				return fmt.Errorf("%s: property without name", path)
			}
			if _, dup := seen[p.Name]; dup {
				return fmt.Errorf("%s: duplicate property %q", path, p.Name)
			}
			seen[p.Name] = struct{}{}
			if err := p.Schema.check(path + "." + p.Name); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unsupported kind %q", path, s.Kind)
	}
	if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
		return fmt.Errorf("%s: minimum greater than maximum", path)
	}
	return nil
}

// RequiredNames lists the required properties of an object schema in
// declaration order.
func (s Schema) RequiredNames() []string {
	var out []string
	for _, p := range s.Properties {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// JSONSchema renders the schema as a JSON Schema document.
func (s Schema) JSONSchema() map[string]any {
	out := map[string]any{"type": string(s.Kind)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = slices.Clone(s.Enum)
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	switch s.Kind {
	case KindArray:
		if s.Items != nil {
			out["items"] = s.Items.JSONSchema()
		}
	case KindObject:
		out["properties"] = s.PropertiesJSON()
		if req := s.RequiredNames(); len(req) > 0 {
			out["required"] = req
		}
	}
	return out
}

// PropertiesJSON renders the properties of an object schema.
func (s Schema) PropertiesJSON() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		props[p.Name] = p.Schema.JSONSchema()
	}
	return props
}

// Validate walks an argument mapping against an object schema and returns
// the normalized arguments together with every violation found. A nil
// mapping is treated as empty. Integers are normalized to int64 and numbers
// to float64.
func (s Schema) Validate(args map[string]any) (Args, []Violation) {
	if args == nil {
		args = map[string]any{}
	}
	var vs []Violation
	out := s.validateObject("", args, &vs)
	if len(vs) > 0 {
		return nil, vs
	}
	return Args(out), nil
}

func (s Schema) validateObject(path string, obj map[string]any, vs *[]Violation) map[string]any {
	out := make(map[string]any, len(obj))
	for _, p := range s.Properties {
		field := join(path, p.Name)
		v, ok := obj[p.Name]
		if !ok || v == nil {
			if p.Required {
				*vs = append(*vs, Violation{Field: field, Message: "is required"})
			}
			continue
		}
		out[p.Name] = p.Schema.validate(field, v, vs)
	}
	// Undeclared keys pass through untouched.
	for k, v := range obj {
		if _, ok := out[k]; !ok && v != nil && !s.declares(k) {
			out[k] = v
		}
	}
	return out
}

func (s Schema) declares(name string) bool {
	for _, p := range s.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (s Schema) validate(field string, v any, vs *[]Violation) any {
	mismatch := func() any {
		*vs = append(*vs, Violation{Field: field, Message: fmt.Sprintf("expected %s, got %s", s.Kind, describe(v))})
		return nil
	}
	switch s.Kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return mismatch()
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			*vs = append(*vs, Violation{Field: field, Message: fmt.Sprintf("must be one of %v", s.Enum)})
		}
		return str
	case KindInteger:
		n, ok := asInteger(v)
		if !ok {
			return mismatch()
		}
		s.checkRange(field, float64(n), vs)
		return n
	case KindNumber:
		f, ok := asNumber(v)
		if !ok {
			return mismatch()
		}
		s.checkRange(field, f, vs)
		return f
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return mismatch()
		}
		return b
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = s.Items.validate(field+"["+strconv.Itoa(i)+"]", it, vs)
		}
		return out
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		return s.validateObject(field, obj, vs)
	}
	return v
}

func (s Schema) checkRange(field string, f float64, vs *[]Violation) {
	if s.Minimum != nil && f < *s.Minimum {
		*vs = append(*vs, Violation{Field: field, Message: fmt.Sprintf("must be >= %v", *s.Minimum)})
	}
	if s.Maximum != nil && f > *s.Maximum {
		*vs = append(*vs, Violation{Field: field, Message: fmt.Sprintf("must be <= %v", *s.Maximum)})
	}
}

func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return integral(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	}
	return 0, false
}

// integral converts f when it is a whole number inside the int64 range.
// float64(math.MaxInt64) rounds up to 2^63, hence the >= bound.
func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
