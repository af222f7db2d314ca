package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType enumerates the JSON types a schema property may take.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Schema is a statically defined descriptor for structured output. Each
// request type declares its schema explicitly; there is no runtime
// introspection of Go types.
type Schema struct {
	Name string
	Root *ObjectSchema
}

// ObjectSchema describes a JSON object.
type ObjectSchema struct {
	Properties []Property
}

// Property describes one object field.
type Property struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	// Items describes array elements (Type == TypeArray).
	Items *Property
	// Object describes nested objects (Type == TypeObject).
	Object *ObjectSchema
	// Minimum/Maximum bound numeric values when non-nil.
	Minimum *float64
	Maximum *float64
	// Enum restricts string values when non-empty.
	Enum []string
}

// DecodeError reports a response that violated its declared schema. An API
// that claims schema conformance but returns nonconforming data is a data
// error and is always surfaced.
type DecodeError struct {
	Reason string
	Raw    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("schema violation: %s", e.Reason)
}

// ProviderSchema renders the provider-native JSON Schema descriptor.
func (s *Schema) ProviderSchema() json.RawMessage {
	raw, _ := json.Marshal(s.Root.jsonSchema())
	return raw
}

func (o *ObjectSchema) jsonSchema() map[string]any {
	props := make(map[string]any, len(o.Properties))
	var required []string
	for _, p := range o.Properties {
		props[p.Name] = p.jsonSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func (p *Property) jsonSchema() map[string]any {
	out := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		out["description"] = p.Description
	}
	switch p.Type {
	case TypeArray:
		if p.Items != nil {
			out["items"] = p.Items.jsonSchema()
		}
	case TypeObject:
		if p.Object != nil {
			return p.Object.jsonSchema()
		}
	}
	if p.Minimum != nil {
		out["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		out["maximum"] = *p.Maximum
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	return out
}

// Validate checks a raw JSON payload against the schema. Returns a
// DecodeError describing the first violation found.
func (s *Schema) Validate(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &DecodeError{Reason: eris.Wrap(err, "not valid JSON").Error(), Raw: truncate(string(raw), 200)}
	}
	if err := s.Root.validate(doc, "$"); err != nil {
		return &DecodeError{Reason: err.Error(), Raw: truncate(string(raw), 200)}
	}
	return nil
}

func (o *ObjectSchema) validate(doc any, path string) error {
	obj, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected object", path)
	}
	for _, p := range o.Properties {
		val, present := obj[p.Name]
		if !present || val == nil {
			if p.Required {
				return fmt.Errorf("%s.%s: required field missing", path, p.Name)
			}
			continue
		}
		if err := p.validate(val, path+"."+p.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Property) validate(val any, path string) error {
	switch p.Type {
	case TypeString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("%s: expected string", path)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("%s: %q not in enum [%s]", path, s, strings.Join(p.Enum, ", "))
		}
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	case TypeInteger:
		f, ok := val.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("%s: expected integer", path)
		}
		return p.validateBounds(f, path)
	case TypeNumber:
		f, ok := val.(float64)
		if !ok {
			return fmt.Errorf("%s: expected number", path)
		}
		return p.validateBounds(f, path)
	case TypeArray:
		arr, ok := val.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		if p.Items != nil {
			for i, item := range arr {
				if err := p.Items.validate(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case TypeObject:
		if p.Object != nil {
			return p.Object.validate(val, path)
		}
	}
	return nil
}

func (p *Property) validateBounds(f float64, path string) error {
	if p.Minimum != nil && f < *p.Minimum {
		return fmt.Errorf("%s: %v below minimum %v", path, f, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return fmt.Errorf("%s: %v above maximum %v", path, f, *p.Maximum)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
