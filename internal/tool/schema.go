package tool

import "encoding/json"

// JSON-schema type names as tools declare them.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Schema is the JSON-schema subset tool parameters are declared with.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Object is a shorthand for a parameter object schema.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := *s
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = v.Clone()
		}
	}
	out.Items = s.Items.Clone()
	out.Required = append([]string(nil), s.Required...)
	out.Enum = append([]string(nil), s.Enum...)
	return &out
}

// Map renders the schema as a generic JSON object, the shape most SDKs accept.
func (s *Schema) Map() map[string]any {
	if s == nil {
		return map[string]any{"type": TypeObject, "properties": map[string]any{}}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": TypeObject}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if m["type"] == TypeObject && m["properties"] == nil {
		m["properties"] = map[string]any{}
	}
	return m
}

// SchemaFromMap converts a generic JSON-schema object (as delivered by MCP
// servers) into a Schema. Unsupported keywords are dropped.
func SchemaFromMap(m map[string]any) (*Schema, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
