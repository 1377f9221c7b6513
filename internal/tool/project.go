package tool

import "strings"

// JSONTextNote is appended to parameters flattened to strings.
const JSONTextNote = "Provide this value as JSON-encoded text."

// ProjectFor returns the declarations of every registered tool shaped for v.
// It does not modify the registry.
func (r *Registry) ProjectFor(v Vendor) []Declaration {
	tools := r.List()
	out := make([]Declaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, Project(t, v))
	}
	return out
}

// Project shapes one tool's declaration for v.
func Project(t *Tool, v Vendor) Declaration {
	params := t.Parameters.Clone()
	if params == nil {
		params = &Schema{Type: TypeObject}
	}
	if params.Type == "" {
		params.Type = TypeObject
	}
	if params.Properties == nil {
		params.Properties = map[string]*Schema{}
	}

	switch v {
	case Gemini:
		ensureItems(params)
		upperTypes(params)
	case Ollama:
		flatten(params)
	default:
		ensureItems(params)
	}
	return Declaration{Name: t.Name, Description: t.Description, Parameters: params}
}

// SupportsToolChoice reports whether a tool_choice directive may be sent to
// the given model.
func SupportsToolChoice(v Vendor, model string) bool {
	switch v {
	case OpenAI:
		return !strings.HasPrefix(strings.ToLower(model), "o1")
	case Ollama:
		return false
	default:
		return true
	}
}

func ensureItems(s *Schema) {
	if s == nil {
		return
	}
	if s.Type == TypeArray && s.Items == nil {
		s.Items = &Schema{Type: TypeString}
	}
	for _, p := range s.Properties {
		ensureItems(p)
	}
	ensureItems(s.Items)
}

func upperTypes(s *Schema) {
	if s == nil {
		return
	}
	s.Type = strings.ToUpper(s.Type)
	for _, p := range s.Properties {
		upperTypes(p)
	}
	upperTypes(s.Items)
}

// flatten turns every structured top-level parameter into a string carrying
// JSON text.
func flatten(params *Schema) {
	for name, p := range params.Properties {
		if p == nil {
			params.Properties[name] = &Schema{Type: TypeString}
			continue
		}
		if p.Type != TypeArray && p.Type != TypeObject {
			continue
		}
		desc := strings.TrimSpace(p.Description)
		if desc != "" {
			desc += " "
		}
		params.Properties[name] = &Schema{
			Type:        TypeString,
			Description: desc + JSONTextNote,
		}
	}
}
