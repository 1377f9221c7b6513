package tool

import "encoding/json"

// NormalizeArgs parses string values for parameters the schema declares as
// array or object. A value that does not parse into the declared shape is
// left as the original string. The input map is not modified.
func NormalizeArgs(s *Schema, input map[string]any) map[string]any {
	if s == nil || len(s.Properties) == 0 || len(input) == 0 {
		return input
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
		p, ok := s.Properties[k]
		if !ok || p == nil {
			continue
		}
		str, isString := v.(string)
		if !isString {
			continue
		}
		switch p.Type {
		case TypeArray:
			var arr []any
			if json.Unmarshal([]byte(str), &arr) == nil && arr != nil {
				out[k] = arr
			}
		case TypeObject:
			var obj map[string]any
			if json.Unmarshal([]byte(str), &obj) == nil && obj != nil {
				out[k] = obj
			}
		}
	}
	return out
}
