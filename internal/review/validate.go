package review

import (
	"fmt"
	"math"
)

// validateDocument checks a decoded document against the descriptor and
// returns the first violation found, or nil when the document conforms.
// Values are rejected, never coerced: an out-of-range criticality or a
// score that arrives as a string fails validation outright.
func validateDocument(doc any, d *SchemaDescriptor) *Failure {
	obj, ok := doc.(map[string]any)
	if !ok {
		return violation("", fmt.Sprintf("expected a JSON object, got %s", jsonType(doc)))
	}

	for _, f := range d.Fields {
		val, present := obj[f.Name]
		if !present || val == nil {
			// Explicit null counts as absent.
			if f.Required {
				return violation(f.Name, "required field is missing")
			}
			continue
		}
		if v := checkField(f.Name, f, val); v != nil {
			return v
		}
	}
	return nil
}

func checkField(path string, f Field, val any) *Failure {
	switch f.Kind {
	case KindString:
		if _, ok := val.(string); !ok {
			return violation(path, fmt.Sprintf("expected string, got %s", jsonType(val)))
		}

	case KindNumber:
		n, ok := val.(float64)
		if !ok {
			return violation(path, fmt.Sprintf("expected number, got %s", jsonType(val)))
		}
		return checkBounds(path, f.Bounds, n)

	case KindInteger:
		n, ok := val.(float64)
		if !ok {
			return violation(path, fmt.Sprintf("expected integer, got %s", jsonType(val)))
		}
		if math.Trunc(n) != n || math.IsInf(n, 0) {
			return violation(path, fmt.Sprintf("expected integer, got %v", n))
		}
		return checkBounds(path, f.Bounds, n)

	case KindObject:
		obj, ok := val.(map[string]any)
		if !ok {
			return violation(path, fmt.Sprintf("expected object, got %s", jsonType(val)))
		}
		return checkObject(path, f.Sub, obj)

	case KindObjectArray:
		arr, ok := val.([]any)
		if !ok {
			return violation(path, fmt.Sprintf("expected array, got %s", jsonType(val)))
		}
		for i, el := range arr {
			elPath := fmt.Sprintf("%s[%d]", path, i)
			obj, ok := el.(map[string]any)
			if !ok {
				return violation(elPath, fmt.Sprintf("expected object, got %s", jsonType(el)))
			}
			if v := checkObject(elPath, f.Sub, obj); v != nil {
				return v
			}
		}

	case KindStringArray:
		arr, ok := val.([]any)
		if !ok {
			return violation(path, fmt.Sprintf("expected array, got %s", jsonType(val)))
		}
		for i, el := range arr {
			if _, ok := el.(string); !ok {
				return violation(fmt.Sprintf("%s[%d]", path, i), fmt.Sprintf("expected string, got %s", jsonType(el)))
			}
		}
	}
	return nil
}

func checkObject(path string, sub []Field, obj map[string]any) *Failure {
	for _, f := range sub {
		val, present := obj[f.Name]
		if !present || val == nil {
			if f.Required {
				return violation(path+"."+f.Name, "required field is missing")
			}
			continue
		}
		if v := checkField(path+"."+f.Name, f, val); v != nil {
			return v
		}
	}
	return nil
}

func checkBounds(path string, b *Bounds, n float64) *Failure {
	if b == nil {
		return nil
	}
	if n < b.Min || n > b.Max {
		return violation(path, fmt.Sprintf("value %v outside range [%v, %v]", n, b.Min, b.Max))
	}
	return nil
}

func violation(field, detail string) *Failure {
	return &Failure{Reason: SchemaViolation, Field: field, Detail: detail}
}

// jsonType names the JSON type of a decoded value for error messages.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
