package domain

import (
	"math"
)

// ValidateValue checks a submitted value against the entity's declared
// type, range, precision and option set, returning the normalized value.
// JSON decoding hands numbers over as float64, so integer checks accept
// any numeric with a zero fractional part.
func (e ConfigEntity) ValidateValue(value interface{}) (interface{}, error) {
	if value == nil {
		if e.Required {
			return nil, E(CodeParameterInvalid, "%s is required", e.Name)
		}
		return nil, nil
	}

	switch e.Type {
	case EntityTypeInt:
		n, ok := asFloat(value)
		if !ok || n != math.Trunc(n) {
			return nil, E(CodeParameterInvalid, "%s must be an integer", e.Name)
		}
		if err := e.checkRange(n); err != nil {
			return nil, err
		}
		return int(n), nil

	case EntityTypeFloat:
		n, ok := asFloat(value)
		if !ok {
			return nil, E(CodeParameterInvalid, "%s must be a number", e.Name)
		}
		if err := e.checkRange(n); err != nil {
			return nil, err
		}
		if e.Precision != nil {
			if *e.Precision == 0 {
				if n != math.Trunc(n) {
					return nil, E(CodeParameterInvalid, "%s must be an integer", e.Name)
				}
				return int(n), nil
			}
			shift := math.Pow10(*e.Precision)
			n = math.Round(n*shift) / shift
		}
		return n, nil

	case EntityTypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, E(CodeParameterInvalid, "%s must be a boolean", e.Name)
		}
		return b, nil

	case EntityTypeString, EntityTypeText:
		s, ok := value.(string)
		if !ok {
			return nil, E(CodeParameterInvalid, "%s must be a string", e.Name)
		}
		if len(e.Options) > 0 && !contains(e.Options, s) {
			return nil, E(CodeParameterInvalid, "%s must be one of %v", e.Name, e.Options)
		}
		return s, nil

	case EntityTypeSecret:
		s, ok := value.(string)
		if !ok {
			return nil, E(CodeParameterInvalid, "%s must be a string", e.Name)
		}
		return s, nil

	case EntityTypeObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return nil, E(CodeParameterInvalid, "%s must be an object", e.Name)
		}
		return ValidateAgainstForm(e.Parameters, obj)

	default:
		return nil, E(CodeParameterInvalid, "%s has unknown type %q", e.Name, e.Type)
	}
}

func (e ConfigEntity) checkRange(n float64) error {
	if e.Min != nil && n < *e.Min {
		return E(CodeParameterInvalid, "%s must be >= %v", e.Name, *e.Min)
	}
	if e.Max != nil && n > *e.Max {
		return E(CodeParameterInvalid, "%s must be <= %v", e.Name, *e.Max)
	}
	return nil
}

// ValidateAgainstForm validates a submitted map against an ordered form.
// Keys not present in the form are rejected; absent optional entries fall
// back to their defaults when one is declared. The result contains only
// form-declared keys, so applying it twice is a fixed point.
func ValidateAgainstForm(form []ConfigEntity, values map[string]interface{}) (map[string]interface{}, error) {
	known := make(map[string]bool, len(form))
	for _, entity := range form {
		known[entity.Name] = true
	}
	for name := range values {
		if !known[name] {
			return nil, E(CodeParameterInvalid, "unknown field %q", name)
		}
	}

	out := make(map[string]interface{}, len(form))
	for _, entity := range form {
		value, present := values[entity.Name]
		if !present || value == nil {
			if entity.Default != nil {
				value = entity.Default
			} else if entity.Required {
				return nil, E(CodeParameterInvalid, "%s is required", entity.Name)
			} else {
				continue
			}
		}
		normalized, err := entity.ValidateValue(value)
		if err != nil {
			return nil, err
		}
		if normalized != nil {
			out[entity.Name] = normalized
		}
	}
	return out, nil
}

func asFloat(v interface{}) (float64, bool) {
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
	}
	return 0, false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
