package action

import (
	"fmt"
	"strings"

	"github.com/roach88/braid/internal/model"
)

// Substitute replaces {key} placeholders in tmpl with values from vars.
//
// "{{" and "}}" are escapes for literal braces. An unknown key, an empty key,
// or an unbalanced brace is a TEMPLATE_ERROR.
func Substitute(tmpl string, vars map[string]string) (string, error) {
	if !strings.ContainsAny(tmpl, "{}") {
		return tmpl, nil
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return "", model.NewTemplateError(fmt.Sprintf("unterminated placeholder at offset %d in %q", i, tmpl), "")
			}
			key := tmpl[i+1 : i+1+end]
			if key == "" {
				return "", model.NewTemplateError(fmt.Sprintf("empty placeholder at offset %d in %q", i, tmpl), "")
			}
			val, ok := vars[key]
			if !ok {
				return "", model.NewTemplateError(fmt.Sprintf("unresolved placeholder {%s}", key), key)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", model.NewTemplateError(fmt.Sprintf("unmatched '}' at offset %d in %q", i, tmpl), "")
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// SubstituteValue applies Substitute to every string inside v, descending
// into arrays and objects. Object keys and non-string scalars are unchanged.
func SubstituteValue(v model.Value, vars map[string]string) (model.Value, error) {
	switch val := v.(type) {
	case model.String:
		s, err := Substitute(string(val), vars)
		if err != nil {
			return nil, err
		}
		return model.String(s), nil
	case model.Array:
		out := make(model.Array, len(val))
		for i, elem := range val {
			conv, err := SubstituteValue(elem, vars)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case model.Object:
		out := make(model.Object, len(val))
		for _, k := range val.SortedKeys() {
			conv, err := SubstituteValue(val[k], vars)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
