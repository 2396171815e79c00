package source

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFields builds Credentials from flat key=value strings, coercing each
// value by its field's input kind: paths are comma separated lists and
// checkboxes are booleans. Keys not declared in fields are rejected.
func ParseFields(fields []Field, values map[string]string) (Credentials, error) {
	byKey := make(map[string]Field, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}

	out := make(Credentials, len(values))
	for k, v := range values {
		f, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		switch f.Input {
		case InputPaths:
			var list []string
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					list = append(list, p)
				}
			}
			out[k] = list
		case InputCheckbox:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = b
		default:
			out[k] = v
		}
	}
	return out, nil
}
