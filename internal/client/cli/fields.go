package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/herpsync/internal/common"
)

// parseAssignments turns "key=value" pairs into text fields and
// "key:=value" pairs into JSON values, so numbers, booleans, lists and null
// can be set as well.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected key=value, got %q", common.ErrValidation, p)
		}
		raw := strings.HasSuffix(key, ":")
		key = strings.TrimSpace(strings.TrimSuffix(key, ":"))
		if key == "" {
			return nil, fmt.Errorf("%w: empty field name in %q", common.ErrValidation, p)
		}
		if !raw {
			out[key] = value
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("%w: field %s: invalid JSON %q", common.ErrValidation, key, value)
		}
		out[key] = v
	}
	return out, nil
}

// parseFilters reads "field=a,b" pairs. Repeating a field adds values.
func parseFilters(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		field, values, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: expected field=value[,value], got %q", common.ErrValidation, p)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out[field] = append(out[field], v)
			}
		}
	}
	return out, nil
}
