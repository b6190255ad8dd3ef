package protocol

import (
	"fmt"
	"strings"
)

// ExpandArgs turns dotted form field names into nested maps:
// {"item.text": "x", "item.done": "on"} becomes
// {"item": {"text": "x", "done": "on"}}. A plain key that collides with a
// nested prefix is overwritten by the nested map.
func ExpandArgs(flat map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(flat))
	for key, value := range flat {
		parts := strings.Split(key, ".")
		if len(parts) > MaxArgsDepth {
			return nil, fmt.Errorf("%w: argument %q nests deeper than %d", ErrMalformed, key, MaxArgsDepth)
		}

		m := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := m[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[part] = next
			}
			m = next
		}
		last := parts[len(parts)-1]
		if _, nested := m[last].(map[string]any); nested {
			continue
		}
		m[last] = value
	}
	return out, nil
}

// MergeArgs expands implicit and overlays explicit on top, the way a
// user_event's handler arguments are assembled.
func MergeArgs(implicit, explicit map[string]any) (map[string]any, error) {
	args, err := ExpandArgs(implicit)
	if err != nil {
		return nil, err
	}
	for k, v := range explicit {
		args[k] = v
	}
	return args, nil
}
