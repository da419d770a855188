package core

import "encoding/json"

// CloneMap returns a shallow copy of m. A nil map clones to nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeMaps overlays each map onto a copy of base; later keys win.
func MergeMaps(base map[string]any, overlays ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			out[k] = v
		}
	}
	return out
}

// DeepCopyJSON round-trips v through JSON into dst. Used where stored config
// bodies must not alias caller memory.
func DeepCopyJSON(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
