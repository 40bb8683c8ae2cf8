package history

import "maps"

// MergeStructured returns a new map holding every top-level key of existing
// and incoming. Keys present in both take the incoming value; nested maps are
// replaced, not merged. Nil inputs count as empty and neither input is
// modified.
func MergeStructured(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	maps.Copy(out, existing)
	maps.Copy(out, incoming)
	return out
}
