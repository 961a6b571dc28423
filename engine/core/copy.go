package core

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// DeepCopy returns a deep copy of v.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	copied, ok := deepcopy.Copy(v).(T)
	if !ok {
		return zero, fmt.Errorf("deep copy: unexpected type %T", v)
	}
	return copied, nil
}

// CloneMap deep copies a map[string]any, returning nil for nil input.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, err := DeepCopy(m)
	if err != nil {
		out = make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
