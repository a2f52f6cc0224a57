package utils

import "sort"

// SortedKeys returns the keys of a string-keyed map in ascending order, so
// class columns and band variables come out in a deterministic order.
func SortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedUnique sorts a copy of the slice and drops duplicates.
func SortedUnique(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
