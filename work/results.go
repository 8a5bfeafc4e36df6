package work

import "sort"

// Results maps item identifiers to computed result payloads. It is
// populated incrementally in arrival order and never shrinks.
type Results map[string][]byte

// Clone returns an independent copy of the result mapping. Payload
// slices are shared; callers must treat them as read-only.
func (rs Results) Clone() Results {
	out := make(Results, len(rs))
	for itemID, res := range rs {
		out[itemID] = res
	}
	return out
}

// IDs returns the result identifiers in sorted order. Results arrive in
// completion order, so callers needing submission order sort by
// identifier.
func (rs Results) IDs() []string {
	ids := make([]string, 0, len(rs))
	for itemID := range rs {
		ids = append(ids, itemID)
	}
	sort.Strings(ids)
	return ids
}
