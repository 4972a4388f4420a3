package ledger

import (
	"bytes"
	"reflect"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// FieldChange describes how one snapshot field changed between two
// versions. A field that appeared has From == nil, a field that
// disappeared has To == nil.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// FieldChanges maps a field name to its change. It is computed on read
// and never persisted, so the diff algorithm can evolve without a data
// migration.
type FieldChanges map[string]FieldChange

// Fields returns the changed field names in alphabetical order.
func (fc FieldChanges) Fields() []string {
	fields := make([]string, 0, len(fc))
	for field := range fc {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	return fields
}

// Contains reports whether the given field changed.
func (fc FieldChanges) Contains(field string) bool {
	_, ok := fc[field]
	return ok
}

// Diff computes the field-level changes between two snapshots.
//
// It walks the union of both key sets and reports a field iff the two
// values differ, treating a missing key as nil. The result is independent
// of argument iteration order and never contains unchanged fields.
// Diff(s, s) is empty for any snapshot s.
func Diff(from, to Snapshot) FieldChanges {
	changes := make(FieldChanges)

	for key, fromValue := range from {
		toValue, inTo := to[key]
		if !inTo {
			changes[key] = FieldChange{From: fromValue, To: nil}
			continue
		}

		if !valuesEqual(fromValue, toValue) {
			changes[key] = FieldChange{From: fromValue, To: toValue}
		}
	}

	for key, toValue := range to {
		if _, inFrom := from[key]; !inFrom {
			changes[key] = FieldChange{From: nil, To: toValue}
		}
	}

	return changes
}

// valuesEqual compares two snapshot values structurally. Values that are
// not DeepEqual are additionally compared by their canonical JSON
// encoding, so an int 42 written by Go code equals the float64 42 the
// same snapshot decodes to after a JSON round trip.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	aJSON, aErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(a)
	bJSON, bErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}

	return bytes.Equal(aJSON, bJSON)
}
