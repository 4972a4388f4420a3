package ledger

import (
	jsoniter "github.com/json-iterator/go"
)

// Keys every snapshot must carry: a stable identifier and a
// human-readable label.
const (
	SnapshotKeyID    = "id"
	SnapshotKeyTitle = "title"
)

// Snapshot is the complete, self-contained state of an entity at one
// version. It is a full copy, not a delta.
type Snapshot map[string]any

// Metadata carries optional additional context for a version, for
// example the client IP address or a source system identifier.
type Metadata map[string]any

// SnapshotFromJSON decodes a snapshot from its JSON representation.
func SnapshotFromJSON(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return s, nil
}

// ToJSON encodes the snapshot as JSON. The encoding is lossless: a
// stored snapshot read back must equal what was written, including
// full float precision.
func (s Snapshot) ToJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
}

// MissingRequiredKeys returns the required snapshot keys that are absent
// or empty, in a stable order.
func (s Snapshot) MissingRequiredKeys() []string {
	var missing []string

	for _, key := range []string{SnapshotKeyID, SnapshotKeyTitle} {
		value, ok := s[key]
		if !ok || value == nil || value == "" {
			missing = append(missing, key)
		}
	}

	return missing
}

// Clone returns a deep copy of the snapshot, so that stored history can
// never be mutated through a snapshot handed out to a caller.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}

	return Snapshot(cloneMap(s))
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}

	return Metadata(cloneMap(m))
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}

	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
