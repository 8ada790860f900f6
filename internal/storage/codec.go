package storage

import "encoding/json"

// ToRecord flattens a typed entity into a generic Record via a JSON
// round-trip, the same marshal-to-bytes dance the teacher registry used
// against NATS KeyValue, just stopping at a map instead of bytes.
func ToRecord(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromRecord decodes a generic Record back into a typed entity pointed to
// by out.
func FromRecord(rec Record, out any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
