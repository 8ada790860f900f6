// Package memory implements the Storage Port in-process, for tests and
// for running the registry without a database. It never errors on
// "not found"; it matches the Port contract's synchronous, durable-on-
// return semantics within the process.
package memory

import (
	"context"
	"sync"

	"schemaregistry/internal/storage"
)

// Store is a thread-safe, in-process Storage Port.
type Store struct {
	mu   sync.Mutex
	seqs map[string]int64
	rows map[string][]storage.Record
}

// New creates an empty in-process store.
func New() *Store {
	return &Store{
		seqs: make(map[string]int64),
		rows: make(map[string][]storage.Record),
	}
}

func (s *Store) NextId(_ context.Context, namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[namespace]++
	return s.seqs[namespace], nil
}

func (s *Store) Get(_ context.Context, namespace string, id int64) (storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows[namespace] {
		if recordId(rec) == id {
			return cloneRecord(rec), true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) Find(_ context.Context, namespace string, filters []storage.Filter) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Record
	for _, rec := range s.rows[namespace] {
		if matches(rec, filters) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *Store) List(_ context.Context, namespace string) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Record, 0, len(s.rows[namespace]))
	for _, rec := range s.rows[namespace] {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *Store) Add(_ context.Context, namespace string, record storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[namespace] = append(s.rows[namespace], cloneRecord(record))
	return nil
}

func (s *Store) Update(_ context.Context, namespace string, id int64, record storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[namespace]
	for i, rec := range rows {
		if recordId(rec) == id {
			rows[i] = cloneRecord(record)
			return nil
		}
	}
	s.rows[namespace] = append(rows, cloneRecord(record))
	return nil
}

func recordId(rec storage.Record) int64 {
	switch v := rec["id"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func matches(rec storage.Record, filters []storage.Filter) bool {
	for _, f := range filters {
		if !equalValue(rec[f.Column], f.Value) {
			return false
		}
	}
	return true
}

// equalValue compares filter values loosely across the numeric types a
// JSON round-trip (float64) and a caller-supplied literal (int64, int,
// string) might take, since Record values come back decoded as
// interface{}.
func equalValue(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneRecord(rec storage.Record) storage.Record {
	out := make(storage.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
