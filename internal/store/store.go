// Package store provides the in-memory emergency record registry. It is the
// authoritative state of the relay: append-only insertion order, keyed by
// record id, safe for concurrent use. Nothing here survives a restart.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stratagem/dispatchd/internal/emergency"
)

var (
	// ErrDuplicateID is returned when appending a record whose id is
	// already present.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
)

// Store holds emergency records in insertion order.
type Store struct {
	mu      sync.Mutex
	records []emergency.Record
	byID    map[emergency.ID]int

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID: make(map[emergency.ID]int),
		now:  time.Now,
	}
}

// Append adds a record to the end of the registry and returns the stored
// copy. The record's id must not already be present.
func (s *Store) Append(rec emergency.Record) (emergency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		return emergency.Record{}, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}

	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec, nil
}

// Snapshot returns a copy of all records in insertion order. Mutating the
// result does not affect the store.
func (s *Store) Snapshot() []emergency.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]emergency.Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id emergency.ID) (emergency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return emergency.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.records[i].Clone(), nil
}

// UpdateStatus sets the status of the record with the given id, stamps
// UpdatedAt, and returns the updated record.
func (s *Store) UpdateStatus(id emergency.ID, status emergency.Status) (emergency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return emergency.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.records[i].Status = status
	s.records[i].UpdatedAt = s.now()
	return s.records[i], nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
