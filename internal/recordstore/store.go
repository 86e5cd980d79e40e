// Package recordstore persists harvested records as append-only CSV files.
//
// A corpus root contains the initial store (init_data.csv) plus an
// incremental/ directory of timestamped batch files written by update runs,
// so "when was this fetched" stays reconstructable.
package recordstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paperline/paperline/internal/record"
)

// Store is an append-only CSV log of records backed by a single file.
// Records are never mutated; re-appending a known identifier is a no-op.
type Store struct {
	path string
	ids  map[string]struct{}

	minPublished time.Time
	maxPublished time.Time
}

// Open loads the store at path, building the in-memory identifier set.
// A missing file is an empty store; the file is created on first append.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		ids:  make(map[string]struct{}),
	}

	records, err := readAll(path)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		s.track(rec)
	}

	return s, nil
}

// track registers a record in the in-memory bookkeeping.
func (s *Store) track(rec record.Record) {
	s.ids[rec.ID] = struct{}{}
	if s.minPublished.IsZero() || rec.Published.Before(s.minPublished) {
		s.minPublished = rec.Published
	}
	if s.maxPublished.IsZero() || rec.Published.After(s.maxPublished) {
		s.maxPublished = rec.Published
	}
}

// Append adds a record to the end of the file. Appending an identifier the
// store already contains is skipped silently: the identifier uniquely
// determines the record, and duplicates must never create a second row.
func (s *Store) Append(rec record.Record) error {
	if _, ok := s.ids[rec.ID]; ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	_, statErr := os.Stat(s.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening store for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := w.Write(encodeRow(rec)); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing record %s: %w", rec.ID, err)
	}

	s.track(rec)
	return nil
}

// Contains reports whether the store holds the given identifier.
func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Count returns the number of records in the store.
func (s *Store) Count() int {
	return len(s.ids)
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// All reloads every record from disk in insertion order.
func (s *Store) All() ([]record.Record, error) {
	return readAll(s.path)
}

// IDSet returns a snapshot copy of the identifier set. Fetch sessions take
// an explicit snapshot rather than sharing the store's internal state.
func (s *Store) IDSet() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		ids[id] = struct{}{}
	}
	return ids
}

// MinPublished returns the earliest published timestamp in the store.
// The boolean is false for an empty store.
func (s *Store) MinPublished() (time.Time, bool) {
	return s.minPublished, !s.minPublished.IsZero()
}

// MaxPublished returns the latest published timestamp in the store.
// The boolean is false for an empty store.
func (s *Store) MaxPublished() (time.Time, bool) {
	return s.maxPublished, !s.maxPublished.IsZero()
}

// readAll reads all records from a CSV file. A missing file yields nil.
func readAll(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening store file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// First row is the header.
	records := make([]record.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("parsing row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
