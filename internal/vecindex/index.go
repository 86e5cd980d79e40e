// Package vecindex stores per-field document vectors and serves
// nearest-neighbor queries over them.
//
// Each harvested record contributes two independent documents, one per
// embedded field, keyed "{id}#title" and "{id}#abstract". Every document
// carries enough metadata to render a search result without a second lookup.
package vecindex

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field names for the two sub-indices.
const (
	FieldTitle    = "title"
	FieldAbstract = "abstract"
)

// keySeparator joins record identifier and field into a document key.
const keySeparator = "#"

// ErrDimensionMismatch indicates a vector's dimensionality disagrees with
// the dimensionality already recorded for a non-empty index. Vectors are
// never truncated or padded to fit.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Document is one vector-index entry derived from one field of one record.
type Document struct {
	Key       string // "{record id}#{field}"
	RecordID  string
	Field     string
	Vector    []float32
	Title     string
	Authors   []string
	Published time.Time
	URL       string
}

// Hit is one ranked query result.
type Hit struct {
	Key        string
	RecordID   string
	Field      string
	Similarity float32
	Title      string
	Authors    []string
	Published  time.Time
	URL        string
}

// Index is the vector-store contract consumed by the pipeline and searcher.
// Implementations must be safe for concurrent reads.
type Index interface {
	// Upsert inserts or replaces a document.
	Upsert(doc Document) error

	// UpsertBatch inserts or replaces documents in a single transaction.
	UpsertBatch(docs []Document) error

	// Query returns the k nearest documents in the given field sub-index,
	// ranked by cosine similarity descending.
	Query(vector []float32, k int, field string) ([]Hit, error)

	// Count returns the number of documents in the index.
	Count() (int, error)

	// RecordIDs returns the distinct record identifiers present.
	RecordIDs() (map[string]struct{}, error)

	// Dimensions returns the recorded vector dimensionality, 0 if unset.
	Dimensions() (int, error)

	// Clear removes all documents and resets the recorded dimensionality.
	Clear() error
}

// DocKey builds the document key for a record field.
func DocKey(recordID, field string) string {
	return recordID + keySeparator + field
}

// SplitKey splits a document key into record identifier and field.
func SplitKey(key string) (recordID, field string, err error) {
	i := strings.LastIndex(key, keySeparator)
	if i < 0 {
		return "", "", fmt.Errorf("malformed document key %q", key)
	}
	return key[:i], key[i+1:], nil
}
