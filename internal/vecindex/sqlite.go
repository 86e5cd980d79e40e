package vecindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// metaKeyDimensions records the vector dimensionality of the index.
const metaKeyDimensions = "dimensions"

// metaKeyModel records the embedding model the index was built with.
const metaKeyModel = "model"

// SQLiteIndex is a durable Index backed by a single SQLite file. Documents
// are scanned with a brute-force cosine pass; the corpus sizes this system
// targets stay well inside what a sequential scan handles.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a vector index at the given path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

func (idx *SQLiteIndex) migrate() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
  key TEXT PRIMARY KEY,
  record_id TEXT NOT NULL,
  field TEXT NOT NULL,
  title TEXT NOT NULL,
  authors TEXT NOT NULL,
  published TEXT NOT NULL,
  url TEXT NOT NULL,
  vector BLOB NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_field ON documents(field)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_record_id ON documents(record_id)`,
		`CREATE TABLE IF NOT EXISTS _meta (
  key TEXT PRIMARY KEY,
  value TEXT
)`,
	}

	for _, stmt := range ddl {
		if _, err := idx.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating index schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces a document. The first document stored fixes
// the index dimensionality; later documents must match it.
func (idx *SQLiteIndex) Upsert(doc Document) error {
	return idx.UpsertBatch([]Document{doc})
}

// UpsertBatch inserts or replaces documents in a single transaction.
func (idx *SQLiteIndex) UpsertBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	dim, err := idx.Dimensions()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if dim == 0 {
			dim = len(doc.Vector)
			continue
		}
		if len(doc.Vector) != dim {
			return fmt.Errorf("%w: document %s has %d dimensions, index has %d",
				ErrDimensionMismatch, doc.Key, len(doc.Vector), dim)
		}
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO documents
  (key, record_id, field, title, authors, published, url, vector)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		_, err := stmt.Exec(
			doc.Key,
			doc.RecordID,
			doc.Field,
			doc.Title,
			strings.Join(doc.Authors, ";"),
			doc.Published.UTC().Format(time.RFC3339),
			doc.URL,
			encodeVector(doc.Vector),
		)
		if err != nil {
			return fmt.Errorf("upserting document %s: %w", doc.Key, err)
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`,
		metaKeyDimensions, fmt.Sprintf("%d", dim)); err != nil {
		return fmt.Errorf("recording dimensions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// Query returns the k nearest documents in the given field sub-index,
// ranked by cosine similarity descending.
func (idx *SQLiteIndex) Query(vector []float32, k int, field string) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	rows, err := idx.db.Query(`SELECT key, record_id, field, title, authors, published, url, vector
  FROM documents WHERE field = ?`, field)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit       Hit
			authors   string
			published string
			blob      []byte
		)
		if err := rows.Scan(&hit.Key, &hit.RecordID, &hit.Field, &hit.Title, &authors, &published, &hit.URL, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", hit.Key, err)
		}
		if len(vec) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, document %s has %d",
				ErrDimensionMismatch, len(vector), hit.Key, len(vec))
		}

		hit.Similarity = CosineSimilarity(vector, vec)
		if authors != "" {
			hit.Authors = strings.Split(authors, ";")
		}
		if hit.Published, err = time.Parse(time.RFC3339, published); err != nil {
			return nil, fmt.Errorf("document %s: parsing published date: %w", hit.Key, err)
		}

		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Key < hits[j].Key
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of documents in the index.
func (idx *SQLiteIndex) Count() (int, error) {
	var count int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// RecordIDs returns the distinct record identifiers present in the index.
func (idx *SQLiteIndex) RecordIDs() (map[string]struct{}, error) {
	rows, err := idx.db.Query(`SELECT DISTINCT record_id FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying record ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Dimensions returns the recorded vector dimensionality, 0 if unset.
func (idx *SQLiteIndex) Dimensions() (int, error) {
	var value sql.NullString
	err := idx.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, metaKeyDimensions).Scan(&value)
	if err == sql.ErrNoRows || !value.Valid {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimensions: %w", err)
	}

	var dim int
	if _, err := fmt.Sscanf(value.String, "%d", &dim); err != nil {
		return 0, fmt.Errorf("parsing dimensions %q: %w", value.String, err)
	}
	return dim, nil
}

// SetModel records the embedding model name the index was built with.
func (idx *SQLiteIndex) SetModel(model string) error {
	_, err := idx.db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, metaKeyModel, model)
	return err
}

// Model returns the recorded embedding model name, empty if unset.
func (idx *SQLiteIndex) Model() (string, error) {
	var value sql.NullString
	err := idx.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, metaKeyModel).Scan(&value)
	if err == sql.ErrNoRows || !value.Valid {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading model: %w", err)
	}
	return value.String, nil
}

// Delete removes both field documents for each record identifier.
func (idx *SQLiteIndex) Delete(recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range recordIDs {
		if _, err := tx.Exec(`DELETE FROM documents WHERE record_id = ?`, id); err != nil {
			return fmt.Errorf("deleting record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Clear removes all documents and resets the recorded dimensionality.
func (idx *SQLiteIndex) Clear() error {
	if _, err := idx.db.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	if _, err := idx.db.Exec(`DELETE FROM _meta`); err != nil {
		return fmt.Errorf("clearing metadata: %w", err)
	}
	return nil
}
