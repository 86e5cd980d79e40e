package vecindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func doc(recordID, field string, vector []float32, published time.Time) Document {
	return Document{
		Key:       DocKey(recordID, field),
		RecordID:  recordID,
		Field:     field,
		Vector:    vector,
		Title:     "Title of " + recordID,
		Authors:   []string{"Author One", "Author Two"},
		Published: published,
		URL:       "http://arxiv.org/abs/" + recordID,
	}
}

func TestSQLiteUpsertAndQuery(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.UpsertBatch([]Document{
		doc("a", FieldTitle, []float32{1, 0, 0}, published),
		doc("a", FieldAbstract, []float32{0, 1, 0}, published),
		doc("b", FieldTitle, []float32{0.9, 0.1, 0}, published),
	}))

	hits, err := idx.Query([]float32{1, 0, 0}, 10, FieldTitle)
	require.NoError(t, err)
	require.Len(t, hits, 2, "only the requested field sub-index is searched")

	assert.Equal(t, "a", hits[0].RecordID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "b", hits[1].RecordID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	// Metadata round-trips with the hit.
	assert.Equal(t, "Title of a", hits[0].Title)
	assert.Equal(t, []string{"Author One", "Author Two"}, hits[0].Authors)
	assert.True(t, hits[0].Published.Equal(published))
}

func TestSQLiteQueryTruncatesToK(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.UpsertBatch([]Document{
		doc("a", FieldTitle, []float32{1, 0}, published),
		doc("b", FieldTitle, []float32{0.8, 0.2}, published),
		doc("c", FieldTitle, []float32{0.5, 0.5}, published),
	}))

	hits, err := idx.Query([]float32{1, 0}, 2, FieldTitle)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSQLiteUpsertReplacesExisting(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.Upsert(doc("a", FieldTitle, []float32{1, 0}, published)))
	updated := doc("a", FieldTitle, []float32{0, 1}, published)
	updated.Title = "Updated Title"
	require.NoError(t, idx.Upsert(updated))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Query([]float32{0, 1}, 1, FieldTitle)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Updated Title", hits[0].Title)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestSQLiteDimensionEnforcement(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.Upsert(doc("a", FieldTitle, []float32{1, 0, 0}, published)))

	dim, err := idx.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	err = idx.Upsert(doc("b", FieldTitle, []float32{1, 0}, published))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Query([]float32{1, 0}, 5, FieldTitle)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteRecordIDsAndDelete(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.UpsertBatch([]Document{
		doc("a", FieldTitle, []float32{1, 0}, published),
		doc("a", FieldAbstract, []float32{0, 1}, published),
		doc("b", FieldTitle, []float32{1, 1}, published),
	}))

	ids, err := idx.RecordIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, idx.Delete([]string{"a"}))

	ids, err = idx.RecordIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Contains(t, ids, "b")

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "both field documents of a record are deleted together")
}

func TestSQLiteModelMetadata(t *testing.T) {
	idx := openTestIndex(t)

	model, err := idx.Model()
	require.NoError(t, err)
	assert.Empty(t, model)

	require.NoError(t, idx.SetModel("nomic-embed-text"))
	model, err = idx.Model()
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", model)
}

func TestSQLiteClear(t *testing.T) {
	idx := openTestIndex(t)
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, idx.Upsert(doc("a", FieldTitle, []float32{1, 0}, published)))
	require.NoError(t, idx.SetModel("mock-embed"))
	require.NoError(t, idx.Clear())

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	dim, err := idx.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 0, dim, "clearing resets the recorded dimensionality")
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	published := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	idx, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(doc("a", FieldTitle, []float32{1, 0}, published)))
	require.NoError(t, idx.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	dim, err := reopened.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
}
