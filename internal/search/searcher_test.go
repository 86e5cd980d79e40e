package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperline/paperline/internal/embedding"
	"github.com/paperline/paperline/internal/vecindex"
)

// fakeIndex serves scripted hits per field and records the k it was asked for.
type fakeIndex struct {
	hits   map[string][]vecindex.Hit
	askedK map[string]int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		hits:   make(map[string][]vecindex.Hit),
		askedK: make(map[string]int),
	}
}

func (f *fakeIndex) add(field, recordID string, similarity float32, published time.Time) {
	f.hits[field] = append(f.hits[field], vecindex.Hit{
		Key:        vecindex.DocKey(recordID, field),
		RecordID:   recordID,
		Field:      field,
		Similarity: similarity,
		Title:      "Title of " + recordID,
		Published:  published,
		URL:        "http://arxiv.org/abs/" + recordID,
	})
}

func (f *fakeIndex) Query(vector []float32, k int, field string) ([]vecindex.Hit, error) {
	f.askedK[field] = k
	hits := f.hits[field]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeIndex) Upsert(doc vecindex.Document) error         { return nil }
func (f *fakeIndex) UpsertBatch(docs []vecindex.Document) error { return nil }
func (f *fakeIndex) Count() (int, error)                        { return 0, nil }
func (f *fakeIndex) RecordIDs() (map[string]struct{}, error)    { return nil, nil }
func (f *fakeIndex) Dimensions() (int, error)                   { return 0, nil }
func (f *fakeIndex) Clear() error                               { return nil }

func newTestSearcher(idx vecindex.Index, opts ...SearcherOption) *Searcher {
	bridge := embedding.NewBridge(embedding.NewMockProvider(8), 0)
	return NewSearcher(idx, bridge, opts...)
}

var basePublished = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestSearcher(newFakeIndex())

	_, err := s.Search(context.Background(), "", 10, 0.3, 0.7)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(context.Background(), "   \t", 10, 0.3, 0.7)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchFusesBothFields(t *testing.T) {
	idx := newFakeIndex()
	idx.add(vecindex.FieldTitle, "a", 0.9, basePublished)
	idx.add(vecindex.FieldAbstract, "a", 0.5, basePublished)

	s := newTestSearcher(idx)
	results, err := s.Search(context.Background(), "query", 10, 0.3, 0.7)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.InDelta(t, 0.9, results[0].TitleSimilarity, 1e-6)
	assert.InDelta(t, 0.5, results[0].AbstractSimilarity, 1e-6)
	assert.InDelta(t, 0.3*0.9+0.7*0.5, results[0].Score, 1e-6)
}

func TestSearchSingleFieldHitScoresZeroOnMissingSide(t *testing.T) {
	idx := newFakeIndex()
	idx.add(vecindex.FieldTitle, "title-only", 0.8, basePublished)
	idx.add(vecindex.FieldAbstract, "abstract-only", 0.8, basePublished)

	s := newTestSearcher(idx)
	results, err := s.Search(context.Background(), "query", 10, 0.5, 0.5)
	require.NoError(t, err)

	require.Len(t, results, 2, "one-sided hits are kept, not dropped")
	for _, r := range results {
		assert.InDelta(t, 0.4, r.Score, 1e-6)
	}
}

func TestSearchWeightsReorderResults(t *testing.T) {
	idx := newFakeIndex()
	idx.add(vecindex.FieldTitle, "title-strong", 0.9, basePublished)
	idx.add(vecindex.FieldAbstract, "title-strong", 0.1, basePublished)
	idx.add(vecindex.FieldTitle, "abstract-strong", 0.1, basePublished)
	idx.add(vecindex.FieldAbstract, "abstract-strong", 0.9, basePublished)

	s := newTestSearcher(idx)

	results, err := s.Search(context.Background(), "query", 10, 1.0, 0.0)
	require.NoError(t, err)
	assert.Equal(t, "title-strong", results[0].ID)

	results, err = s.Search(context.Background(), "query", 10, 0.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "abstract-strong", results[0].ID)
}

func TestSearchTieBreaksByRecencyThenID(t *testing.T) {
	older := basePublished
	newer := basePublished.Add(48 * time.Hour)

	// All three fuse to exactly 0.5 with equal weights; the similarities are
	// exact binary fractions so the scores compare equal.
	idx := newFakeIndex()
	idx.add(vecindex.FieldTitle, "older", 0.75, older)
	idx.add(vecindex.FieldAbstract, "older", 0.25, older)
	idx.add(vecindex.FieldTitle, "newer", 0.5, newer)
	idx.add(vecindex.FieldAbstract, "newer", 0.5, newer)

	idx.add(vecindex.FieldTitle, "aaa", 0.5, older)
	idx.add(vecindex.FieldAbstract, "aaa", 0.5, older)

	s := newTestSearcher(idx)
	results, err := s.Search(context.Background(), "query", 10, 0.5, 0.5)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "newer", results[0].ID, "more recent record wins the score tie")
	assert.Equal(t, "aaa", results[1].ID, "identifier breaks the remaining tie")
	assert.Equal(t, "older", results[2].ID)
}

func TestSearchOversamplesSubIndices(t *testing.T) {
	idx := newFakeIndex()
	s := newTestSearcher(idx, WithOversample(3))

	_, err := s.Search(context.Background(), "query", 10, 0.3, 0.7)
	require.NoError(t, err)

	assert.Equal(t, 30, idx.askedK[vecindex.FieldTitle])
	assert.Equal(t, 30, idx.askedK[vecindex.FieldAbstract])
}

func TestSearchTruncatesToTopK(t *testing.T) {
	idx := newFakeIndex()
	for i, id := range []string{"a", "b", "c", "d"} {
		idx.add(vecindex.FieldTitle, id, 0.9-float32(i)*0.1, basePublished)
	}

	s := newTestSearcher(idx)
	results, err := s.Search(context.Background(), "query", 2, 1.0, 0.0)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestSearchCapsTopKAtMax(t *testing.T) {
	idx := newFakeIndex()
	s := newTestSearcher(idx, WithMaxTopK(5), WithOversample(2))

	_, err := s.Search(context.Background(), "query", 1000, 0.3, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 10, idx.askedK[vecindex.FieldTitle], "requested topK is capped before oversampling")
}

func TestFuse(t *testing.T) {
	assert.InDelta(t, 0.64, Fuse(0.4, 0.7, 0.2, 0.8), 1e-6)
	assert.InDelta(t, 0.0, Fuse(0.9, 0.9, 0, 0), 1e-6)
	assert.InDelta(t, 0.9, Fuse(0.9, 0.3, 1, 0), 1e-6)
}
