// Package search serves semantic queries over the vector index, fusing the
// title and abstract sub-indices with query-time weights.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/paperline/paperline/internal/embedding"
	"github.com/paperline/paperline/internal/vecindex"
)

// ErrEmptyQuery is returned for zero-length search text, rejected before
// any embedding is attempted.
var ErrEmptyQuery = errors.New("search query is empty")

// Defaults for result sizing.
const (
	DefaultTopK    = 10
	DefaultMaxTopK = 100

	// DefaultOversample is the factor each sub-index is over-queried by
	// before fusion, so a record strong in only one field still surfaces.
	DefaultOversample = 2
)

// Result is one ranked search hit with per-field score components attached
// for explainability.
type Result struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Authors            []string  `json:"authors"`
	Published          time.Time `json:"published"`
	URL                string    `json:"url"`
	TitleSimilarity    float32   `json:"title_similarity"`
	AbstractSimilarity float32   `json:"abstract_similarity"`
	Score              float32   `json:"score"`
}

// Searcher runs dual-field weighted searches. Searches are read-only and
// safe to run concurrently; the index handles concurrent reads.
type Searcher struct {
	index      vecindex.Index
	bridge     *embedding.Bridge
	oversample int
	maxTopK    int
	logger     *slog.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithOversample sets the sub-index over-query factor.
func WithOversample(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.oversample = n
		}
	}
}

// WithMaxTopK caps the number of results a single query may request.
func WithMaxTopK(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.maxTopK = n
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) SearcherOption {
	return func(s *Searcher) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewSearcher creates a searcher over an index and an embedding bridge.
func NewSearcher(index vecindex.Index, bridge *embedding.Bridge, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		index:      index,
		bridge:     bridge,
		oversample: DefaultOversample,
		maxTopK:    DefaultMaxTopK,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fuse combines per-field similarities with query-time weights. It is a
// pure function so the weighting can change per call without re-embedding.
func Fuse(titleSim, abstractSim, titleWeight, abstractWeight float32) float32 {
	return titleWeight*titleSim + abstractWeight*abstractSim
}

// Search embeds the query once, queries the title and abstract sub-indices
// independently, and returns the topK records ranked by fused score.
// A record hit in only one sub-index scores 0 on the missing side rather
// than being excluded. Ties break by more recent published timestamp, then
// by identifier, so output is deterministic.
func (s *Searcher) Search(ctx context.Context, query string, topK int, titleWeight, abstractWeight float32) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}

	vectors, err := s.bridge.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryVec := vectors[0]

	fetchK := topK * s.oversample
	titleHits, err := s.index.Query(queryVec, fetchK, vecindex.FieldTitle)
	if err != nil {
		return nil, fmt.Errorf("querying title sub-index: %w", err)
	}
	abstractHits, err := s.index.Query(queryVec, fetchK, vecindex.FieldAbstract)
	if err != nil {
		return nil, fmt.Errorf("querying abstract sub-index: %w", err)
	}

	merged := make(map[string]*Result)
	for _, hit := range titleHits {
		r := resultFor(merged, hit)
		r.TitleSimilarity = hit.Similarity
	}
	for _, hit := range abstractHits {
		r := resultFor(merged, hit)
		r.AbstractSimilarity = hit.Similarity
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		r.Score = Fuse(r.TitleSimilarity, r.AbstractSimilarity, titleWeight, abstractWeight)
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Published.Equal(results[j].Published) {
			return results[i].Published.After(results[j].Published)
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("search complete",
		"query", query,
		"title_hits", len(titleHits),
		"abstract_hits", len(abstractHits),
		"results", len(results))

	return results, nil
}

// resultFor finds or creates the merged result for a hit's record.
func resultFor(merged map[string]*Result, hit vecindex.Hit) *Result {
	if r, ok := merged[hit.RecordID]; ok {
		return r
	}
	r := &Result{
		ID:        hit.RecordID,
		Title:     hit.Title,
		Authors:   hit.Authors,
		Published: hit.Published,
		URL:       hit.URL,
	}
	merged[hit.RecordID] = r
	return r
}
