// Package pipeline orchestrates the corpus lifecycle: build runs that seed
// the initial store and index, and update runs that extend both with records
// newer than anything already held.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperline/paperline/internal/embedding"
	"github.com/paperline/paperline/internal/fetch"
	"github.com/paperline/paperline/internal/record"
	"github.com/paperline/paperline/internal/recordstore"
	"github.com/paperline/paperline/internal/vecindex"
)

// stage names used in StageError.
const (
	stageFetch = "fetch"
	stageEmbed = "embed"
)

// resumeEpsilon offsets resume bounds by one second so a build continuation
// re-queries strictly below what it already holds, and an update queries
// strictly above it.
const resumeEpsilon = time.Second

// VectorIndex is the index surface the pipeline needs: the query contract
// plus the maintenance operations a durable index exposes.
type VectorIndex interface {
	vecindex.Index
	SetModel(model string) error
	Model() (string, error)
	Delete(recordIDs []string) error
}

// FetchOptions configures one fetch stage.
type FetchOptions struct {
	Categories []string

	// Floor bounds build runs. Update runs derive their own floor from the
	// corpus and ignore this field.
	Floor time.Time

	// Target is the new-record quota; -1 means unlimited.
	Target int

	BatchSize          int
	PollInterval       time.Duration
	NearFloorThreshold time.Duration

	Progress fetch.ProgressReporter
}

// EmbedProgress is called after every committed embedding chunk.
type EmbedProgress func(done, total int)

// EmbedOptions configures one embed stage.
type EmbedOptions struct {
	// Source is the CSV file to embed. Empty means the stage default: the
	// initial store for builds, the latest incremental batch for updates.
	Source string

	Progress EmbedProgress
}

// EmbedSummary reports what one embed stage did.
type EmbedSummary struct {
	Source     string `json:"source"`
	Records    int    `json:"records"`
	Embedded   int    `json:"embedded"`
	Skipped    int    `json:"skipped"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Stats is a snapshot of the corpus and index state.
type Stats struct {
	InitRecords     int    `json:"init_records"`
	BatchFiles      int    `json:"batch_files"`
	BatchRecords    int    `json:"batch_records"`
	IndexedRecords  int    `json:"indexed_records"`
	IndexDocuments  int    `json:"index_documents"`
	IndexDimensions int    `json:"index_dimensions"`
	IndexModel      string `json:"index_model"`
}

// Builder wires the fetcher, record stores, embedding bridge, and vector
// index together under one corpus root.
type Builder struct {
	root    string
	fetcher *fetch.Fetcher
	bridge  *embedding.Bridge
	index   VectorIndex
	clock   func() time.Time
	logger  *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock injects the time source used to name incremental batches.
func WithClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.clock = clock
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
	}
}

// NewBuilder creates a pipeline over a corpus root.
func NewBuilder(root string, fetcher *fetch.Fetcher, bridge *embedding.Bridge, index VectorIndex, opts ...BuilderOption) *Builder {
	b := &Builder{
		root:    root,
		fetcher: fetcher,
		bridge:  bridge,
		index:   index,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFetch runs the fetch stage of a build: it fills the initial store
// downward from the present (or from just below the earliest record already
// held, when resuming an interrupted build) toward the floor.
func (b *Builder) BuildFetch(ctx context.Context, opts FetchOptions) (*fetch.Session, error) {
	store, err := recordstore.Open(recordstore.InitPath(b.root))
	if err != nil {
		return nil, &StageError{Stage: stageFetch, Err: err}
	}

	params := fetch.Params{
		Categories:         opts.Categories,
		Floor:              opts.Floor,
		Target:             opts.Target,
		BatchSize:          opts.BatchSize,
		PollInterval:       opts.PollInterval,
		NearFloorThreshold: opts.NearFloorThreshold,
		Known:              store.IDSet(),
		Sink:               store.Append,
	}

	// Resume just below the earliest record already held, so an interrupted
	// build continues instead of re-walking covered time.
	if min, ok := store.MinPublished(); ok {
		params.Upper = min.Add(-resumeEpsilon)
		b.logger.Info("resuming build below existing records", "upper", params.Upper)
	}

	sess, err := b.runFetch(ctx, params, opts.Progress)
	if err != nil {
		return sess, err
	}

	b.logger.Info("build fetch complete",
		"new", sess.NewCount,
		"skipped", sess.SkippedCount,
		"batches", sess.Batches,
		"stop", sess.StopReason.String())
	return sess, nil
}

// UpdateFetch runs the fetch stage of an update: it collects records newer
// than anything the corpus holds into a fresh timestamped batch file, and
// returns its path. No file is created when nothing new exists.
func (b *Builder) UpdateFetch(ctx context.Context, opts FetchOptions) (*fetch.Session, string, error) {
	known, err := recordstore.KnownIDs(b.root)
	if err != nil {
		return nil, "", &StageError{Stage: stageFetch, Err: err}
	}

	maxPublished, ok, err := recordstore.MaxPublishedAll(b.root)
	if err != nil {
		return nil, "", &StageError{Stage: stageFetch, Err: err}
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: no records under %s, run a build first", ErrNotInitialized, b.root)
	}

	batchPath := recordstore.NewBatchPath(b.root, b.clock())
	store, err := recordstore.Open(batchPath)
	if err != nil {
		return nil, "", &StageError{Stage: stageFetch, Err: err}
	}

	params := fetch.Params{
		Categories:         opts.Categories,
		Floor:              maxPublished.Add(resumeEpsilon),
		Target:             opts.Target,
		BatchSize:          opts.BatchSize,
		PollInterval:       opts.PollInterval,
		NearFloorThreshold: opts.NearFloorThreshold,
		Known:              known,
		Sink:               store.Append,
	}

	sess, err := b.runFetch(ctx, params, opts.Progress)
	if err != nil {
		return sess, batchPath, err
	}

	b.logger.Info("update fetch complete",
		"new", sess.NewCount,
		"skipped", sess.SkippedCount,
		"floor", params.Floor,
		"batch", batchPath,
		"stop", sess.StopReason.String())
	return sess, batchPath, nil
}

func (b *Builder) runFetch(ctx context.Context, params fetch.Params, progress fetch.ProgressReporter) (*fetch.Session, error) {
	fetcher := b.fetcher
	if progress != nil {
		fetcher = fetcher.WithProgressReporter(progress)
	}

	sess, err := fetcher.Fetch(ctx, params)
	if err != nil {
		stageErr := &StageError{Stage: stageFetch, Err: err}
		if sess != nil {
			stageErr.Window = sess.Window
			stageErr.Processed = sess.NewCount
		}
		return sess, stageErr
	}
	return sess, nil
}

// BuildEmbed embeds the initial store (or an explicit source file) into the
// vector index. Records already indexed are skipped, so re-running after an
// interruption only pays for what is missing.
func (b *Builder) BuildEmbed(ctx context.Context, opts EmbedOptions) (*EmbedSummary, error) {
	source := opts.Source
	if source == "" {
		source = recordstore.InitPath(b.root)
	}
	return b.embedFile(ctx, source, opts.Progress)
}

// UpdateEmbed embeds the most recent incremental batch (or an explicit
// source file) into the vector index.
func (b *Builder) UpdateEmbed(ctx context.Context, opts EmbedOptions) (*EmbedSummary, error) {
	source := opts.Source
	if source == "" {
		latest, ok, err := recordstore.LatestBatch(b.root)
		if err != nil {
			return nil, &StageError{Stage: stageEmbed, Err: err}
		}
		if !ok {
			return nil, fmt.Errorf("%w: no incremental batches under %s", ErrNotInitialized, b.root)
		}
		source = latest
	}
	return b.embedFile(ctx, source, opts.Progress)
}

func (b *Builder) embedFile(ctx context.Context, source string, progress EmbedProgress) (*EmbedSummary, error) {
	store, err := recordstore.Open(source)
	if err != nil {
		return nil, &StageError{Stage: stageEmbed, Err: err}
	}
	records, err := store.All()
	if err != nil {
		return nil, &StageError{Stage: stageEmbed, Err: err}
	}

	indexed, err := b.index.RecordIDs()
	if err != nil {
		return nil, &StageError{Stage: stageEmbed, Err: err}
	}

	pending := make([]record.Record, 0, len(records))
	for _, rec := range records {
		if _, ok := indexed[rec.ID]; ok {
			continue
		}
		pending = append(pending, rec)
	}

	summary := &EmbedSummary{
		Source:  source,
		Records: len(records),
		Skipped: len(records) - len(pending),
		Model:   b.bridge.ModelName(),
	}

	const chunkSize = embedding.DefaultMaxBatch / 2
	for start := 0; start < len(pending); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return summary, &StageError{Stage: stageEmbed, Processed: summary.Embedded, Err: err}
		}

		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		// Two texts per record: title first, abstract second.
		texts := make([]string, 0, 2*len(chunk))
		for _, rec := range chunk {
			texts = append(texts, rec.Title, rec.Abstract)
		}

		vectors, err := b.bridge.EmbedTexts(ctx, texts)
		if err != nil {
			return summary, &StageError{Stage: stageEmbed, Processed: summary.Embedded, Err: err}
		}

		docs := make([]vecindex.Document, 0, 2*len(chunk))
		for i, rec := range chunk {
			docs = append(docs,
				documentFor(rec, vecindex.FieldTitle, vectors[2*i]),
				documentFor(rec, vecindex.FieldAbstract, vectors[2*i+1]))
		}

		if err := b.index.UpsertBatch(docs); err != nil {
			return summary, &StageError{Stage: stageEmbed, Processed: summary.Embedded, Err: err}
		}

		summary.Embedded += len(chunk)
		if progress != nil {
			progress(summary.Embedded, len(pending))
		}
	}

	if summary.Embedded > 0 {
		if err := b.index.SetModel(b.bridge.ModelName()); err != nil {
			return summary, &StageError{Stage: stageEmbed, Processed: summary.Embedded, Err: err}
		}
	}
	summary.Dimensions = b.bridge.Dimensions()

	b.logger.Info("embed complete",
		"source", source,
		"records", summary.Records,
		"embedded", summary.Embedded,
		"skipped", summary.Skipped)
	return summary, nil
}

func documentFor(rec record.Record, field string, vector []float32) vecindex.Document {
	return vecindex.Document{
		Key:       vecindex.DocKey(rec.ID, field),
		RecordID:  rec.ID,
		Field:     field,
		Vector:    vector,
		Title:     rec.Title,
		Authors:   rec.Authors,
		Published: rec.Published,
		URL:       rec.URL,
	}
}

// Stats reports the current corpus and index state.
func (b *Builder) Stats() (*Stats, error) {
	stats := &Stats{}

	init, err := recordstore.Open(recordstore.InitPath(b.root))
	if err != nil {
		return nil, err
	}
	stats.InitRecords = init.Count()

	batches, err := recordstore.ListBatches(b.root)
	if err != nil {
		return nil, err
	}
	stats.BatchFiles = len(batches)
	for _, path := range batches {
		batch, err := recordstore.Open(path)
		if err != nil {
			return nil, err
		}
		stats.BatchRecords += batch.Count()
	}

	if stats.IndexDocuments, err = b.index.Count(); err != nil {
		return nil, err
	}
	ids, err := b.index.RecordIDs()
	if err != nil {
		return nil, err
	}
	stats.IndexedRecords = len(ids)
	if stats.IndexDimensions, err = b.index.Dimensions(); err != nil {
		return nil, err
	}
	if stats.IndexModel, err = b.index.Model(); err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteRecords removes both field documents for each identifier from the
// index. The CSV stores stay untouched; they are an append-only history.
func (b *Builder) DeleteRecords(ids []string) error {
	return b.index.Delete(ids)
}

// Clear empties the vector index. CSV stores are kept.
func (b *Builder) Clear() error {
	return b.index.Clear()
}
