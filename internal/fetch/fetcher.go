// Package fetch drives the time-windowed incremental crawl of the upstream
// catalog: repeated bounded queries across a shrinking window, deduplication
// against the record store, backoff under rate limiting, and an explicit
// stop-condition policy.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperline/paperline/internal/catalog"
	"github.com/paperline/paperline/internal/record"
)

// Defaults for retry and loop-guard behavior.
const (
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseSleep   = 5 * time.Second

	// DefaultMaxEmptyBatches aborts the crawl after this many consecutive
	// all-duplicate batches. A congested timestamp at the upstream can
	// otherwise pin the window in place.
	DefaultMaxEmptyBatches = 5

	// windowEpsilon is subtracted from a batch's earliest timestamp to form
	// the next window upper bound, so consecutive windows never overlap.
	windowEpsilon = time.Second

	// duplicateJump is the larger step taken backwards when a batch yields
	// no new records at all.
	duplicateJump = time.Minute
)

// Catalog is the upstream query surface the fetcher consumes.
type Catalog interface {
	// Query returns records in the categories whose timestamp falls in
	// [from, to), descending by timestamp, capped at max.
	Query(ctx context.Context, categories []string, from, to time.Time, max int) ([]record.Record, error)
}

// Sink receives each newly discovered record, typically appending it to the
// record store.
type Sink func(record.Record) error

// ProgressReporter receives a session snapshot after every batch.
type ProgressReporter interface {
	OnBatch(s Session)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(s Session)

// OnBatch implements ProgressReporter.
func (f ProgressFunc) OnBatch(s Session) {
	f(s)
}

// Params configures one fetch session. Known is an explicit identifier
// snapshot: sessions never share ambient state, so they stay reproducible.
type Params struct {
	Categories []string

	// Floor is the hard timestamp the crawl must not descend past.
	Floor time.Time

	// Upper overrides the initial window upper bound. Zero means now.
	Upper time.Time

	// Target is the new-record quota; -1 means unlimited.
	Target int

	// BatchSize caps each upstream query.
	BatchSize int

	// PollInterval is slept between batches; 0 skips the sleep.
	PollInterval time.Duration

	// NearFloorThreshold stops the crawl once a batch's earliest timestamp
	// comes within this distance of the floor.
	NearFloorThreshold time.Duration

	// Known is the identifier set to deduplicate against. The fetcher adds
	// newly accepted identifiers to it as it goes.
	Known map[string]struct{}

	// Sink receives accepted records.
	Sink Sink
}

// Fetcher runs windowed fetch sessions against a catalog.
type Fetcher struct {
	catalog          Catalog
	sleeper          Sleeper
	clock            func() time.Time
	retryMaxAttempts int
	retryBaseSleep   time.Duration
	maxEmptyBatches  int
	progress         ProgressReporter
	logger           *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSleeper injects the sleep implementation (tests pass a fake).
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) {
		f.sleeper = s
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(f *Fetcher) {
		f.clock = clock
	}
}

// WithRetryPolicy sets the rate-limit retry budget and base delay.
func WithRetryPolicy(maxAttempts int, baseSleep time.Duration) Option {
	return func(f *Fetcher) {
		f.retryMaxAttempts = maxAttempts
		f.retryBaseSleep = baseSleep
	}
}

// WithMaxEmptyBatches sets the consecutive all-duplicate batch limit.
func WithMaxEmptyBatches(n int) Option {
	return func(f *Fetcher) {
		f.maxEmptyBatches = n
	}
}

// WithProgress sets the per-batch progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(f *Fetcher) {
		f.progress = p
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
	}
}

// NewFetcher creates a fetcher over the given catalog.
func NewFetcher(cat Catalog, opts ...Option) *Fetcher {
	f := &Fetcher{
		catalog:          cat,
		sleeper:          realSleeper{},
		clock:            time.Now,
		retryMaxAttempts: DefaultRetryMaxAttempts,
		retryBaseSleep:   DefaultRetryBaseSleep,
		maxEmptyBatches:  DefaultMaxEmptyBatches,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithProgressReporter returns a copy of the fetcher that reports batch
// progress to p. The original fetcher is unchanged.
func (f *Fetcher) WithProgressReporter(p ProgressReporter) *Fetcher {
	clone := *f
	clone.progress = p
	return &clone
}

// Fetch runs one windowed session and returns its summary. Records whose
// identifiers are already in Params.Known are skipped and counted; new ones
// are handed to the sink and counted. On error the session summary so far
// is returned alongside it, so callers can report progress context.
func (f *Fetcher) Fetch(ctx context.Context, p Params) (*Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	known := p.Known
	if known == nil {
		known = make(map[string]struct{})
	}

	upper := p.Upper
	if upper.IsZero() {
		upper = f.clock()
	}

	sess := &Session{Window: Window{Upper: upper, Floor: p.Floor}}
	emptyRuns := 0

	for {
		// Cancellation granularity is one batch.
		if err := ctx.Err(); err != nil {
			return sess, err
		}

		batch, err := f.queryWithRetry(ctx, p, sess.Window)
		if err != nil {
			return sess, err
		}

		sess.Batches++
		sess.FetchedCount += len(batch)

		newInBatch := 0
		for _, rec := range batch {
			if _, dup := known[rec.ID]; dup {
				sess.SkippedCount++
				continue
			}
			if err := p.Sink(rec); err != nil {
				return sess, fmt.Errorf("storing record %s: %w", rec.ID, err)
			}
			known[rec.ID] = struct{}{}
			sess.NewCount++
			newInBatch++
		}

		if f.progress != nil {
			f.progress.OnBatch(*sess)
		}

		f.logger.Debug("batch complete",
			"batch", sess.Batches,
			"fetched", len(batch),
			"new", newInBatch,
			"skipped", len(batch)-newInBatch,
			"upper", sess.Window.Upper)

		// Stop conditions, in priority order. TargetReached wins even over
		// an empty batch; NearFloor needs a batch to read a timestamp from.
		if p.Target >= 0 && sess.NewCount >= p.Target {
			sess.StopReason = StopTargetReached
			return sess, nil
		}
		if len(batch) == 0 {
			sess.StopReason = StopExhausted
			return sess, nil
		}

		earliest := earliestPublished(batch)
		if earliest.Sub(p.Floor) <= p.NearFloorThreshold {
			sess.StopReason = StopNearFloor
			return sess, nil
		}

		// A short batch far from the floor is a sparse time region, not the
		// end of the data. Keep going.
		next := earliest.Add(-windowEpsilon)
		if newInBatch == 0 {
			emptyRuns++
			next = earliest.Add(-duplicateJump)
			if emptyRuns >= f.maxEmptyBatches {
				f.logger.Warn("stopping after consecutive all-duplicate batches", "count", emptyRuns)
				sess.StopReason = StopExhausted
				return sess, nil
			}
		} else {
			emptyRuns = 0
		}

		if !next.Before(sess.Window.Upper) {
			return sess, fmt.Errorf("%w: upper bound %v did not decrease from %v",
				ErrWindowStalled, next, sess.Window.Upper)
		}
		sess.Window.Upper = next

		if p.PollInterval > 0 {
			if err := f.sleeper.Sleep(ctx, p.PollInterval); err != nil {
				return sess, err
			}
		}
	}
}

// queryWithRetry issues one upstream query, retrying rate-limit rejections
// with exponential backoff. Transport failures surface immediately without
// consuming the retry budget.
func (f *Fetcher) queryWithRetry(ctx context.Context, p Params, w Window) ([]record.Record, error) {
	b := newBackoff(f.retryMaxAttempts, f.retryBaseSleep)

	for {
		batch, err := f.catalog.Query(ctx, p.Categories, p.Floor, w.Upper, p.BatchSize)
		if err == nil {
			b.succeeded()
			return batch, nil
		}

		if !catalog.IsRateLimited(err) {
			return nil, err
		}

		delay, ok := b.next()
		if !ok {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRateLimitExceeded, b.attempts(), err)
		}

		f.logger.Warn("rate limited by upstream, backing off",
			"attempt", b.attempts(),
			"max_attempts", f.retryMaxAttempts,
			"delay", delay)

		if err := f.sleeper.Sleep(ctx, delay); err != nil {
			return nil, err
		}
		b.retrying()
	}
}

func validateParams(p Params) error {
	if len(p.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if p.Floor.IsZero() {
		return fmt.Errorf("floor timestamp is required")
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	}
	if p.Sink == nil {
		return fmt.Errorf("sink is required")
	}
	return nil
}

// earliestPublished returns the earliest published timestamp in a non-empty
// raw batch, before any dedup partitioning.
func earliestPublished(batch []record.Record) time.Time {
	earliest := batch[0].Published
	for _, rec := range batch[1:] {
		if rec.Published.Before(earliest) {
			earliest = rec.Published
		}
	}
	return earliest
}
