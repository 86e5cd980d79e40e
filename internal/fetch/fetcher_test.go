package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperline/paperline/internal/catalog"
	"github.com/paperline/paperline/internal/record"
)

var (
	testFloor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

// rec builds a record published at the given instant.
func rec(id string, published time.Time) record.Record {
	return record.Record{
		ID:        id,
		Title:     "title " + id,
		Abstract:  "abstract " + id,
		Authors:   []string{"Author " + id},
		Published: published,
		URL:       "http://arxiv.org/abs/" + id,
	}
}

// scriptStep is one scripted catalog response.
type scriptStep struct {
	records []record.Record
	err     error
}

// scriptedCatalog returns scripted responses in order and records the window
// bounds of every query it sees. Past the end of the script it returns empty
// batches.
type scriptedCatalog struct {
	script []scriptStep
	calls  []Window
}

func (c *scriptedCatalog) Query(ctx context.Context, categories []string, from, to time.Time, max int) ([]record.Record, error) {
	c.calls = append(c.calls, Window{Upper: to, Floor: from})
	if len(c.calls) > len(c.script) {
		return nil, nil
	}
	step := c.script[len(c.calls)-1]
	return step.records, step.err
}

// recordingSleeper records requested sleeps without sleeping.
type recordingSleeper struct {
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

// collectSink appends accepted records to a slice.
func collectSink(dst *[]record.Record) Sink {
	return func(r record.Record) error {
		*dst = append(*dst, r)
		return nil
	}
}

func testParams(sink Sink) Params {
	return Params{
		Categories:         []string{"cs.CL"},
		Floor:              testFloor,
		Target:             -1,
		BatchSize:          100,
		NearFloorThreshold: time.Hour,
		Sink:               sink,
	}
}

func newTestFetcher(cat Catalog, opts ...Option) *Fetcher {
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithSleeper(&recordingSleeper{}),
	}
	return NewFetcher(cat, append(base, opts...)...)
}

func TestFetchCountIdentity(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{
			rec("2402.00001", testNow.Add(-24*time.Hour)),
			rec("2402.00002", testNow.Add(-25*time.Hour)),
			rec("2402.00003", testNow.Add(-26*time.Hour)),
		}},
		{records: []record.Record{
			rec("2402.00003", testNow.Add(-26*time.Hour)), // overlap from previous batch
			rec("2402.00004", testNow.Add(-27*time.Hour)),
		}},
	}}

	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.Known = map[string]struct{}{"2402.00002": {}}

	sess, err := newTestFetcher(cat).Fetch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, sess.FetchedCount, sess.NewCount+sess.SkippedCount,
		"every fetched record must be counted exactly once")
	assert.Equal(t, 3, sess.NewCount)
	assert.Equal(t, 2, sess.SkippedCount)
	assert.Equal(t, 5, sess.FetchedCount)
	assert.Len(t, stored, 3)
	assert.Equal(t, StopExhausted, sess.StopReason)
}

func TestFetchIsIdempotentAgainstKnownSet(t *testing.T) {
	batch := []record.Record{
		rec("2402.00001", testNow.Add(-24*time.Hour)),
		rec("2402.00002", testNow.Add(-25*time.Hour)),
	}

	var stored []record.Record
	known := make(map[string]struct{})

	p := testParams(collectSink(&stored))
	p.Known = known

	_, err := newTestFetcher(&scriptedCatalog{script: []scriptStep{{records: batch}}}).
		Fetch(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Same data again with the same known set: nothing new is stored.
	sess, err := newTestFetcher(&scriptedCatalog{script: []scriptStep{{records: batch}}}).
		Fetch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 0, sess.NewCount)
	assert.Equal(t, 2, sess.SkippedCount)
	assert.Len(t, stored, 2)
}

func TestFetchStopsNearFloor(t *testing.T) {
	// The second batch reaches within the near-floor threshold; a record
	// below the floor that the catalog nevertheless returned is still kept.
	belowFloor := rec("2312.99999", testFloor.Add(-6*time.Hour))
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{
			rec("2402.00001", testNow.Add(-24*time.Hour)),
			rec("2402.00002", testNow.Add(-30*time.Hour)),
		}},
		{records: []record.Record{
			rec("2401.00003", testFloor.Add(30*time.Minute)),
			belowFloor,
		}},
	}}

	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.NearFloorThreshold = time.Hour

	sess, err := newTestFetcher(cat).Fetch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StopNearFloor, sess.StopReason)
	assert.Equal(t, 4, sess.NewCount)

	found := false
	for _, r := range stored {
		if r.ID == belowFloor.ID {
			found = true
		}
	}
	assert.True(t, found, "records below the floor are kept once fetched")
}

func TestFetchTargetReached(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{
			rec("2402.00001", testNow.Add(-24*time.Hour)),
			rec("2402.00002", testNow.Add(-25*time.Hour)),
			rec("2402.00003", testNow.Add(-26*time.Hour)),
		}},
		{records: []record.Record{
			rec("2402.00004", testNow.Add(-27*time.Hour)),
		}},
	}}

	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.Target = 2

	sess, err := newTestFetcher(cat).Fetch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StopTargetReached, sess.StopReason)
	assert.Equal(t, 1, sess.Batches, "quota met inside the first batch")
	// The whole batch is consumed before the quota check.
	assert.Equal(t, 3, sess.NewCount)
}

func TestFetchZeroTargetWinsOverEmptyBatch(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{{records: nil}}}

	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.Target = 0

	sess, err := newTestFetcher(cat).Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StopTargetReached, sess.StopReason)
}

func TestFetchExhaustedOnEmptyBatch(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{{records: nil}}}

	var stored []record.Record
	sess, err := newTestFetcher(cat).Fetch(context.Background(), testParams(collectSink(&stored)))
	require.NoError(t, err)

	assert.Equal(t, StopExhausted, sess.StopReason)
	assert.Equal(t, 0, sess.FetchedCount)
}

func TestFetchWindowShrinksByEpsilon(t *testing.T) {
	earliest := testNow.Add(-26 * time.Hour)
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{
			rec("2402.00001", testNow.Add(-24*time.Hour)),
			rec("2402.00002", earliest),
		}},
	}}

	var stored []record.Record
	_, err := newTestFetcher(cat).Fetch(context.Background(), testParams(collectSink(&stored)))
	require.NoError(t, err)

	require.Len(t, cat.calls, 2)
	assert.True(t, cat.calls[0].Upper.Equal(testNow))
	assert.True(t, cat.calls[1].Upper.Equal(earliest.Add(-time.Second)),
		"next upper bound is one second below the earliest fetched record")
	// The floor is passed through unchanged on every query.
	for _, call := range cat.calls {
		assert.True(t, call.Floor.Equal(testFloor))
	}
}

func TestFetchAllDuplicateBatchJumpsByMinute(t *testing.T) {
	dup := rec("2402.00001", testNow.Add(-24*time.Hour))
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{dup}},
		{records: []record.Record{dup}},
	}}

	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.Known = map[string]struct{}{dup.ID: {}}

	sess, err := newTestFetcher(cat, WithMaxEmptyBatches(2)).Fetch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StopExhausted, sess.StopReason)
	assert.Equal(t, 2, sess.Batches)
	require.Len(t, cat.calls, 2)
	assert.True(t, cat.calls[1].Upper.Equal(dup.Published.Add(-time.Minute)),
		"an all-duplicate batch steps the window back a full minute")
}

func TestFetchRateLimitRetriesWithBackoff(t *testing.T) {
	limited := fmt.Errorf("%w: status 429", catalog.ErrRateLimited)
	cat := &scriptedCatalog{script: []scriptStep{
		{err: limited},
		{err: limited},
		{records: []record.Record{rec("2402.00001", testNow.Add(-24*time.Hour))}},
	}}

	sleeper := &recordingSleeper{}
	var stored []record.Record
	sess, err := newTestFetcher(cat,
		WithSleeper(sleeper),
		WithRetryPolicy(3, 5*time.Second),
	).Fetch(context.Background(), testParams(collectSink(&stored)))
	require.NoError(t, err)

	assert.Equal(t, 1, sess.NewCount)
	require.GreaterOrEqual(t, len(sleeper.slept), 2)
	assert.Equal(t, 5*time.Second, sleeper.slept[0])
	assert.Equal(t, 10*time.Second, sleeper.slept[1], "backoff doubles per attempt")
}

func TestFetchRateLimitBudgetExhausted(t *testing.T) {
	limited := fmt.Errorf("%w: status 429", catalog.ErrRateLimited)
	cat := &scriptedCatalog{script: []scriptStep{
		{err: limited}, {err: limited}, {err: limited}, {err: limited},
	}}

	var stored []record.Record
	sess, err := newTestFetcher(cat, WithRetryPolicy(3, time.Second)).
		Fetch(context.Background(), testParams(collectSink(&stored)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 0, sess.NewCount, "partial session is returned alongside the error")
}

func TestFetchUnavailableSurfacesImmediately(t *testing.T) {
	unavailable := fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)
	cat := &scriptedCatalog{script: []scriptStep{{err: unavailable}}}

	sleeper := &recordingSleeper{}
	var stored []record.Record
	_, err := newTestFetcher(cat, WithSleeper(sleeper)).
		Fetch(context.Background(), testParams(collectSink(&stored)))

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.Empty(t, sleeper.slept, "transport failures do not consume the retry budget")
}

func TestFetchWindowStallFailsLoudly(t *testing.T) {
	// A batch whose earliest record sits above the current upper bound would
	// recompute a non-decreasing window.
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{rec("2403.00001", testNow.Add(time.Hour))}},
	}}

	var stored []record.Record
	_, err := newTestFetcher(cat).Fetch(context.Background(), testParams(collectSink(&stored)))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWindowStalled)
}

func TestFetchSleepsBetweenBatches(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{rec("2402.00001", testNow.Add(-24*time.Hour))}},
		{records: []record.Record{rec("2402.00002", testNow.Add(-48*time.Hour))}},
	}}

	sleeper := &recordingSleeper{}
	var stored []record.Record
	p := testParams(collectSink(&stored))
	p.PollInterval = 3 * time.Second

	_, err := newTestFetcher(cat, WithSleeper(sleeper)).Fetch(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, sleeper.slept, 2)
	assert.Equal(t, 3*time.Second, sleeper.slept[0])
}

func TestFetchContextCancellation(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{rec("2402.00001", testNow.Add(-24*time.Hour))}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stored []record.Record
	sess, err := newTestFetcher(cat).Fetch(ctx, testParams(collectSink(&stored)))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sess.Batches)
}

func TestFetchSinkErrorAborts(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{rec("2402.00001", testNow.Add(-24*time.Hour))}},
	}}

	sinkErr := errors.New("disk full")
	p := testParams(func(record.Record) error { return sinkErr })

	_, err := newTestFetcher(cat).Fetch(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
}

func TestFetchProgressReporting(t *testing.T) {
	cat := &scriptedCatalog{script: []scriptStep{
		{records: []record.Record{rec("2402.00001", testNow.Add(-24*time.Hour))}},
		{records: nil},
	}}

	var snapshots []Session
	var stored []record.Record
	_, err := newTestFetcher(cat, WithProgress(ProgressFunc(func(s Session) {
		snapshots = append(snapshots, s)
	}))).Fetch(context.Background(), testParams(collectSink(&stored)))
	require.NoError(t, err)

	require.Len(t, snapshots, 2)
	assert.Equal(t, 1, snapshots[0].NewCount)
	assert.Equal(t, 1, snapshots[1].NewCount)
}

func TestValidateParams(t *testing.T) {
	var stored []record.Record
	valid := testParams(collectSink(&stored))

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no categories", func(p *Params) { p.Categories = nil }},
		{"zero floor", func(p *Params) { p.Floor = time.Time{} }},
		{"zero batch size", func(p *Params) { p.BatchSize = 0 }},
		{"nil sink", func(p *Params) { p.Sink = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := newTestFetcher(&scriptedCatalog{}).Fetch(context.Background(), p)
			assert.Error(t, err)
		})
	}
}
