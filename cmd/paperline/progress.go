package main

import (
	"github.com/paperline/paperline/internal/fetch"
	"github.com/paperline/paperline/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// fetchProgress returns a per-batch reporter rendering a spinner of new
// records, plus a finish func. JSON mode gets no reporter; progress noise
// would corrupt the output stream.
func fetchProgress() (fetch.ProgressReporter, func()) {
	if !humanOutput {
		return nil, func() {}
	}

	bar := progressbar.Default(-1, "fetching")
	prev := 0
	reporter := fetch.ProgressFunc(func(s fetch.Session) {
		_ = bar.Add(s.NewCount - prev)
		prev = s.NewCount
	})
	return reporter, func() { _ = bar.Finish() }
}

// embedProgress returns a chunk-level progress callback. The bar is created
// lazily because the pending total is only known once the stage starts.
func embedProgress() pipeline.EmbedProgress {
	if !humanOutput {
		return nil
	}

	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "embedding")
		}
		_ = bar.Set(done)
	}
}
