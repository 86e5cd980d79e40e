package fetch

import "errors"

// Errors returned by fetch sessions.
var (
	// ErrRateLimitExceeded means the retry budget against a rate-limiting
	// upstream was exhausted. It aborts the whole session; partial progress
	// already committed to the store is kept.
	ErrRateLimitExceeded = errors.New("upstream rate limit retries exhausted")

	// ErrWindowStalled means the recomputed window upper bound failed to
	// decrease, which would loop forever. Failing loudly beats silently
	// re-querying the same range.
	ErrWindowStalled = errors.New("fetch window failed to shrink")
)
