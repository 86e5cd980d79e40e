package fetch

import "time"

// StopReason records why a fetch session ended.
type StopReason int

const (
	// StopNone means the session has not ended (or ended on error).
	StopNone StopReason = iota

	// StopTargetReached means the cumulative new-record count reached the
	// requested target.
	StopTargetReached

	// StopNearFloor means the earliest timestamp in a batch came within the
	// near-floor threshold of the configured floor.
	StopNearFloor

	// StopExhausted means the upstream returned no records for the window,
	// or repeated all-duplicate batches indicated nothing new remains.
	StopExhausted
)

// String returns the stop reason's name.
func (r StopReason) String() string {
	switch r {
	case StopTargetReached:
		return "target_reached"
	case StopNearFloor:
		return "near_floor"
	case StopExhausted:
		return "exhausted"
	default:
		return "none"
	}
}

// Window is the [Floor, Upper) timestamp range currently being queried.
// Upper shrinks strictly after every batch; Floor is the hard lower bound
// the crawl never descends past.
type Window struct {
	Upper time.Time `json:"upper"`
	Floor time.Time `json:"floor"`
}

// Session summarizes one fetch invocation. The count identity
// NewCount + SkippedCount == FetchedCount holds at all times.
type Session struct {
	NewCount     int        `json:"new_count"`
	SkippedCount int        `json:"skipped_count"`
	FetchedCount int        `json:"fetched_count"`
	Batches      int        `json:"batches"`
	Window       Window     `json:"window"`
	StopReason   StopReason `json:"-"`
}
