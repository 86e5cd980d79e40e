package pipeline

import (
	"errors"
	"fmt"

	"github.com/paperline/paperline/internal/fetch"
)

// ErrNotInitialized means an update run was requested against a corpus root
// with no records, so no resume floor can be derived. Run a build first.
var ErrNotInitialized = errors.New("corpus not initialized")

// StageError wraps a failure inside a pipeline stage with enough context to
// report partial progress and resume manually. Work committed before the
// failure is kept.
type StageError struct {
	Stage     string
	Window    fetch.Window // last fetch window, zero for embed stages
	Processed int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed after %d records: %v", e.Stage, e.Processed, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
