package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaysDouble(t *testing.T) {
	b := newBackoff(3, 5*time.Second)

	var delays []time.Duration
	for {
		d, ok := b.next()
		if !ok {
			break
		}
		delays = append(delays, d)
		b.retrying()
	}

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, delays)
	assert.Equal(t, 3, b.attempts())
	assert.Equal(t, stateFailed, b.state)
}

func TestBackoffZeroBudgetFailsImmediately(t *testing.T) {
	b := newBackoff(0, time.Second)

	_, ok := b.next()
	assert.False(t, ok)
	assert.Equal(t, stateFailed, b.state)
}

func TestBackoffSucceeded(t *testing.T) {
	b := newBackoff(3, time.Second)

	_, ok := b.next()
	assert.True(t, ok)
	b.retrying()
	b.succeeded()

	assert.Equal(t, stateSucceeded, b.state)
	assert.Equal(t, 1, b.attempts())
}

func TestBackoffStateString(t *testing.T) {
	states := map[backoffState]string{
		stateAttempting: "attempting",
		stateBackoff:    "backoff",
		stateRetrying:   "retrying",
		stateSucceeded:  "succeeded",
		stateFailed:     "failed",
	}
	for state, want := range states {
		assert.Equal(t, want, state.String())
	}
}
