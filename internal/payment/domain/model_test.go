package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusInitiated:  {StatusAuthorized, StatusFailed},
		StatusAuthorized: {StatusCaptured, StatusFailed, StatusRefunded},
		StatusCaptured:   {StatusRefunded},
		StatusFailed:     {},
		StatusRefunded:   {},
	}
	all := []Status{StatusInitiated, StatusAuthorized, StatusCaptured, StatusFailed, StatusRefunded}

	for from, targets := range allowed {
		legal := map[Status]bool{}
		for _, to := range targets {
			legal[to] = true
		}
		for _, to := range all {
			assert.Equal(t, legal[to], CanTransition(from, to), "from %s to %s", from, to)
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	assert.False(t, CanTransition(Status("PENDING"), StatusCaptured))
	assert.False(t, CanTransition(StatusInitiated, Status("SETTLED")))
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusCaptured))
	assert.False(t, ValidStatus(Status("SETTLED")))
	assert.False(t, ValidStatus(Status("")))
}

func TestNewReference(t *testing.T) {
	ref := NewReference()
	assert.True(t, strings.HasPrefix(ref, "pi_"))
	assert.Len(t, ref, 27)
	assert.NotEqual(t, ref, NewReference())
}
