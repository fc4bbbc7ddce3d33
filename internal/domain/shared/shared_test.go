package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistinctIDs(t *testing.T) {
	unique, dups := DistinctIDs([]string{"a", "b", "a", "c", "a", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, unique)
	assert.Equal(t, []string{"a", "b"}, dups)

	unique, dups = DistinctIDs([]string{"x"})
	assert.Equal(t, []string{"x"}, unique)
	assert.Empty(t, dups)
}

func TestParseGender(t *testing.T) {
	tests := map[string]Gender{
		"male":       GenderMale,
		" F ":        GenderFemale,
		"femenino":   GenderFemale,
		"":           GenderAny,
		"Indistinto": GenderAny,
	}
	for in, want := range tests {
		got, err := ParseGender(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseGender("robot")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDateRange(t *testing.T) {
	start := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	end := time.Date(2026, 5, 29, 8, 0, 0, 0, time.UTC)

	r, err := NewDateRange(start, &end)
	require.NoError(t, err)
	assert.Equal(t, Day(start), r.Start)
	assert.True(t, r.HasStarted(start))
	assert.False(t, r.HasStarted(start.AddDate(0, 0, -1)))
	assert.False(t, r.HasEnded(end))
	assert.True(t, r.HasEnded(end.AddDate(0, 0, 1)))

	sameDay := start.Add(time.Hour)
	_, err = NewDateRange(start, &sameDay)
	assert.NoError(t, err, "a one-day range is valid")

	before := start.AddDate(0, 0, -1)
	_, err = NewDateRange(start, &before)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	open, err := NewDateRange(start, nil)
	require.NoError(t, err)
	assert.False(t, open.HasEnded(start.AddDate(10, 0, 0)))
}

func TestTypedErrors_Is(t *testing.T) {
	wrapped := fmt.Errorf("assign: %w", &InsufficientCapacityError{SlotID: "s", Requested: 3, Available: 1})
	assert.True(t, errors.Is(wrapped, ErrInsufficientCapacity))
	assert.True(t, IsRecoverable(wrapped))
	assert.Equal(t, "assign: slot s: requested 3, available 1", wrapped.Error())

	assert.True(t, errors.Is(&InvalidTransitionError{}, ErrStateTransition))
	assert.EqualError(t, &InvalidTransitionError{Kind: "internship", ID: "in-1", From: "finished", AttemptedTo: "cancelled"},
		`internship in-1: cannot transition from "finished" to "cancelled"`)
	assert.True(t, IsNotFound(NewNotFound("slot", "x")))
	assert.True(t, IsValidation(NewDomainError("d", "op", ErrEmptyValue, "m")))
}

func TestNewRepositoryError(t *testing.T) {
	assert.NoError(t, NewRepositoryError("op", nil))

	notFound := NewNotFound("slot", "x")
	assert.Same(t, notFound, NewRepositoryError("op", notFound))

	cause := errors.New("connection reset")
	err := NewRepositoryError("lock slot", cause)
	assert.True(t, errors.Is(err, ErrRepository))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsRecoverable(err))

	assert.Same(t, err, NewRepositoryError("outer", err), "already wrapped")
}
