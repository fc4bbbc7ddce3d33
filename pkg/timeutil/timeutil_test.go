package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// art is UTC-3 all year round.
var art = time.FixedZone("ART", -3*60*60)

func TestCalendarDay(t *testing.T) {
	// 01:30 UTC on the 8th is still the 7th in ART.
	instant := time.Date(2026, 9, 8, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, art), StartOfDay(instant, art))
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), CalendarDay(instant, art))
	assert.Equal(t, time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC), CalendarDay(instant, nil))
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 9, 8, 1, 30, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-10-01", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{" today ", time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)},
		{"Tomorrow", time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in, now, art)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDate("", now, art)
	assert.Error(t, err)
	_, err = ParseDate("01/10/2026", now, art)
	assert.ErrorContains(t, err, "want 2006-01-02")
}

func TestParseOptionalDate(t *testing.T) {
	now := time.Date(2026, 9, 8, 12, 0, 0, 0, time.UTC)

	got, err := ParseOptionalDate("  ", now, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptionalDate("2026-12-15", now, time.UTC)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2026-12-15", FormatDate(*got))

	_, err = ParseOptionalDate("soon", now, time.UTC)
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Empty(t, FormatDate(time.Time{}))
	assert.Equal(t, "2026-09-07", FormatDate(time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)))
}
