package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule_Interval(t *testing.T) {
	s, err := ParseSchedule("@every 90s")
	require.NoError(t, err)
	assert.Equal(t, "@every 1m30s", s.String())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(90*time.Second), s.Next(base))

	_, err = ParseSchedule("@every 10ms")
	assert.Error(t, err)
	_, err = ParseSchedule("@every soon")
	assert.Error(t, err)
}

func TestParseCronExpression_Errors(t *testing.T) {
	for _, expr := range []string{
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronExpression_Next(t *testing.T) {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		loc = time.FixedZone("ART", -3*60*60)
	}

	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			expr:  "5 0 * * *",
			after: time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
			want:  time.Date(2026, 3, 3, 0, 5, 0, 0, loc),
		},
		{
			expr:  "5 0 * * *",
			after: time.Date(2026, 3, 2, 0, 4, 59, 0, loc),
			want:  time.Date(2026, 3, 2, 0, 5, 0, 0, loc),
		},
		{
			expr:  "*/15 * * * *",
			after: time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		},
		{
			// 2026-03-07 is a Saturday.
			expr:  "0 6 * * 1-5",
			after: time.Date(2026, 3, 6, 7, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC),
		},
		{
			expr:  "0 12 1,15 * *",
			after: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ce.Next(tt.after)), "got %s", ce.Next(tt.after))
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestCronExpression_NeverMatches(t *testing.T) {
	ce, err := ParseCronExpression("0 0 31 2 *")
	require.NoError(t, err)
	assert.True(t, ce.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}
