package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	c, err := parseCron("0 3 * * 1")
	require.NoError(t, err)

	// Monday 2026-07-13 03:00 UTC matches, 04:00 does not.
	require.True(t, c.matchesTime(time.Date(2026, 7, 13, 3, 0, 0, 0, time.UTC)))
	require.False(t, c.matchesTime(time.Date(2026, 7, 13, 4, 0, 0, 0, time.UTC)))
	require.False(t, c.matchesTime(time.Date(2026, 7, 14, 3, 0, 0, 0, time.UTC)))
}

func TestParseCronLists(t *testing.T) {
	c, err := parseCron("0,30 * 1,15 * *")
	require.NoError(t, err)
	require.True(t, c.matchesTime(time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)))
	require.False(t, c.matchesTime(time.Date(2026, 7, 15, 9, 31, 0, 0, time.UTC)))
	require.False(t, c.matchesTime(time.Date(2026, 7, 16, 9, 30, 0, 0, time.UTC)))
}

func TestParseCronErrors(t *testing.T) {
	_, err := parseCron("0 3 * *")
	require.Error(t, err)

	_, err = parseCron("0 x * * *")
	require.Error(t, err)
}

func TestNextCronTime(t *testing.T) {
	// Wednesday noon; the next Monday 03:00 run is five days out.
	after := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * 1", after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 20, 3, 0, 0, 0, time.UTC), next)

	// A match on the current minute is skipped; the schedule fires next week.
	onTheDot := time.Date(2026, 7, 20, 3, 0, 0, 0, time.UTC)
	next, err = nextCronTime("0 3 * * 1", onTheDot)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 27, 3, 0, 0, 0, time.UTC), next)
}

func TestWeekdayNumber(t *testing.T) {
	require.Equal(t, 0, weekdayNumber("Sunday"))
	require.Equal(t, 5, weekdayNumber("fri"))
	require.Equal(t, 6, weekdayNumber(" saturday "))
	require.Equal(t, 1, weekdayNumber("someday"))
}
