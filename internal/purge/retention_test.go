package purge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCutoff(t *testing.T) {
	now := time.Date(2026, 10, 18, 15, 4, 5, 6, time.UTC)

	cutoff, err := Cutoff(now, 7)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC), cutoff)

	today, err := Cutoff(now, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), today)

	// Month and year boundaries are normalized by time.Date.
	early, err := Cutoff(time.Date(2026, 1, 3, 1, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 27, 0, 0, 0, 0, time.UTC), early)
}

func TestCutoffKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on the 18th is already the 19th in Berlin.
	now := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC).In(loc)
	cutoff, err := Cutoff(now, 1)
	require.NoError(t, err)

	assert.Equal(t, loc, cutoff.Location())
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, loc), cutoff)

	// The window crosses the end of daylight saving time on the 25th and
	// still lands on local midnight.
	after := time.Date(2026, 10, 27, 12, 0, 0, 0, loc)
	cutoff, err = Cutoff(after, 3)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 24, 0, 0, 0, 0, loc), cutoff)
	assert.Equal(t, 0, cutoff.Hour())
}

func TestCutoffRejectsNegativeRetention(t *testing.T) {
	_, err := Cutoff(time.Now(), -1)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, -1, cfgErr.Value)
	assert.Contains(t, err.Error(), "must not be negative")
}
