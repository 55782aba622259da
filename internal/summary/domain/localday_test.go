package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDayConvertsForDisplayOnly(t *testing.T) {
	// 23:30 UTC on Jan 31 is already Feb 1 in Tokyo and still Jan 31 in LA.
	instant := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	assert.Equal(t, "2026-02-01", LocalDay(instant, tokyo))
	assert.Equal(t, "2026-01-31", LocalDay(instant, la))
	assert.Equal(t, "2026-01-31", LocalDay(instant, time.UTC))
	assert.Equal(t, "2026-01-31", LocalDay(instant, nil))
}

func TestMonthBounds(t *testing.T) {
	start, end, err := MonthBounds("2026-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// December rolls into the next year.
	start, end, err = MonthBounds("2025-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestMonthBoundsRejectsMalformedInput(t *testing.T) {
	for _, month := range []string{"", "2026", "2026-13", "march", "2026-02-01"} {
		_, _, err := MonthBounds(month)
		assert.ErrorIs(t, err, ErrInvalidMonth, month)
	}
}
