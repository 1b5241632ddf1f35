package recur_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recur"
)

// =============================================================================
// NEXT OCCURRENCE - daily / weekly
// =============================================================================

func TestNextOccurrence_DailyAndWeekly(t *testing.T) {
	tests := []struct {
		name     string
		from     recur.Date
		freq     recur.Frequency
		interval int
		want     recur.Date
	}{
		{"daily", recur.NewDate(2024, time.March, 10), recur.FreqDaily, 1, recur.NewDate(2024, time.March, 11)},
		{"every 3 days", recur.NewDate(2024, time.March, 30), recur.FreqDaily, 3, recur.NewDate(2024, time.April, 2)},
		{"daily across year end", recur.NewDate(2023, time.December, 31), recur.FreqDaily, 1, recur.NewDate(2024, time.January, 1)},
		{"weekly", recur.NewDate(2024, time.March, 10), recur.FreqWeekly, 1, recur.NewDate(2024, time.March, 17)},
		{"biweekly", recur.NewDate(2024, time.March, 10), recur.FreqWeekly, 2, recur.NewDate(2024, time.March, 24)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := recur.NextOccurrence(tt.from, tt.freq, tt.interval)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

// =============================================================================
// NEXT OCCURRENCE - monthly/yearly clamping
// =============================================================================

func TestNextOccurrence_MonthlyClampsToShortMonth(t *testing.T) {
	tests := []struct {
		name     string
		from     recur.Date
		interval int
		want     recur.Date
	}{
		{"Jan 31 to leap Feb", recur.NewDate(2024, time.January, 31), 1, recur.NewDate(2024, time.February, 29)},
		{"Jan 31 to non-leap Feb", recur.NewDate(2023, time.January, 31), 1, recur.NewDate(2023, time.February, 28)},
		{"Mar 31 to Apr 30", recur.NewDate(2024, time.March, 31), 1, recur.NewDate(2024, time.April, 30)},
		{"Oct 31 every 4 months", recur.NewDate(2023, time.October, 31), 4, recur.NewDate(2024, time.February, 29)},
		{"mid-month needs no clamp", recur.NewDate(2024, time.January, 15), 1, recur.NewDate(2024, time.February, 15)},
		{"Nov to Jan across year end", recur.NewDate(2023, time.November, 30), 2, recur.NewDate(2024, time.January, 30)},
		{"Dec 31 to Jan 31", recur.NewDate(2023, time.December, 31), 1, recur.NewDate(2024, time.January, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := recur.NextOccurrence(tt.from, recur.FreqMonthly, tt.interval)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNextOccurrence_MonthlyClampIsPermanent(t *testing.T) {
	// GIVEN: A monthly rule anchored on Jan 31
	// WHEN: Advancing occurrence by occurrence through longer months
	// THEN: Once clamped to Feb 29, the day stays 29; it never snaps back to 31

	cursor := recur.NewDate(2024, time.January, 31)
	want := []recur.Date{
		recur.NewDate(2024, time.February, 29),
		recur.NewDate(2024, time.March, 29),
		recur.NewDate(2024, time.April, 29),
		recur.NewDate(2024, time.May, 29),
	}

	for _, w := range want {
		next, err := recur.NextOccurrence(cursor, recur.FreqMonthly, 1)
		require.NoError(t, err)
		assert.True(t, next.Equal(w), "got %s, want %s", next, w)
		cursor = next
	}
}

func TestNextOccurrence_YearlyClampsLeapDay(t *testing.T) {
	// Feb 29 has no equivalent in a non-leap year; clamp to Feb 28.
	got, err := recur.NextOccurrence(recur.NewDate(2024, time.February, 29), recur.FreqYearly, 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", got.String())

	// Four years later the leap day exists again, but the cursor was
	// recomputed from Feb 28, so it stays on 28.
	got, err = recur.NextOccurrence(recur.NewDate(2024, time.February, 29), recur.FreqYearly, 4)
	require.NoError(t, err)
	assert.Equal(t, "2028-02-29", got.String())
}

func TestNextOccurrence_RejectsBadInput(t *testing.T) {
	_, err := recur.NextOccurrence(recur.NewDate(2024, time.January, 1), recur.Frequency("hourly"), 1)
	assert.ErrorIs(t, err, recur.ErrUnsupportedFrequency)

	_, err = recur.NextOccurrence(recur.NewDate(2024, time.January, 1), recur.FreqDaily, 0)
	assert.ErrorIs(t, err, recur.ErrInvalidInterval)
}

// =============================================================================
// DATE HELPERS
// =============================================================================

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	ts := time.Date(2024, time.April, 15, 18, 45, 12, 0, time.UTC)
	assert.Equal(t, "2024-04-15", recur.DateOf(ts).String())
}

func TestParseDate(t *testing.T) {
	d, err := recur.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.True(t, d.Equal(recur.NewDate(2024, time.February, 29)))

	_, err = recur.ParseDate("not-a-date")
	assert.Error(t, err)
}
