package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tally/internal/models"
)

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCoverageDays(t *testing.T) {
	tests := []struct {
		freq     models.Frequency
		expected int
	}{
		{models.Daily, 1},
		{models.Weekly, 7},
		{models.Fortnightly, 14},
		{models.Monthly, 30},
		{models.Quarterly, 90},
		{models.Yearly, 365},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			assert.Equal(t, tt.expected, CoverageDays(tt.freq))
		})
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		freq     models.Frequency
		expected string
	}{
		{"daily", "2024-01-31", models.Daily, "2024-02-01"},
		{"weekly", "2024-01-01", models.Weekly, "2024-01-08"},
		{"fortnightly", "2024-12-25", models.Fortnightly, "2025-01-08"},
		{"monthly", "2024-01-01", models.Monthly, "2024-02-01"},
		{"monthly from 31st clamps to leap day", "2024-01-31", models.Monthly, "2024-02-29"},
		{"monthly from 31st clamps to 28th", "2023-01-31", models.Monthly, "2023-02-28"},
		{"monthly across year end", "2024-12-15", models.Monthly, "2025-01-15"},
		{"quarterly", "2024-01-15", models.Quarterly, "2024-04-15"},
		{"quarterly clamps", "2023-11-30", models.Quarterly, "2024-02-29"},
		{"yearly", "2024-03-01", models.Yearly, "2025-03-01"},
		{"yearly from leap day", "2024-02-29", models.Yearly, "2025-02-28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(day(tt.from), tt.freq)
			assert.Equal(t, tt.expected, got.Format(models.DateLayout))
		})
	}
}

// Calendar stepping and nominal coverage are deliberately different: a
// 31-day month still has a 30-day coverage window.
func TestAdvanceAndCoverageDiverge(t *testing.T) {
	start := day("2024-01-01")
	next := Advance(start, models.Monthly)

	assert.Equal(t, 31, int(next.Sub(start).Hours()/24))
	assert.Equal(t, 30, CoverageDays(models.Monthly))

	yearStart := day("2024-01-01")
	assert.Equal(t, 366, int(Advance(yearStart, models.Yearly).Sub(yearStart).Hours()/24))
	assert.Equal(t, 365, CoverageDays(models.Yearly))
}

func TestUnknownFrequencyDefaultsToMonthly(t *testing.T) {
	unknown := models.Frequency("hourly")

	resolved, defaulted := Resolve(unknown)
	assert.True(t, defaulted)
	assert.Equal(t, models.Monthly, resolved)

	assert.Equal(t, 30, CoverageDays(unknown))
	assert.Equal(t, Advance(day("2024-01-31"), models.Monthly), Advance(day("2024-01-31"), unknown))

	for _, f := range models.Frequencies {
		resolved, defaulted := Resolve(f)
		assert.False(t, defaulted, "frequency %s", f)
		assert.Equal(t, f, resolved)
	}

	_, defaulted = Resolve("")
	assert.True(t, defaulted)
}

func TestAdvanceIgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2024, time.March, 9, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
	assert.Equal(t, "2024-03-16", Advance(late, models.Weekly).Format(models.DateLayout))
}
