package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProrate(t *testing.T) {
	full := decimal.NewFromInt(300)

	tests := []struct {
		name       string
		date       string
		end        string
		wantEnd    string
		wantDays   int
		wantAmount string
		prorated   bool
	}{
		{"no end date", "2024-01-01", "", "2024-01-30", 30, "300", false},
		{"end after window", "2024-01-01", "2024-06-01", "2024-01-30", 30, "300", false},
		{"end on last covered day", "2024-01-01", "2024-01-30", "2024-01-30", 30, "300", false},
		{"end one day short", "2024-01-01", "2024-01-29", "2024-01-29", 29, "290.00", true},
		{"end on start day", "2024-01-01", "2024-01-01", "2024-01-01", 1, "10.00", true},
		{"end mid window", "2024-01-01", "2024-01-20", "2024-01-20", 20, "200.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := Prorate(day(tt.date), 30, full, optionalDay(tt.end))
			require.NoError(t, err)

			assert.Equal(t, tt.wantEnd, occ.EndDate.Format("2006-01-02"))
			assert.Equal(t, tt.wantDays, occ.ActualDays)
			assert.Equal(t, 30, occ.CoverageDays)
			assert.Equal(t, tt.prorated, occ.IsProrated)
			assertAmount(t, tt.wantAmount, occ.Amount)
			assertAmount(t, "300", occ.FullAmount)
		})
	}
}

func TestProrateRepeatingRate(t *testing.T) {
	// 100 / 30 = 3.333... per day; 20 days is 66.67 after rounding
	occ, err := Prorate(day("2024-03-01"), 30, decimal.NewFromInt(100), optionalDay("2024-03-20"))
	require.NoError(t, err)
	assertAmount(t, "66.67", occ.Amount)
	assert.Equal(t, int32(-2), occ.Amount.Exponent())
}

func TestProrateRejectsOccurrenceAfterRuleEnd(t *testing.T) {
	occ, err := Prorate(day("2024-02-10"), 30, decimal.NewFromInt(300), optionalDay("2024-02-01"))
	require.ErrorIs(t, err, ErrProrationInvariant)
	assert.True(t, occ.Amount.IsZero())
}

func optionalDay(s string) *time.Time {
	if s == "" {
		return nil
	}
	d := day(s)
	return &d
}

func TestProrateRejectsEmptyCoverage(t *testing.T) {
	_, err := Prorate(day("2024-02-10"), 0, decimal.NewFromInt(300), nil)
	assert.ErrorIs(t, err, ErrProrationInvariant)
}
