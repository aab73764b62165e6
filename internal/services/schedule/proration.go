package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/models"
)

// AmountPlaces is the number of decimal places amounts are rounded to
const AmountPlaces = 2

// Prorate finalizes an occurrence starting on date. When the nominal coverage
// window runs past ruleEnd, the window is clipped to ruleEnd and the amount is
// scaled by the days actually covered.
func Prorate(date time.Time, coverageDays int, fullAmount decimal.Decimal, ruleEnd *time.Time) (models.Occurrence, error) {
	if coverageDays <= 0 {
		return models.Occurrence{}, fmt.Errorf("%w: coverage of %d days", ErrProrationInvariant, coverageDays)
	}

	start := models.Day(date)
	dailyRate := fullAmount.Div(decimal.NewFromInt(int64(coverageDays)))
	occ := models.Occurrence{
		Date:         start,
		EndDate:      models.AddDays(start, coverageDays-1),
		CoverageDays: coverageDays,
		ActualDays:   coverageDays,
		FullAmount:   fullAmount,
		DailyRate:    dailyRate,
		Amount:       fullAmount,
		Status:       models.OccurrencePending,
	}

	if ruleEnd == nil {
		return occ, nil
	}
	end := models.Day(*ruleEnd)
	if !occ.EndDate.After(end) {
		return occ, nil
	}

	actual := models.DaysInclusive(start, end)
	if actual <= 0 {
		return models.Occurrence{}, fmt.Errorf("%w: occurrence %s starts after rule end %s",
			ErrProrationInvariant, start.Format(models.DateLayout), end.Format(models.DateLayout))
	}

	occ.EndDate = end
	occ.ActualDays = actual
	occ.Amount = dailyRate.Mul(decimal.NewFromInt(int64(actual))).Round(AmountPlaces)
	occ.IsProrated = true
	return occ, nil
}
