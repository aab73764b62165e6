package schedule

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/models"
)

var allFrequencies = []string{
	string(models.Daily),
	string(models.Weekly),
	string(models.Fortnightly),
	string(models.Monthly),
	string(models.Quarterly),
	string(models.Yearly),
}

// randomRule builds a valid rule with a random frequency, amount, start date
// and, half of the time, an end date up to three years after the start
func randomRule(f *gofakeit.Faker) *models.RecurringRule {
	start := models.Day(f.DateRange(
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
	))
	rule := &models.RecurringRule{
		ID:        f.UUID(),
		Name:      f.Company(),
		Type:      models.Expense,
		Amount:    decimal.NewFromFloat(f.Price(0.01, 5000)).Round(AmountPlaces),
		Frequency: models.Frequency(f.RandomString(allFrequencies)),
		StartDate: start,
	}
	if rule.Amount.IsZero() {
		rule.Amount = decimal.NewFromInt(1)
	}
	if f.Bool() {
		end := models.AddDays(start, f.IntRange(0, 3*365))
		rule.EndDate = &end
	}
	return rule
}

func TestGenerateRandomProperties(t *testing.T) {
	f := gofakeit.New(20240101)

	for i := 0; i < 300; i++ {
		rule := randomRule(f)
		count := f.IntRange(1, 60)

		occs, err := Generate(rule, Options{Count: count})
		require.NoError(t, err)

		// bounded generation
		require.LessOrEqual(t, len(occs), count)
		if rule.EndDate == nil {
			require.Len(t, occs, count, "rule %+v", rule)
		}
		require.NotEmpty(t, occs, "start date is never after the end date")

		coverage := CoverageDays(rule.Frequency)
		for j, occ := range occs {
			assert.Equal(t, j, occ.Index)

			if occ.IsProrated {
				require.NotNil(t, rule.EndDate)
				assert.Equal(t, models.DaysInclusive(occ.Date, *rule.EndDate), occ.ActualDays)
				want := occ.FullAmount.Div(decimal.NewFromInt(int64(coverage))).
					Mul(decimal.NewFromInt(int64(occ.ActualDays))).Round(AmountPlaces)
				assert.True(t, want.Equal(occ.Amount), "prorated amount %s, want %s", occ.Amount, want)
				assert.Greater(t, occ.ActualDays, 0)
				assert.Less(t, occ.ActualDays, coverage)
			} else {
				// coverage completeness
				assert.Equal(t, coverage, models.DaysInclusive(occ.Date, occ.EndDate))
				assert.True(t, rule.Amount.Equal(occ.Amount))
			}

			// monotonic sequence
			if j > 0 {
				assert.Equal(t, Advance(occs[j-1].Date, rule.Frequency), occ.Date)
			}
		}

		// a clipped window always ends on the rule's end date
		for _, occ := range occs {
			if occ.IsProrated {
				assert.Equal(t, models.Day(*rule.EndDate), occ.EndDate)
			}
		}

		// pure: a second run returns the same sequence
		again, err := Generate(rule, Options{Count: count})
		require.NoError(t, err)
		assert.Equal(t, occs, again)
	}
}

func TestAnchorRandomProperties(t *testing.T) {
	f := gofakeit.New(7)

	for i := 0; i < 200; i++ {
		rule := randomRule(f)
		rule.EndDate = nil
		today := models.AddDays(rule.StartDate, f.IntRange(0, 20*365))

		occs, err := Generate(rule, Options{Count: 3, AnchorToToday: true, Today: today})
		require.NoError(t, err)
		require.Len(t, occs, 3)

		first := occs[0]
		assert.False(t, first.EndDate.Before(today), "window %s..%s ends before %s",
			first.Date.Format(models.DateLayout), first.EndDate.Format(models.DateLayout), today.Format(models.DateLayout))
		// calendar steps leave at most a two-day gap between nominal windows
		if first.Date.After(today) && first.Date.After(rule.StartDate) {
			assert.LessOrEqual(t, models.DaysInclusive(today, first.Date), 3)
		}
	}
}
