package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/models"
)

// Criteria narrows a generated sequence. Nil fields do not constrain.
// All bounds are inclusive; dates compare against occurrence start dates.
type Criteria struct {
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
}

// Matches reports whether occ satisfies every set bound
func (c Criteria) Matches(occ models.Occurrence) bool {
	if c.MinAmount != nil && occ.Amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && occ.Amount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if c.StartDate != nil && occ.Date.Before(models.Day(*c.StartDate)) {
		return false
	}
	if c.EndDate != nil && occ.Date.After(models.Day(*c.EndDate)) {
		return false
	}
	return true
}

// Filter returns the occurrences matching c, preserving order
func Filter(occs []models.Occurrence, c Criteria) []models.Occurrence {
	result := make([]models.Occurrence, 0, len(occs))
	for _, occ := range occs {
		if c.Matches(occ) {
			result = append(result, occ)
		}
	}
	return result
}

// Selection is a set of occurrence indices picked by the user
type Selection map[int]bool

// NewSelection builds a Selection from a list of indices
func NewSelection(indices ...int) Selection {
	s := make(Selection, len(indices))
	for _, i := range indices {
		s[i] = true
	}
	return s
}

// DateRange spans from the first occurrence's start to the last one's end
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary aggregates a filtered sequence
type Summary struct {
	Count         int             `json:"count"`
	SelectedCount int             `json:"selected_count"`
	Total         decimal.Decimal `json:"total"`
	SelectedTotal decimal.Decimal `json:"selected_total"`
	Average       decimal.Decimal `json:"average"`
	DateRange     *DateRange      `json:"date_range,omitempty"`
}

// Summarize totals the filtered occurrences and the selected subset of them.
// Selected indices that were filtered out do not count.
func Summarize(filtered []models.Occurrence, selected Selection) Summary {
	s := Summary{
		Count:         len(filtered),
		Total:         decimal.Zero,
		SelectedTotal: decimal.Zero,
		Average:       decimal.Zero,
	}
	for _, occ := range filtered {
		s.Total = s.Total.Add(occ.Amount)
		if selected[occ.Index] {
			s.SelectedCount++
			s.SelectedTotal = s.SelectedTotal.Add(occ.Amount)
		}
	}
	if s.Count == 0 {
		return s
	}

	s.Average = s.Total.Div(decimal.NewFromInt(int64(s.Count))).Round(AmountPlaces)
	s.DateRange = &DateRange{
		Start: filtered[0].Date,
		End:   filtered[len(filtered)-1].EndDate,
	}
	return s
}
