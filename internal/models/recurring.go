package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is how often a recurring rule repeats
type Frequency string

const (
	Daily       Frequency = "daily"
	Weekly      Frequency = "weekly"
	Fortnightly Frequency = "fortnightly"
	Monthly     Frequency = "monthly"
	Quarterly   Frequency = "quarterly"
	Yearly      Frequency = "yearly"
)

// Frequencies lists the supported frequencies in ascending period length
var Frequencies = []Frequency{Daily, Weekly, Fortnightly, Monthly, Quarterly, Yearly}

// IsValid reports whether f is one of the supported frequencies
func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Fortnightly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// RecurringRule describes a repeating income or expense, e.g. monthly rent.
// Amount is the nominal amount for one full coverage period.
type RecurringRule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" validate:"required,max=200"`
	Type      TransactionType `json:"type" validate:"required,oneof=income expense"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category" validate:"max=100"`
	Person    *string         `json:"person,omitempty" validate:"omitempty,max=100"`
	Frequency Frequency       `json:"frequency" validate:"required,oneof=daily weekly fortnightly monthly quarterly yearly"`
	StartDate time.Time       `json:"start_date" validate:"required"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Notes     string          `json:"notes" validate:"max=2000"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasEnded reports whether the rule has an end date before day
func (r *RecurringRule) HasEnded(day time.Time) bool {
	return r.EndDate != nil && Day(*r.EndDate).Before(Day(day))
}
