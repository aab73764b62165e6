package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OccurrenceStatus tracks an occurrence through a preview/materialize cycle
type OccurrenceStatus string

const (
	OccurrencePending OccurrenceStatus = "pending"
)

// Occurrence is one computed instance of a recurring rule. Occurrences are
// derived on every request and never stored on their own.
type Occurrence struct {
	Index        int              `json:"index"`
	Date         time.Time        `json:"date"`
	EndDate      time.Time        `json:"end_date"`
	CoverageDays int              `json:"coverage_days"`
	ActualDays   int              `json:"actual_days"`
	FullAmount   decimal.Decimal  `json:"full_amount"`
	DailyRate    decimal.Decimal  `json:"daily_rate"`
	Amount       decimal.Decimal  `json:"amount"`
	IsProrated   bool             `json:"is_prorated"`
	Status       OccurrenceStatus `json:"status"`
}

// Covers reports whether day falls inside the occurrence's coverage window
func (o *Occurrence) Covers(day time.Time) bool {
	d := Day(day)
	return !d.Before(o.Date) && !d.After(o.EndDate)
}
