// Package schedule computes the occurrences of recurring rules: the frequency
// table, the occurrence generator, end-date proration, and the filter and
// summary stage used by previews. Everything here is pure.
package schedule

import (
	"time"

	"tally/internal/models"
)

// DefaultFrequency is used for any frequency value outside the table
const DefaultFrequency = models.Monthly

type frequencySpec struct {
	coverageDays int
	months       int // calendar months per step; zero means step by coverageDays
}

// Coverage windows are nominal: a monthly occurrence always covers 30 days,
// whatever the length of the calendar month it starts in.
var frequencyTable = map[models.Frequency]frequencySpec{
	models.Daily:       {coverageDays: 1},
	models.Weekly:      {coverageDays: 7},
	models.Fortnightly: {coverageDays: 14},
	models.Monthly:     {coverageDays: 30, months: 1},
	models.Quarterly:   {coverageDays: 90, months: 3},
	models.Yearly:      {coverageDays: 365, months: 12},
}

// Resolve returns the frequency the table will use for f. defaulted is true
// when f is unknown and DefaultFrequency was substituted.
func Resolve(f models.Frequency) (resolved models.Frequency, defaulted bool) {
	if _, ok := frequencyTable[f]; ok {
		return f, false
	}
	return DefaultFrequency, true
}

func lookup(f models.Frequency) frequencySpec {
	resolved, _ := Resolve(f)
	return frequencyTable[resolved]
}

// CoverageDays returns the nominal number of days one occurrence covers
func CoverageDays(f models.Frequency) int {
	return lookup(f).coverageDays
}

// Advance returns the start of the next period after date
func Advance(date time.Time, f models.Frequency) time.Time {
	spec := lookup(f)
	if spec.months == 0 {
		return models.AddDays(date, spec.coverageDays)
	}
	return addMonthsClamped(models.Day(date), spec.months)
}

// addMonthsClamped adds calendar months, pinning the day to the last day of
// the target month instead of spilling into the next one (Jan 31 -> Feb 29).
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
