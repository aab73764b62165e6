package schedule

import (
	"fmt"
	"time"

	"tally/internal/models"
)

const (
	// MaxAnchorSteps bounds the anchor-to-today search. A daily rule that
	// started 270 years ago still fits.
	MaxAnchorSteps = 100000

	// MaxCount is the largest number of occurrences one call may request
	MaxCount = 10000
)

// Options controls a single generation run
type Options struct {
	// Count is the maximum number of occurrences to return
	Count int
	// AnchorToToday starts the sequence at the occurrence whose coverage
	// window contains Today instead of at the rule's start date
	AnchorToToday bool
	// Today is the current calendar day; required when AnchorToToday is set
	Today time.Time
}

// Validate checks the parts of a rule the generator depends on. Unknown
// frequencies are not an error here: they resolve to DefaultFrequency.
func Validate(rule *models.RecurringRule) error {
	if rule == nil {
		return invalid("rule", "is required")
	}
	if !rule.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero, got %s", rule.Amount.String())
	}
	if rule.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if rule.EndDate != nil && models.Day(*rule.EndDate).Before(models.Day(rule.StartDate)) {
		return invalid("end_date", "%s is before start date %s",
			rule.EndDate.Format(models.DateLayout), rule.StartDate.Format(models.DateLayout))
	}
	return nil
}

// Generate returns up to opts.Count occurrences of rule in date order. It
// stops early when the next occurrence would start after the rule's end date.
// The result is freshly allocated and depends only on its inputs.
func Generate(rule *models.RecurringRule, opts Options) ([]models.Occurrence, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}
	if opts.Count > MaxCount {
		return nil, invalid("count", "must be at most %d, got %d", MaxCount, opts.Count)
	}
	if opts.AnchorToToday && opts.Today.IsZero() {
		return nil, invalid("today", "is required when anchoring to today")
	}
	if opts.Count <= 0 {
		return []models.Occurrence{}, nil
	}

	freq, _ := Resolve(rule.Frequency)
	coverage := CoverageDays(freq)

	var end *time.Time
	if rule.EndDate != nil {
		d := models.Day(*rule.EndDate)
		end = &d
	}

	cursor := models.Day(rule.StartDate)
	if opts.AnchorToToday {
		var err error
		cursor, err = anchor(rule, cursor, models.Day(opts.Today), freq, coverage)
		if err != nil {
			return nil, err
		}
	}

	occs := make([]models.Occurrence, 0, initialCapacity(opts.Count))
	for len(occs) < opts.Count {
		if end != nil && cursor.After(*end) {
			break
		}
		occ, err := Prorate(cursor, coverage, rule.Amount, end)
		if err != nil {
			return nil, err
		}
		occ.Index = len(occs)
		occs = append(occs, occ)
		cursor = Advance(cursor, freq)
	}
	return occs, nil
}

// anchor advances cursor until its coverage window reaches today. A cursor
// in the past whose window still includes today is kept. It stops once the
// cursor passes the rule's end date, leaving nothing to generate.
func anchor(rule *models.RecurringRule, cursor, today time.Time, freq models.Frequency, coverage int) (time.Time, error) {
	for steps := 0; cursor.Before(today) && models.AddDays(cursor, coverage-1).Before(today); steps++ {
		if rule.HasEnded(cursor) {
			break
		}
		if steps >= MaxAnchorSteps {
			return time.Time{}, fmt.Errorf("%w: %d steps from %s to reach %s",
				ErrAnchorLimit, MaxAnchorSteps, cursor.Format(models.DateLayout), today.Format(models.DateLayout))
		}
		cursor = Advance(cursor, freq)
	}
	return cursor, nil
}

func initialCapacity(count int) int {
	if count > 64 {
		return 64
	}
	return count
}
