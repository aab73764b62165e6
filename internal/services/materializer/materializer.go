// Package materializer turns selected occurrences of a recurring rule into
// ledger entries, one store call at a time and in date order.
//
// A batch is best effort: an entry that fails is reported and the batch moves
// on, and entries already created are never rolled back. Callers must not run
// two batches for the same rule at once; nothing here prevents it.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"tally/internal/models"
)

// ErrDedupUnsupported is reported when SkipExisting is requested but the
// store cannot look entries up by coverage
var ErrDedupUnsupported = errors.New("ledger store cannot check for existing entries")

// LedgerStore persists ledger entries. Create returns the stored entry with
// its assigned ID.
type LedgerStore interface {
	Create(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)
}

// DuplicateFinder is implemented by stores that can find a generated entry by
// its rule and coverage start. It returns nil, nil when there is none.
type DuplicateFinder interface {
	FindByCoverage(ctx context.Context, ruleID string, coverageStart time.Time) (*models.LedgerEntry, error)
}

// Status is the outcome for one occurrence
type Status string

const (
	StatusCreated   Status = "created"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of materializing one occurrence
type Result struct {
	Occurrence models.Occurrence   `json:"occurrence"`
	Status     Status              `json:"status"`
	Entry      *models.LedgerEntry `json:"entry,omitempty"`
	Err        error               `json:"-"`
	Error      string              `json:"error,omitempty"`
}

// Report collects every per-occurrence result of one batch
type Report struct {
	RuleID    string   `json:"rule_id"`
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Cancelled int      `json:"cancelled"`
}

func (r *Report) add(res Result) {
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	switch res.Status {
	case StatusCreated:
		r.Succeeded++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	case StatusCancelled:
		r.Cancelled++
	}
	r.Results = append(r.Results, res)
}

// Complete reports whether every occurrence was created or skipped
func (r *Report) Complete() bool {
	return r.Failed == 0 && r.Cancelled == 0
}

// String summarizes the batch, e.g. "7 of 10 generated, 3 failed"
func (r *Report) String() string {
	parts := []string{fmt.Sprintf("%d of %d generated", r.Succeeded, len(r.Results))}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.Cancelled > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", r.Cancelled))
	}
	return strings.Join(parts, ", ")
}

// Options controls a single batch
type Options struct {
	// SkipExisting skips occurrences whose (rule, coverage start) already has
	// a ledger entry. Off by default: re-running a selection duplicates entries.
	SkipExisting bool
}

// Materializer writes occurrences to a ledger store
type Materializer struct {
	store  LedgerStore
	finder DuplicateFinder
	log    *zap.Logger
}

// New creates a Materializer. Duplicate checks are available when store also
// implements DuplicateFinder.
func New(store LedgerStore, log *zap.Logger) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Materializer{store: store, log: log.Named("materializer")}
	if f, ok := store.(DuplicateFinder); ok {
		m.finder = f
	}
	return m
}

// Materialize creates one ledger entry per selected occurrence, oldest first.
// Every occurrence gets a result. The context is checked between entries;
// after cancellation the remaining occurrences are reported as cancelled.
func (m *Materializer) Materialize(ctx context.Context, rule *models.RecurringRule, selected []models.Occurrence, opts Options) *Report {
	report := &Report{RuleID: rule.ID, Results: make([]Result, 0, len(selected))}

	ordered := make([]models.Occurrence, len(selected))
	copy(ordered, selected)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	seen := make(map[string]bool, len(ordered))
	for _, occ := range ordered {
		if err := ctx.Err(); err != nil {
			report.add(Result{Occurrence: occ, Status: StatusCancelled, Err: err})
			continue
		}

		if opts.SkipExisting {
			skip, err := m.exists(ctx, rule.ID, occ, seen)
			if err != nil {
				m.log.Warn("duplicate check failed",
					zap.String("rule_id", rule.ID),
					zap.String("date", occ.Date.Format(models.DateLayout)),
					zap.Error(err))
				report.add(Result{Occurrence: occ, Status: StatusFailed, Err: err})
				continue
			}
			if skip {
				report.add(Result{Occurrence: occ, Status: StatusSkipped})
				continue
			}
		}

		entry, err := m.store.Create(ctx, EntryFor(rule, occ))
		if err != nil {
			m.log.Warn("ledger entry failed",
				zap.String("rule_id", rule.ID),
				zap.String("date", occ.Date.Format(models.DateLayout)),
				zap.Error(err))
			report.add(Result{Occurrence: occ, Status: StatusFailed, Err: fmt.Errorf("create entry for %s: %w", occ.Date.Format(models.DateLayout), err)})
			continue
		}

		seen[models.CoverageKey(rule.ID, occ.Date)] = true
		m.log.Debug("ledger entry created",
			zap.String("rule_id", rule.ID),
			zap.String("entry_id", entry.ID),
			zap.String("date", occ.Date.Format(models.DateLayout)),
			zap.String("amount", entry.Amount.StringFixed(2)))
		report.add(Result{Occurrence: occ, Status: StatusCreated, Entry: &entry})
	}

	m.log.Info("materialized occurrences",
		zap.String("rule_id", rule.ID),
		zap.Int("selected", len(selected)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cancelled", report.Cancelled))

	return report
}

func (m *Materializer) exists(ctx context.Context, ruleID string, occ models.Occurrence, seen map[string]bool) (bool, error) {
	if seen[models.CoverageKey(ruleID, occ.Date)] {
		return true, nil
	}
	if m.finder == nil {
		return false, ErrDedupUnsupported
	}
	existing, err := m.finder.FindByCoverage(ctx, ruleID, occ.Date)
	if err != nil {
		return false, fmt.Errorf("check existing entry: %w", err)
	}
	return existing != nil, nil
}

// EntryFor builds the ledger entry for one occurrence. The amount is the
// occurrence amount, which is prorated where the rule's end date clipped it.
func EntryFor(rule *models.RecurringRule, occ models.Occurrence) models.LedgerEntry {
	start := occ.Date
	end := occ.EndDate
	var person *string
	if rule.Person != nil {
		p := *rule.Person
		person = &p
	}
	return models.LedgerEntry{
		Amount:        occ.Amount,
		Date:          occ.Date,
		Category:      rule.Category,
		Person:        person,
		Type:          rule.Type,
		Notes:         rule.Name,
		RuleID:        rule.ID,
		CoverageStart: &start,
		CoverageEnd:   &end,
	}
}
