package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType indicates whether money comes in or goes out
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// LedgerEntry is an ordinary ledger record. Entries created from a recurring
// rule carry RuleID and the coverage window of the occurrence they came from.
type LedgerEntry struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Category      string          `json:"category"`
	Person        *string         `json:"person,omitempty"`
	Type          TransactionType `json:"type"`
	Notes         string          `json:"notes,omitempty"`
	RuleID        string          `json:"rule_id,omitempty"`
	CoverageStart *time.Time      `json:"coverage_start,omitempty"`
	CoverageEnd   *time.Time      `json:"coverage_end,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CoverageKey identifies the (rule, coverage start) pair of a generated entry.
// Manually entered records have an empty key.
func (e *LedgerEntry) CoverageKey() string {
	if e.RuleID == "" || e.CoverageStart == nil {
		return ""
	}
	return CoverageKey(e.RuleID, *e.CoverageStart)
}

// CoverageKey builds the dedup key for a rule and a coverage start day
func CoverageKey(ruleID string, coverageStart time.Time) string {
	return ruleID + "|" + Day(coverageStart).Format(DateLayout)
}

// LedgerSet wraps a slice with filtering/aggregation methods
type LedgerSet struct {
	Entries []LedgerEntry
}

// NewLedgerSet creates a new LedgerSet from a slice
func NewLedgerSet(entries []LedgerEntry) *LedgerSet {
	return &LedgerSet{Entries: entries}
}

// Len returns the number of entries
func (ls *LedgerSet) Len() int {
	return len(ls.Entries)
}

// FilterByType returns entries of the specified type
func (ls *LedgerSet) FilterByType(tt TransactionType) *LedgerSet {
	result := &LedgerSet{}
	for _, e := range ls.Entries {
		if e.Type == tt {
			result.Entries = append(result.Entries, e)
		}
	}
	return result
}

// FilterByRule returns entries generated from the given rule
func (ls *LedgerSet) FilterByRule(ruleID string) *LedgerSet {
	result := &LedgerSet{}
	for _, e := range ls.Entries {
		if e.RuleID == ruleID {
			result.Entries = append(result.Entries, e)
		}
	}
	return result
}

// FilterByDateRange returns entries within the date range (inclusive)
func (ls *LedgerSet) FilterByDateRange(start, end time.Time) *LedgerSet {
	result := &LedgerSet{}
	startDay := Day(start)
	endDay := Day(end)

	for _, e := range ls.Entries {
		d := Day(e.Date)
		if !d.Before(startDay) && !d.After(endDay) {
			result.Entries = append(result.Entries, e)
		}
	}
	return result
}

// FilterByCategory returns entries matching the category
func (ls *LedgerSet) FilterByCategory(category string) *LedgerSet {
	result := &LedgerSet{}
	for _, e := range ls.Entries {
		if strings.EqualFold(e.Category, category) {
			result.Entries = append(result.Entries, e)
		}
	}
	return result
}

// SumAmount returns the sum of all entry amounts
func (ls *LedgerSet) SumAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range ls.Entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// SortByDate orders entries chronologically, oldest first
func (ls *LedgerSet) SortByDate() *LedgerSet {
	sort.SliceStable(ls.Entries, func(i, j int) bool {
		return ls.Entries[i].Date.Before(ls.Entries[j].Date)
	})
	return ls
}

// MinDate returns the earliest entry date
func (ls *LedgerSet) MinDate() time.Time {
	if len(ls.Entries) == 0 {
		return time.Time{}
	}
	min := ls.Entries[0].Date
	for _, e := range ls.Entries[1:] {
		if e.Date.Before(min) {
			min = e.Date
		}
	}
	return min
}

// MaxDate returns the latest entry date
func (ls *LedgerSet) MaxDate() time.Time {
	if len(ls.Entries) == 0 {
		return time.Time{}
	}
	max := ls.Entries[0].Date
	for _, e := range ls.Entries[1:] {
		if e.Date.After(max) {
			max = e.Date
		}
	}
	return max
}
