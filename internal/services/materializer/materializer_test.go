package materializer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/models"
	"tally/internal/services/schedule"
)

// memStore records Create calls and can be told to fail for given dates
type memStore struct {
	entries []models.LedgerEntry
	calls   []string
	failOn  map[string]error
	onCall  func(n int)
}

func (s *memStore) Create(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	date := entry.Date.Format(models.DateLayout)
	s.calls = append(s.calls, date)
	if s.onCall != nil {
		s.onCall(len(s.calls))
	}
	if err := s.failOn[date]; err != nil {
		return models.LedgerEntry{}, err
	}
	entry.ID = fmt.Sprintf("entry-%d", len(s.entries)+1)
	s.entries = append(s.entries, entry)
	return entry, nil
}

// dedupStore adds coverage lookups on top of memStore
type dedupStore struct {
	memStore
	lookupErr error
}

func (s *dedupStore) FindByCoverage(ctx context.Context, ruleID string, coverageStart time.Time) (*models.LedgerEntry, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for i := range s.entries {
		if s.entries[i].CoverageKey() == models.CoverageKey(ruleID, coverageStart) {
			return &s.entries[i], nil
		}
	}
	return nil, nil
}

func testRule(end string) *models.RecurringRule {
	person := "landlord"
	rule := &models.RecurringRule{
		ID:        "rule-rent",
		Name:      "Rent",
		Type:      models.Expense,
		Amount:    decimal.NewFromInt(300),
		Category:  "housing",
		Person:    &person,
		Frequency: models.Monthly,
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if end != "" {
		e, _ := models.ParseDay(end)
		rule.EndDate = &e
	}
	return rule
}

func generate(t *testing.T, rule *models.RecurringRule, count int) []models.Occurrence {
	t.Helper()
	occs, err := schedule.Generate(rule, schedule.Options{Count: count})
	require.NoError(t, err)
	return occs
}

func TestMaterializeCopiesOccurrenceFields(t *testing.T) {
	rule := testRule("2024-02-10")
	occs := generate(t, rule, 5)
	require.Len(t, occs, 2)

	store := &memStore{}
	report := New(store, nil).Materialize(context.Background(), rule, occs, Options{})

	require.Equal(t, 2, report.Succeeded)
	assert.True(t, report.Complete())
	assert.Equal(t, "2 of 2 generated", report.String())

	prorated := store.entries[1]
	assert.True(t, decimal.RequireFromString("100").Equal(prorated.Amount), "prorated amount, not full amount")
	assert.Equal(t, "2024-02-01", prorated.Date.Format(models.DateLayout))
	assert.Equal(t, "2024-02-01", prorated.CoverageStart.Format(models.DateLayout))
	assert.Equal(t, "2024-02-10", prorated.CoverageEnd.Format(models.DateLayout))
	assert.Equal(t, "housing", prorated.Category)
	assert.Equal(t, models.Expense, prorated.Type)
	assert.Equal(t, rule.ID, prorated.RuleID)
	require.NotNil(t, prorated.Person)
	assert.Equal(t, "landlord", *prorated.Person)
	assert.Equal(t, "entry-2", report.Results[1].Entry.ID)
}

func TestMaterializeContinuesAfterFailure(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 2)

	store := &memStore{failOn: map[string]error{"2024-02-01": errors.New("store unavailable")}}
	report := New(store, nil).Materialize(context.Background(), rule, occs, Options{})

	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusCreated, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Error, "store unavailable")
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Complete())
	assert.Equal(t, "1 of 2 generated, 1 failed", report.String())

	// the first entry stays in the store
	require.Len(t, store.entries, 1)
	assert.Equal(t, "2024-01-01", store.entries[0].Date.Format(models.DateLayout))
}

func TestMaterializeAttemptsEverySelectedOccurrence(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 10)

	boom := errors.New("rejected")
	store := &memStore{failOn: map[string]error{
		"2024-02-01": boom,
		"2024-05-01": boom,
		"2024-09-01": boom,
	}}
	report := New(store, nil).Materialize(context.Background(), rule, occs, Options{})

	assert.Len(t, store.calls, 10)
	assert.Equal(t, "7 of 10 generated, 3 failed", report.String())
	assert.ErrorIs(t, report.Results[1].Err, boom)
}

func TestMaterializeRunsInDateOrder(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 4)
	shuffled := []models.Occurrence{occs[2], occs[0], occs[3], occs[1]}

	store := &memStore{}
	report := New(store, nil).Materialize(context.Background(), rule, shuffled, Options{})

	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01"}, store.calls)
	assert.Equal(t, 0, report.Results[0].Occurrence.Index)
	assert.Equal(t, 3, report.Results[3].Occurrence.Index)
}

func TestMaterializeStopsAtCancellation(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &memStore{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	report := New(store, nil).Materialize(ctx, rule, occs, Options{})

	assert.Len(t, store.calls, 2)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Cancelled)
	assert.ErrorIs(t, report.Results[3].Err, context.Canceled)
	assert.Equal(t, "2 of 4 generated, 2 cancelled", report.String())
}

func TestMaterializeDuplicatesByDefault(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 2)

	store := &dedupStore{}
	m := New(store, nil)
	m.Materialize(context.Background(), rule, occs, Options{})
	m.Materialize(context.Background(), rule, occs, Options{})

	assert.Len(t, store.entries, 4)
}

func TestMaterializeSkipExisting(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 3)

	store := &dedupStore{}
	m := New(store, nil)
	first := m.Materialize(context.Background(), rule, occs[:2], Options{SkipExisting: true})
	require.Equal(t, 2, first.Succeeded)

	second := m.Materialize(context.Background(), rule, occs, Options{SkipExisting: true})
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, StatusSkipped, second.Results[0].Status)
	assert.Equal(t, StatusCreated, second.Results[2].Status)
	assert.True(t, second.Complete())
	assert.Equal(t, "1 of 3 generated, 2 skipped", second.String())
	assert.Len(t, store.entries, 3)
}

func TestMaterializeSkipExistingWithinBatch(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 1)

	store := &dedupStore{}
	report := New(store, nil).Materialize(context.Background(), rule, []models.Occurrence{occs[0], occs[0]}, Options{SkipExisting: true})
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
}

func TestMaterializeSkipExistingLookupFailure(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 2)

	store := &dedupStore{lookupErr: errors.New("index offline")}
	report := New(store, nil).Materialize(context.Background(), rule, occs, Options{SkipExisting: true})
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, store.calls)
}

func TestMaterializeSkipExistingUnsupported(t *testing.T) {
	rule := testRule("")
	occs := generate(t, rule, 2)

	store := &memStore{}
	report := New(store, nil).Materialize(context.Background(), rule, occs, Options{SkipExisting: true})
	assert.Equal(t, 2, report.Failed)
	assert.ErrorIs(t, report.Results[0].Err, ErrDedupUnsupported)

	plain := New(store, nil).Materialize(context.Background(), rule, occs, Options{})
	assert.Equal(t, 2, plain.Succeeded)
}

func TestMaterializeEmptySelection(t *testing.T) {
	report := New(&memStore{}, nil).Materialize(context.Background(), testRule(""), nil, Options{})
	assert.Empty(t, report.Results)
	assert.True(t, report.Complete())
	assert.Equal(t, "0 of 0 generated", report.String())
}
