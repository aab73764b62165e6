package schedule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestFilterByAmount(t *testing.T) {
	occs, err := Generate(newRule("monthly", "300", "2024-01-01", ""), Options{Count: 3})
	require.NoError(t, err)

	kept := Filter(occs, Criteria{MinAmount: amountPtr("250")})
	assert.Len(t, kept, 3)

	none := Filter(occs, Criteria{MinAmount: amountPtr("350")})
	assert.Empty(t, none)

	summary := Summarize(none, NewSelection(0, 1))
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, 0, summary.SelectedCount)
	assert.True(t, summary.Total.IsZero())
	assert.True(t, summary.SelectedTotal.IsZero())
	assert.True(t, summary.Average.IsZero())
	assert.Nil(t, summary.DateRange)

	exact := Filter(occs, Criteria{MinAmount: amountPtr("300"), MaxAmount: amountPtr("300")})
	assert.Len(t, exact, 3, "amount bounds are inclusive")
}

func TestFilterByDate(t *testing.T) {
	occs, err := Generate(newRule("weekly", "70", "2024-01-01", ""), Options{Count: 6})
	require.NoError(t, err)

	from := day("2024-01-08")
	to := day("2024-01-22")
	kept := Filter(occs, Criteria{StartDate: &from, EndDate: &to})

	assert.Equal(t, []string{"2024-01-08", "2024-01-15", "2024-01-22"}, dates(kept))
	assert.Equal(t, []int{1, 2, 3}, []int{kept[0].Index, kept[1].Index, kept[2].Index})
}

func TestFilterDoesNotModifyInput(t *testing.T) {
	occs, err := Generate(newRule("weekly", "70", "2024-01-01", ""), Options{Count: 4})
	require.NoError(t, err)
	before := append(occs[:0:0], occs...)

	Filter(occs, Criteria{MaxAmount: amountPtr("1")})
	assert.Equal(t, before, occs)
}

func TestSummarize(t *testing.T) {
	occs, err := Generate(newRule("monthly", "300", "2024-01-01", ""), Options{Count: 3})
	require.NoError(t, err)

	summary := Summarize(occs, NewSelection(0, 2))
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, summary.SelectedCount)
	assertAmount(t, "900", summary.Total)
	assertAmount(t, "600", summary.SelectedTotal)
	assertAmount(t, "300", summary.Average)
	require.NotNil(t, summary.DateRange)
	assert.Equal(t, "2024-01-01", summary.DateRange.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-03-30", summary.DateRange.End.Format("2006-01-02"))

	assert.Equal(t, summary, Summarize(occs, NewSelection(0, 2)))
}

func TestSummarizeIgnoresSelectionsOutsideFilter(t *testing.T) {
	occs, err := Generate(newRule("monthly", "300", "2024-01-01", "2024-02-10"), Options{Count: 3})
	require.NoError(t, err)
	require.Len(t, occs, 2)

	// second occurrence is prorated to 10 days
	assertAmount(t, "100.00", occs[1].Amount)

	kept := Filter(occs, Criteria{MinAmount: amountPtr("200")})
	summary := Summarize(kept, NewSelection(1))
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 0, summary.SelectedCount)
	assertAmount(t, "300", summary.Total)
	assertAmount(t, "0", summary.SelectedTotal)

	all := Summarize(occs, NewSelection(0, 1))
	assertAmount(t, "400", all.Total)
	assertAmount(t, "200", all.Average)
	assert.Equal(t, "2024-02-10", all.DateRange.End.Format("2006-01-02"))
}
