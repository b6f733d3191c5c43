package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/budget-cli/internal/model"
)

func rawRow(id int, values map[string]string) model.RawRow {
	return model.RawRow{
		SourceRowID: id,
		Columns:     RequiredColumns,
		Values:      values,
	}
}

func baseValues() map[string]string {
	return map[string]string{
		ColYear:           "2023",
		ColProgram:        "Toronto Police Service",
		ColService:        "Policing",
		ColActivity:       "Patrol",
		ColAmount:         "1200000.00",
		ColExpenseRevenue: "Expenses",
		ColCategory:       "Salaries",
		ColSubCategory:    "Base Pay",
		ColCommitmentItem: "Salaries-Full Time",
	}
}

func TestNormalize_CleanRow(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	out := n.Normalize(rawRow(1, baseValues()))

	assert.Equal(t, 2023, out.Record.Year)
	assert.Equal(t, "Toronto Police Service", out.Record.Program)
	assert.Equal(t, "Policing", out.Record.Service)
	require.NotNil(t, out.Record.Amount)
	assert.InDelta(t, 1200000.0, *out.Record.Amount, 1e-9)
	assert.Empty(t, out.Flags)
	assert.Empty(t, out.Flawed)
}

func TestNormalize_AmountFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		tag  string
		want float64
	}{
		{"plain", "1234.50", "", 1234.50},
		{"currency and separators", "$1,234.50", "", 1234.50},
		{"accounting parentheses", "(1,234.50)", "", -1234.50},
		{"parentheses with symbol", "($500)", "", -500},
		{"explicit negative", "-42.10", "", -42.10},
		{"negative with currency symbol", "-$1,500.25", "", -1500.25},
		{"parentheses win over minus", "(-100)", "", -100},
		{"revenue tag forces negative", "250000", "Revenues", -250000},
		{"expense tag forces positive", "(250000)", "Expenses", 250000},
	}

	n := NewNormalizer(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := baseValues()
			values[ColAmount] = tt.raw
			values[ColExpenseRevenue] = tt.tag

			out := n.Normalize(rawRow(1, values))
			require.NotNil(t, out.Record.Amount)
			assert.InDelta(t, tt.want, *out.Record.Amount, 1e-9)
		})
	}
}

func TestNormalize_SignMismatchFlagged(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColAmount] = "(250000)"
	values[ColExpenseRevenue] = "Expenses"

	out := n.Normalize(rawRow(1, values))

	assert.Contains(t, out.Flags, model.FlagSignMismatch)
	require.NotNil(t, out.Record.Amount)
	assert.InDelta(t, 250000.0, *out.Record.Amount, 1e-9)
}

func TestNormalize_MissingAmount(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	for _, raw := range []string{"", "  ", "NULL", "N/A"} {
		values := baseValues()
		values[ColAmount] = raw

		out := n.Normalize(rawRow(1, values))

		assert.Nil(t, out.Record.Amount, "raw=%q", raw)
		assert.Contains(t, out.Flags, model.FlagMissingAmount)
		assert.True(t, out.Flawed[model.FieldAmount])
	}
}

func TestNormalize_UnparseableAmount(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColAmount] = "twelve dollars"

	out := n.Normalize(rawRow(1, values))

	assert.Nil(t, out.Record.Amount)
	assert.Contains(t, out.Flags, model.FlagUnparseableAmount)
	assert.Equal(t, "twelve dollars", out.Record.AmountRaw)
}

func TestNormalize_YearExtraction(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColYear] = "FY 2023"

	out := n.Normalize(rawRow(1, values))

	assert.Equal(t, 2023, out.Record.Year)
	require.NotEmpty(t, out.Actions)
	assert.Equal(t, model.FieldYear, out.Actions[0].Field)
}

func TestNormalize_YearOutOfRange(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	for _, raw := range []string{"1999", "2031"} {
		values := baseValues()
		values[ColYear] = raw

		out := n.Normalize(rawRow(1, values))

		assert.Equal(t, 0, out.Record.Year, "raw=%q", raw)
		assert.Contains(t, out.Flags, model.FlagInvalidYear)
		assert.True(t, out.Flawed[model.FieldYear])
	}
}

func TestNormalize_YearUnparseable(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColYear] = "next year"

	out := n.Normalize(rawRow(1, values))

	assert.Equal(t, 0, out.Record.Year)
	assert.Contains(t, out.Flags, model.FlagUnparseableYear)
}

func TestNormalize_TitleCasing(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColProgram] = "  toronto police service "
	values[ColActivity] = "patrol operations"

	out := n.Normalize(rawRow(1, values))

	assert.Equal(t, "Toronto Police Service", out.Record.Program)
	// Activity keeps the source casing.
	assert.Equal(t, "patrol operations", out.Record.Activity)
}

func TestNormalize_SuspiciousAmountFlagged(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	values := baseValues()
	values[ColAmount] = "2000000000"
	values[ColExpenseRevenue] = ""

	out := n.Normalize(rawRow(1, values))

	require.NotNil(t, out.Record.Amount)
	assert.Contains(t, out.Flags, model.FlagSuspiciousAmount)
	assert.False(t, out.Flawed[model.FieldAmount], "suspicious values are kept, not invalidated")
}
