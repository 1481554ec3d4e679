package bracket_test

import (
	"encoding/json"
	"testing"

	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payroll() bracket.Table {
	return bracket.Table{
		bracket.Bounded(0, 60_000, 0),
		bracket.Bounded(60_000, 150_000, 0.10),
		bracket.Bounded(150_000, 250_000, 0.15),
		bracket.Bounded(250_000, 500_000, 0.19),
		bracket.Unbounded(500_000, 0.30),
	}
}

func TestApply_PayrollFixtures(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
		bands  int
	}{
		{"zero", 0, 0, 1},
		{"first band ceiling", 60_000, 0, 1},
		{"inside second band", 100_000, 4_000, 2},
		{"second band ceiling", 150_000, 9_000, 2},
		{"inside third band", 200_000, 16_500, 3},
		{"third band ceiling", 250_000, 24_000, 3},
		{"fourth band ceiling", 500_000, 71_500, 4},
		{"top band", 1_000_000, 221_500, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, breakdown := bracket.Apply(decimal.NewFromFloat(tt.amount), payroll())
			assert.Equal(t, tt.want, total.IntPart())
			assert.Len(t, breakdown, tt.bands)
		})
	}
}

func TestApply_ZeroRateBandIsListed(t *testing.T) {
	_, breakdown := bracket.Apply(decimal.NewFromInt(100_000), payroll())

	require.Len(t, breakdown, 2)
	assert.True(t, breakdown[0].Amount.IsZero())
	assert.True(t, breakdown[0].Taxable.Equal(decimal.NewFromInt(60_000)))
}

func TestApply_MatchesClosedForm(t *testing.T) {
	amounts := []float64{0, 1, 59_999.5, 60_000, 60_001, 149_999, 150_000, 199_999.99,
		250_000, 250_000.5, 333_333.33, 500_000, 500_001, 12_345_678.9}

	for _, a := range amounts {
		amount := decimal.NewFromFloat(a)
		total, breakdown := bracket.Apply(amount, payroll())
		closed := bracket.ClosedForm(amount, payroll())

		diff := total.Sub(closed).Abs()
		assert.True(t, diff.LessThanOrEqual(decimal.NewFromInt(1)),
			"amount %v: apply=%s closed=%s", a, total, closed)

		sum := decimal.Zero
		for _, s := range breakdown {
			sum = sum.Add(s.Amount)
		}
		assert.True(t, bracket.Round(sum).Equal(total), "amount %v: breakdown sum %s", a, sum)
	}
}

func TestApply_NoIntermediateRounding(t *testing.T) {
	table := bracket.Table{
		bracket.Bounded(0, 1, 0.4),
		bracket.Bounded(1, 2, 0.4),
		bracket.Unbounded(2, 0.4),
	}
	total, breakdown := bracket.Apply(decimal.NewFromInt(3), table)

	require.Len(t, breakdown, 3)
	for _, s := range breakdown {
		assert.Equal(t, "0.4", s.Amount.String())
	}
	// rounding each slice would give 0; the unrounded sum 1.2 gives 1
	assert.Equal(t, int64(1), total.IntPart())
}

func TestTable_Validate(t *testing.T) {
	assert.NoError(t, payroll().Validate())

	assert.ErrorIs(t, bracket.Table{}.Validate(), bracket.ErrEmptyTable)

	assert.ErrorIs(t, bracket.Table{
		bracket.Bounded(10, 20, 0.1),
		bracket.Unbounded(20, 0.2),
	}.Validate(), bracket.ErrFirstLower)

	assert.ErrorIs(t, bracket.Table{
		bracket.Bounded(0, 20, 0.1),
		bracket.Unbounded(25, 0.2),
	}.Validate(), bracket.ErrNotContiguous)

	assert.ErrorIs(t, bracket.Table{
		bracket.Unbounded(0, 0.1),
		bracket.Unbounded(0, 0.2),
	}.Validate(), bracket.ErrUnboundedMid)
}

func TestTable_UnmarshalJSON(t *testing.T) {
	var table bracket.Table
	raw := `[{"min":0,"max":100,"taux":0},{"min":100,"max":null,"taux":0.5}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &table))

	total, _ := bracket.Apply(decimal.NewFromInt(300), table)
	assert.Equal(t, int64(100), total.IntPart())

	err := json.Unmarshal([]byte(`[{"min":0,"max":100,"taux":0},{"min":150,"taux":0.5}]`), &table)
	assert.ErrorIs(t, err, bracket.ErrNotContiguous)
}
