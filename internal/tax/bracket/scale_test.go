package bracket_test

import (
	"encoding/json"
	"testing"

	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importExport() bracket.Scale {
	return bracket.NewScale(1e9, 10_000,
		[2]float64{80e6, 150_000},
		[2]float64{200e6, 337_500},
		[2]float64{500e6, 525_000},
		[2]float64{1e9, 675_000},
		[2]float64{2e9, 900_000},
		[2]float64{10e9, 1_125_000},
	)
}

func TestScale_Lookup(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
	}{
		{0, 150_000},
		{80e6, 150_000},
		{80e6 + 1, 337_500},
		{1e9, 675_000},
		{10e9, 1_125_000},
		{10.5e9, 1_125_000},
		{11e9, 1_135_000},
		{13.7e9, 1_155_000},
	}

	s := importExport()
	for _, tt := range tests {
		got := s.Lookup(decimal.NewFromFloat(tt.amount))
		assert.Equal(t, tt.want, got.IntPart(), "amount %v", tt.amount)
	}
}

func TestScale_NoExtrapolation(t *testing.T) {
	s := bracket.NewScale(0, 0, [2]float64{100, 5}, [2]float64{200, 7})

	assert.Equal(t, int64(7), s.Lookup(decimal.NewFromInt(10_000)).IntPart())
	assert.True(t, bracket.Scale{}.Lookup(decimal.NewFromInt(1)).IsZero())
}

func TestScale_UnmarshalKeepsExtrapolation(t *testing.T) {
	s := importExport()
	require.NoError(t, json.Unmarshal([]byte(`[{"seuil":100,"montant":1},{"seuil":200,"montant":2}]`), &s))

	assert.Len(t, s.Steps, 2)
	assert.Equal(t, int64(2), s.Lookup(decimal.NewFromInt(200)).IntPart())
	assert.Equal(t, int64(2), s.Lookup(decimal.NewFromInt(1_000)).IntPart())
	assert.Equal(t, int64(10_002), s.Lookup(decimal.NewFromFloat(1e9+200)).IntPart())
}
