package regime_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Boundary(t *testing.T) {
	assert.Equal(t, domain.RegimeTPS, regime.Classify(0))
	assert.Equal(t, domain.RegimeTPS, regime.Classify(-10))
	assert.Equal(t, domain.RegimeTPS, regime.Classify(50_000_000))
	assert.Equal(t, domain.RegimeReel, regime.Classify(50_000_001))
}

func TestClassify_Monotonic(t *testing.T) {
	seenReel := false
	for r := 0.0; r <= 100e6; r += 2.5e6 {
		got := regime.Classify(r)
		if seenReel {
			assert.Equal(t, domain.RegimeReel, got, "revenue %v went back to TPS", r)
		}
		if got == domain.RegimeReel {
			seenReel = true
		}
	}
	assert.True(t, seenReel)
}

func TestCheckFlatRateEligible(t *testing.T) {
	require.NoError(t, regime.CheckFlatRateEligible(50_000_000))

	err := regime.CheckFlatRateEligible(60_000_000)
	var te *domain.ErrThresholdExceeded
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 60_000_000.0, te.Revenue)
	assert.Equal(t, float64(regime.FlatRateThreshold), te.Threshold)
}

func TestNewBusinessGrace(t *testing.T) {
	assert.True(t, regime.NewBusinessGrace(true, true, 12))
	assert.False(t, regime.NewBusinessGrace(true, true, 13))
	assert.False(t, regime.NewBusinessGrace(false, true, 3))
	assert.False(t, regime.NewBusinessGrace(true, false, 3))
}

func TestArtisanReduction(t *testing.T) {
	assert.Equal(t, "0.5", regime.ArtisanReduction(true).String())
	assert.Equal(t, "1", regime.ArtisanReduction(false).String())
}

func TestCapitalRiskExempt(t *testing.T) {
	assert.True(t, regime.CapitalRiskExempt(5, 70, 5, 70))
	assert.False(t, regime.CapitalRiskExempt(6, 90, 5, 70))
	assert.False(t, regime.CapitalRiskExempt(2, 69.9, 5, 70))
	assert.True(t, regime.CapitalRiskExempt(15, 50, 15, 50))
}

func TestFirstYearAcompteWaived(t *testing.T) {
	assert.True(t, regime.FirstYearAcompteWaived(2025, 2025))
	assert.False(t, regime.FirstYearAcompteWaived(2024, 2025))
	assert.False(t, regime.FirstYearAcompteWaived(0, 2025))
}
