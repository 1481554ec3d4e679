// Package regime decides the taxation track of a business and the
// eligibility rules shared by several calculators.
package regime

import (
	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"github.com/shopspring/decimal"
)

// FlatRateThreshold is the revenue above which a business leaves the
// flat-rate (TPS) regime.
const FlatRateThreshold = 50_000_000

// NewBusinessGraceMonths is the age limit of the new-business grace.
const NewBusinessGraceMonths = 12

// Classify returns REEL for revenue strictly above FlatRateThreshold and
// TPS otherwise. Non-positive or missing revenue classifies as TPS.
func Classify(revenue float64) domain.Regime {
	if revenue > FlatRateThreshold {
		return domain.RegimeReel
	}
	return domain.RegimeTPS
}

// CheckFlatRateEligible fails when revenue exceeds the flat-rate ceiling.
func CheckFlatRateEligible(revenue float64) error {
	if revenue > FlatRateThreshold {
		return &domain.ErrThresholdExceeded{Revenue: revenue, Threshold: FlatRateThreshold}
	}
	return nil
}

// NewBusinessGrace reports whether a new flat-rate business is still in
// its first year and therefore exempt from the profit-tax advance.
func NewBusinessGrace(isNew, underTPS bool, months int) bool {
	return isNew && underTPS && months <= NewBusinessGraceMonths
}

var (
	artisanFactor = decimal.NewFromFloat(0.5)
	fullFactor    = decimal.NewFromInt(1)
)

// ArtisanReduction is the multiplier applied after floor arbitration.
func ArtisanReduction(applies bool) decimal.Decimal {
	if applies {
		return artisanFactor
	}
	return fullFactor
}

// CapitalRiskExempt reports whether a young company held mostly through
// unlisted shares is exempt from company profit tax.
func CapitalRiskExempt(years, pct, thresholdYears, thresholdPct float64) bool {
	return years <= thresholdYears && pct >= thresholdPct
}

// FirstYearAcompteWaived reports whether installments are waived because
// the business was created in the computation year.
func FirstYearAcompteWaived(creationYear, computationYear int) bool {
	return creationYear > 0 && creationYear == computationYear
}
