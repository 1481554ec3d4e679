package rates

import (
	"math"

	"github.com/shopspring/decimal"
)

// Legal forms used by the chamber-of-commerce scale.
const (
	FormIndividual = "entreprise_individuelle"
	FormCompany    = "societe"
)

type cciStep struct {
	maxRevenue float64
	individual float64
	company    float64
}

var cciScale = []cciStep{
	{5e6, 20_000, 100_000},
	{25e6, 50_000, 200_000},
	{50e6, 150_000, 300_000},
	{400e6, 400_000, 400_000},
	{800e6, 600_000, 600_000},
	{1e9, 800_000, 800_000},
	{2e9, 1_200_000, 1_200_000},
	{4e9, 1_600_000, 1_600_000},
	{math.Inf(1), 2_000_000, 2_000_000},
}

// CCIContribution returns the chamber-of-commerce contribution for revenue
// and legal form. Anything other than FormCompany is charged as an
// individual business.
func CCIContribution(revenue float64, form string) decimal.Decimal {
	for _, s := range cciScale {
		if revenue <= s.maxRevenue {
			if form == FormCompany {
				return d(s.company)
			}
			return d(s.individual)
		}
	}
	return d(cciScale[len(cciScale)-1].company)
}
