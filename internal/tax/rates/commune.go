package rates

import (
	"encoding/json"

	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"

	"github.com/shopspring/decimal"
)

// DefaultCommuneRate applies to any location missing from the table.
const DefaultCommuneRate = 0.135

// CommuneRateTable maps normalized locations to proportional
// business-licence rates.
type CommuneRateTable map[string]float64

var communeRates = CommuneRateTable{
	"cotonou":     0.17,
	"porto-novo":  0.17,
	"ouidah":      0.18,
	"abomey":      0.14,
	"parakou":     0.25,
	"alibori":     0.15,
	"borgou":      0.15,
	"atacora":     0.15,
	"donga":       0.15,
	"mono":        0.12,
	"couffo":      0.12,
	"atlantique":  0.135,
	"collines":    0.135,
	"oueme":       0.135,
	"plateau":     0.135,
	"zou":         0.135,
	"littoral":    0.135,
	"other-zone1": 0.135,
	"other-zone2": 0.135,
}

var firstZone = map[string]bool{
	"cotonou": true, "porto-novo": true, "ouidah": true, "abomey": true,
	"other-zone1": true, "atlantique": true, "collines": true, "couffo": true,
	"littoral": true, "mono": true, "oueme": true, "plateau": true, "zou": true,
}

// Zone is the business-licence zone of a location.
type Zone int

const (
	ZoneOne Zone = 1
	ZoneTwo Zone = 2
)

// CommuneRates returns a copy of the built-in table.
func CommuneRates() CommuneRateTable {
	out := make(CommuneRateTable, len(communeRates))
	for k, v := range communeRates {
		out[k] = v
	}
	return out
}

// Rate returns the rate of location. Unknown locations get
// DefaultCommuneRate and false.
func (t CommuneRateTable) Rate(location string) (decimal.Decimal, bool) {
	r, ok := t[Key(location)]
	if !ok {
		return d(DefaultCommuneRate), false
	}
	return d(r), true
}

// UnmarshalJSON merges a {"location": rate} object into t, normalizing
// every key.
func (t *CommuneRateTable) UnmarshalJSON(b []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if *t == nil {
		*t = make(CommuneRateTable, len(raw))
	}
	for k, v := range raw {
		(*t)[Key(k)] = v
	}
	return nil
}

// CommuneRate returns the proportional business-licence rate of location
// from the built-in table.
func CommuneRate(location string) (decimal.Decimal, bool) {
	return communeRates.Rate(location)
}

// LocationZone returns the licence zone; anything outside zone one is
// zone two.
func LocationZone(location string) Zone {
	if firstZone[Key(location)] {
		return ZoneOne
	}
	return ZoneTwo
}

// Fixed licence part per zone before revenue adjustment.
var (
	FixedPartZoneOne = d(70_000)
	FixedPartZoneTwo = d(60_000)
)

// FixedPart returns the zone amount for location.
func FixedPart(location string) decimal.Decimal {
	if LocationZone(location) == ZoneOne {
		return FixedPartZoneOne
	}
	return FixedPartZoneTwo
}

// ImportExportScale is the fixed licence tariff for importers/exporters,
// by annual import/export amount. Above 10 billion, 10 000 is added per
// full billion.
func ImportExportScale() bracket.Scale {
	return bracket.NewScale(1e9, 10_000,
		[2]float64{80e6, 150_000},
		[2]float64{200e6, 337_500},
		[2]float64{500e6, 525_000},
		[2]float64{1e9, 675_000},
		[2]float64{2e9, 900_000},
		[2]float64{10e9, 1_125_000},
	)
}
