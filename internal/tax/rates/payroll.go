package rates

import (
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"

	"github.com/shopspring/decimal"
)

// PayrollExemptionCeiling is the monthly salary at or below which neither
// payroll tax nor the broadcast fee is due.
const PayrollExemptionCeiling = 60_000

// PayrollTable is the monthly payroll tax schedule.
func PayrollTable() bracket.Table {
	return bracket.Table{
		bracket.Bounded(0, 60_000, 0),
		bracket.Bounded(60_000, 150_000, 0.10),
		bracket.Bounded(150_000, 250_000, 0.15),
		bracket.Bounded(250_000, 500_000, 0.19),
		bracket.Unbounded(500_000, 0.30),
	}
}

// BroadcastFee is the payroll broadcast fee schedule.
type BroadcastFee struct {
	March      decimal.Decimal `json:"REDEVANCE_ORTB_MARS"`
	June       decimal.Decimal `json:"REDEVANCE_ORTB_JUIN"`
	Cumulative decimal.Decimal `json:"REDEVANCE_ORTB_CUMULEE"`
}

// DefaultBroadcastFee is the published schedule.
func DefaultBroadcastFee() BroadcastFee {
	return BroadcastFee{March: d(1_000), June: d(3_000), Cumulative: d(4_000)}
}

// For returns the fee due in month: the March fee in March, the June fee
// in June, the cumulative fee after June and nothing otherwise.
func (f BroadcastFee) For(month time.Month) decimal.Decimal {
	switch {
	case month > time.June:
		return f.Cumulative
	case month == time.June:
		return f.June
	case month == time.March:
		return f.March
	}
	return decimal.Zero
}
