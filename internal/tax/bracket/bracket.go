// Package bracket evaluates progressive bracket tables and stepped tariff
// scales. All arithmetic is decimal; rounding to whole currency units only
// happens on the totals handed back to callers.
package bracket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Band is one contiguous range of a bracket table. A nil Upper means the
// band is unbounded.
type Band struct {
	Lower decimal.Decimal
	Upper *decimal.Decimal
	Rate  decimal.Decimal
}

// Bounded builds a band covering [lower, upper].
func Bounded(lower, upper, rate float64) Band {
	u := decimal.NewFromFloat(upper)
	return Band{Lower: decimal.NewFromFloat(lower), Upper: &u, Rate: decimal.NewFromFloat(rate)}
}

// Unbounded builds a final band starting at lower.
func Unbounded(lower, rate float64) Band {
	return Band{Lower: decimal.NewFromFloat(lower), Rate: decimal.NewFromFloat(rate)}
}

// Table is an ordered list of bands.
type Table []Band

var (
	ErrEmptyTable    = errors.New("bracket table is empty")
	ErrFirstLower    = errors.New("first band must start at 0")
	ErrNotContiguous = errors.New("bands are not contiguous")
	ErrUnboundedMid  = errors.New("only the last band may be unbounded")
)

// Validate checks that bands start at 0, are contiguous and that only the
// last one may be unbounded.
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	if !t[0].Lower.IsZero() {
		return ErrFirstLower
	}
	for i := 0; i < len(t)-1; i++ {
		if t[i].Upper == nil {
			return ErrUnboundedMid
		}
		if !t[i].Upper.Equal(t[i+1].Lower) {
			return fmt.Errorf("%w: band %d ends at %s, band %d starts at %s",
				ErrNotContiguous, i, t[i].Upper, i+1, t[i+1].Lower)
		}
		if t[i].Upper.LessThan(t[i].Lower) {
			return fmt.Errorf("%w: band %d is inverted", ErrNotContiguous, i)
		}
	}
	return nil
}

// Slice is the share of an amount falling in one band.
type Slice struct {
	Band    Band
	Taxable decimal.Decimal
	Amount  decimal.Decimal
}

// Apply runs amount through t. The breakdown lists every band up to and
// including the one containing amount, zero-rate bands included. Slice
// amounts are unrounded; the returned total is their sum rounded to the
// nearest unit.
func Apply(amount decimal.Decimal, t Table) (decimal.Decimal, []Slice) {
	var (
		sum       decimal.Decimal
		breakdown = make([]Slice, 0, len(t))
	)
	for _, b := range t {
		top := amount
		if b.Upper != nil && b.Upper.LessThan(amount) {
			top = *b.Upper
		}
		taxable := decimal.Max(top.Sub(b.Lower), decimal.Zero)
		part := taxable.Mul(b.Rate)
		breakdown = append(breakdown, Slice{Band: b, Taxable: taxable, Amount: part})
		sum = sum.Add(part)

		if b.Upper == nil || amount.LessThanOrEqual(*b.Upper) {
			break
		}
	}
	return Round(sum), breakdown
}

// ClosedForm evaluates t with pre-summed band offsets: the tax of every
// full band below the applicable one plus the marginal share. It is an
// independent path used to cross-check Apply.
func ClosedForm(amount decimal.Decimal, t Table) decimal.Decimal {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	offset := decimal.Zero
	for _, b := range t {
		if b.Upper == nil || amount.LessThanOrEqual(*b.Upper) {
			return Round(offset.Add(amount.Sub(b.Lower).Mul(b.Rate)))
		}
		offset = offset.Add(b.Upper.Sub(b.Lower).Mul(b.Rate))
	}
	return Round(offset)
}

// Round rounds half away from zero to a whole currency unit.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

type bandJSON struct {
	Min  float64  `json:"min"`
	Max  *float64 `json:"max"`
	Rate float64  `json:"taux"`
}

// UnmarshalJSON accepts [{"min":0,"max":60000,"taux":0}, ...] so tables
// can be overridden from stored constants.
func (t *Table) UnmarshalJSON(b []byte) error {
	var raw []bandJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Table, 0, len(raw))
	for _, r := range raw {
		if r.Max == nil {
			out = append(out, Unbounded(r.Min, r.Rate))
			continue
		}
		out = append(out, Bounded(r.Min, *r.Max, r.Rate))
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*t = out
	return nil
}

func (t Table) MarshalJSON() ([]byte, error) {
	raw := make([]bandJSON, 0, len(t))
	for _, b := range t {
		r := bandJSON{Min: b.Lower.InexactFloat64(), Rate: b.Rate.InexactFloat64()}
		if b.Upper != nil {
			u := b.Upper.InexactFloat64()
			r.Max = &u
		}
		raw = append(raw, r)
	}
	return json.Marshal(raw)
}
