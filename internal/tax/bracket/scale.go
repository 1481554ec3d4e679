package bracket

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Step is one (ceiling, amount) pair of a tariff scale.
type Step struct {
	Ceiling decimal.Decimal `json:"seuil"`
	Amount  decimal.Decimal `json:"montant"`
}

// Scale maps an amount to a fixed tariff: the first step whose ceiling is
// not exceeded wins. Above the last ceiling, PerUnit is added for every
// full Unit beyond it. A zero Unit disables extrapolation.
type Scale struct {
	Steps   []Step
	Unit    decimal.Decimal
	PerUnit decimal.Decimal
}

// NewScale builds a scale from ceiling/amount pairs given as floats.
func NewScale(unit, perUnit float64, pairs ...[2]float64) Scale {
	steps := make([]Step, 0, len(pairs))
	for _, p := range pairs {
		steps = append(steps, Step{
			Ceiling: decimal.NewFromFloat(p[0]),
			Amount:  decimal.NewFromFloat(p[1]),
		})
	}
	return Scale{Steps: steps, Unit: decimal.NewFromFloat(unit), PerUnit: decimal.NewFromFloat(perUnit)}
}

// Lookup returns the tariff for v. An empty scale yields zero.
func (s Scale) Lookup(v decimal.Decimal) decimal.Decimal {
	if len(s.Steps) == 0 {
		return decimal.Zero
	}
	for _, st := range s.Steps {
		if v.LessThanOrEqual(st.Ceiling) {
			return st.Amount
		}
	}
	last := s.Steps[len(s.Steps)-1]
	if s.Unit.IsZero() {
		return last.Amount
	}
	units := v.Sub(last.Ceiling).Div(s.Unit).Floor()
	return last.Amount.Add(units.Mul(s.PerUnit))
}

// UnmarshalJSON accepts a bare list of {"seuil","montant"} steps and keeps
// the current extrapolation settings.
func (s *Scale) UnmarshalJSON(b []byte) error {
	var steps []Step
	if err := json.Unmarshal(b, &steps); err != nil {
		return err
	}
	s.Steps = steps
	return nil
}

func (s Scale) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Steps)
}
