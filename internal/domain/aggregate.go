package domain

import "encoding/json"

// EstimationRequest is the body of the aggregated estimation endpoint.
// Each DataImpot entry is decoded by the calculator registered for its code.
type EstimationRequest struct {
	DataImpot    map[string]json.RawMessage `json:"dataImpot"`
	Revenue      *float64                   `json:"chiffreAffaire,omitempty"`
	RevenueAlt   *float64                   `json:"chiffreAffaires,omitempty"`
	RevenueShort *float64                   `json:"ca,omitempty"`
	FiscalPeriod string                     `json:"periodeFiscale,omitempty"`
	TaxpayerType string                     `json:"typeEntreprise,omitempty"`
}

// DeclaredRevenue returns the first top-level revenue field present.
func (r *EstimationRequest) DeclaredRevenue() (float64, bool) {
	for _, v := range []*float64{r.Revenue, r.RevenueAlt, r.RevenueShort} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// AggregatedEstimation merges several per-tax estimations. Maps are keyed
// by tax code; encoding/json writes map keys sorted, so output order does
// not depend on computation order.
type AggregatedEstimation struct {
	Total       float64                     `json:"totalEstimation"`
	Currency    string                      `json:"totalEstimationCurrency"`
	Regime      Regime                      `json:"contribuableRegime"`
	Variables   map[TaxCode][]InputVariable `json:"VariableEnter"`
	Details     map[TaxCode][]LineItem      `json:"impotDetailCalcule"`
	Obligations map[TaxCode][]Obligation    `json:"obligationEcheance"`
	Notes       map[TaxCode][]Note          `json:"infosSupplementaires"`
	Config      map[TaxCode]TaxConfig       `json:"impotConfig"`
	PerTax      map[TaxCode]*Estimation     `json:"estimationsParImpot"`
	Errors      []string                    `json:"errors,omitempty"`
}

// NewAggregatedEstimation returns an empty aggregate for regime.
func NewAggregatedEstimation(regime Regime) *AggregatedEstimation {
	return &AggregatedEstimation{
		Currency:    Currency,
		Regime:      regime,
		Variables:   make(map[TaxCode][]InputVariable),
		Details:     make(map[TaxCode][]LineItem),
		Obligations: make(map[TaxCode][]Obligation),
		Notes:       make(map[TaxCode][]Note),
		Config:      make(map[TaxCode]TaxConfig),
		PerTax:      make(map[TaxCode]*Estimation),
	}
}

// Add merges a successful estimation for code.
func (a *AggregatedEstimation) Add(code TaxCode, e *Estimation) {
	a.Total += e.Total
	a.Variables[code] = e.Variables
	a.Details[code] = e.Details
	a.Obligations[code] = e.Obligations
	a.Notes[code] = e.Notes
	a.Config[code] = e.Config
	a.PerTax[code] = e
}

// Codes returns the codes that succeeded, sorted.
func (a *AggregatedEstimation) Codes() []TaxCode {
	codes := make([]TaxCode, 0, len(a.PerTax))
	for c := range a.PerTax {
		codes = append(codes, c)
	}
	return SortTaxCodes(codes)
}

func (a *AggregatedEstimation) MarshalJSON() ([]byte, error) {
	type plain AggregatedEstimation
	return json.Marshal(struct {
		Success bool `json:"success"`
		*plain
	}{true, (*plain)(a)})
}
