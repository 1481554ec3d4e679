package domain

// ProfileRequest is the body of POST /v1/profilage.
type ProfileRequest struct {
	FiscalPeriod   string  `json:"periodeFiscale"`
	Revenue        float64 `json:"chiffreAffaire"`
	TaxpayerType   string  `json:"typeContribuableEntreprise"`
	FinancialStart string  `json:"dateDebutExercice"`
}

// Taxpayer categories accepted by profiling.
const (
	TaxpayerIndividual = "EI"
	TaxpayerCompany    = "SI"
)

// TaxProfile is the classified taxpayer.
type TaxProfile struct {
	TaxpayerType   string  `json:"typeContribuableEntreprise"`
	AnnualRevenue  float64 `json:"annualRevenue"`
	Regime         Regime  `json:"regime"`
	FiscalPeriod   string  `json:"periodeFiscale"`
	FinancialStart string  `json:"dateDebutExercice"`
}

// ApplicableTax is one tax the taxpayer is liable to.
type ApplicableTax struct {
	Code          TaxCode `json:"code"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Applicability string  `json:"applicability"`
	Frequency     string  `json:"frequency"`
	Description   string  `json:"description"`
	Priority      string  `json:"priority"`
	Required      bool    `json:"required"`
	// OnlyFor restricts the tax to some taxpayer categories.
	OnlyFor []string `json:"-"`
}

// ProfileResult is the successful profiling answer.
type ProfileResult struct {
	Profile TaxProfile      `json:"profile"`
	Taxes   []ApplicableTax `json:"taxes"`
}
