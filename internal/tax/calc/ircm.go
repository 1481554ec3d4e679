package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
)

// Capital income kinds.
const (
	IncomeDividend     = "DIVIDENDE"
	IncomeInterest     = "INTERET"
	IncomeCapitalGain  = "PLUS_VALUE"
	IncomeClaim        = "CREANCE"
	IncomePrize        = "LOT_PRIME"
	IncomeBranchProfit = "BENEFICE_STABLE"
	IncomePartnership  = "PART_INTERET_SOCIETE"
	IncomeDeposit      = "DEPOT"
	IncomeGuarantee    = "CAUTIONNEMENT"
	IncomeShareGain    = "PLUS_VALUE_ACTIONS"
	IncomeBondGain     = "PLUS_VALUE_OBLIGATIONS"
)

// Beneficiary status, security nature and issuer values.
const (
	StatusResident      = "RESIDENT"
	StatusNonResident   = "NON_RESIDENT"
	SecurityListedWAEMU = "COTE_UEMOA"
	IssuerBenin         = "BENIN"
	IssuerWAEMU         = "UEMOA"
	IssuerPrivate       = "PRIVE"
)

// ircmAliases maps both the enum key and the display label of every
// accepted value onto the enum key.
var ircmAliases = map[string]string{}

func init() {
	for key, label := range map[string]string{
		IncomeDividend:      "Dividende",
		IncomeInterest:      "Intérêt",
		IncomeCapitalGain:   "Plus-value",
		IncomeClaim:         "Créance",
		IncomePrize:         "Lot/Prime remboursement",
		IncomeBranchProfit:  "Bénéfice établissement stable",
		IncomePartnership:   "Part d'intérêt société IS",
		IncomeDeposit:       "Dépôt",
		IncomeGuarantee:     "Cautionnement",
		IncomeShareGain:     "Plus-value actions",
		IncomeBondGain:      "Plus-value obligations",
		StatusResident:      "Résident",
		StatusNonResident:   "Non-résident",
		SecurityListedWAEMU: "Coté UEMOA",
		IssuerBenin:         "Bénin",
		IssuerWAEMU:         "UEMOA",
		IssuerPrivate:       "Privé",
	} {
		ircmAliases[rates.Key(key)] = key
		ircmAliases[rates.Key(label)] = key
	}
}

func canonical(s string) string {
	if v, ok := ircmAliases[rates.Key(s)]; ok {
		return v
	}
	return s
}

// IRCMInput is the capital income withholding request.
type IRCMInput struct {
	Period
	GrossIncome float64 `json:"revenuBrut"`
	IncomeType  string  `json:"typeRevenu"`
	Status      string  `json:"statut"`
	Security    string  `json:"natureTitre"`
	Issuer      string  `json:"emetteur"`
	// IssueYears is the duration of the issuing loan in years.
	IssueYears float64 `json:"dureeEmission,omitempty"`
	// TreatyRate is the withholding rate of a tax treaty, as a fraction.
	TreatyRate *float64 `json:"tauxConvention,omitempty"`
}

func (in *IRCMInput) Revenue() (float64, bool) { return in.GrossIncome, true }

func (in *IRCMInput) Validate() error {
	if in.GrossIncome < 0 {
		return invalid("revenuBrut", "Revenu brut invalide")
	}
	if in.IncomeType == "" {
		return invalid("typeRevenu", "Le type de revenu est requis")
	}
	if in.TreatyRate != nil && (*in.TreatyRate < 0 || *in.TreatyRate > 1) {
		return invalid("tauxConvention", "Le taux conventionnel doit être compris entre 0 et 1")
	}
	return nil
}

type ircmConstants struct {
	Rate5       float64 `json:"TAUX_5"`
	Rate6       float64 `json:"TAUX_6"`
	Rate10      float64 `json:"TAUX_10"`
	Rate15      float64 `json:"TAUX_15"`
	Rate3       float64 `json:"TAUX_3"`
	DefaultRate float64 `json:"TAUX_DEFAUT"`
}

func ircmCalculator() Calculator {
	newInput, estimate := typed(estimateIRCM)
	return Calculator{
		Code:         domain.TaxIRCM,
		Title:        "l'Impôt sur le Revenu des Capitaux Mobiliers",
		TaxpayerType: "Investisseur",
		Regime:       "IRCM",
		MissingData:  []string{"taux_ircm", "conventions_fiscales"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

// ircmRate walks the rate rules in priority order.
func ircmRate(in *IRCMInput, k ircmConstants) (float64, string) {
	kind, status, security, issuer := canonical(in.IncomeType), canonical(in.Status), canonical(in.Security), canonical(in.Issuer)
	nonResident := status == StatusNonResident

	reduced := (kind == IncomeDividend && nonResident) ||
		(kind == IncomeDividend && security == SecurityListedWAEMU) ||
		(kind == IncomeShareGain && nonResident)
	switch {
	case reduced:
		return k.Rate5, "Dividendes de non-résidents ou titres cotés UEMOA"
	case (kind == IncomeInterest && issuer == IssuerPrivate) || kind == IncomePrize:
		return k.Rate6, "Intérêts d'émetteurs privés ou lots et primes de remboursement"
	case kind == IncomeDividend || kind == IncomeBranchProfit || kind == IncomePartnership:
		return k.Rate10, "Dividendes et bénéfices distribués"
	case kind == IncomeClaim || kind == IncomeDeposit || kind == IncomeGuarantee:
		return k.Rate15, "Créances, dépôts et cautionnements"
	case kind == IncomeInterest && issuer == IssuerWAEMU && in.IssueYears >= 5 && in.IssueYears <= 10:
		return k.Rate3, "Obligations UEMOA de 5 à 10 ans"
	case kind == IncomeInterest && issuer == IssuerWAEMU && in.IssueYears > 10:
		return 0, "Obligations UEMOA de plus de 10 ans"
	case kind == IncomeBondGain:
		return k.Rate5, "Plus-values sur obligations"
	}
	return k.DefaultRate, "Taux de droit commun"
}

func estimateIRCM(in *IRCMInput, env Env) (*domain.Estimation, error) {
	k := ircmConstants{Rate5: 0.05, Rate6: 0.06, Rate10: 0.10, Rate15: 0.15, Rate3: 0.03, DefaultRate: 0.15}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	vars := []domain.InputVariable{
		variable("Revenu brut", "Montant brut des revenus de capitaux mobiliers", in.GrossIncome),
		flag("Type de revenu", "Nature du revenu perçu", in.IncomeType),
		flag("Statut", "Résidence fiscale du bénéficiaire", in.Status),
		flag("Émetteur", "Émetteur du titre", in.Issuer),
	}

	amount := decimal.Zero
	notes := []domain.Note{}
	var detail domain.LineItem
	if canonical(in.Issuer) == IssuerBenin {
		detail = lineItem("IRCM", "Revenus de titres émis par l'État béninois", amount, "Exonéré", "Exonéré selon le CGI (Bénin)")
		notes = append(notes, note("Exonération", "Les revenus des titres émis par l'État béninois sont exonérés d'IRCM."))
	} else {
		rate, reason := ircmRate(in, k)
		factor := 1.0
		if canonical(in.Status) == StatusNonResident && in.TreatyRate != nil && rate > 0 {
			factor = min(1, *in.TreatyRate/rate)
		}
		amount = dec(in.GrossIncome).Mul(dec(rate)).Mul(dec(factor))
		derivation := fmt.Sprintf("%s × %s", FormatAmount(in.GrossIncome), formatRate(dec(rate)))
		if factor < 1 {
			derivation += fmt.Sprintf(" × facteur convention %.3f", factor)
			notes = append(notes, note("Convention fiscale",
				fmt.Sprintf("Taux conventionnel de %s appliqué au lieu du taux national de %s.",
					formatRate(dec(*in.TreatyRate)), formatRate(dec(rate)))))
		}
		detail = lineItem("IRCM (Impôt sur le Revenu des Capitaux Mobiliers)", reason, amount, formatRate(dec(rate)),
			derivation+" = "+formatDec(amount))
	}

	return &domain.Estimation{
		Total:     money(amount),
		Currency:  domain.Currency,
		Regime:    "IRCM",
		Variables: vars,
		Details:   []domain.LineItem{detail},
		Obligations: []domain.Obligation{
			obligation("IRCM - Retenue à la source",
				"L'IRCM est retenu par l'établissement payeur lors de la mise en paiement des revenus.",
				deadline("15 du mois suivant", "Reversement de la retenue effectuée le mois précédent.")),
		},
		Notes: notes,
		Config: domain.TaxConfig{
			Title:           "Impôt sur le Revenu des Capitaux Mobiliers",
			Label:           "IRCM",
			Description:     "Retenue à la source sur les dividendes, intérêts et autres produits de placements.",
			CompetentCenter: centerTerritorial,
			PaymentSchedule: []domain.PaymentDate{{Date: "15 du mois suivant", Description: "Reversement de la retenue"}},
		},
	}, nil
}
