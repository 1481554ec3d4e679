package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"github.com/shopspring/decimal"
)

// VATLine is one sale or purchase.
type VATLine struct {
	Base       float64 `json:"baseImposable"`
	Exempt     bool    `json:"exonere,omitempty"`
	Deductible bool    `json:"deductible,omitempty"`
}

// TVAInput is the monthly VAT request.
type TVAInput struct {
	Period
	AnnualRevenue float64   `json:"chiffreAffairesAnnuel"`
	Sales         []VATLine `json:"ventes"`
	Purchases     []VATLine `json:"achats,omitempty"`
	// TaxableRevenue, when set, limits deductions to the taxable share of
	// AnnualRevenue.
	TaxableRevenue *float64 `json:"chiffreAffairesTaxable,omitempty"`
	// FilingDay is the day of month the return is filed, for late penalties.
	FilingDay   int     `json:"jourDeclaration,omitempty"`
	PenaltyBase float64 `json:"penaliteBase,omitempty"`
	PenaltyRate float64 `json:"tauxPenalite,omitempty"`
}

func (in *TVAInput) Revenue() (float64, bool) { return in.AnnualRevenue, true }

func (in *TVAInput) Validate() error {
	if in.AnnualRevenue < 0 {
		return invalid("chiffreAffairesAnnuel", "Le chiffre d'affaires annuel ne peut pas être négatif")
	}
	for i, l := range in.Sales {
		if l.Base < 0 {
			return invalid(fmt.Sprintf("ventes[%d].baseImposable", i), "La base imposable ne peut pas être négative")
		}
	}
	for i, l := range in.Purchases {
		if l.Base < 0 {
			return invalid(fmt.Sprintf("achats[%d].baseImposable", i), "La base imposable ne peut pas être négative")
		}
	}
	if in.TaxableRevenue != nil && (*in.TaxableRevenue < 0 || *in.TaxableRevenue > in.AnnualRevenue) {
		return invalid("chiffreAffairesTaxable", "Le chiffre d'affaires taxable doit être compris entre 0 et le chiffre d'affaires annuel")
	}
	if in.FilingDay < 0 || in.FilingDay > 31 {
		return invalid("jourDeclaration", "Le jour de déclaration doit être compris entre 1 et 31")
	}
	return nil
}

type tvaConstants struct {
	Rate      float64 `json:"TAUX_NORMAL"`
	Threshold float64 `json:"SEUIL_EXONERATION"`
	FilingDay int     `json:"JOUR_LIMITE_DECLARATION"`
}

func tvaCalculator() Calculator {
	newInput, estimate := typed(estimateTVA)
	return Calculator{
		Code:         domain.TaxTVA,
		Title:        "la Taxe sur la Valeur Ajoutée",
		TaxpayerType: "Entreprise",
		Regime:       "TVA",
		MissingData:  []string{"taux_tva", "seuil_assujettissement"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

func vatOn(lines []VATLine, rate decimal.Decimal, deductibleOnly bool) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Exempt || (deductibleOnly && !l.Deductible) {
			continue
		}
		sum = sum.Add(dec(l.Base).Mul(rate))
	}
	return sum
}

func estimateTVA(in *TVAInput, env Env) (*domain.Estimation, error) {
	k := tvaConstants{Rate: 0.18, Threshold: 50_000_000, FilingDay: 10}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	est := &domain.Estimation{
		Currency: domain.Currency,
		Regime:   "TVA",
		Variables: []domain.InputVariable{
			variable("Chiffre d'affaires annuel", "Chiffre d'affaires de l'entreprise sur l'année", in.AnnualRevenue),
			flag("Nombre de ventes", "Opérations de vente déclarées", len(in.Sales)),
			flag("Nombre d'achats", "Opérations d'achat déclarées", len(in.Purchases)),
		},
		Obligations: []domain.Obligation{},
		Notes:       []domain.Note{},
		Config: domain.TaxConfig{
			Title:           "Taxe sur la Valeur Ajoutée",
			Label:           "TVA",
			Description:     "Impôt sur la consommation au taux normal de 18%, dû par les entreprises dont le chiffre d'affaires atteint le seuil d'assujettissement.",
			CompetentCenter: centerTerritorial,
			PaymentSchedule: []domain.PaymentDate{{Date: fmt.Sprintf("%d du mois suivant", k.FilingDay), Description: "Déclaration et paiement mensuels"}},
		},
	}

	if in.AnnualRevenue < k.Threshold {
		est.Details = []domain.LineItem{
			lineItem("TVA - Non assujetti",
				fmt.Sprintf("Chiffre d'affaires inférieur au seuil d'assujettissement de %s", FormatAmount(k.Threshold)),
				decimal.Zero, "0%", fmt.Sprintf("%s < %s", FormatAmount(in.AnnualRevenue), FormatAmount(k.Threshold))),
		}
		est.Notes = append(est.Notes, note("Assujettissement",
			"L'entreprise n'est pas assujettie à la TVA : aucune TVA n'est due."))
		return est, nil
	}

	rate := dec(k.Rate)
	collected := vatOn(in.Sales, rate, false)
	deductible := vatOn(in.Purchases, rate, true)
	if in.TaxableRevenue != nil && in.AnnualRevenue > 0 {
		share := dec(*in.TaxableRevenue).Div(dec(in.AnnualRevenue))
		deductible = deductible.Mul(share)
		est.Notes = append(est.Notes, note("Prorata de déduction",
			fmt.Sprintf("TVA déductible limitée à %s de son montant.", formatRate(share.Round(4)))))
	}
	due := collected.Sub(deductible)

	est.Details = []domain.LineItem{
		lineItem("TVA collectée", "TVA sur les ventes taxables", collected, formatRate(rate),
			fmt.Sprintf("Σ bases taxables × %s = %s", formatRate(rate), formatDec(collected))),
		lineItem("TVA déductible", "TVA sur les achats déductibles", deductible, formatRate(rate),
			fmt.Sprintf("Σ bases déductibles × %s = %s", formatRate(rate), formatDec(deductible))),
	}

	total := decimal.Zero
	switch {
	case due.IsPositive():
		total = due
		est.Details = append(est.Details, lineItem("TVA à payer", "TVA collectée - TVA déductible", due, formatRate(rate),
			fmt.Sprintf("%s - %s = %s", formatDec(collected), formatDec(deductible), formatDec(due))))
	case due.IsNegative():
		est.Notes = append(est.Notes, note("Crédit de TVA",
			fmt.Sprintf("Crédit de TVA de %s reportable sur les déclarations suivantes.", formatDec(due.Abs()))))
	default:
		est.Notes = append(est.Notes, note("Solde nul", "La TVA collectée est égale à la TVA déductible."))
	}

	if late := in.FilingDay - k.FilingDay; in.FilingDay > 0 && late > 0 {
		penalty := dec(in.PenaltyBase).Add(dec(in.PenaltyRate).Mul(decimal.NewFromInt(int64(late))).Mul(decimal.Max(due, decimal.Zero)))
		if penalty.IsPositive() {
			total = total.Add(penalty)
			est.Details = append(est.Details, lineItem("Pénalité de retard",
				fmt.Sprintf("Déclaration déposée avec %d jour(s) de retard", late), penalty, formatRate(dec(in.PenaltyRate)),
				fmt.Sprintf("%s + %s × %d × %s = %s", formatDec(dec(in.PenaltyBase)), formatRate(dec(in.PenaltyRate)),
					late, formatDec(decimal.Max(due, decimal.Zero)), formatDec(penalty))))
		}
	}

	est.Total = money(total)
	est.Obligations = []domain.Obligation{
		obligation("TVA - Déclaration mensuelle",
			"La TVA est déclarée et payée chaque mois pour les opérations du mois précédent.",
			deadline(fmt.Sprintf("%d du mois suivant", k.FilingDay), "Déclaration et paiement de la TVA du mois.")),
	}
	return est, nil
}
