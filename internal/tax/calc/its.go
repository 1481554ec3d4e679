package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
)

// ITSInput is the payroll tax request for one monthly salary.
type ITSInput struct {
	Period
	SalaireMensuel   *float64 `json:"salaireMensuel,omitempty"`
	SalaireAnnuel    *float64 `json:"salaireAnnuel,omitempty"`
	IncludeRedevance *bool    `json:"includeRedevance,omitempty"`
}

func (in *ITSInput) salary() float64 {
	if in.SalaireMensuel != nil {
		return *in.SalaireMensuel
	}
	return floatOr(in.SalaireAnnuel, 0)
}

func (in *ITSInput) Revenue() (float64, bool) { return in.salary(), true }

func (in *ITSInput) Validate() error {
	if in.SalaireMensuel == nil && in.SalaireAnnuel == nil {
		return invalid("salaireMensuel", "Le salaire mensuel est requis")
	}
	if in.salary() < 0 {
		return invalid("salaireMensuel", "Le salaire ne peut pas être négatif")
	}
	return nil
}

type itsConstants struct {
	Table     bracket.Table `json:"BAREME_ITS"`
	Exemption float64       `json:"SEUIL_EXONERATION"`
	rates.BroadcastFee
}

func itsCalculator() Calculator {
	newInput, estimate := typed(estimateITS)
	return Calculator{
		Code:         domain.TaxITS,
		Title:        "l'Impôt sur les Traitements et Salaires",
		TaxpayerType: "Salarié",
		Regime:       "ITS",
		MissingData:  []string{"barème_its", "seuils_exonération", "redevance_ortb"},
		NewInput:     newInput,
		Estimate:     estimate,
		AggregateDefaults: func(in Input) {
			off := false
			in.(*ITSInput).IncludeRedevance = &off
		},
	}
}

func estimateITS(in *ITSInput, env Env) (*domain.Estimation, error) {
	k := itsConstants{
		Table:        rates.PayrollTable(),
		Exemption:    rates.PayrollExemptionCeiling,
		BroadcastFee: rates.DefaultBroadcastFee(),
	}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	salary := in.salary()
	tax, slices := bracket.Apply(dec(salary), k.Table)

	derivation := ""
	for i, s := range slices {
		if i > 0 {
			derivation += " ; "
		}
		upper := "∞"
		if s.Band.Upper != nil {
			upper = groupThousands(s.Band.Upper.IntPart())
		}
		derivation += fmt.Sprintf("%s - %s : %s de %s = %s",
			groupThousands(s.Band.Lower.IntPart()), upper, formatRate(s.Band.Rate), formatDec(s.Taxable), formatDec(s.Amount))
	}
	if salary <= k.Exemption {
		derivation = fmt.Sprintf("Salaire mensuel ≤ %s : exonération ITS", FormatAmount(k.Exemption))
	}

	fee := k.BroadcastFee.For(env.Now.Month())
	feeNote := "Pas de redevance ORTB applicable ce mois-ci."
	switch {
	case !boolOr(in.IncludeRedevance, true):
		fee = decimal.Zero
		feeNote = "Redevance ORTB non incluse dans cette estimation."
	case salary <= k.Exemption:
		fee = decimal.Zero
		feeNote = fmt.Sprintf("Salaire ≤ %s : exonération des redevances ORTB.", FormatAmount(k.Exemption))
	case fee.IsPositive():
		feeNote = fmt.Sprintf("Redevance ORTB de %s appliquée pour le mois en cours.", formatDec(fee))
	}

	details := []domain.LineItem{
		lineItem("ITS (Impôt sur les Traitements et Salaires)", "Barème progressif mensuel", tax, "Progressif", derivation),
	}
	if fee.IsPositive() {
		details = append(details, lineItem("Redevance ORTB", feeNote, fee, "Forfait", feeNote))
	}

	return &domain.Estimation{
		Total:    money(tax.Add(fee)),
		Currency: domain.Currency,
		Regime:   "ITS",
		Variables: []domain.InputVariable{
			variable("Salaire mensuel", "Salaire mensuel brut du contribuable.", salary),
		},
		Details: details,
		Obligations: []domain.Obligation{
			obligation("ITS - Prélèvement mensuel",
				"L'employeur prélève l'ITS à la source et le reverse chaque mois.",
				deadline("Mensuel", "Retenue à la source reversée le mois suivant.")),
			obligation("ITS - Régularisation annuelle",
				"Une régularisation est effectuée en juillet pour ajuster l'impôt sur la base des salaires cumulés.",
				deadline("Juillet N+1", "Régularisation sur les salaires de l'année.")),
		},
		Notes: []domain.Note{
			note("Barème progressif ITS",
				"Salaire ≤ 60 000 FCFA : exonération",
				"60 001 - 150 000 FCFA : 10%",
				"150 001 - 250 000 FCFA : 15%",
				"250 001 - 500 000 FCFA : 19%",
				"> 500 000 FCFA : 30%"),
			note("Redevance ORTB",
				"Mars : "+formatDec(k.March)+" (si salaire > 60 000 FCFA)",
				"Juin : "+formatDec(k.June)+" (si salaire > 60 000 FCFA)",
				"Après juin : cumul de "+formatDec(k.Cumulative),
				feeNote),
		},
		Config: domain.TaxConfig{
			Title: "Impôt sur les Traitements et Salaires",
			Label: "ITS",
			Description: "Impôt progressif calculé sur les traitements et salaires selon un barème mensuel, prélevé à la source " +
				"par l'employeur. Une redevance ORTB s'ajoute selon le mois de l'année.",
			CompetentCenter: centerTerritorial,
			PaymentSchedule: []domain.PaymentDate{
				{Date: "Mensuel", Description: "Reversement de la retenue à la source"},
				{Date: "Juillet N+1", Description: "Régularisation annuelle"},
			},
		},
	}, nil
}
