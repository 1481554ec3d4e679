package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"github.com/shopspring/decimal"
)

// IRFInput is the rental income tax request.
type IRFInput struct {
	Period
	RentalIncome         float64  `json:"revenuLocatif"`
	AlreadyTaxed         bool     `json:"isAlreadyTaxed"`
	CustomRate           *float64 `json:"customTauxIRF,omitempty"`
	IncludeRedevanceSRTB *bool    `json:"includeRedevanceSRTB,omitempty"`
	CustomRedevanceSRTB  *float64 `json:"customRedevanceSRTB,omitempty"`
}

func (in *IRFInput) Revenue() (float64, bool) { return in.RentalIncome, true }

func (in *IRFInput) Validate() error {
	if in.RentalIncome <= 0 {
		return invalid("revenuLocatif", "Le revenu locatif doit être un montant positif")
	}
	if in.CustomRate != nil && (*in.CustomRate <= 0 || *in.CustomRate > 1) {
		return invalid("customTauxIRF", "Le taux personnalisé doit être compris entre 0 et 1 (0% à 100%)")
	}
	if in.CustomRedevanceSRTB != nil && *in.CustomRedevanceSRTB < 0 {
		return invalid("customRedevanceSRTB", "La redevance SRTB personnalisée ne peut pas être négative")
	}
	return nil
}

type irfConstants struct {
	StandardRate float64 `json:"TAUX_NORMAL"`
	ReducedRate  float64 `json:"TAUX_REDUIT"`
	SRTB         float64 `json:"RSRTB"`
	DueDay       int     `json:"JOUR_ECHEANCE"`
}

func irfCalculator() Calculator {
	newInput, estimate := typed(estimateIRF)
	return Calculator{
		Code:         domain.TaxIRF,
		Title:        "l'Impôt sur les Revenus Fonciers",
		TaxpayerType: "Propriétaire foncier",
		Regime:       "IRF",
		MissingData:  []string{"taux_irf", "redevance_ortb", "seuils_imposition"},
		NewInput:     newInput,
		Estimate:     estimate,
		AggregateDefaults: func(in Input) {
			off := false
			in.(*IRFInput).IncludeRedevanceSRTB = &off
		},
	}
}

func estimateIRF(in *IRFInput, env Env) (*domain.Estimation, error) {
	k := irfConstants{StandardRate: 0.12, ReducedRate: 0.10, SRTB: 4_000, DueDay: 10}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	rate := dec(k.StandardRate)
	rateNote := fmt.Sprintf("Taux standard de %s appliqué", formatRate(rate))
	if in.AlreadyTaxed {
		rate = dec(k.ReducedRate)
		rateNote = fmt.Sprintf("Taux réduit de %s appliqué (revenu déjà soumis à IBA/IS)", formatRate(rate))
	}
	if in.CustomRate != nil {
		rate = dec(*in.CustomRate)
		rateNote = fmt.Sprintf("Taux personnalisé de %s appliqué", formatRate(rate))
	}

	irf := dec(money(dec(in.RentalIncome).Mul(rate)))
	includeSRTB := boolOr(in.IncludeRedevanceSRTB, true)
	srtb := decimal.Zero
	if includeSRTB {
		srtb = dec(floatOr(in.CustomRedevanceSRTB, k.SRTB))
	}

	vars := []domain.InputVariable{
		variable("Revenu locatif annuel", "Montant total des revenus locatifs perçus durant l'année fiscale.", in.RentalIncome),
		flag("Revenu déjà taxé", "Indique si le revenu est déjà soumis à IBA/IS (taux réduit).", in.AlreadyTaxed),
	}
	if in.CustomRate != nil {
		vars = append(vars, flag("Taux IRF personnalisé", "Taux personnalisé appliqué au revenu locatif.", formatRate(rate)))
	}
	details := []domain.LineItem{
		lineItem("IRF (Impôt sur les Revenus Fonciers)", "Impôt sur les revenus locatifs", irf, formatRate(rate),
			fmt.Sprintf("IRF = %s × %s = %s", FormatAmount(in.RentalIncome), formatRate(rate), formatDec(irf))),
	}
	srtbNote := "Aucune redevance SRTB incluse dans ce calcul"
	if srtb.IsPositive() {
		srtbNote = fmt.Sprintf("Redevance SRTB de %s appliquée", formatDec(srtb))
		vars = append(vars, variable("Redevance SRTB",
			"Redevance audiovisuelle pour l'Office de Radiodiffusion et Télévision du Bénin", srtb.InexactFloat64()))
		kind := "Forfait"
		if in.CustomRedevanceSRTB != nil {
			kind = "Personnalisée"
		}
		details = append(details, lineItem("Redevance SRTB",
			"Redevance audiovisuelle pour l'Office de Radiodiffusion et Télévision du Bénin.", srtb, kind,
			"Redevance SRTB de "+formatDec(srtb)))
	}

	notes := []domain.Note{note("Taux d'imposition", rateNote, srtbNote)}
	if !includeSRTB {
		notes = append(notes, note("Calcul sans redevance SRTB",
			"Ce calcul n'inclut pas la redevance SRTB.",
			"Le montant total correspond uniquement à l'IRF de base."))
	}
	notes = append(notes, note("Obligations de conservation",
		"Conservez vos justificatifs de paiement ou de déclaration.",
		"Les justificatifs doivent être conservés pendant 5 ans."))

	due := fmt.Sprintf("%d du mois suivant", k.DueDay)

	suffix := ""
	switch {
	case !includeSRTB:
		suffix = " (Sans SRTB)"
	case in.CustomRate != nil || in.CustomRedevanceSRTB != nil:
		suffix = " (Personnalisé)"
	}

	return &domain.Estimation{
		Total:     money(irf.Add(srtb)),
		Currency:  domain.Currency,
		Regime:    "Régime IRF" + suffix,
		Variables: vars,
		Details:   details,
		Obligations: []domain.Obligation{
			obligation("IRF - Déclaration et paiement",
				"Déclarer vos revenus fonciers annuellement avant le 30 avril.",
				deadline("30 avril", "Déclaration annuelle et paiement de l'IRF.")),
			obligation("IRF - Paiement mensuel",
				fmt.Sprintf("L'IRF doit être déclaré et payé avant le %s la perception des revenus locatifs.", due),
				deadline(due, fmt.Sprintf("Paiement avant le %s la perception des revenus locatifs.", due))),
		},
		Notes: notes,
		Config: domain.TaxConfig{
			Title: "Impôt sur les Revenus Fonciers",
			Label: "IRF",
			Description: "L'IRF est calculé sur les revenus locatifs au taux réduit si le revenu est déjà soumis à IBA/IS, " +
				"au taux standard sinon. Une redevance SRTB s'y ajoute.",
			CompetentCenter: centerSmallBusinesses,
			PaymentSchedule: []domain.PaymentDate{
				{Date: "30 avril", Description: "Déclaration annuelle et paiement de l'IRF"},
				{Date: due, Description: "Paiement mensuel après perception des revenus"},
			},
		},
	}, nil
}
