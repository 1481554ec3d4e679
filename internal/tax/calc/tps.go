package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/shopspring/decimal"
)

// TPSInput is the flat-rate professional tax request.
type TPSInput struct {
	Period
	ChiffreAffaire       float64  `json:"chiffreAffaire"`
	TypeEntreprise       string   `json:"typeEntreprise,omitempty"`
	IncludeCCI           *bool    `json:"includeCCI,omitempty"`
	IncludeRedevanceSRTB *bool    `json:"includeRedevanceSRTB,omitempty"`
	CustomCCIRate        *float64 `json:"customCCIRate,omitempty"`
	CustomRedevance      *float64 `json:"customRedevance,omitempty"`
	ImpotPrecedent       *float64 `json:"impotAnneePrecedente,omitempty"`
	AnneeCreation        int      `json:"anneeCreation,omitempty"`
}

func (in *TPSInput) Revenue() (float64, bool) { return in.ChiffreAffaire, true }

func (in *TPSInput) Validate() error {
	if in.ChiffreAffaire <= 0 {
		return invalid("chiffreAffaire", "Le chiffre d'affaires doit être un montant positif")
	}
	switch in.TypeEntreprise {
	case "", rates.FormIndividual, rates.FormCompany:
	default:
		return invalid("typeEntreprise", fmt.Sprintf("Type d'entreprise inconnu : %q (attendu %s ou %s)",
			in.TypeEntreprise, rates.FormIndividual, rates.FormCompany))
	}
	if in.CustomCCIRate != nil && *in.CustomCCIRate < 0 {
		return invalid("customCCIRate", "La contribution CCI personnalisée ne peut pas être négative")
	}
	if in.CustomRedevance != nil && *in.CustomRedevance < 0 {
		return invalid("customRedevance", "La redevance personnalisée ne peut pas être négative")
	}
	return nil
}

type tpsConstants struct {
	Rate    float64 `json:"TAUX_TPS"`
	Minimum float64 `json:"MONTANT_MINIMUM"`
	SRTB    float64 `json:"REDEVANCE_RTB"`
}

func tpsCalculator() Calculator {
	newInput, estimate := typed(estimateTPS)
	return Calculator{
		Code:         domain.TaxTPS,
		Title:        "la TPS",
		TaxpayerType: "Entreprise",
		Regime:       "TPS",
		MissingData:  []string{"taux_tps", "montant_minimum", "redevance_rtb", "contribution_cci"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

func estimateTPS(in *TPSInput, env Env) (*domain.Estimation, error) {
	if err := regime.CheckFlatRateEligible(in.ChiffreAffaire); err != nil {
		return nil, err
	}
	k := tpsConstants{Rate: 0.05, Minimum: 10_000, SRTB: 4_000}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	form := in.TypeEntreprise
	if form == "" {
		form = rates.FormIndividual
	}
	includeCCI := boolOr(in.IncludeCCI, true)
	includeSRTB := boolOr(in.IncludeRedevanceSRTB, true)

	revenue := dec(in.ChiffreAffaire)
	rate := dec(k.Rate)
	base := maxDec(revenue.Mul(rate), dec(k.Minimum))
	cci := decimal.Zero
	if includeCCI {
		cci = rates.CCIContribution(in.ChiffreAffaire, form)
		if in.CustomCCIRate != nil {
			cci = dec(*in.CustomCCIRate)
		}
	}
	srtb := decimal.Zero
	if includeSRTB {
		srtb = dec(floatOr(in.CustomRedevance, k.SRTB))
	}
	total := base.Add(srtb).Add(cci)

	formLabel := "Entreprise individuelle"
	if form == rates.FormCompany {
		formLabel = "Société"
	}

	details := []domain.LineItem{
		lineItem("TPS (Taxe Professionnelle Synthétique)",
			fmt.Sprintf("%s du chiffre d'affaires avec un minimum de %s", formatRate(rate), formatDec(dec(k.Minimum))),
			base, formatRate(rate),
			fmt.Sprintf("max(%s × %s, %s) = %s", FormatAmount(in.ChiffreAffaire), formatRate(rate), formatDec(dec(k.Minimum)), formatDec(base))),
	}
	if srtb.IsPositive() {
		details = append(details, lineItem("Redevance SRTB",
			"Redevance audiovisuelle ajoutée à la TPS.", srtb, "Forfait", "Redevance SRTB de "+formatDec(srtb)))
	}
	notes := []domain.Note{
		note("Acomptes et Solde",
			"Deux acomptes provisionnels égaux à 50% de la TPS de l'année précédente sont exigés.",
			"Le solde à payer est : TPS année en cours – (acompte 1 + acompte 2)."),
	}
	if cci.IsPositive() {
		scale := "barème CCI"
		if in.CustomCCIRate != nil {
			scale = "montant personnalisé"
		}
		details = append(details, lineItem("Contribution CCI Bénin",
			"Contribution à la Chambre de Commerce et d'Industrie du Bénin.", cci, scale,
			fmt.Sprintf("%s, CA %s : %s", formLabel, FormatAmount(in.ChiffreAffaire), formatDec(cci))))
		notes = append(notes, note("Contribution CCI Bénin",
			fmt.Sprintf("Pour votre situation (%s, CA: %s), la contribution est de %s.",
				formLabel, FormatAmount(in.ChiffreAffaire), formatDec(cci))))
	}
	switch {
	case !includeCCI && !includeSRTB:
		notes = append(notes, note("Calcul simplifié",
			"Ce calcul n'inclut ni la contribution CCI Bénin ni la redevance SRTB.",
			"Le montant total correspond uniquement à la TPS de base."))
	case !includeCCI:
		notes = append(notes, note("Calcul sans CCI", "Ce calcul n'inclut pas la contribution CCI Bénin."))
	case !includeSRTB:
		notes = append(notes, note("Calcul sans redevance SRTB", "Ce calcul n'inclut pas la redevance SRTB."))
	}
	if n := installmentNote("TPS", in.ImpotPrecedent, 2, regime.FirstYearAcompteWaived(in.AnneeCreation, env.Year)); n != nil {
		notes = append(notes, *n)
	}
	notes = append(notes, note("Amendes possibles",
		"Tout paiement ≥ 100 000 FCFA doit être effectué par voie bancaire. Sinon, amende de 5%.",
		"Amende pour non-présentation de comptabilité : 1 000 000 FCFA par exercice."))

	return &domain.Estimation{
		Total:    money(total),
		Currency: domain.Currency,
		Regime:   "Régime TPS" + surchargeSuffix(includeCCI, includeSRTB, in.CustomCCIRate != nil || in.CustomRedevance != nil),
		Variables: []domain.InputVariable{
			variable("Chiffre d'affaires annuel", "Montant total des ventes réalisées durant l'année fiscale.", in.ChiffreAffaire),
			flag("Type d'entreprise", "Forme juridique retenue pour la contribution CCI.", formLabel),
		},
		Details: details,
		Obligations: []domain.Obligation{
			obligation("TPS - Solde à payer",
				"Le solde de la TPS est calculé après déduction des acomptes éventuels.",
				deadline("30 avril N+1", "Solde à verser au plus tard le 30 avril de l'année suivante.")),
			obligation("TPS - Acomptes provisionnels",
				"Applicable sauf pour la première année d'activité.",
				deadline("10 février", "Premier acompte égal à 50% de la TPS de l'année précédente."),
				deadline("10 juin", "Deuxième acompte égal à 50% de la TPS de l'année précédente.")),
		},
		Notes: notes,
		Config: domain.TaxConfig{
			Title: "Taxe Professionnelle Synthétique",
			Label: "TPS",
			Description: "La TPS est égale à 5% du chiffre d'affaires annuel avec un minimum forfaitaire de 10 000 FCFA. " +
				"S'y ajoutent la redevance SRTB et la contribution CCI selon le chiffre d'affaires et la forme juridique.",
			CompetentCenter: centerTerritorial,
			PaymentSchedule: []domain.PaymentDate{
				{Date: "10 février", Description: "Premier acompte (50% de la TPS de l'année précédente)"},
				{Date: "10 juin", Description: "Deuxième acompte (50% de la TPS de l'année précédente)"},
				{Date: "30 avril N+1", Description: "Solde de la TPS"},
			},
		},
	}, nil
}
