package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
)

// Premises is one establishment subject to the business licence.
type Premises struct {
	RentalValue float64 `json:"valeurLocative"`
	New         bool    `json:"estNouveauLocal"`
	// MonthsLeft is the number of months remaining in the year after a
	// new establishment opened.
	MonthsLeft int `json:"moisRestants,omitempty"`
}

// PatenteInput is the business licence request.
type PatenteInput struct {
	Period
	ChiffreAffaire     float64    `json:"chiffreAffaire"`
	Location           string     `json:"location"`
	RentalValue        float64    `json:"rentalValue"`
	Premises           []Premises `json:"locaux,omitempty"`
	IsImporter         bool       `json:"isImporter,omitempty"`
	ImportExportAmount float64    `json:"importExportAmount,omitempty"`
	PublicMarketsHT    float64    `json:"marchePublicHT,omitempty"`
	AgeMonths          *int       `json:"ageEntrepriseMois,omitempty"`
}

func (in *PatenteInput) Revenue() (float64, bool) { return in.ChiffreAffaire, true }

func (in *PatenteInput) Validate() error {
	if in.ChiffreAffaire <= 0 {
		return invalid("chiffreAffaire", "Le chiffre d'affaires doit être positif")
	}
	if in.RentalValue < 0 {
		return invalid("rentalValue", "La valeur locative ne peut pas être négative")
	}
	if in.ImportExportAmount < 0 {
		return invalid("importExportAmount", "Le montant import-export ne peut pas être négatif")
	}
	if in.PublicMarketsHT < 0 {
		return invalid("marchePublicHT", "Le montant des marchés publics ne peut pas être négatif")
	}
	if in.AgeMonths != nil && *in.AgeMonths < 0 {
		return invalid("ageEntrepriseMois", "L'âge de l'entreprise ne peut pas être négatif")
	}
	for i, p := range in.Premises {
		if p.RentalValue < 0 {
			return invalid(fmt.Sprintf("locaux[%d].valeurLocative", i), "La valeur locative ne peut pas être négative")
		}
		if p.New && (p.MonthsLeft < 1 || p.MonthsLeft > 12) {
			return invalid(fmt.Sprintf("locaux[%d].moisRestants", i), "Le nombre de mois restants doit être compris entre 1 et 12")
		}
	}
	return nil
}

type patenteConstants struct {
	FixedZoneOne     float64                `json:"TARIF_BASE_ZONE_1"`
	FixedZoneTwo     float64                `json:"TARIF_BASE_ZONE_2"`
	RevenueStep      float64                `json:"SEUIL_CA_CLASSIQUE"`
	StepAmount       float64                `json:"COEFFICIENT_CA"`
	ImportExport     bracket.Scale          `json:"BAREME_IMPORT_EXPORT"`
	CommuneRates     rates.CommuneRateTable `json:"TAUX_COMMUNES"`
	PublicMarketRate float64                `json:"TAUX_MARCHE_PUBLIC"`
	ExemptMonths     int                    `json:"SEUIL_EXEMPTION_MOIS"`
	InstallmentRate  float64                `json:"TAUX_ACOMPTE"`
}

func defaultPatenteConstants() patenteConstants {
	return patenteConstants{
		FixedZoneOne:     rates.FixedPartZoneOne.InexactFloat64(),
		FixedZoneTwo:     rates.FixedPartZoneTwo.InexactFloat64(),
		RevenueStep:      1_000_000_000,
		StepAmount:       10_000,
		ImportExport:     rates.ImportExportScale(),
		CommuneRates:     rates.CommuneRates(),
		PublicMarketRate: 0.005,
		ExemptMonths:     12,
		InstallmentRate:  0.5,
	}
}

func patenteCalculator() Calculator {
	newInput, estimate := typed(estimatePatente)
	return Calculator{
		Code:         domain.TaxPatente,
		Title:        "la Patente",
		TaxpayerType: taxpayerBusiness,
		Regime:       "Patente",
		MissingData:  []string{"taux_patente", "seuils_imposition", "tarifs_geographiques"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

func estimatePatente(in *PatenteInput, env Env) (*domain.Estimation, error) {
	k := defaultPatenteConstants()
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	revenue := dec(in.ChiffreAffaire)
	zone := rates.LocationZone(in.Location)
	fixed := dec(k.FixedZoneTwo)
	if zone == rates.ZoneOne {
		fixed = dec(k.FixedZoneOne)
	}
	fixedDerivation := fmt.Sprintf("Droit fixe zone %d = %s", zone, formatDec(fixed))
	if step := dec(k.RevenueStep); step.IsPositive() && revenue.GreaterThan(step) {
		steps := revenue.Div(step).Floor()
		fixed = fixed.Add(steps.Mul(dec(k.StepAmount)))
		fixedDerivation += fmt.Sprintf(" + %s × %s par tranche de %s = %s",
			steps, formatDec(dec(k.StepAmount)), formatDec(step), formatDec(fixed))
	}
	if in.IsImporter && in.ImportExportAmount > 0 {
		fixed = k.ImportExport.Lookup(dec(in.ImportExportAmount))
		fixedDerivation = fmt.Sprintf("Barème import-export pour %s = %s", FormatAmount(in.ImportExportAmount), formatDec(fixed))
	}

	rate, knownLocation := k.CommuneRates.Rate(in.Location)
	existing := dec(in.RentalValue)
	added := decimal.Zero
	twelve := decimal.NewFromInt(12)
	for _, p := range in.Premises {
		if p.New {
			added = added.Add(dec(p.RentalValue).Mul(rate).Mul(decimal.NewFromInt(int64(p.MonthsLeft))).Div(twelve))
			continue
		}
		existing = existing.Add(dec(p.RentalValue))
	}
	floor := fixed.Div(decimal.NewFromInt(3))
	proportional := maxDec(existing.Mul(rate), floor)
	publicMarkets := dec(in.PublicMarketsHT).Mul(dec(k.PublicMarketRate))

	total := fixed.Add(proportional).Add(added).Add(publicMarkets)
	exempt := in.AgeMonths != nil && *in.AgeMonths < k.ExemptMonths
	if exempt {
		total = decimal.Zero
	}

	details := []domain.LineItem{
		lineItem("Patente - Part fixe", "Droit fixe selon la zone et le chiffre d'affaires", fixed, "Forfait", fixedDerivation),
		lineItem("Patente - Part proportionnelle",
			fmt.Sprintf("Valeur locative × %s, minimum d'un tiers du droit fixe", formatRate(rate)),
			proportional, formatRate(rate),
			fmt.Sprintf("max(%s × %s, %s / 3) = %s", formatDec(existing), formatRate(rate), formatDec(fixed), formatDec(proportional))),
	}
	if added.IsPositive() {
		details = append(details, lineItem("Patente - Nouveaux établissements",
			"Droit proportionnel au prorata des mois restants", added, formatRate(rate),
			"Σ valeur locative × taux × mois restants / 12 = "+formatDec(added)))
	}
	if publicMarkets.IsPositive() {
		details = append(details, lineItem("Patente - Marchés publics",
			"Complément sur le montant hors taxes des marchés publics", publicMarkets, formatRate(dec(k.PublicMarketRate)),
			fmt.Sprintf("%s × %s = %s", FormatAmount(in.PublicMarketsHT), formatRate(dec(k.PublicMarketRate)), formatDec(publicMarkets))))
	}

	notes := []domain.Note{
		note("Calcul de la patente",
			"La patente comprend un droit fixe selon la zone et un droit proportionnel sur la valeur locative.",
			"Le droit proportionnel ne peut être inférieur au tiers du droit fixe."),
	}
	if !knownLocation {
		notes = append(notes, note("Localisation",
			fmt.Sprintf("Localisation %q non répertoriée : le taux par défaut de %s a été appliqué.", in.Location, formatRate(rate))))
	}
	if exempt {
		notes = append(notes, note("Exonération",
			fmt.Sprintf("Entreprise de moins de %d mois : exonération de patente.", k.ExemptMonths)))
	}

	installment := total.Mul(dec(k.InstallmentRate))
	share := formatRate(dec(k.InstallmentRate))
	balanceShare := formatRate(decimal.NewFromInt(1).Sub(dec(k.InstallmentRate)))
	return &domain.Estimation{
		Total:    money(total),
		Currency: domain.Currency,
		Regime:   "Patente",
		Variables: []domain.InputVariable{
			variable("Chiffre d'affaires", "Revenus totaux de l'activité", in.ChiffreAffaire),
			flag("Localisation", "Zone géographique de l'établissement", in.Location),
			variable("Valeur locative", "Valeur locative annuelle de l'établissement", in.RentalValue),
		},
		Details: details,
		Obligations: []domain.Obligation{
			obligation("Patente - Paiement annuel",
				"La patente est payée en un acompte et un solde avant le 30 avril.",
				deadline("Acompte", share+" soit "+formatDec(installment)+"."),
				deadline("30 avril", "Solde de "+balanceShare+" soit "+formatDec(total.Sub(installment))+".")),
			obligation("Patente - Déclaration des établissements",
				"Tout nouvel établissement doit être déclaré.",
				deadline("30 jours après ouverture", "Déclaration du nouvel établissement.")),
			obligation("Patente - Mise à jour des informations",
				"Tout changement d'activité ou de local doit être signalé.",
				deadline("30 jours après changement", "Mise à jour auprès du centre des impôts.")),
		},
		Notes: notes,
		Config: domain.TaxConfig{
			Title: "Patente",
			Label: "PATENTE",
			Description: "Contribution locale due par toute personne exerçant une activité professionnelle. Elle comprend " +
				"un droit fixe selon la zone et un droit proportionnel sur la valeur locative des locaux.",
			CompetentCenter: centerSmallBusinesses,
			PaymentSchedule: []domain.PaymentDate{{Date: "30 avril", Description: "Paiement annuel de la patente"}},
		},
	}, nil
}
