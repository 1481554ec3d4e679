package calc

import (
	"fmt"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/shopspring/decimal"
)

// Reduction conditions of the individual business profit tax.
const (
	ReductionArtisan = "artisanale"
	ReductionNone    = "normale"
)

// IBAInput is the individual business profit tax request.
type IBAInput struct {
	Period
	ChiffreAffaire      float64  `json:"chiffreAffaire"`
	Charges             float64  `json:"charges"`
	Secteur             string   `json:"secteur"`
	ConditionsReduction string   `json:"conditionsReduction,omitempty"`
	NbrLitreAnnee       *float64 `json:"nbrLitreAnnee,omitempty"`
	ImpotPrecedent      *float64 `json:"impotAnneePrecedente,omitempty"`
	AnneeCreation       int      `json:"anneeCreation,omitempty"`
}

func (in *IBAInput) Revenue() (float64, bool) { return in.ChiffreAffaire, true }

func (in *IBAInput) Validate() error {
	if in.ChiffreAffaire <= 0 {
		return invalid("chiffreAffaire", "Le chiffre d'affaires doit être positif")
	}
	if in.Charges < 0 {
		return invalid("charges", "Les charges ne peuvent pas être négatives")
	}
	if rates.Key(in.Secteur) == rates.SectorFuelStation && floatOr(in.NbrLitreAnnee, 0) <= 0 {
		return invalid("nbrLitreAnnee", "Le nombre de litres vendus annuellement est requis et doit être positif pour les stations-services")
	}
	return nil
}

func (in *IBAInput) artisan() bool {
	switch rates.Key(in.ConditionsReduction) {
	case ReductionArtisan:
		return true
	case ReductionNone:
		return false
	}
	return rates.Key(in.Secteur) == rates.SectorCraft
}

// ibaConstants are the overridable parameters of the IBA.
type ibaConstants struct {
	GeneralRate      float64 `json:"TAUX_GENERAL"`
	ReducedRate      float64 `json:"TAUX_ENSEIGNEMENT"`
	MinGeneral       float64 `json:"MINIMUM_GENERAL"`
	MinConstruction  float64 `json:"MINIMUM_BTP"`
	MinRealEstate    float64 `json:"MINIMUM_IMMOBILIER"`
	PerLitre         float64 `json:"TAUX_PETROLIER"`
	AbsoluteGeneral  float64 `json:"MINIMUM_ABSOLU_GENERAL"`
	AbsoluteStations float64 `json:"MINIMUM_ABSOLU_STATIONS"`
	SRTB             float64 `json:"REDEVANCE_SRTB"`
	ArtisanFactor    float64 `json:"FACTEUR_REDUCTION_ARTISANALE"`
}

func defaultIBAConstants() ibaConstants {
	return ibaConstants{
		GeneralRate:      0.30,
		ReducedRate:      0.25,
		MinGeneral:       0.015,
		MinConstruction:  0.03,
		MinRealEstate:    0.10,
		PerLitre:         0.60,
		AbsoluteGeneral:  500_000,
		AbsoluteStations: 250_000,
		SRTB:             4_000,
		ArtisanFactor:    0.5,
	}
}

func (k ibaConstants) rate(sector rates.ProfitSector) decimal.Decimal {
	if sector.Rate == rates.RateReduced {
		return dec(k.ReducedRate)
	}
	return dec(k.GeneralRate)
}

// floor returns the sector minimum: litres for fuel stations, a share of
// revenue otherwise.
func (k ibaConstants) floor(sector rates.ProfitSector, revenue decimal.Decimal, litres float64) decimal.Decimal {
	switch sector.Floor {
	case rates.FloorFuel:
		return dec(litres).Mul(dec(k.PerLitre))
	case rates.FloorConstruction:
		return revenue.Mul(dec(k.MinConstruction))
	case rates.FloorRealEstate:
		return revenue.Mul(dec(k.MinRealEstate))
	}
	return revenue.Mul(dec(k.MinGeneral))
}

func (k ibaConstants) absolute(sector rates.ProfitSector) decimal.Decimal {
	if sector.Floor == rates.FloorFuel {
		return dec(k.AbsoluteStations)
	}
	return dec(k.AbsoluteGeneral)
}

func ibaCalculator() Calculator {
	newInput, estimate := typed(estimateIBA)
	return Calculator{
		Code:         domain.TaxIBA,
		Title:        "l'Impôt sur le Bénéfice d'Affaire",
		TaxpayerType: taxpayerBusiness,
		Regime:       "IBA",
		MissingData:  []string{"taux_iba", "minimum_sectoriel", "redevance_ortb"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

func estimateIBA(in *IBAInput, env Env) (*domain.Estimation, error) {
	k := defaultIBAConstants()
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	sector, known := rates.IBASector(in.Secteur)
	revenue := dec(in.ChiffreAffaire)
	profit := decimal.Max(decimal.Zero, revenue.Sub(dec(in.Charges)))

	rate := k.rate(sector)
	nominal := profit.Mul(rate)
	sectorFloor := k.floor(sector, revenue, floatOr(in.NbrLitreAnnee, 0))
	absolute := k.absolute(sector)
	base := maxDec(nominal, sectorFloor, absolute)

	artisan := in.artisan()
	factor := regime.ArtisanReduction(artisan)
	if artisan {
		factor = dec(k.ArtisanFactor)
	}
	reduced := base.Mul(factor)
	fee := dec(k.SRTB)
	total := reduced.Add(fee)

	vars := []domain.InputVariable{
		variable("Chiffre d'affaires", "Revenus totaux de l'activité", in.ChiffreAffaire),
		variable("Charges déductibles", "Charges et dépenses déductibles du bénéfice imposable", in.Charges),
		variable("Bénéfice imposable", "Différence entre revenus et charges", profit.InexactFloat64()),
	}
	if sector.Key == rates.SectorFuelStation {
		vars = append(vars, domain.InputVariable{
			Label: "Volume de carburant vendu", Description: "Nombre de litres vendus dans l'année",
			Value: floatOr(in.NbrLitreAnnee, 0), Currency: "litres",
		})
	}

	details := []domain.LineItem{
		lineItem("Impôt sur le Bénéfice d'Affaire (IBA) - Base",
			fmt.Sprintf("Calculé selon le taux de %s applicable au secteur %s", formatRate(rate), sector.Key),
			base, formatRate(rate),
			fmt.Sprintf("max(impôt nominal %s, minimum sectoriel %s, minimum absolu %s) = %s",
				formatDec(nominal), formatDec(sectorFloor), formatDec(absolute), formatDec(base))),
	}
	if artisan {
		cut := base.Sub(reduced)
		details = append(details, lineItem("Réduction artisanale",
			"Réduction de l'IBA pour activité artisanale avec famille",
			cut, formatRate(decimal.NewFromInt(1).Sub(factor)),
			fmt.Sprintf("Réduction = %s × %s = %s", formatDec(base), formatRate(decimal.NewFromInt(1).Sub(factor)), formatDec(cut))))
	}
	details = append(details, lineItem("Redevance ORTB",
		"Redevance forfaitaire pour l'Office de Radiodiffusion et Télévision du Bénin",
		fee, "Forfait", fmt.Sprintf("Redevance ORTB = %s (forfait)", formatDec(fee))))

	regimeLabel := "IBA (Impôt sur le Bénéfice d'Affaire)"
	if artisan {
		regimeLabel += " - Régime Artisanal"
	}

	notes := []domain.Note{
		note("Impôt minimum et calcul de base",
			"L'IBA est le maximum de l'impôt nominal, de l'impôt minimum sectoriel et de l'impôt minimum absolu.",
			"Une redevance ORTB de "+formatDec(fee)+" s'ajoute au montant final."),
	}
	if !known {
		notes = append(notes, note("Secteur d'activité",
			fmt.Sprintf("Secteur %q non répertorié : la règle générale (%s) a été appliquée.", in.Secteur, formatRate(rate))))
	}
	if n := installmentNote("IBA", in.ImpotPrecedent, 4, regime.FirstYearAcompteWaived(in.AnneeCreation, env.Year)); n != nil {
		notes = append(notes, *n)
	}

	return &domain.Estimation{
		Total:       money(total),
		Currency:    domain.Currency,
		Regime:      regimeLabel,
		Variables:   vars,
		Details:     details,
		Obligations: quarterlyInstallments("IBA"),
		Notes:       notes,
		Config: domain.TaxConfig{
			Title: "Impôt sur le Bénéfice d'Affaire (IBA)",
			Label: "IBA",
			Description: "Impôt direct sur le bénéfice imposable des entrepreneurs individuels. Le taux varie selon le secteur " +
				"d'activité et l'impôt final est le maximum entre l'impôt nominal, le minimum sectoriel et le minimum absolu.",
			CompetentCenter: centerSmallBusinesses,
			PaymentSchedule: quarterlySchedule("IBA"),
		},
	}, nil
}
