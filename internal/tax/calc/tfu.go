package calc

import (
	"fmt"
	"strings"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
)

// Building is one construction on a parcel.
type Building struct {
	Category     string  `json:"categorie"`
	SquareMeters float64 `json:"squareMeters"`
}

// Parcel is one plot located in the property-tax hierarchy.
type Parcel struct {
	Department    string              `json:"departement"`
	Commune       string              `json:"commune"`
	District      string              `json:"arrondissement"`
	BuildingCount *int                `json:"nbrBatiments,omitempty"`
	Buildings     OneOrMany[Building] `json:"batiments"`
	Pools         int                 `json:"nbrPiscines"`
}

// Property is one company-held property with its own rate.
type Property struct {
	City        string  `json:"ville"`
	RentalValue float64 `json:"valeurLocative"`
	Built       bool    `json:"proprieteBatie"`
	// Rate is a percentage of the rental value.
	Rate float64 `json:"tauxTfu"`
}

// TFUInput is the property tax request. Parcels take precedence over the
// company property list when both are present.
type TFUInput struct {
	Period
	ParcelCount    *int              `json:"nbrParcelles,omitempty"`
	Parcels        OneOrMany[Parcel] `json:"parcelles,omitempty"`
	OwnsProperties *bool             `json:"possessionProprietes,omitempty"`
	PropertyCount  *int              `json:"NbrProprietes,omitempty"`
	Properties     []Property        `json:"proprietes,omitempty"`
}

func (in *TFUInput) hasData() bool {
	return len(in.Parcels) > 0 || (boolOr(in.OwnsProperties, false) && len(in.Properties) > 0)
}

func (in *TFUInput) Validate() error {
	if len(in.Parcels) > 0 {
		return in.validateParcels()
	}
	if in.OwnsProperties == nil && len(in.Properties) == 0 {
		return invalid("parcelles", "Aucune parcelle fournie pour le calcul de la TFU")
	}
	if !boolOr(in.OwnsProperties, false) {
		return invalid("possessionProprietes", "Aucune propriété déclarée")
	}
	if len(in.Properties) == 0 {
		return invalid("proprietes", "La liste des propriétés est vide")
	}
	if in.PropertyCount != nil && *in.PropertyCount != len(in.Properties) {
		return invalid("NbrProprietes", "Le nombre de propriétés ne correspond pas à la liste fournie")
	}
	for i, p := range in.Properties {
		if p.Rate < 0 {
			return invalid(fmt.Sprintf("proprietes[%d].tauxTfu", i), "Le taux TFU ne peut pas être négatif")
		}
	}
	return nil
}

func (in *TFUInput) validateParcels() error {
	for i, p := range in.Parcels {
		n := i + 1
		if len(p.Buildings) == 0 {
			return invalid("batiments", fmt.Sprintf("Aucun bâtiment renseigné pour la parcelle %d", n))
		}
		if p.BuildingCount != nil && *p.BuildingCount >= 0 && *p.BuildingCount != len(p.Buildings) {
			return invalid("nbrBatiments", fmt.Sprintf(
				"Le nombre de bâtiments indiqué (%d) ne correspond pas au nombre de bâtiments fournis (%d) pour la parcelle %d",
				*p.BuildingCount, len(p.Buildings), n))
		}
		for j, b := range p.Buildings {
			if b.SquareMeters < 0 {
				return invalid("squareMeters", fmt.Sprintf(
					"La surface du bâtiment %d de la parcelle %d ne peut pas être négative", j+1, n))
			}
		}
		if p.Pools < 0 {
			return invalid("nbrPiscines", fmt.Sprintf("Le nombre de piscines pour la parcelle %d ne peut pas être négatif", n))
		}
	}
	return nil
}

type tfuConstants struct {
	PoolAmount float64 `json:"MONTANT_PISCINE"`
}

func tfuCalculator() Calculator {
	newInput, estimate := typed(estimateTFU)
	return Calculator{
		Code:         domain.TaxTFU,
		Title:        "la Taxe Foncière Unique",
		TaxpayerType: "Propriétaire foncier",
		Regime:       "TFU",
		MissingData:  []string{"tarifs_tfu", "montant_piscine"},
		NewInput:     newInput,
		Estimate:     estimate,
		Conditional: func(in Input) bool {
			return in.(*TFUInput).hasData()
		},
	}
}

func estimateTFU(in *TFUInput, env Env) (*domain.Estimation, error) {
	k := tfuConstants{PoolAmount: 30_000}
	if err := env.Load(&k); err != nil {
		return nil, err
	}
	var (
		est *domain.Estimation
		err error
	)
	if len(in.Parcels) > 0 {
		est, err = estimateTFUParcels(in, k)
	} else {
		est = estimateTFUProperties(in)
	}
	if err != nil {
		return nil, err
	}

	est.Currency = domain.Currency
	est.Obligations = []domain.Obligation{
		obligation("TFU - Premier acompte", "Premier acompte avant le 10 février.",
			deadline("10 février", "50% du montant total de la taxe due l'année précédente.")),
		obligation("TFU - Solde", "Le solde est versé avant le 30 avril.",
			deadline("30 avril", "Solde de la taxe de l'année.")),
		obligation("TFU - Déclaration des propriétés", "Toute nouvelle propriété doit être déclarée.",
			deadline("30 jours après acquisition", "Déclaration de la propriété acquise.")),
	}
	est.Config = domain.TaxConfig{
		Title: "Taxe Foncière Unique",
		Label: "TFU",
		Description: "Impôt local sur les propriétés bâties et non bâties. Les tarifs sont fixés par commune et " +
			"arrondissement selon la catégorie de construction.",
		CompetentCenter: "Centre des Impôts territorialement compétent selon l'adresse de la propriété.",
		PaymentSchedule: []domain.PaymentDate{
			{Date: "10 février", Description: "Acompte de 50%"},
			{Date: "30 avril", Description: "Solde"},
		},
	}
	return est, nil
}

func estimateTFUParcels(in *TFUInput, k tfuConstants) (*domain.Estimation, error) {
	total := decimal.Zero
	pool := dec(k.PoolAmount)
	var (
		vars    []domain.InputVariable
		details []domain.LineItem
	)

	for i, p := range in.Parcels {
		sum := decimal.Zero
		surface := 0.0
		largest := -1.0
		largestMin := decimal.Zero
		var lines []string

		for j, b := range p.Buildings {
			tariff, err := rates.PropertyRate(p.Department, p.Commune, p.District, b.Category)
			if err != nil {
				return nil, err
			}
			raw := dec(b.SquareMeters).Mul(tariff.PerSquareM)
			due := bracket.Round(decimal.Max(raw, tariff.Minimum))
			sum = sum.Add(due)
			surface += b.SquareMeters
			if b.SquareMeters >= largest {
				largest = b.SquareMeters
				largestMin = tariff.Minimum
			}
			line := fmt.Sprintf("Bâtiment %d: %v m² × %s FCFA/m² = %s", j+1, b.SquareMeters, tariff.PerSquareM, formatDec(raw))
			if due.GreaterThan(bracket.Round(raw)) {
				line += " → Minimum appliqué : " + formatDec(due)
			}
			lines = append(lines, line)
		}

		retained := decimal.Max(sum, bracket.Round(largestMin))
		pools := pool.Mul(decimal.NewFromInt(int64(p.Pools)))
		parcelTotal := retained.Add(pools)
		total = total.Add(parcelTotal)

		lines = append(lines,
			"Somme TFU bâtiments : "+formatDec(sum),
			"Minimum (bâtiment le plus grand) : "+formatDec(bracket.Round(largestMin)),
			fmt.Sprintf("Piscines (%d) : %s", p.Pools, formatDec(pools)))
		details = append(details, lineItem(
			fmt.Sprintf("Parcelle %d - %s / %s / %s", i+1, p.Department, p.Commune, p.District),
			fmt.Sprintf("%d bâtiment(s), %v m²", len(p.Buildings), surface),
			parcelTotal, "Tarif par m²", strings.Join(lines, " | ")))

		vars = append(vars, domain.InputVariable{
			Label:       fmt.Sprintf("Parcelle %d", i+1),
			Description: fmt.Sprintf("Surface totale des bâtiments (%d bâtiment(s))", len(p.Buildings)),
			Value:       surface,
			Currency:    "m²",
		})
		if p.Pools > 0 {
			vars = append(vars, domain.InputVariable{
				Label:       fmt.Sprintf("Piscines - Parcelle %d", i+1),
				Description: "Nombre de piscines déclarées",
				Value:       p.Pools,
				Currency:    "unité(s)",
			})
		}
	}

	return &domain.Estimation{
		Total:     money(total),
		Regime:    "TFU",
		Variables: vars,
		Details:   details,
		Notes: []domain.Note{
			note("Calcul de la TFU",
				"Chaque bâtiment est taxé au tarif par m² de sa catégorie, sans descendre sous le minimum de la catégorie.",
				"Une parcelle paie au moins le minimum de son plus grand bâtiment.",
				"Chaque piscine ajoute "+formatDec(pool)+"."),
		},
	}, nil
}

func estimateTFUProperties(in *TFUInput) *domain.Estimation {
	total := decimal.Zero
	rentalTotal := 0.0
	hundred := decimal.NewFromInt(100)
	var derivations []string
	for _, p := range in.Properties {
		rentalTotal += p.RentalValue
		if p.RentalValue <= 0 {
			continue
		}
		tax := dec(p.RentalValue).Mul(dec(p.Rate)).Div(hundred)
		total = total.Add(tax)
		derivations = append(derivations,
			fmt.Sprintf("%s : %s × %v%% = %s", p.City, FormatAmount(p.RentalValue), p.Rate, formatDec(tax)))
	}

	rate := "Tarifs variables selon les propriétés"
	if len(in.Properties) == 1 {
		rate = fmt.Sprintf("%v%%", in.Properties[0].Rate)
	}

	return &domain.Estimation{
		Total:  money(total),
		Regime: "TFU Entreprise",
		Variables: []domain.InputVariable{
			flag("Nombre de propriétés", "Nombre total de propriétés imposables à la TFU", len(in.Properties)),
			variable("Valeur locative totale", "Somme des valeurs locatives de toutes les propriétés", rentalTotal),
		},
		Details: []domain.LineItem{
			lineItem("TFU (Taxe Foncière Unique)",
				fmt.Sprintf("Calculée pour %d propriété(s)", len(in.Properties)),
				total, rate, strings.Join(derivations, " ; ")),
		},
		Notes: []domain.Note{},
	}
}
