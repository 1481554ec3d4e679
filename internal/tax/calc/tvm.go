package calc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
)

// Vehicle is one motor vehicle. Power is in fiscal horsepower; Capacity is
// seats for passenger transport and tonnes for goods transport.
type Vehicle struct {
	Type     string   `json:"vehicleType"`
	Power    *float64 `json:"power,omitempty"`
	Capacity *float64 `json:"capacity,omitempty"`
}

// TVMInput is the motor vehicle tax request.
type TVMInput struct {
	Period
	HasVehicles bool      `json:"hasVehicles"`
	Vehicles    []Vehicle `json:"vehicles"`
}

func (in *TVMInput) Validate() error {
	if !in.HasVehicles || len(in.Vehicles) == 0 {
		return invalid("vehicles", "Aucun véhicule déclaré")
	}
	for i, v := range in.Vehicles {
		if floatOr(v.Power, 0) < 0 || floatOr(v.Capacity, 0) < 0 {
			return invalid(fmt.Sprintf("vehicles[%d]", i), "La puissance et la capacité ne peuvent pas être négatives")
		}
	}
	return nil
}

func tvmCalculator() Calculator {
	newInput, estimate := typed(estimateTVM)
	return Calculator{
		Code:         domain.TaxTVM,
		Title:        "la Taxe sur les Véhicules à Moteur",
		TaxpayerType: taxpayerBusiness,
		Regime:       "TVM",
		MissingData:  []string{"tarifs_tvm", "categories_vehicules"},
		NewInput:     newInput,
		Estimate:     estimate,
		Conditional: func(in Input) bool {
			v := in.(*TVMInput)
			return v.HasVehicles && len(v.Vehicles) > 0
		},
	}
}

func vehicleDescription(v Vehicle, class string) string {
	switch class {
	case rates.VehicleTricycle:
		return "Tricycle à moteur (montant fixe)"
	case rates.VehicleCompany, rates.VehiclePrivate:
		return fmt.Sprintf("%s (%v CV)", rates.VehicleLabel(class), floatOr(v.Power, 0))
	case rates.VehiclePublicPersons:
		return fmt.Sprintf("Transport de personnes (%v places)", floatOr(v.Capacity, 0))
	case rates.VehiclePublicGoods:
		return fmt.Sprintf("Transport de marchandises (%v tonnes)", floatOr(v.Capacity, 0))
	}
	return "Véhicule non spécifié"
}

func estimateTVM(in *TVMInput, env Env) (*domain.Estimation, error) {
	total := decimal.Zero
	var (
		perVehicle []domain.LineItem
		unknown    []string
	)
	classes := map[string]bool{}

	for i, v := range in.Vehicles {
		class := rates.Key(v.Type)
		tax, known := rates.VehicleTax(class, floatOr(v.Power, 0), floatOr(v.Capacity, 0))
		if !known {
			unknown = append(unknown, fmt.Sprintf("Véhicule %d (%q)", i+1, v.Type))
			class = rates.DefaultVehicleClass
		}
		classes[class] = true
		total = total.Add(tax)
		label := rates.VehicleLabel(class)
		perVehicle = append(perVehicle, lineItem(
			fmt.Sprintf("Véhicule %d - %s", i+1, label),
			vehicleDescription(v, class),
			tax, "Forfait", fmt.Sprintf("%s : %s", label, formatDec(tax))))
	}

	details := append([]domain.LineItem{
		lineItem("TVM (Taxe sur les Véhicules à Moteur)",
			fmt.Sprintf("Calculée pour %d véhicule(s) selon les tarifs en vigueur", len(in.Vehicles)),
			total, "Tarifs variables selon le type et les caractéristiques",
			fmt.Sprintf("TVM totale = %s pour %d véhicule(s)", formatDec(total), len(in.Vehicles))),
	}, perVehicle...)

	notes := []domain.Note{
		note("Tarifs par type de véhicule",
			"Tricycles : 15 000 FCFA (montant fixe)",
			"Véhicules de société : 150 000 FCFA (≤7 CV) ou 200 000 FCFA (>7 CV)",
			"Véhicules particuliers : 20 000 FCFA (≤7 CV), 30 000 FCFA (≤10 CV), 40 000 FCFA (≤15 CV), 60 000 FCFA (>15 CV)",
			"Transports de personnes : 38 000 FCFA (≤9 places), 59 800 FCFA (≤20 places), 86 800 FCFA (>20 places)",
			"Transports de marchandises : 49 500 FCFA (≤2.5T), 68 200 FCFA (≤5T), 102 300 FCFA (≤10T), 136 400 FCFA (>10T)"),
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		notes = append(notes, note("Type de véhicule non reconnu",
			strings.Join(unknown, ", ")+" : tarif des véhicules particuliers appliqué."))
	}

	return &domain.Estimation{
		Total:    money(total),
		Currency: domain.Currency,
		Regime:   "TVM (Taxe sur les Véhicules à Moteur)",
		Variables: []domain.InputVariable{
			flag("Nombre de véhicules", "Nombre total de véhicules imposables à la TVM", len(in.Vehicles)),
			flag("Types de véhicules", "Répartition par type de véhicule", len(classes)),
		},
		Details: details,
		Obligations: []domain.Obligation{
			obligation("TVM - Paiement annuel",
				"La TVM doit être payée au plus tard le 30 avril de chaque année.",
				deadline("30 avril", "Paiement de la TVM annuelle.")),
			obligation("TVM - Déclaration des véhicules",
				"Tout nouveau véhicule doit être déclaré dans les 30 jours suivant son acquisition.",
				deadline("30 jours après acquisition", "Déclaration de l'acquisition d'un nouveau véhicule.")),
			obligation("TVM - Mise à jour des informations",
				"Les modifications importantes (changement de propriétaire, destruction) doivent être déclarées dans les 30 jours.",
				deadline("30 jours après changement", "Déclaration des modifications importantes du véhicule.")),
		},
		Notes: notes,
		Config: domain.TaxConfig{
			Title: "Taxe sur les Véhicules à Moteur (TVM)",
			Label: "TVM",
			Description: "Impôt local annuel calculé sur chaque véhicule à moteur possédé. Le montant varie selon le type " +
				"de véhicule et ses caractéristiques techniques.",
			CompetentCenter: centerSmallBusinesses,
			PaymentSchedule: []domain.PaymentDate{{Date: "30 avril", Description: "Paiement annuel de la TVM"}},
		},
	}, nil
}
