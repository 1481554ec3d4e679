package calc

import (
	"fmt"
	"math"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/shopspring/decimal"
)

// Company profit tax engines.
const (
	EngineGeneral  = "general"
	EngineDetailed = "detaille"
)

// ISInput is the company profit tax request. Moteur selects the engine;
// each engine reads its own fields.
type ISInput struct {
	Period
	Moteur string `json:"moteur,omitempty"`

	// general engine
	ChiffreAffaire *float64 `json:"chiffreAffaire,omitempty"`
	RevenueAlt     *float64 `json:"revenue,omitempty"`
	Charges        float64  `json:"charges"`
	Secteur        string   `json:"secteur"`
	Metering       *float64 `json:"metering,omitempty"`

	// detailed engine
	BN            float64  `json:"BN"`
	PE            float64  `json:"PE"`
	RCM           float64  `json:"RCM"`
	Vpetrole      *float64 `json:"Vpetrole,omitempty"`
	TypeSociete   string   `json:"type,omitempty"`
	DureeActivite *int     `json:"dureeActivite,omitempty"`

	EstExoneree                 bool     `json:"estExoneree"`
	DureeCreation               *float64 `json:"dureeCreation,omitempty"`
	PourcentageActionsNonCotees *float64 `json:"pourcentageActionsNonCotees,omitempty"`
	ImpotPrecedent              *float64 `json:"impotAnneePrecedente,omitempty"`
	AnneeCreation               int      `json:"anneeCreation,omitempty"`
}

func (in *ISInput) detailed() bool { return rates.Key(in.Moteur) == EngineDetailed }

func (in *ISInput) turnover() float64 {
	if in.ChiffreAffaire != nil {
		return *in.ChiffreAffaire
	}
	return floatOr(in.RevenueAlt, 0)
}

func (in *ISInput) Revenue() (float64, bool) {
	if in.detailed() {
		return in.PE, true
	}
	return in.turnover(), true
}

func (in *ISInput) Validate() error {
	switch rates.Key(in.Moteur) {
	case "", EngineGeneral, EngineDetailed:
	default:
		return invalid("moteur", fmt.Sprintf("Moteur de calcul inconnu : %q", in.Moteur))
	}
	if in.detailed() {
		if in.PE < 0 {
			return invalid("PE", "Les produits encaissables ne peuvent pas être négatifs")
		}
		if in.BN < 0 && in.PE < math.Abs(in.BN) {
			return invalid("PE", "Les produits encaissables doivent être supérieurs ou égaux à la valeur absolue du bénéfice net")
		}
		if in.RCM < 0 {
			return invalid("RCM", "Les revenus de capitaux mobiliers ne peuvent pas être négatifs")
		}
		if floatOr(in.Vpetrole, 0) < 0 {
			return invalid("Vpetrole", "Le volume de produits pétroliers ne peut pas être négatif")
		}
		if in.DureeActivite != nil && (*in.DureeActivite < 1 || *in.DureeActivite > 12) {
			return invalid("dureeActivite", "La durée d'activité doit être comprise entre 1 et 12 mois")
		}
		return nil
	}
	if in.turnover() <= 0 {
		return invalid("chiffreAffaire", "Le chiffre d'affaires doit être positif")
	}
	if in.Charges < 0 {
		return invalid("charges", "Les charges ne peuvent pas être négatives")
	}
	if floatOr(in.Metering, 0) < 0 {
		return invalid("metering", "Le volume de carburant ne peut pas être négatif")
	}
	return nil
}

// shareUnlisted returns the unlisted share percentage; fractions up to 1
// are read as ratios.
func (in *ISInput) shareUnlisted() (float64, bool) {
	if in.PourcentageActionsNonCotees == nil {
		return 0, false
	}
	p := *in.PourcentageActionsNonCotees
	if p <= 1 {
		p *= 100
	}
	return p, true
}

type isConstants struct {
	GeneralRate      float64 `json:"TAUX_GENERAL"`
	ReducedRate      float64 `json:"TAUX_REDUIT"`
	MinGeneral       float64 `json:"TAUX_MIN_GENERAL"`
	MinConstruction  float64 `json:"TAUX_MIN_BTP"`
	MinRealEstate    float64 `json:"TAUX_MIN_IMMOBILIER"`
	PerLitre         float64 `json:"TAUX_STATION"`
	AbsoluteMin      float64 `json:"IMPOT_MIN_ABSOLU"`
	SRTB             float64 `json:"REDEVANCE_SRTB"`
	SecuritiesShare  float64 `json:"QUOTE_PART_MOBILIER"`
	RiskYears        float64 `json:"CAPITAL_RISQUE_DUREE_MAX"`
	RiskPct          float64 `json:"CAPITAL_RISQUE_POURCENT_MIN"`
	DetailedRiskYear float64 `json:"CAPITAL_RISQUE_DUREE_MAX_DETAILLE"`
	DetailedRiskPct  float64 `json:"CAPITAL_RISQUE_POURCENT_MIN_DETAILLE"`
}

func defaultISConstants() isConstants {
	return isConstants{
		GeneralRate:      0.30,
		ReducedRate:      0.25,
		MinGeneral:       0.01,
		MinConstruction:  0.03,
		MinRealEstate:    0.10,
		PerLitre:         0.60,
		AbsoluteMin:      250_000,
		SRTB:             4_000,
		SecuritiesShare:  0.30,
		RiskYears:        5,
		RiskPct:          70,
		DetailedRiskYear: 15,
		DetailedRiskPct:  50,
	}
}

func (k isConstants) rate(sector rates.ProfitSector) decimal.Decimal {
	if sector.Rate == rates.RateReduced {
		return dec(k.ReducedRate)
	}
	return dec(k.GeneralRate)
}

func (k isConstants) minRate(sector rates.ProfitSector) decimal.Decimal {
	switch sector.Floor {
	case rates.FloorRealEstate:
		return dec(k.MinRealEstate)
	case rates.FloorConstruction:
		return dec(k.MinConstruction)
	}
	return dec(k.MinGeneral)
}

func isCalculator() Calculator {
	newInput, estimate := typed(estimateIS)
	return Calculator{
		Code:         domain.TaxIS,
		Title:        "l'Impôt sur les Sociétés",
		TaxpayerType: "Société",
		Regime:       "IS",
		MissingData:  []string{"taux_is", "taux_minimum", "impot_minimum_absolu"},
		NewInput:     newInput,
		Estimate:     estimate,
	}
}

func estimateIS(in *ISInput, env Env) (*domain.Estimation, error) {
	k := defaultISConstants()
	if err := env.Load(&k); err != nil {
		return nil, err
	}
	var est *domain.Estimation
	if in.detailed() {
		est = estimateISDetailed(in, k)
	} else {
		est = estimateISGeneral(in, k)
	}

	waived := regime.FirstYearAcompteWaived(in.AnneeCreation, env.Year)
	if n := installmentNote("IS", in.ImpotPrecedent, 4, waived); n != nil {
		est.Notes = append(est.Notes, *n)
	}
	est.Obligations = quarterlyInstallments("IS")
	est.Config = domain.TaxConfig{
		Title: "Impôt sur les Sociétés (IS)",
		Label: "IS",
		Description: "Impôt sur les bénéfices des sociétés. Le taux est de 30% (25% pour l'enseignement et l'industrie) " +
			"avec un impôt minimum calculé sur le chiffre d'affaires et un plancher absolu de 250 000 FCFA.",
		CompetentCenter: centerSmallBusinesses,
		PaymentSchedule: quarterlySchedule("IS"),
	}
	return est, nil
}

func estimateISGeneral(in *ISInput, k isConstants) *domain.Estimation {
	sector, known := rates.ISSector(in.Secteur)
	revenue := dec(in.turnover())
	profit := decimal.Max(decimal.Zero, revenue.Sub(dec(in.Charges)))
	rate := k.rate(sector)
	minRate := k.minRate(sector)

	nominal := profit.Mul(rate)
	floor := maxDec(revenue.Mul(minRate), dec(k.AbsoluteMin))
	gross := maxDec(nominal, floor)

	levy := decimal.Zero
	if sector.Floor == rates.FloorFuel && in.Metering != nil {
		levy = dec(*in.Metering).Mul(dec(k.PerLitre))
	}

	years, pct := floatOr(in.DureeCreation, math.Inf(1)), 0.0
	if p, ok := in.shareUnlisted(); ok {
		pct = p
	}
	riskExempt := regime.CapitalRiskExempt(years, pct, k.RiskYears, k.RiskPct)
	exempt := in.EstExoneree || riskExempt

	total := gross.Add(levy)
	if exempt {
		total = decimal.Zero
	}

	details := []domain.LineItem{
		lineItem("Impôt sur les Sociétés (IS)",
			fmt.Sprintf("Taux de %s appliqué au bénéfice imposable, minimum de %s du chiffre d'affaires", formatRate(rate), formatRate(minRate)),
			gross, formatRate(rate),
			fmt.Sprintf("max(%s × %s, max(%s × %s, %s)) = %s",
				formatDec(profit), formatRate(rate), formatDec(revenue), formatRate(minRate), formatDec(dec(k.AbsoluteMin)), formatDec(gross))),
	}
	if levy.IsPositive() {
		details = append(details, lineItem("Taxe station-service",
			"Taxe sur le volume de carburant vendu", levy, fmt.Sprintf("%v FCFA/litre", k.PerLitre),
			fmt.Sprintf("%v litres × %v = %s", *in.Metering, k.PerLitre, formatDec(levy))))
	}

	notes := []domain.Note{}
	if exempt {
		reason := "Exonération déclarée par le contribuable."
		if riskExempt {
			reason = fmt.Sprintf("Société de capital-risque de moins de %v ans détenue à au moins %v%% par des actions non cotées.", k.RiskYears, k.RiskPct)
		}
		notes = append(notes, note("Exonération", reason, "Le montant d'IS dû est ramené à zéro."))
	}
	if !known && in.Secteur != "" {
		notes = append(notes, note("Secteur d'activité",
			fmt.Sprintf("Secteur %q non répertorié : la règle générale a été appliquée.", in.Secteur)))
	}

	return &domain.Estimation{
		Total:    money(total),
		Currency: domain.Currency,
		Regime:   "IS (Impôt sur les Sociétés)",
		Variables: []domain.InputVariable{
			variable("Chiffre d'affaires", "Revenus totaux de l'entreprise", in.turnover()),
			variable("Charges déductibles", "Charges et dépenses déductibles du bénéfice imposable", in.Charges),
			variable("Bénéfice imposable", "Différence entre revenus et charges", profit.InexactFloat64()),
		},
		Details: details,
		Notes:   notes,
	}
}

func estimateISDetailed(in *ISInput, k isConstants) *domain.Estimation {
	rateSector, _ := rates.ISSector(in.TypeSociete)
	minSector, _ := rates.ISSector(in.Secteur)
	rate := k.rate(rateSector)
	minRate := k.minRate(minSector)

	rcmNet := dec(in.RCM).Mul(decimal.NewFromInt(1).Sub(dec(k.SecuritiesShare)))
	base := decimal.Max(decimal.Zero, dec(in.BN).Sub(rcmNet))
	theoretical := base.Mul(rate)

	standardMin := dec(in.PE).Mul(minRate)
	stationMin := dec(floatOr(in.Vpetrole, 0)).Mul(dec(k.PerLitre))
	effectiveMin := maxDec(standardMin, stationMin, dec(k.AbsoluteMin))
	corporate := maxDec(theoretical, effectiveMin)

	riskExempt := false
	if p, ok := in.shareUnlisted(); ok && in.DureeCreation != nil {
		riskExempt = regime.CapitalRiskExempt(*in.DureeCreation, p, k.DetailedRiskYear, k.DetailedRiskPct)
	}
	exempt := in.EstExoneree || riskExempt

	final := corporate
	if exempt {
		final = decimal.Zero
	}
	srtb := dec(k.SRTB)
	total := final.Add(srtb)

	months := 12
	if in.DureeActivite != nil {
		months = *in.DureeActivite
	}
	prorata := decimal.NewFromInt(int64(months)).Div(decimal.NewFromInt(12))
	if months != 12 {
		final = final.Mul(prorata)
		srtb = srtb.Mul(prorata)
		total = total.Mul(prorata)
	}

	details := []domain.LineItem{
		lineItem("Impôt sur les Sociétés (IS)",
			fmt.Sprintf("max(impôt théorique, impôt minimum) au taux de %s", formatRate(rate)),
			final, formatRate(rate),
			fmt.Sprintf("Base = max(0, %s - %s) = %s ; max(%s, max(%s, %s, %s)) = %s",
				formatDec(dec(in.BN)), formatDec(rcmNet), formatDec(base),
				formatDec(theoretical), formatDec(standardMin), formatDec(stationMin), formatDec(dec(k.AbsoluteMin)),
				formatDec(corporate))),
		lineItem("Redevance SRTB", "Redevance audiovisuelle forfaitaire", srtb, "Forfait",
			fmt.Sprintf("Redevance SRTB = %s", formatDec(srtb))),
	}

	vars := []domain.InputVariable{
		variable("Bénéfice net", "Bénéfice net comptable de l'exercice", in.BN),
		variable("Produits encaissables", "Base de l'impôt minimum", in.PE),
		variable("Revenus de capitaux mobiliers", "Revenus mobiliers dont 30% restent imposables", in.RCM),
		variable("Base imposable", "Bénéfice net diminué des revenus mobiliers nets", base.InexactFloat64()),
	}
	if in.Vpetrole != nil {
		vars = append(vars, domain.InputVariable{
			Label: "Volume de produits pétroliers", Description: "Litres vendus dans l'année",
			Value: *in.Vpetrole, Currency: "litres",
		})
	}

	notes := []domain.Note{}
	if exempt {
		reason := "Exonération déclarée par le contribuable."
		if riskExempt {
			reason = fmt.Sprintf("Société de capital-risque de moins de %v ans détenue à au moins %v%% par des actions non cotées.",
				k.DetailedRiskYear, k.DetailedRiskPct)
		}
		notes = append(notes, note("Exonération", reason, "Seule la redevance SRTB reste due."))
	}
	if months != 12 {
		notes = append(notes, note("Prorata temporis",
			fmt.Sprintf("Activité de %d mois sur l'exercice : tous les montants sont multipliés par %d/12.", months, months)))
	}

	return &domain.Estimation{
		Total:     money(total),
		Currency:  domain.Currency,
		Regime:    "IS (Impôt sur les Sociétés) - Calcul détaillé",
		Variables: vars,
		Details:   details,
		Notes:     notes,
	}
}
