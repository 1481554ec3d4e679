package calc

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/shopspring/decimal"
)

// Operation kinds subject to the withholding advance.
const (
	OpImport   = "IMPORTATION"
	OpPurchase = "ACHATCOMMERCIAL"
	OpSupplies = "FOURNITURETRAVAUX"
	OpServices = "PRESTATIONSERVICE"
)

// normalizeOperation accepts "ACHAT_COMMERCIAL", "AchatCommercial" and
// "achat-commercial" alike.
func normalizeOperation(s string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// Operation is one taxable transaction in operations mode.
type Operation struct {
	Type         string  `json:"type"`
	Amount       float64 `json:"montant"`
	PublicClient bool    `json:"beneficiairePublic,omitempty"`
}

// AIBInput is the advance on profit tax request. It runs in operations
// mode when Operations is non-empty and in net mode otherwise.
type AIBInput struct {
	Period
	Collected            *float64 `json:"aibCollected,omitempty"`
	Granted              *float64 `json:"aibGranted,omitempty"`
	IncludeCCI           *bool    `json:"includeCCI,omitempty"`
	IncludeRedevanceSRTB *bool    `json:"includeRedevanceSRTB,omitempty"`
	CustomRedevance      *float64 `json:"customRedevance,omitempty"`
	// CustomCCIRate is an amount despite its name.
	CustomCCIRate *float64 `json:"customCCIRate,omitempty"`

	Operations  []Operation `json:"operations,omitempty"`
	Registered  bool        `json:"estEnregistre,omitempty"`
	NewBusiness bool        `json:"nouvelleEntreprise,omitempty"`
	UnderTPS    bool        `json:"sousRegimeTPS,omitempty"`
	AgeMonths   int         `json:"ageEntrepriseMois,omitempty"`
	Month       string      `json:"mois,omitempty"`
}

func (in *AIBInput) Revenue() (float64, bool) {
	if len(in.Operations) > 0 {
		sum := 0.0
		for _, op := range in.Operations {
			sum += op.Amount
		}
		return sum, true
	}
	if in.Collected != nil {
		return *in.Collected, true
	}
	return 0, false
}

func (in *AIBInput) Validate() error {
	if len(in.Operations) > 0 {
		for i, op := range in.Operations {
			if op.Amount <= 0 {
				return invalid(fmt.Sprintf("operations[%d].montant", i), "Le montant de la transaction doit être positif")
			}
		}
		if in.AgeMonths < 0 {
			return invalid("ageEntrepriseMois", "L'âge de l'entreprise ne peut pas être négatif")
		}
		return nil
	}
	if in.Collected == nil {
		return invalid("aibCollected", "Le montant de l'AIB collecté est requis")
	}
	if *in.Collected < 0 || floatOr(in.Granted, 0) < 0 {
		return invalid("aibCollected", "Les montants d'AIB ne peuvent pas être négatifs")
	}
	return nil
}

type aibConstants struct {
	RateLow   float64 `json:"TAUX_1"`
	RateMid   float64 `json:"TAUX_3"`
	RateHigh  float64 `json:"TAUX_5"`
	ORTB      float64 `json:"REDEVANCE_ORTB"`
	SRTB      float64 `json:"REDEVANCE_SRTB"`
	ORTBMonth string  `json:"MOIS_REDEVANCE_ORTB"`
}

func aibCalculator() Calculator {
	newInput, estimate := typed(estimateAIB)
	return Calculator{
		Code:         domain.TaxAIB,
		Title:        "l'Acompte sur l'Impôt sur les Bénéfices",
		TaxpayerType: "Entreprise",
		Regime:       "AIB",
		MissingData:  []string{"taux_aib", "seuils_imposition", "barèmes_mensuels"},
		NewInput:     newInput,
		Estimate:     estimate,
		AggregateDefaults: func(in Input) {
			off := false
			a := in.(*AIBInput)
			a.IncludeCCI = &off
			a.IncludeRedevanceSRTB = &off
		},
	}
}

func estimateAIB(in *AIBInput, env Env) (*domain.Estimation, error) {
	k := aibConstants{
		RateLow:   0.01,
		RateMid:   0.03,
		RateHigh:  0.05,
		ORTB:      4_000,
		SRTB:      4_000,
		ORTBMonth: "mars",
	}
	if err := env.Load(&k); err != nil {
		return nil, err
	}

	var est *domain.Estimation
	if len(in.Operations) > 0 {
		est = estimateAIBOperations(in, env, k)
	} else {
		est = estimateAIBNet(in, k)
	}
	est.Currency = domain.Currency
	est.Notes = append(est.Notes, note("Obligations de conservation",
		"Conservez tous les justificatifs de paiement d'AIB.",
		"Les justificatifs doivent être conservés pendant 5 ans.",
		"Tenue d'un registre des acomptes versés et des retenues subies."))
	est.Obligations = []domain.Obligation{
		obligation("AIB - Déclaration mensuelle",
			"L'AIB doit être déclaré et payé avant le 10 du mois suivant la période d'activité.",
			deadline("10 du mois suivant", "Déclaration et paiement de l'AIB mensuel.")),
		obligation("AIB - Déclaration annuelle",
			"Déclaration annuelle obligatoire avec le bilan OHADA avant le 30 avril.",
			deadline("30 avril", "Déclaration annuelle avec le bilan OHADA.")),
		obligation("AIB - Régularisation",
			"Régularisation de l'AIB avec l'impôt sur les bénéfices final au 30 avril.",
			deadline("30 avril", "Régularisation de l'AIB avec l'impôt final.")),
	}
	est.Config = domain.TaxConfig{
		Title: "Acompte sur l'Impôt sur les Bénéfices",
		Label: "AIB",
		Description: "L'AIB est un acompte mensuel sur l'impôt sur les bénéfices. Il est imputable sur l'impôt final " +
			"de l'année et doit être déclaré et payé avant le 10 du mois suivant.",
		CompetentCenter: centerSmallBusinesses,
		PaymentSchedule: []domain.PaymentDate{
			{Date: "10 du mois suivant", Description: "Déclaration et paiement mensuel de l'AIB"},
			{Date: "30 avril", Description: "Déclaration annuelle et régularisation"},
		},
	}
	return est, nil
}

func surchargeSuffix(cci, srtb, custom bool) string {
	switch {
	case !cci && !srtb:
		return " (Base uniquement)"
	case !cci:
		return " (Sans CCI)"
	case !srtb:
		return " (Sans SRTB)"
	case custom:
		return " (Personnalisé)"
	}
	return ""
}

func estimateAIBNet(in *AIBInput, k aibConstants) *domain.Estimation {
	collected := floatOr(in.Collected, 0)
	granted := floatOr(in.Granted, 0)
	includeCCI := boolOr(in.IncludeCCI, true)
	includeSRTB := boolOr(in.IncludeRedevanceSRTB, true)

	raw := dec(collected).Sub(dec(granted))
	net := dec(money(raw))
	srtb := decimal.Zero
	if includeSRTB {
		srtb = dec(floatOr(in.CustomRedevance, k.SRTB))
	}
	cci := decimal.Zero
	if includeCCI {
		cci = dec(floatOr(in.CustomCCIRate, 0))
	}
	total := decimal.Max(net, decimal.Zero).Add(srtb).Add(cci)

	direction := "Crédit"
	if raw.IsPositive() {
		direction = "Débit"
	}
	vars := []domain.InputVariable{
		variable("AIB Collecté", "Montant total de l'AIB collecté", collected),
		variable("AIB Accordé", "Montant total de l'AIB accordé", granted),
	}
	details := []domain.LineItem{
		lineItem("AIB Net (Acompte sur l'Impôt sur les Bénéfices)",
			"Calculé comme la différence entre l'AIB collecté et l'AIB accordé", net, direction,
			fmt.Sprintf("AIB Net = %s (collecté) - %s (accordé) = %s", FormatAmount(collected), FormatAmount(granted), formatDec(net))),
	}
	notes := []domain.Note{
		note("Principe de l'AIB",
			"L'AIB est un acompte sur l'impôt sur les bénéfices (IBA/IS) à payer mensuellement.",
			"L'AIB collecté représente ce que l'entreprise doit payer.",
			"L'AIB accordé représente ce qui a été retenu à la source ou payé d'avance."),
	}
	if net.IsNegative() {
		notes = append(notes, note("Crédit d'AIB",
			fmt.Sprintf("L'AIB accordé dépasse l'AIB collecté : crédit de %s.", formatDec(net.Neg())),
			"Ce crédit est imputable sur les échéances suivantes et n'est pas déduit du total estimé."))
	}
	if srtb.IsPositive() {
		vars = append(vars, variable("Redevance SRTB", "Redevance audiovisuelle nationale", srtb.InexactFloat64()))
		details = append(details, lineItem("Redevance SRTB",
			"Redevance ajoutée à l'AIB pour la radiodiffusion et télévision nationale.", srtb, formatDec(srtb),
			fmt.Sprintf("Une redevance audiovisuelle de %s est ajoutée.", formatDec(srtb))))
	}
	if cci.IsPositive() {
		vars = append(vars, variable("Contribution CCI", "Contribution à la Chambre de Commerce et d'Industrie", cci.InexactFloat64()))
		details = append(details, lineItem("Contribution CCI Bénin",
			"Contribution à la Chambre de Commerce et d'Industrie du Bénin personnalisée.", cci, formatDec(cci),
			"Montant personnalisé pour l'entreprise."))
	}
	if !includeCCI && !includeSRTB {
		notes = append(notes, note("Calcul simplifié",
			"Ce calcul n'inclut ni la contribution CCI Bénin ni la redevance SRTB.",
			"Le montant total correspond uniquement à l'AIB net de base."))
	}

	custom := in.CustomCCIRate != nil || in.CustomRedevance != nil
	return &domain.Estimation{
		Total:     money(total),
		Regime:    "Régime AIB" + surchargeSuffix(includeCCI, includeSRTB, custom),
		Variables: vars,
		Details:   details,
		Notes:     notes,
	}
}

func (k aibConstants) rate(op Operation, registered bool) decimal.Decimal {
	low, mid, high := dec(k.RateLow), dec(k.RateMid), dec(k.RateHigh)
	switch normalizeOperation(op.Type) {
	case OpImport:
		return low
	case OpPurchase:
		if registered {
			return low
		}
	case OpSupplies:
		if op.PublicClient && registered {
			return low
		}
	case OpServices:
		if registered {
			return mid
		}
	}
	return high
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

func estimateAIBOperations(in *AIBInput, env Env, k aibConstants) *domain.Estimation {
	exempt := regime.NewBusinessGrace(in.NewBusiness, in.UnderTPS, in.AgeMonths)

	month := strings.ToLower(strings.TrimSpace(in.Month))
	if month == "" {
		month = frenchMonths[env.Now.Month()-1]
	}
	ortb := decimal.Zero
	if month == strings.ToLower(k.ORTBMonth) {
		ortb = dec(k.ORTB)
	}

	advance := decimal.Zero
	turnover := 0.0
	var details []domain.LineItem
	for i, op := range in.Operations {
		turnover += op.Amount
		rate := k.rate(op, in.Registered)
		amount := dec(op.Amount).Mul(rate)
		if exempt {
			amount = decimal.Zero
		}
		advance = advance.Add(amount)
		details = append(details, lineItem(
			fmt.Sprintf("Opération %d - %s", i+1, op.Type),
			fmt.Sprintf("Acompte sur une transaction de %s", FormatAmount(op.Amount)),
			amount, formatRate(rate),
			fmt.Sprintf("%s × %s = %s", FormatAmount(op.Amount), formatRate(rate), formatDec(amount))))
	}
	if ortb.IsPositive() {
		details = append(details, lineItem("Redevance ORTB", "Redevance due au titre du mois de mars", ortb, "Forfait",
			"Redevance ORTB de "+formatDec(ortb)+" ajoutée pour le mois de "+month+"."))
	}

	due := time.Date(env.Now.Year(), env.Now.Month()+1, 10, 0, 0, 0, 0, time.UTC)
	notes := []domain.Note{
		note("Taux d'AIB",
			"Importations : 1%",
			"Achats commerciaux : 1% si immatriculé, 5% sinon",
			"Fournitures et travaux : 1% pour un bénéficiaire public si immatriculé, 5% sinon",
			"Prestations de services : 3% si immatriculé, 5% sinon"),
		note("Échéance", "Paiement au plus tard le "+due.Format("02/01/2006")+"."),
	}
	if exempt {
		notes = append(notes, note("Exonération",
			fmt.Sprintf("Entreprise nouvelle relevant de la TPS depuis %d mois au plus : acompte AIB exonéré.", regime.NewBusinessGraceMonths)))
	}

	return &domain.Estimation{
		Total:  money(advance.Add(ortb)),
		Regime: "Régime AIB (Opérations)",
		Variables: []domain.InputVariable{
			variable("Montant des opérations", "Somme des montants des transactions déclarées", turnover),
			flag("Nombre d'opérations", "Nombre de transactions déclarées", len(in.Operations)),
			flag("Immatriculé", "L'entreprise dispose d'un IFU", in.Registered),
		},
		Details: details,
		Notes:   notes,
	}
}
