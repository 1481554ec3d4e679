package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"go.uber.org/zap"
)

var regimeTaxes = map[domain.Regime][]domain.ApplicableTax{
	domain.RegimeReel: {
		{
			Code: domain.TaxAIB, Name: "Acompte sur Impôt assis sur le Bénéfice", Category: "Impôt direct",
			Applicability: "Obligatoire pour régime réel", Frequency: "Mensuelle",
			Description: "Avance sur impôt sur les bénéfices", Priority: "high", Required: true,
		},
		{
			Code: domain.TaxIRCM, Name: "Impôt sur le Revenu des Capitaux Mobiliers", Category: "Impôt direct",
			Applicability: "Obligatoire pour régime réel", Frequency: "Annuelle",
			Description: "Impôt sur les revenus de capitaux mobiliers", Priority: "medium",
		},
		{
			Code: domain.TaxIRF, Name: "Impôt sur le Revenu Foncier", Category: "Impôt direct",
			Applicability: "Applicable aux personnes physiques, entreprises individuelles (IBA) et associés de sociétés " +
				"immobilières non soumises à l'IS. Non applicable aux sociétés soumises à l'IS.",
			Frequency:   "Annuelle",
			Description: "Impôt sur les revenus fonciers (loyers, terrains, baux, concessions, etc.) au taux unique de 12% + redevance ORTB 4 000 FCFA.",
			Priority:    "medium",
		},
		{
			Code: domain.TaxITS, Name: "Impôt sur les Traitements et Salaires", Category: "Impôt direct",
			Applicability: "Obligatoire pour régime réel", Frequency: "Mensuelle",
			Description: "Impôt sur les salaires versés", Priority: "high", Required: true,
		},
		{
			Code: domain.TaxPatente, Name: "Contribution des Patentes", Category: "Contribution locale",
			Applicability: "Obligatoire pour régime réel", Frequency: "Annuelle",
			Description: "Contribution locale liée à l'activité exercée", Priority: "high", Required: true,
		},
		{
			Code: domain.TaxTVA, Name: "Taxe sur la Valeur Ajoutée", Category: "Impôt indirect",
			Applicability: "Obligatoire pour régime réel", Frequency: "Mensuelle ou Trimestrielle",
			Description: "Taxe sur la consommation facturée au client final", Priority: "high", Required: true,
		},
		{
			Code: domain.TaxVPS, Name: "Versement Patronal sur Salaires", Category: "Contribution sociale",
			Applicability: "Obligatoire pour régime réel", Frequency: "Mensuelle",
			Description: "Versement sur les salaires versés", Priority: "medium", Required: true,
		},
		{
			Code: domain.TaxIBA, Name: "Impôt sur les Bénéfices d'affaire", Category: "Impôt direct",
			Applicability: "Spécifique aux entreprises individuelles", Frequency: "Annuelle",
			Description: "Impôt sur les Bénéfices d'affaire", Priority: "medium", Required: true,
			OnlyFor: []string{domain.TaxpayerIndividual},
		},
		{
			Code: domain.TaxIS, Name: "Impôt sur les Sociétés", Category: "Impôt direct",
			Applicability: "Spécifique aux sociétés", Frequency: "Annuelle",
			Description: "Impôt sur les bénéfices des sociétés", Priority: "high", Required: true,
			OnlyFor: []string{domain.TaxpayerCompany},
		},
	},
	domain.RegimeTPS: {
		{
			Code: domain.TaxTPS, Name: "Taxe Professionnelle Synthétique", Category: "Impôt forfaitaire",
			Applicability: "Obligatoire pour régime TPS", Frequency: "Annuelle",
			Description: "Impôt forfaitaire pour les petites entreprises", Priority: "high", Required: true,
		},
	},
}

// commonTaxes apply under both regimes.
var commonTaxes = []domain.ApplicableTax{
	{
		Code: domain.TaxTVM, Name: "Taxe sur les Véhicules à Moteur", Category: "Impôt indirect",
		Applicability: "Applicable aux détenteurs de véhicules à moteur", Frequency: "Annuelle",
		Description: "Taxe annuelle due pour chaque véhicule immatriculé au nom de l'entreprise", Priority: "high",
	},
	{
		Code: domain.TaxTFU, Name: "Taxe Foncière Unique", Category: "Impôt direct local",
		Applicability: "Applicable aux propriétaires de biens bâtis et non bâtis, ainsi qu'aux usufruitiers, " +
			"emphytéotes ou preneurs de baux à construction.",
		Frequency: "Annuelle (avec acomptes : 50% avant le 10 février et solde avant le 30 avril)",
		Description: "Impôt local sur les propriétés bâties (base : valeur locative) et non bâties " +
			"(base : évaluation administrative).",
		Priority: "high",
		Required: true,
	},
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// Profiler classifies a taxpayer and lists the taxes it is liable to.
type Profiler struct {
	clock  port.Clock
	logger *zap.Logger
}

// NewProfiler creates a profiler.
func NewProfiler(clock port.Clock, logger *zap.Logger) *Profiler {
	if clock == nil {
		clock = port.SystemClock
	}
	return &Profiler{clock: clock, logger: logger}
}

// Profile returns the taxpayer profile, or a *domain.Failure when the
// request is invalid or targets an unpublished year.
func (p *Profiler) Profile(ctx context.Context, req *domain.ProfileRequest) (*domain.ProfileResult, error) {
	_, span := tracer.Start(ctx, "Profiler.Profile")
	defer span.End()

	now := p.clock.Now()
	if err := validateProfile(req); err != nil {
		f := domain.NewFailure("profilage_calc", now, domain.ErrorDetail{
			Code:     domain.CodeValidation,
			Message:  err.Error(),
			Details:  "Erreur de validation des données d'entrée pour le profilage fiscal.",
			Severity: domain.SeverityError,
		}, domain.FailureContext{TaxpayerType: "Non déterminé", Regime: "Non déterminé"})
		f.Context.MissingData = []string{"donnees_entree"}
		return nil, f
	}

	year := domain.ExtractYear(req.FiscalPeriod, now)
	if !domain.YearPublished(year) {
		f := domain.NewFailure("profilage_calc", now, domain.ErrorDetail{
			Code:    domain.CodeProfileUnavailable,
			Message: fmt.Sprintf("Les données fiscales pour l'année %d ne sont pas encore disponibles.", year),
			Details: fmt.Sprintf("Le profilage fiscal pour l'année %d ne peut pas être effectué car les données officielles "+
				"n'ont pas encore été publiées par l'administration fiscale béninoise.", year),
			Severity: domain.SeverityInfo,
		}, domain.FailureContext{
			TaxpayerType: req.TaxpayerType,
			Regime:       "À déterminer",
			Revenue:      domain.Float(req.Revenue),
			MissingData:  []string{"donnees_fiscales", "tarifs_impots", "reglementation_fiscale"},
		})
		return nil, f
	}

	profile := domain.TaxProfile{
		TaxpayerType:   req.TaxpayerType,
		AnnualRevenue:  req.Revenue,
		Regime:         regime.Classify(req.Revenue),
		FiscalPeriod:   req.FiscalPeriod,
		FinancialStart: req.FinancialStart,
	}

	taxes := make([]domain.ApplicableTax, 0, 12)
	for _, group := range [][]domain.ApplicableTax{regimeTaxes[profile.Regime], commonTaxes} {
		for _, t := range group {
			if appliesTo(t, profile.TaxpayerType) {
				taxes = append(taxes, t)
			}
		}
	}

	p.logger.Debug("taxpayer profiled",
		zap.String("regime", string(profile.Regime)),
		zap.String("type", profile.TaxpayerType),
		zap.Int("taxes", len(taxes)),
	)
	return &domain.ProfileResult{Profile: profile, Taxes: taxes}, nil
}

func appliesTo(t domain.ApplicableTax, taxpayerType string) bool {
	if len(t.OnlyFor) == 0 {
		return true
	}
	for _, only := range t.OnlyFor {
		if strings.EqualFold(only, taxpayerType) {
			return true
		}
	}
	return false
}

func validateProfile(req *domain.ProfileRequest) error {
	switch {
	case req.Revenue < 0:
		return errors.New("le chiffre d'affaires ne peut pas être négatif")
	case strings.TrimSpace(req.TaxpayerType) == "":
		return errors.New("le type de contribuable est requis")
	case strings.TrimSpace(req.FiscalPeriod) == "":
		return errors.New("la période fiscale est requise")
	case strings.TrimSpace(req.FinancialStart) == "":
		return errors.New("la date de début d'exercice est requise")
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, req.FinancialStart); err == nil {
			return nil
		}
	}
	return fmt.Errorf("la date de début d'exercice %q est invalide", req.FinancialStart)
}
