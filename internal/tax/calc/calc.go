// Package calc holds one calculator per tax and the skeleton that runs
// them: validate, gate on the fiscal year, resolve constants, estimate.
package calc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"
)

// Input is the decoded request of one calculator.
type Input interface {
	FiscalPeriod() string
	Validate() error
}

// Period is embedded by every input.
type Period struct {
	PeriodeFiscale string `json:"periodeFiscale"`
}

func (p *Period) FiscalPeriod() string { return p.PeriodeFiscale }

// DefaultPeriod sets the period when the input carries none.
func (p *Period) DefaultPeriod(v string) {
	if p.PeriodeFiscale == "" {
		p.PeriodeFiscale = v
	}
}

// PeriodDefaulter is implemented by every input embedding Period.
type PeriodDefaulter interface {
	DefaultPeriod(v string)
}

// RevenueReporter is implemented by inputs that carry a turnover figure,
// which then appears in failure contexts.
type RevenueReporter interface {
	Revenue() (float64, bool)
}

// Env is what a calculator sees besides its input.
type Env struct {
	Year      int
	Now       time.Time
	Constants domain.Constants
}

// Load overlays the resolved constants onto dst, a pointer to the
// calculator's typed defaults.
func (e Env) Load(dst any) error {
	return e.Constants.Overlay(dst)
}

// Calculator describes one tax.
type Calculator struct {
	Code  domain.TaxCode
	Title string
	// TaxpayerType and Regime label failure contexts.
	TaxpayerType string
	Regime       string
	// MissingData names the constants a year-gated failure reports.
	MissingData []string
	NewInput    func() Input
	Estimate    func(Input, Env) (*domain.Estimation, error)
	// Conditional, when set, reports whether the input carries anything
	// to compute. The aggregate path skips the code silently otherwise.
	Conditional func(Input) bool
	// AggregateDefaults presets options before decoding when the
	// calculator runs inside an aggregated estimation.
	AggregateDefaults func(Input)
}

// Deps are the collaborators of Run.
type Deps struct {
	Provider port.ConstantsProvider
	Clock    port.Clock
	// Strict turns a constants miss into a failure instead of falling back
	// to the built-in defaults.
	Strict bool
}

// Run executes c on in. It never panics and never returns nil.
func Run(ctx context.Context, c Calculator, in Input, deps Deps) (res domain.Result) {
	clock := deps.Clock
	if clock == nil {
		clock = port.SystemClock
	}
	now := clock.Now()

	defer func() {
		if r := recover(); r != nil {
			res = c.failure(in, now, domain.ErrorDetail{
				Code:     domain.CodeInternal,
				Message:  fmt.Sprintf("Erreur interne lors du calcul de %s.", c.Title),
				Details:  fmt.Sprint(r),
				Severity: domain.SeverityError,
			})
		}
	}()

	if err := in.Validate(); err != nil {
		return c.fromError(in, now, err)
	}

	year := domain.ExtractYear(in.FiscalPeriod(), now)
	if !domain.YearPublished(year) {
		return c.yearUnavailable(in, now, year)
	}

	consts, note, fail := c.resolveConstants(ctx, in, deps, now, year)
	if fail != nil {
		return fail
	}

	est, err := c.Estimate(in, Env{Year: year, Now: now, Constants: consts})
	if err != nil {
		return c.fromError(in, now, err)
	}
	if note != nil {
		est.Notes = append(est.Notes, *note)
	}
	return est
}

func (c Calculator) resolveConstants(ctx context.Context, in Input, deps Deps, now time.Time, year int) (domain.Constants, *domain.Note, *domain.Failure) {
	if deps.Provider == nil {
		return nil, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, c.failure(in, now, domain.ErrorDetail{
			Code:     domain.CodeInternal,
			Message:  "Requête annulée avant la résolution des constantes.",
			Details:  err.Error(),
			Severity: domain.SeverityError,
		})
	}

	consts, err := deps.Provider.GetConstants(ctx, c.Code, year)
	if err == nil && len(consts) > 0 {
		return consts, nil, nil
	}

	if deps.Strict {
		detail := domain.ErrorDetail{
			Code:     domain.CodeConstantsUnavailable,
			Message:  fmt.Sprintf("Les constantes de %s pour l'année %d sont introuvables.", c.Title, year),
			Severity: domain.SeverityInfo,
		}
		if err != nil {
			detail.Details = err.Error()
		}
		return nil, nil, c.failure(in, now, detail)
	}

	reason := "aucune constante publiée"
	var nf *domain.ErrNotFound
	if err != nil && !errors.As(err, &nf) {
		reason = "référentiel des constantes indisponible"
	}
	return nil, &domain.Note{
		Title: "Constantes fiscales",
		Descriptions: []string{
			fmt.Sprintf("%s pour %s %d : les valeurs du barème intégré ont été utilisées.", capitalize(reason), c.Code, year),
		},
	}, nil
}

func (c Calculator) yearUnavailable(in Input, now time.Time, year int) *domain.Failure {
	f := c.failure(in, now, domain.ErrorDetail{
		Code:    domain.CodeConstantsUnavailable,
		Message: fmt.Sprintf("Les constantes de calcul de %s pour l'année %d ne sont pas encore disponibles.", c.Title, year),
		Details: fmt.Sprintf("Le calcul pour l'année %d ne peut pas être effectué car les taux officiels "+
			"n'ont pas encore été publiés par l'administration fiscale béninoise.", year),
		Severity: domain.SeverityInfo,
	})
	f.Context.MissingData = c.MissingData
	return f
}

// fromError maps a calculator error to its failure code.
func (c Calculator) fromError(in Input, now time.Time, err error) *domain.Failure {
	var (
		ve *domain.ErrValidation
		te *domain.ErrThresholdExceeded
		rf *rates.RateNotFoundError
	)
	switch {
	case errors.As(err, &ve):
		f := c.failure(in, now, domain.ErrorDetail{
			Code:     domain.CodeValidation,
			Message:  ve.Message,
			Details:  fmt.Sprintf("Erreur de validation des données d'entrée pour le calcul de %s (champ %s).", c.Title, ve.Field),
			Severity: domain.SeverityError,
		})
		f.Context.MissingData = []string{"donnees_entree"}
		return f
	case errors.As(err, &te):
		f := c.failure(in, now, domain.ErrorDetail{
			Code:    domain.CodeThresholdExceeded,
			Message: fmt.Sprintf("Chiffre d'affaires supérieur au seuil du régime TPS (%s).", FormatAmount(te.Threshold)),
			Details: fmt.Sprintf("Avec un chiffre d'affaires de %s, vous dépassez le seuil de %s et devez être soumis au régime réel.",
				FormatAmount(te.Revenue), FormatAmount(te.Threshold)),
			Severity: domain.SeverityWarning,
		})
		f.Context.Regime = "Régime Réel"
		f.Context.MissingData = []string{"regime_reel_parameters"}
		return f
	case errors.As(err, &rf):
		return c.failure(in, now, domain.ErrorDetail{
			Code:     domain.CodeRateNotFound,
			Message:  rf.Error(),
			Details:  fmt.Sprintf("Niveau introuvable : %s.", rf.Level),
			Severity: domain.SeverityError,
		})
	}
	return c.failure(in, now, domain.ErrorDetail{
		Code:     domain.CodeCalculation,
		Message:  fmt.Sprintf("Erreur lors du calcul de %s.", c.Title),
		Details:  err.Error(),
		Severity: domain.SeverityError,
	})
}

func (c Calculator) failure(in Input, now time.Time, detail domain.ErrorDetail) *domain.Failure {
	ctx := domain.FailureContext{TaxpayerType: c.TaxpayerType, Regime: c.Regime}
	if rr, ok := in.(RevenueReporter); ok {
		if v, ok := rr.Revenue(); ok {
			ctx.Revenue = domain.Float(v)
		}
	}
	return domain.NewFailure(strings.ToLower(string(c.Code))+"_calc", now, detail, ctx)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func invalid(field, msg string) error {
	return &domain.ErrValidation{Field: field, Message: msg}
}
