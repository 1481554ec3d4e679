package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/regime"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/estimation")

// Request outcome labels.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// EstimatorOptions tunes the estimator.
type EstimatorOptions struct {
	// Strict makes a constants miss fail the tax instead of falling back
	// to built-in defaults.
	Strict         bool
	MaxConcurrency int
}

// Estimator runs the per-tax calculators of a request concurrently and
// merges their results.
type Estimator struct {
	availability *Availability
	provider     port.ConstantsProvider
	clock        port.Clock
	strict       bool
	bulkhead     *resilience.Bulkhead
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewEstimator creates the estimator with all dependencies injected.
// provider may be nil, in which case built-in constants are used.
func NewEstimator(
	availability *Availability,
	provider port.ConstantsProvider,
	clock port.Clock,
	opts EstimatorOptions,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Estimator {
	if clock == nil {
		clock = port.SystemClock
	}
	return &Estimator{
		availability: availability,
		provider:     provider,
		clock:        clock,
		strict:       opts.Strict,
		bulkhead:     resilience.NewBulkhead(opts.MaxConcurrency),
		metrics:      metrics,
		logger:       logger,
	}
}

// Availability exposes the registry the estimator runs against.
func (e *Estimator) Availability() *Availability { return e.availability }

func (e *Estimator) deps() calc.Deps {
	return calc.Deps{Provider: e.provider, Clock: e.clock, Strict: e.strict}
}

// Calculate runs a single tax on its raw input, without aggregate
// defaults. An unknown or unavailable code yields IMPOT_NOT_FOUND.
func (e *Estimator) Calculate(ctx context.Context, code string, raw json.RawMessage) domain.Result {
	ctx, span := tracer.Start(ctx, "Estimator.Calculate")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", code))

	start := time.Now()
	defer func() {
		e.metrics.RecordRequestDuration("calculate", time.Since(start))
	}()

	tc, _ := domain.ParseTaxCode(code)
	c, ok := e.availability.Calculator(tc)
	if !ok {
		e.metrics.IncrRequest(StatusError)
		return domain.NewFailure("impot", e.clock.Now(), domain.ErrorDetail{
			Code:     domain.CodeTaxNotFound,
			Message:  fmt.Sprintf("L'impôt %s n'est pas disponible pour le calcul", code),
			Severity: domain.SeverityError,
		}, domain.FailureContext{TaxpayerType: "Entreprise"})
	}

	in, fail := e.decode(c, raw, "", false)
	var res domain.Result = fail
	if fail == nil {
		res = calc.Run(ctx, c, in, e.deps())
	}
	e.record(c.Code, res)
	if res.Succeeded() {
		e.metrics.IncrRequest(StatusSuccess)
	} else {
		e.metrics.IncrRequest(StatusError)
	}
	return res
}

// slot holds the outcome of one requested code. Each goroutine writes
// only its own slot.
type slot struct {
	key         string
	code        domain.TaxCode
	unavailable bool
	skipped     bool
	result      domain.Result
}

// Estimate computes every tax in req.DataImpot. It returns an
// aggregate when at least one tax succeeded, and a *domain.Failure
// otherwise.
func (e *Estimator) Estimate(ctx context.Context, req *domain.EstimationRequest) (*domain.AggregatedEstimation, error) {
	ctx, span := tracer.Start(ctx, "Estimator.Estimate")
	defer span.End()
	span.SetAttributes(attribute.Int("estimation.codes", len(req.DataImpot)))

	start := time.Now()
	defer func() {
		e.metrics.RecordRequestDuration("estimation", time.Since(start))
	}()

	now := e.clock.Now()
	revenue := detectRevenue(req)
	reg := regime.Classify(revenue)
	span.SetAttributes(attribute.String("estimation.regime", string(reg)))

	if len(req.DataImpot) == 0 {
		e.metrics.IncrRequest(StatusError)
		return nil, estimationFailure(now, reg, revenue, []domain.ErrorDetail{{
			Code:     domain.CodeEmptyData,
			Message:  "Les données d'impôts ne peuvent pas être vides",
			Details:  `Le champ "dataImpot" doit contenir au moins un impôt à calculer`,
			Severity: domain.SeverityError,
		}})
	}

	slots := e.plan(req)
	period := detectPeriod(req, now)

	g, gCtx := errgroup.WithContext(ctx)
	for i := range slots {
		s := &slots[i]
		if s.unavailable {
			continue
		}
		c, _ := e.availability.Calculator(s.code)
		raw := req.DataImpot[s.key]
		g.Go(func() error {
			if err := e.bulkhead.Acquire(gCtx); err != nil {
				s.result = domain.NewFailure(strings.ToLower(string(s.code))+"_calc", e.clock.Now(), domain.ErrorDetail{
					Code:     domain.CodeInternal,
					Message:  "Requête annulée avant le calcul.",
					Details:  err.Error(),
					Severity: domain.SeverityError,
				}, domain.FailureContext{TaxpayerType: c.TaxpayerType, Regime: c.Regime})
				return nil
			}
			defer e.bulkhead.Release()

			in, fail := e.decode(c, raw, period, true)
			if fail != nil {
				s.result = fail
				return nil
			}
			if c.Conditional != nil && !c.Conditional(in) {
				s.skipped = true
				return nil
			}
			s.result = calc.Run(gCtx, c, in, e.deps())
			return nil
		})
	}
	_ = g.Wait()

	agg, details, attemptedTPS := e.merge(slots, reg)

	if len(agg.PerTax) == 0 && reg == domain.RegimeTPS && !attemptedTPS {
		if revenue <= 0 {
			details = append([]domain.ErrorDetail{{
				Code:     domain.CodeMissingData,
				Message:  "Le chiffre d'affaires est requis pour calculer la TPS. Veuillez fournir le chiffre d'affaires dans votre requête.",
				Severity: domain.SeverityError,
			}}, details...)
		} else {
			e.fallbackTPS(ctx, req, revenue, period, agg, &details)
		}
	}

	if len(agg.PerTax) == 0 {
		if len(details) == 0 {
			details = append(details, domain.ErrorDetail{
				Code:     domain.CodeMissingData,
				Message:  "Aucun impôt n'a pu être calculé. Vérifiez que les données d'entrée sont correctes.",
				Severity: domain.SeverityError,
			})
		}
		e.metrics.IncrRequest(StatusError)
		e.logger.Info("estimation failed",
			zap.String("regime", string(reg)),
			zap.String("code", string(details[0].Code)),
			zap.Int("errors", len(details)),
		)
		return nil, estimationFailure(now, reg, revenue, details)
	}

	for _, d := range details {
		agg.Errors = append(agg.Errors, d.Message)
	}
	if len(agg.Errors) > 0 {
		e.metrics.IncrRequest(StatusPartial)
	} else {
		e.metrics.IncrRequest(StatusSuccess)
	}
	return agg, nil
}

// plan resolves every requested key to a slot, in code order. Keys that
// differ only by case name the same tax: the first in sortedKeys order
// is kept and the others are dropped before any calculator runs.
func (e *Estimator) plan(req *domain.EstimationRequest) []slot {
	slots := make([]slot, 0, len(req.DataImpot))
	seen := make(map[domain.TaxCode]bool, len(req.DataImpot))
	for _, key := range sortedKeys(req.DataImpot) {
		code, known := domain.ParseTaxCode(key)
		if known {
			if seen[code] {
				e.logger.Debug("duplicate tax key ignored", zap.String("key", key), zap.String("code", string(code)))
				continue
			}
			seen[code] = true
		}
		slots = append(slots, slot{
			key:         key,
			code:        code,
			unavailable: !e.availability.IsAvailable(code),
		})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].code < slots[j].code
	})
	return slots
}

// merge folds the slots into an aggregate in code order. Failures come
// back as "<CODE>: <message>" details.
func (e *Estimator) merge(slots []slot, reg domain.Regime) (*domain.AggregatedEstimation, []domain.ErrorDetail, bool) {
	agg := domain.NewAggregatedEstimation(reg)
	var (
		details      []domain.ErrorDetail
		totals       []decimal.Decimal
		attemptedTPS bool
	)

	for _, s := range slots {
		if s.code == domain.TaxTPS && !s.unavailable {
			attemptedTPS = true
		}
		switch {
		case s.unavailable:
			details = append(details, domain.ErrorDetail{
				Code:     domain.CodeTaxNotFound,
				Message:  fmt.Sprintf("L'impôt %s n'est pas disponible pour le calcul", s.key),
				Severity: domain.SeverityError,
			})
		case s.skipped:
			e.metrics.IncrEstimation(s.code, observability.OutcomeSkipped)
		case s.result == nil:
		default:
			e.record(s.code, s.result)
			switch r := s.result.(type) {
			case *domain.Estimation:
				agg.Add(s.code, r)
				totals = append(totals, decimal.NewFromFloat(r.Total))
			case *domain.Failure:
				for _, d := range r.Errors {
					d.Message = fmt.Sprintf("%s: %s", s.code, d.Message)
					details = append(details, d)
				}
			}
		}
	}

	agg.Total = decimal.Sum(decimal.Zero, totals...).Round(0).InexactFloat64()
	return agg, details, attemptedTPS
}

// fallbackTPS computes TPS from the declared revenue when nothing else
// could be computed for a flat-rate taxpayer.
func (e *Estimator) fallbackTPS(ctx context.Context, req *domain.EstimationRequest, revenue float64, period string, agg *domain.AggregatedEstimation, details *[]domain.ErrorDetail) {
	c, ok := e.availability.Calculator(domain.TaxTPS)
	if !ok {
		return
	}
	in := &calc.TPSInput{
		Period:         calc.Period{PeriodeFiscale: period},
		ChiffreAffaire: revenue,
		TypeEntreprise: detectCompanyForm(req),
	}
	if c.AggregateDefaults != nil {
		c.AggregateDefaults(in)
	}

	e.logger.Debug("no tax computed, falling back to TPS", zap.Float64("revenue", revenue))
	res := calc.Run(ctx, c, in, e.deps())
	e.record(domain.TaxTPS, res)
	switch r := res.(type) {
	case *domain.Estimation:
		agg.Add(domain.TaxTPS, r)
		agg.Total = decimal.NewFromFloat(agg.Total).Round(0).InexactFloat64()
	case *domain.Failure:
		for _, d := range r.Errors {
			d.Message = fmt.Sprintf("%s: %s", domain.TaxTPS, d.Message)
			*details = append(*details, d)
		}
	}
}

// decode builds the calculator input from raw. aggregate applies the
// calculator's aggregate defaults before decoding.
func (e *Estimator) decode(c calc.Calculator, raw json.RawMessage, period string, aggregate bool) (calc.Input, *domain.Failure) {
	in := c.NewInput()
	if aggregate && c.AggregateDefaults != nil {
		c.AggregateDefaults(in)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, in); err != nil {
			f := domain.NewFailure(strings.ToLower(string(c.Code))+"_calc", e.clock.Now(), domain.ErrorDetail{
				Code:     domain.CodeValidation,
				Message:  fmt.Sprintf("Données d'entrée illisibles pour %s", c.Title),
				Details:  err.Error(),
				Severity: domain.SeverityError,
			}, domain.FailureContext{TaxpayerType: c.TaxpayerType, Regime: c.Regime})
			f.Context.MissingData = []string{"donnees_entree"}
			return nil, f
		}
	}
	if pd, ok := in.(calc.PeriodDefaulter); ok && period != "" {
		pd.DefaultPeriod(period)
	}
	return in, nil
}

func (e *Estimator) record(code domain.TaxCode, res domain.Result) {
	if res.Succeeded() {
		e.metrics.IncrEstimation(code, observability.OutcomeSuccess)
		return
	}
	e.metrics.IncrEstimation(code, observability.OutcomeFailure)
}

func estimationFailure(now time.Time, reg domain.Regime, revenue float64, details []domain.ErrorDetail) *domain.Failure {
	f := domain.NewFailure("estimation", now, details[0], domain.FailureContext{
		TaxpayerType: "Entreprise",
		Regime:       string(reg),
	})
	f.Errors = details
	if revenue > 0 {
		f.Context.Revenue = domain.Float(revenue)
	}
	return f
}

// detectRevenue reads the declared turnover from the request root, then
// from the first tax input, in code order, that carries chiffreAffaire.
func detectRevenue(req *domain.EstimationRequest) float64 {
	if v, ok := req.DeclaredRevenue(); ok {
		return v
	}
	for _, key := range sortedKeys(req.DataImpot) {
		var head struct {
			ChiffreAffaire *float64 `json:"chiffreAffaire"`
		}
		if json.Unmarshal(req.DataImpot[key], &head) == nil && head.ChiffreAffaire != nil {
			return *head.ChiffreAffaire
		}
	}
	return 0
}

// detectPeriod prefers the request period, then the first tax input's,
// then the current year.
func detectPeriod(req *domain.EstimationRequest, now time.Time) string {
	if req.FiscalPeriod != "" {
		return req.FiscalPeriod
	}
	for _, key := range sortedKeys(req.DataImpot) {
		var head struct {
			PeriodeFiscale string `json:"periodeFiscale"`
		}
		if json.Unmarshal(req.DataImpot[key], &head) == nil && head.PeriodeFiscale != "" {
			return head.PeriodeFiscale
		}
	}
	return fmt.Sprint(now.Year())
}

// detectCompanyForm defaults to a company when no input names the form.
func detectCompanyForm(req *domain.EstimationRequest) string {
	if req.TaxpayerType != "" {
		return req.TaxpayerType
	}
	for _, key := range sortedKeys(req.DataImpot) {
		var head struct {
			TypeEntreprise string `json:"typeEntreprise"`
		}
		if json.Unmarshal(req.DataImpot[key], &head) == nil && head.TypeEntreprise != "" {
			return head.TypeEntreprise
		}
	}
	return rates.FormCompany
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ui, uj := strings.ToUpper(keys[i]), strings.ToUpper(keys[j])
		if ui != uj {
			return ui < uj
		}
		return keys[i] < keys[j]
	})
	return keys
}
