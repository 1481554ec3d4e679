package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/service"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"

	"go.uber.org/zap"
)

var fixedClock = port.ClockFunc(func() time.Time {
	return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
})

type fakeProvider struct {
	consts domain.Constants
}

func (p *fakeProvider) GetConstants(_ context.Context, _ domain.TaxCode, _ int) (domain.Constants, error) {
	return p.consts, nil
}

func newEstimator(t *testing.T, provider port.ConstantsProvider) (*service.Estimator, *observability.Metrics) {
	t.Helper()
	avail, err := service.NewAvailability(calc.Registry(), "")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	metrics := observability.NewMetrics()
	return service.NewEstimator(avail, provider, fixedClock, service.EstimatorOptions{MaxConcurrency: 4}, metrics, zap.NewNop()), metrics
}

func request(t *testing.T, body string) *domain.EstimationRequest {
	t.Helper()
	var req domain.EstimationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("bad request fixture: %v", err)
	}
	return &req
}

func failureOf(t *testing.T, err error) *domain.Failure {
	t.Helper()
	var f *domain.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *domain.Failure, got %v", err)
	}
	return f
}

func TestEstimate_AggregatesTaxes(t *testing.T) {
	e, metrics := newEstimator(t, nil)

	agg, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{
		"IRF":{"revenuLocatif":1000000,"isAlreadyTaxed":false},
		"TPS":{"chiffreAffaire":10000000}
	}}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if agg.Total != 674_000 {
		t.Errorf("expected total 674000, got %v", agg.Total)
	}
	if agg.Regime != domain.RegimeTPS {
		t.Errorf("expected TPS regime, got %s", agg.Regime)
	}
	if got := agg.PerTax[domain.TaxIRF].Total; got != 120_000 {
		t.Errorf("aggregate IRF should drop the SRTB fee, got %v", got)
	}
	if len(agg.Errors) != 0 {
		t.Errorf("unexpected errors %v", agg.Errors)
	}
	if agg.Currency != domain.Currency {
		t.Errorf("unexpected currency %q", agg.Currency)
	}

	snap := metrics.GetEstimationSnapshot()
	if snap.TotalEstimations != 1 || snap.SuccessRate != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.ByTax[domain.TaxIRF] != 1 || snap.ByTax[domain.TaxTPS] != 1 {
		t.Errorf("unexpected per-tax counts %v", snap.ByTax)
	}
}

func TestEstimate_PartialWithUnavailableTax(t *testing.T) {
	e, _ := newEstimator(t, nil)

	agg, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{
		"IRF":{"revenuLocatif":1000000},
		"TVA":{"chiffreAffaire":1000000}
	}}`))
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(agg.Errors) != 1 || agg.Errors[0] != "L'impôt TVA n'est pas disponible pour le calcul" {
		t.Errorf("unexpected errors %v", agg.Errors)
	}
	if _, ok := agg.PerTax[domain.TaxTVA]; ok {
		t.Error("unavailable tax must not appear in the aggregate")
	}
}

func TestEstimate_PrefixesFailures(t *testing.T) {
	e, _ := newEstimator(t, nil)

	agg, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{
		"IRF":{"revenuLocatif":1000000},
		"TPS":{"chiffreAffaire":60000000}
	}}`))
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	irf, ok := agg.PerTax[domain.TaxIRF]
	if !ok || len(agg.PerTax) != 1 {
		t.Fatalf("expected IRF as the only estimation, got %v", agg.PerTax)
	}
	if agg.Total != irf.Total || agg.Total != 120_000 {
		t.Errorf("expected the total to be the IRF total %v, got %v", irf.Total, agg.Total)
	}
	want := []string{"TPS: Chiffre d'affaires supérieur au seuil du régime TPS (50 000 000 FCFA)."}
	if !reflect.DeepEqual(agg.Errors, want) {
		t.Errorf("unexpected errors\n got %q\nwant %q", agg.Errors, want)
	}
	if agg.Regime != domain.RegimeReel {
		t.Errorf("60M turnover is above the flat-rate ceiling, got %s", agg.Regime)
	}
}

func TestEstimate_CaseVariantKeysEvaluatedOnce(t *testing.T) {
	e, m := newEstimator(t, nil)

	agg, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{
		"tps":{"chiffreAffaire":-1},
		"TPS":{"periodeFiscale":"2025","chiffreAffaire":10000000}
	}}`))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(agg.Errors) != 0 {
		t.Errorf("expected no errors, got %q", agg.Errors)
	}
	tps, ok := agg.PerTax[domain.TaxTPS]
	if !ok || agg.Total != tps.Total {
		t.Fatalf("expected TPS alone in the total, got %v", agg.PerTax)
	}
	if got := m.GetEstimationSnapshot().ByTax[domain.TaxTPS]; got != 1 {
		t.Errorf("expected a single TPS evaluation, got %d", got)
	}
}

func TestEstimate_EmptyData(t *testing.T) {
	e, _ := newEstimator(t, nil)

	_, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{}}`))
	f := failureOf(t, err)
	if f.Code() != domain.CodeEmptyData {
		t.Errorf("expected EMPTY_DATA, got %s", f.Code())
	}
	if !strings.HasPrefix(f.RequestID, "estimation_") {
		t.Errorf("unexpected request id %q", f.RequestID)
	}
}

func TestEstimate_FallsBackToTPS(t *testing.T) {
	e, _ := newEstimator(t, nil)

	agg, err := e.Estimate(context.Background(), request(t, `{
		"chiffreAffaire":10000000,
		"dataImpot":{"TVM":{"hasVehicles":false}}
	}`))
	if err != nil {
		t.Fatalf("expected the TPS fallback, got %v", err)
	}
	tps, ok := agg.PerTax[domain.TaxTPS]
	if !ok {
		t.Fatal("expected TPS in the aggregate")
	}
	if tps.Total != 704_000 || agg.Total != 704_000 {
		t.Errorf("expected 704000 for a company, got %v / %v", tps.Total, agg.Total)
	}
	if _, ok := agg.PerTax[domain.TaxTVM]; ok {
		t.Error("TVM without vehicles should be skipped")
	}
}

func TestEstimate_MissingRevenue(t *testing.T) {
	e, _ := newEstimator(t, nil)

	_, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{"TVM":{"hasVehicles":false}}}`))
	f := failureOf(t, err)
	if f.Code() != domain.CodeMissingData {
		t.Errorf("expected MISSING_DATA, got %s", f.Code())
	}
	if f.Context.TaxpayerType != "Entreprise" || f.Context.Regime != string(domain.RegimeTPS) {
		t.Errorf("unexpected context %+v", f.Context)
	}
}

func TestEstimate_NothingComputable(t *testing.T) {
	e, _ := newEstimator(t, nil)

	_, err := e.Estimate(context.Background(), request(t, `{
		"chiffreAffaire":80000000,
		"dataImpot":{"IRCM":{}}
	}`))
	f := failureOf(t, err)
	if f.Code() != domain.CodeTaxNotFound {
		t.Errorf("expected IMPOT_NOT_FOUND, got %s", f.Code())
	}
	if f.Context.Revenue == nil || *f.Context.Revenue != 80_000_000 {
		t.Errorf("expected the declared revenue in the context, got %v", f.Context.Revenue)
	}
}

func TestEstimate_UsesProvider(t *testing.T) {
	e, _ := newEstimator(t, &fakeProvider{consts: domain.Constants{
		"TAUX_NORMAL": json.RawMessage(`0.2`),
	}})

	agg, err := e.Estimate(context.Background(), request(t, `{"dataImpot":{"IRF":{"revenuLocatif":1000000}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Total != 200_000 {
		t.Errorf("expected the provider rate to apply, got %v", agg.Total)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e, _ := newEstimator(t, nil)
	body := `{"dataImpot":{
		"TPS":{"chiffreAffaire":10000000},
		"IRF":{"revenuLocatif":1000000},
		"TVM":{"hasVehicles":true,"vehicles":[{"vehicleType":"private","power":5}]}
	}}`

	var first []byte
	for i := 0; i < 5; i++ {
		agg, err := e.Estimate(context.Background(), request(t, body))
		if err != nil {
			t.Fatal(err)
		}
		out, err := json.Marshal(agg)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = out
			continue
		}
		if string(out) != string(first) {
			t.Fatalf("run %d differs from the first run", i)
		}
	}
}

func TestCalculate(t *testing.T) {
	e, _ := newEstimator(t, nil)

	res := e.Calculate(context.Background(), "irf", json.RawMessage(`{"periodeFiscale":"2025","revenuLocatif":1000000}`))
	est, ok := res.(*domain.Estimation)
	if !ok {
		t.Fatalf("expected an estimation, got %#v", res)
	}
	if est.Total != 124_000 {
		t.Errorf("single-tax IRF keeps the SRTB fee, got %v", est.Total)
	}
}

func TestCalculate_UnknownTax(t *testing.T) {
	e, _ := newEstimator(t, nil)

	for _, code := range []string{"XYZ", "TVA"} {
		res := e.Calculate(context.Background(), code, json.RawMessage(`{}`))
		f, ok := res.(*domain.Failure)
		if !ok {
			t.Fatalf("%s: expected a failure, got %#v", code, res)
		}
		if f.Code() != domain.CodeTaxNotFound {
			t.Errorf("%s: expected IMPOT_NOT_FOUND, got %s", code, f.Code())
		}
		want := "L'impôt " + code + " n'est pas disponible pour le calcul"
		if f.Message() != want {
			t.Errorf("%s: unexpected message %q", code, f.Message())
		}
	}
}

func TestCalculate_BadBody(t *testing.T) {
	e, _ := newEstimator(t, nil)

	res := e.Calculate(context.Background(), "TPS", json.RawMessage(`{"chiffreAffaire":"beaucoup"}`))
	f, ok := res.(*domain.Failure)
	if !ok {
		t.Fatalf("expected a failure, got %#v", res)
	}
	if f.Code() != domain.CodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", f.Code())
	}
}
