package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/handler"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/cache"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/memory"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/service"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"

	"go.uber.org/zap"
)

const adminKey = "s3cret"

var fixedClock = port.ClockFunc(func() time.Time {
	return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
})

func newTestRouter(t *testing.T, probes ...handler.Probe) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	local := cache.New[domain.Constants](time.Minute)
	t.Cleanup(local.Close)
	constants := service.NewConstantsService(memory.NewConstantsStore(), "memory", local, nil, nil, metrics, logger)

	avail, err := service.NewAvailability(calc.Registry(), "")
	if err != nil {
		t.Fatal(err)
	}

	return handler.NewRouter(handler.Services{
		Estimator:   service.NewEstimator(avail, constants, fixedClock, service.EstimatorOptions{MaxConcurrency: 4}, metrics, logger),
		Profiler:    service.NewProfiler(fixedClock, logger),
		Summarizer:  service.NewSummarizer(nil, metrics, logger),
		Constants:   constants,
		Probes:      probes,
		AdminAPIKey: adminKey,
	}, metrics, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func firstErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errs, ok := body["errors"].([]any)
	if !ok || len(errs) == 0 {
		t.Fatalf("expected an errors array in %s", rec.Body.String())
	}
	return errs[0].(map[string]any)["code"].(string)
}

func TestOperationalEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping", "/v1/metrics/estimations"} {
		rec := do(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestReadyz_FailingProbe(t *testing.T) {
	router := newTestRouter(t, handler.Probe{
		Name:  "redis",
		Check: func(context.Context) error { return errors.New("connection refused") },
	})

	rec := do(t, router, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "unhealthy" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", "")
	if rec.Header().Get(observability.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestEstimation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/estimations/entreprise",
		`{"dataImpot":{"TPS":{"chiffreAffaire":10000000},"TVA":{}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || body["totalEstimation"] != 554000.0 {
		t.Errorf("unexpected body %v", body)
	}
	if errs, _ := body["errors"].([]any); len(errs) != 1 {
		t.Errorf("expected one error for TVA, got %v", body["errors"])
	}
}

func TestEstimation_Failures(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"empty data", `{"dataImpot":{}}`, http.StatusBadRequest, "EMPTY_DATA"},
		{"bad json", `{"dataImpot":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing revenue", `{"dataImpot":{"TVM":{"hasVehicles":false}}}`, http.StatusBadRequest, "MISSING_DATA"},
		{"nothing available", `{"chiffreAffaire":90000000,"dataImpot":{"IRCM":{}}}`, http.StatusNotFound, "IMPOT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/v1/estimations/entreprise", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := firstErrorCode(t, rec); got != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, got)
			}
			if body := decode(t, rec); body["success"] != false {
				t.Errorf("failure should carry success=false")
			}
		})
	}
}

func TestCalculate(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"tps", "/v1/impots/tps/calculer", `{"chiffreAffaire":10000000}`, http.StatusOK},
		{"threshold", "/v1/impots/TPS/calculer", `{"chiffreAffaire":60000000}`, http.StatusBadRequest},
		{"unknown", "/v1/impots/XYZ/calculer", `{}`, http.StatusNotFound},
		{"unavailable", "/v1/impots/TVA/calculer", `{}`, http.StatusNotFound},
		{"bad json", "/v1/impots/TPS/calculer", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListTaxes(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/impots", "")
	var list []domain.TaxAvailability
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != len(domain.AllTaxCodes) {
		t.Errorf("expected %d taxes, got %d", len(domain.AllTaxCodes), len(list))
	}
}

func TestProfile(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/profilage",
		`{"periodeFiscale":"2025","chiffreAffaire":10000000,"typeContribuableEntreprise":"SI","dateDebutExercice":"2025-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPost, "/v1/profilage",
		`{"periodeFiscale":"2026","chiffreAffaire":10000000,"typeContribuableEntreprise":"SI","dateDebutExercice":"2026-01-01"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if got := firstErrorCode(t, rec); got != "DONNEES_FISCALES_NON_DISPONIBLES" {
		t.Errorf("unexpected code %s", got)
	}
}

func TestSummary(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/estimations/resume", `{"dataImpot":{"TPS":{"chiffreAffaire":10000000}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	summary, _ := body["summary"].(string)
	if !strings.HasPrefix(summary, "ESTIMATION TOTALE:") || body["source"] != service.SourceLocal {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAdmin_RequiresKey(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/admin/impots/TPS/2025/constantes", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, "/v1/admin/impots/TPS/2025/constantes", "", handler.AdminKeyHeader, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdmin_ConstantsRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	key := []string{handler.AdminKeyHeader, adminKey}

	rec := do(t, router, http.MethodGet, "/v1/admin/impots/TPS/2025/constantes", "", key...)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any write, got %d", rec.Code)
	}

	// Prime the cache with the built-in rate.
	rec = do(t, router, http.MethodPost, "/v1/impots/TPS/calculer", `{"chiffreAffaire":10000000}`)
	if body := decode(t, rec); body["totalEstimation"] != 554000.0 {
		t.Fatalf("unexpected baseline %v", body["totalEstimation"])
	}

	rec = do(t, router, http.MethodPut, "/v1/admin/impots/TPS/2025/constantes/TAUX_TPS", `{"valeur":0.1}`, key...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/v1/admin/impots/tps/2025/constantes", "", key...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stored domain.TaxRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatal(err)
	}
	if c, ok := stored.Constant("TAUX_TPS"); !ok || string(c.Value) != "0.1" {
		t.Errorf("unexpected record %+v", stored)
	}

	rec = do(t, router, http.MethodGet, "/v1/admin/constantes/2025", "", key...)
	if list, _ := decode(t, rec)["impots"].([]any); len(list) != 1 {
		t.Errorf("expected one stored record for 2025, got %v", rec.Body.String())
	}

	rec = do(t, router, http.MethodPost, "/v1/impots/TPS/calculer", `{"chiffreAffaire":10000000}`)
	if body := decode(t, rec); body["totalEstimation"] != 1054000.0 {
		t.Errorf("expected the updated rate to apply, got %v", body["totalEstimation"])
	}

	rec = do(t, router, http.MethodDelete, "/v1/admin/cache/constantes", "", key...)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAdmin_BadPath(t *testing.T) {
	router := newTestRouter(t)
	key := []string{handler.AdminKeyHeader, adminKey}

	if rec := do(t, router, http.MethodGet, "/v1/admin/impots/TPS/deux-mille/constantes", "", key...); rec.Code != http.StatusBadRequest {
		t.Errorf("bad year: expected 400, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/v1/admin/constantes/deux-mille", "", key...); rec.Code != http.StatusBadRequest {
		t.Errorf("bad list year: expected 400, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/v1/admin/impots/XYZ/2025/constantes", "", key...); rec.Code != http.StatusNotFound {
		t.Errorf("unknown code: expected 404, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPut, "/v1/admin/impots/TPS/2026/constantes/TAUX_TPS", `{"valeur":0.1}`, key...); rec.Code != http.StatusBadRequest {
		t.Errorf("unpublished year: expected 400, got %d", rec.Code)
	}
}
