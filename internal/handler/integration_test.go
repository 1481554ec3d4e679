package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/handler"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/cache"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/client"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/supabase"
	"github.com/boddenberg/impots-bj-estimator/internal/service"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"

	"go.uber.org/zap"
)

type flowOptions struct {
	supabase   http.HandlerFunc
	summarizer http.HandlerFunc
	strict     bool
}

// newFlowRouter wires the full stack against mock external services.
func newFlowRouter(t *testing.T, o flowOptions) (http.Handler, *observability.Metrics) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 0, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	supabaseServer := httptest.NewServer(o.supabase)
	t.Cleanup(supabaseServer.Close)
	sb := supabase.NewClient(httpClient, supabaseServer.URL, "anon", "service",
		resilience.NewCircuitBreaker("test-supabase", supabase.IsNotFound), cfg, logger)

	local := cache.New[domain.Constants](5 * time.Minute)
	t.Cleanup(local.Close)
	constants := service.NewConstantsService(supabase.NewConstantsStore(sb), "supabase", local, nil, nil, metrics, logger)

	var sum *service.Summarizer
	if o.summarizer != nil {
		agentServer := httptest.NewServer(o.summarizer)
		t.Cleanup(agentServer.Close)
		sum = service.NewSummarizer(
			client.NewSummarizerClient(httpClient, agentServer.URL, resilience.NewCircuitBreaker("test-agent"), cfg),
			metrics, logger)
	}

	avail, err := service.NewAvailability(calc.Registry(), "")
	if err != nil {
		t.Fatal(err)
	}
	est := service.NewEstimator(avail, constants, fixedClock,
		service.EstimatorOptions{Strict: o.strict, MaxConcurrency: 4}, metrics, logger)

	return handler.NewRouter(handler.Services{
		Estimator:  est,
		Profiler:   service.NewProfiler(fixedClock, logger),
		Summarizer: sum,
		Constants:  constants,
	}, metrics, logger), metrics
}

// postgrestTPS serves a published TPS record with a 10% rate and nothing
// else.
func postgrestTPS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("code") != "eq.TPS" {
		w.Write([]byte(`[]`))
		return
	}
	w.Write([]byte(`[{"code":"TPS","nom":"Taxe Professionnelle Synthétique","type":"tps","annee_fiscale":2025,"actif":true,
		"constantes":[{"code":"TAUX_TPS","valeur":0.1}]}]`))
}

func TestIntegration_FullFlow(t *testing.T) {
	var agentCalls atomic.Int32
	router, _ := newFlowRouter(t, flowOptions{
		supabase: postgrestTPS,
		summarizer: func(w http.ResponseWriter, r *http.Request) {
			agentCalls.Add(1)
			var req domain.SummaryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Draft == "" {
				t.Errorf("agent expected a draft, got %+v (%v)", req, err)
			}
			json.NewEncoder(w).Encode(domain.SummaryResponse{Summary: "Votre TPS 2025 s'élève à 1 054 000 FCFA."})
		},
	})

	rec := do(t, router, http.MethodPost, "/v1/estimations/entreprise",
		`{"periodeFiscale":"2025","dataImpot":{"TPS":{"chiffreAffaire":10000000}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["totalEstimation"] != 1054000.0 {
		t.Errorf("expected the stored 10%% rate to apply, got %v", body["totalEstimation"])
	}

	rec = do(t, router, http.MethodPost, "/v1/estimations/resume",
		`{"periodeFiscale":"2025","dataImpot":{"TPS":{"chiffreAffaire":10000000}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var summary domain.SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Source != service.SourceAgent || summary.Summary == "" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if n := agentCalls.Load(); n != 1 {
		t.Errorf("expected 1 agent call, got %d", n)
	}
}

func TestIntegration_SupabaseDown(t *testing.T) {
	down := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	body := `{"dataImpot":{"TPS":{"chiffreAffaire":10000000}}}`

	t.Run("built-in defaults", func(t *testing.T) {
		router, metrics := newFlowRouter(t, flowOptions{supabase: down})

		rec := do(t, router, http.MethodPost, "/v1/estimations/entreprise", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
		}
		if got := decode(t, rec)["totalEstimation"]; got != 554000.0 {
			t.Errorf("expected the built-in rate, got %v", got)
		}
		if metrics.GetEstimationSnapshot().ExternalErrors == 0 {
			t.Error("expected the outage to be counted")
		}
	})

	t.Run("strict", func(t *testing.T) {
		router, _ := newFlowRouter(t, flowOptions{supabase: down, strict: true})

		rec := do(t, router, http.MethodPost, "/v1/estimations/entreprise", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if got := firstErrorCode(t, rec); got != string(domain.CodeConstantsUnavailable) {
			t.Errorf("expected %s, got %s", domain.CodeConstantsUnavailable, got)
		}
	})
}

func TestIntegration_SummarizerDown(t *testing.T) {
	router, _ := newFlowRouter(t, flowOptions{
		supabase: postgrestTPS,
		summarizer: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
	})

	rec := do(t, router, http.MethodPost, "/v1/estimations/resume",
		`{"dataImpot":{"TPS":{"chiffreAffaire":10000000}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["source"]; got != service.SourceLocal {
		t.Errorf("expected the local fallback, got %v", got)
	}
}
