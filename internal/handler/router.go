package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Probe is one dependency checked by /readyz.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services groups what the router serves. Summarizer, Constants and
// Probes are optional.
type Services struct {
	Estimator   *service.Estimator
	Profiler    *service.Profiler
	Summarizer  *service.Summarizer
	Constants   *service.ConstantsService
	Probes      []Probe
	AdminAPIKey string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(observability.CorrelationMiddleware)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(svc.Probes, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Post("/estimations/entreprise", estimationHandler(svc.Estimator, logger))
		r.Post("/estimations/resume", summaryHandler(svc.Estimator, svc.Summarizer, logger))
		r.Post("/impots/{code}/calculer", calculateHandler(svc.Estimator, logger))
		r.Get("/impots", listTaxesHandler(svc.Estimator))
		r.Post("/profilage", profileHandler(svc.Profiler, logger))
		r.Get("/metrics/estimations", estimationMetricsHandler(metrics))

		if svc.Constants != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminKeyMiddleware(svc.AdminAPIKey, logger))
				r.Get("/constantes/{annee}", listConstantsHandler(svc.Constants, logger))
				r.Get("/impots/{code}/{annee}/constantes", getConstantsHandler(svc.Constants, logger))
				r.Put("/impots/{code}/{annee}/constantes/{constanteCode}", putConstantHandler(svc.Constants, logger))
				r.Delete("/cache/constantes", flushConstantsHandler(svc.Constants))
			})
		}
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler(probes []Probe, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "estimator", Status: "healthy", LastChecked: now},
		}
		overall := "healthy"
		for _, p := range probes {
			start := time.Now()
			err := p.Check(ctx)
			sh := domain.ServiceHealth{
				Name:        p.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("readiness probe failed", zap.String("probe", p.Name), zap.Error(err))
				sh.Status = "unhealthy"
				sh.Error = err.Error()
				overall = "unhealthy"
			}
			services = append(services, sh)
		}

		status := http.StatusOK
		if overall != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: services})
	}
}

func estimationMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEstimationSnapshot())
	}
}
