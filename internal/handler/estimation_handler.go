package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// POST /v1/estimations/entreprise
func estimationHandler(est *service.Estimator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/estimations/entreprise")
		defer span.End()

		var req domain.EstimationRequest
		if err := decodeJSON(r, &req); err != nil {
			invalidBody(w, "estimation", err)
			return
		}

		agg, err := est.Estimate(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("estimation.errors", len(agg.Errors)))
		writeJSON(w, http.StatusOK, agg)
	}
}

// POST /v1/impots/{code}/calculer
func calculateHandler(est *service.Estimator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/impots/{code}/calculer")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("tax.code", code))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil || (len(body) > 0 && !json.Valid(body)) {
			if err == nil {
				err = errInvalidJSON
			}
			invalidBody(w, "impot", err)
			return
		}

		res := est.Calculate(ctx, code, body)
		if !res.Succeeded() {
			logger.Debug("calculation failed", zap.String("code", code))
		}
		writeResult(w, res)
	}
}

// POST /v1/estimations/resume
func summaryHandler(est *service.Estimator, sum *service.Summarizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/estimations/resume")
		defer span.End()

		var req domain.EstimationRequest
		if err := decodeJSON(r, &req); err != nil {
			invalidBody(w, "estimation", err)
			return
		}

		agg, err := est.Estimate(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if sum == nil {
			writeJSON(w, http.StatusOK, domain.SummaryResponse{
				Summary: service.LocalSummary(agg, domain.MaxSummaryLength),
				Source:  service.SourceLocal,
			})
			return
		}
		writeJSON(w, http.StatusOK, sum.Summarize(ctx, agg))
	}
}

// POST /v1/profilage
func profileHandler(p *service.Profiler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/profilage")
		defer span.End()

		var req domain.ProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			invalidBody(w, "profilage_calc", err)
			return
		}

		res, err := p.Profile(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /v1/impots
func listTaxesHandler(est *service.Estimator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, est.Availability().List())
	}
}
