package handler

import (
	"net/http"
	"strconv"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// recordKey reads {code} and {annee} from the path.
func recordKey(r *http.Request) (domain.TaxCode, int, error) {
	raw := chi.URLParam(r, "code")
	code, ok := domain.ParseTaxCode(raw)
	if !ok {
		return "", 0, &domain.ErrNotFound{Resource: "impot", ID: raw}
	}
	year, err := strconv.Atoi(chi.URLParam(r, "annee"))
	if err != nil || year < 1900 {
		return "", 0, &domain.ErrValidation{Field: "annee", Message: "l'année fiscale doit être un entier sur quatre chiffres"}
	}
	return code, year, nil
}

// GET /v1/admin/constantes/{annee}
func listConstantsHandler(svc *service.ConstantsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, err := strconv.Atoi(chi.URLParam(r, "annee"))
		if err != nil || year < 1900 {
			handleServiceError(w, &domain.ErrValidation{Field: "annee", Message: "l'année fiscale doit être un entier sur quatre chiffres"}, logger)
			return
		}

		recs, err := svc.ListRecords(r.Context(), year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annee": year, "impots": recs})
	}
}

// GET /v1/admin/impots/{code}/{annee}/constantes
func getConstantsHandler(svc *service.ConstantsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/impots/{code}/{annee}/constantes")
		defer span.End()

		code, year, err := recordKey(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("tax.code", string(code)), attribute.Int("tax.year", year))

		rec, err := svc.GetRecord(ctx, code, year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// PUT /v1/admin/impots/{code}/{annee}/constantes/{constanteCode}
func putConstantHandler(svc *service.ConstantsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/impots/{code}/{annee}/constantes/{constanteCode}")
		defer span.End()

		code, year, err := recordKey(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var c domain.Constant
		if err := decodeJSON(r, &c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		c.Code = chi.URLParam(r, "constanteCode")

		rec, err := svc.PutConstant(ctx, code, year, c)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// DELETE /v1/admin/cache/constantes
func flushConstantsHandler(svc *service.ConstantsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := svc.InvalidateAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "cache des constantes vidé",
			"removed": n,
		})
	}
}
