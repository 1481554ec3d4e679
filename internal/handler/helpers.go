package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"

	"go.uber.org/zap"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var errInvalidJSON = errors.New("invalid JSON")

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

// failureStatus maps the first error code of a failure to its HTTP status.
func failureStatus(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation,
		domain.CodeThresholdExceeded,
		domain.CodeMissingData,
		domain.CodeEmptyData,
		domain.CodeConstantsUnavailable,
		domain.CodeRateNotFound,
		domain.CodeProfileUnavailable:
		return http.StatusBadRequest
	case domain.CodeTaxNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeResult writes a calculation result: 200 for an estimation, the
// mapped status for a failure.
func writeResult(w http.ResponseWriter, res domain.Result) {
	if f, ok := res.(*domain.Failure); ok {
		writeJSON(w, failureStatus(f.Code()), f)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// invalidBody answers an unreadable request body with a validation
// failure shaped like every other failure.
func invalidBody(w http.ResponseWriter, prefix string, err error) {
	f := domain.NewFailure(prefix, time.Now(), domain.ErrorDetail{
		Code:     domain.CodeValidation,
		Message:  "Le corps de la requête n'est pas un JSON valide",
		Details:  err.Error(),
		Severity: domain.SeverityError,
	}, domain.FailureContext{TaxpayerType: "Non déterminé", Regime: "Non déterminé"})
	writeJSON(w, http.StatusBadRequest, f)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var failure *domain.Failure
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &failure):
		writeJSON(w, failureStatus(failure.Code()), failure)
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case resilience.IsOpen(err):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
