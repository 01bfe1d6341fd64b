package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

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

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var unsupported *domain.ErrUnsupportedBank
	var notImplemented *domain.ErrNotImplemented
	var authentication *domain.ErrAuthentication
	var rejection *domain.ErrBankRejection
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService
	var overflow *domain.ErrEncodingOverflow
	var unauthorized *domain.ErrUnauthorized

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &overflow):
		logger.Debug("encoding overflow", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unsupported):
		logger.Debug("unsupported bank", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notImplemented):
		logger.Warn("bank not implemented", zap.String("error", err.Error()))
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &rejection):
		logger.Warn("bank rejection",
			zap.String("bank", rejection.Bank),
			zap.Int("bank_status", rejection.Status),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &authentication):
		logger.Error("bank authentication failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("bank unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
