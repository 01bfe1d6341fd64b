package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/infra/observability"
	"github.com/brandao/cobranca-gateway-go/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *service.ChargeService, metrics *observability.Metrics, apiKeyHash string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(svc))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(APIKeyMiddleware(apiKeyHash, logger))

		// Charges
		r.Post("/charges", registerChargeHandler(svc, logger))
		r.Post("/charges/pix", generatePixHandler(svc, logger))
		r.Delete("/charges/{bankCode}/{ourNumber}", cancelChargeHandler(svc, logger))
		r.Get("/charges/{bankCode}/{ourNumber}/status", chargeStatusHandler(svc, logger))

		// CNAB files
		r.Post("/remittance/{bankCode}", buildRemittanceHandler(svc, logger))
		r.Post("/returns/{bankCode}", processReturnHandler(svc, logger))

		// Catalogue and metrics snapshot
		r.Get("/banks", banksHandler(svc, logger))
		r.Get("/metrics/gateway", gatewayMetricsHandler(metrics))
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler(svc *service.ChargeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"banks":  len(svc.Banks(r.Context())),
		})
	}
}

// ============================================================
// Charges
// ============================================================

type registerChargeRequest struct {
	BankCode string              `json:"bank_code"`
	Charge   domain.BoletoCharge `json:"charge"`
}

func registerChargeHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges")
		defer span.End()

		var req registerChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		span.SetAttributes(attribute.String("bank.code", req.BankCode))

		result, err := svc.RegisterCharge(ctx, req.BankCode, &req.Charge)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusCreated
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
	}
}

func generatePixHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/charges/pix")
		defer span.End()

		var req registerChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		span.SetAttributes(attribute.String("bank.code", req.BankCode))

		pix, err := svc.GeneratePix(ctx, req.BankCode, &req.Charge)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, pix)
	}
}

func cancelChargeHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/charges/{bankCode}/{ourNumber}")
		defer span.End()

		bankCode := chi.URLParam(r, "bankCode")
		ourNumber := chi.URLParam(r, "ourNumber")

		cancelled, err := svc.CancelCharge(ctx, bankCode, ourNumber)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"our_number": ourNumber,
			"cancelled":  cancelled,
		})
	}
}

func chargeStatusHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/charges/{bankCode}/{ourNumber}/status")
		defer span.End()

		bankCode := chi.URLParam(r, "bankCode")
		ourNumber := chi.URLParam(r, "ourNumber")

		status, err := svc.ChargeStatus(ctx, bankCode, ourNumber)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"our_number": ourNumber,
			"status":     status,
		})
	}
}

// ============================================================
// CNAB files
// ============================================================

type remittanceRequest struct {
	Charges []domain.BoletoCharge `json:"charges"`
}

func buildRemittanceHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/remittance/{bankCode}")
		defer span.End()

		bankCode := chi.URLParam(r, "bankCode")
		var req remittanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		file, err := svc.BuildRemittance(ctx, bankCode, req.Charges)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, file)
	}
}

// processReturnHandler takes the raw CNAB return file as the request body
// (text/plain), the way bank portals hand it over.
func processReturnHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/returns/{bankCode}")
		defer span.End()

		bankCode := chi.URLParam(r, "bankCode")
		content, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		notifications, err := svc.ProcessReturn(ctx, bankCode, string(content))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bank_code": bankCode,
			"payments":  notifications,
			"count":     len(notifications),
		})
	}
}

// ============================================================
// Catalogue and metrics snapshot
// ============================================================

func banksHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/banks")
		defer span.End()

		writeJSON(w, http.StatusOK, svc.Banks(ctx))
	}
}

func gatewayMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetGatewaySnapshot())
	}
}
