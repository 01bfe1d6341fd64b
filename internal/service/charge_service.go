// Package service orchestrates the gateway use cases on top of the bank
// adapters: charge registration, cancellation, status queries with a
// short-lived cache, PIX generation and the CNAB file flows.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/infra/observability"
	"github.com/brandao/cobranca-gateway-go/internal/port"
)

var tracer = otel.Tracer("service")

// ChargeService coordinates charge operations across the configured banks.
type ChargeService struct {
	banks   port.AdapterResolver
	status  port.Cache[domain.ChargeStatus]
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewChargeService(
	banks port.AdapterResolver,
	statusCache port.Cache[domain.ChargeStatus],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChargeService {
	return &ChargeService{
		banks:   banks,
		status:  statusCache,
		metrics: metrics,
		logger:  logger,
	}
}

func validateCharge(charge *domain.BoletoCharge) error {
	switch {
	case charge == nil:
		return &domain.ErrValidation{Field: "charge", Message: "charge is required"}
	case strings.TrimSpace(charge.OurNumber) == "":
		return &domain.ErrValidation{Field: "our_number", Message: "our_number is required"}
	case charge.Amount <= 0:
		return &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}
	case charge.DueDate.IsZero():
		return &domain.ErrValidation{Field: "due_date", Message: "due_date is required"}
	case strings.TrimSpace(charge.Payer.Name) == "":
		return &domain.ErrValidation{Field: "payer.name", Message: "payer name is required"}
	case strings.TrimSpace(charge.Payer.Document) == "":
		return &domain.ErrValidation{Field: "payer.document", Message: "payer document is required"}
	}
	return nil
}

// RegisterCharge registers a boleto with the given bank. The caller's
// our-number travels through as the bank's dedupe key; the service does
// no dedupe of its own.
func (s *ChargeService) RegisterCharge(ctx context.Context, bankCode string, charge *domain.BoletoCharge) (*domain.BoletoResult, error) {
	ctx, span := tracer.Start(ctx, "ChargeService.RegisterCharge")
	defer span.End()
	span.SetAttributes(attribute.String("bank.code", bankCode))

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("register_charge", time.Since(start))
	}()

	if err := validateCharge(charge); err != nil {
		return nil, err
	}
	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return nil, err
	}

	result, err := adapter.RegisterBoleto(ctx, charge)
	if err != nil {
		s.metrics.IncrBankError(bankCode)
		s.metrics.IncrRegistration(bankCode, observability.OutcomeError)
		return nil, err
	}
	if !result.Success {
		s.metrics.IncrRegistration(bankCode, observability.OutcomeRejected)
		return result, nil
	}

	s.metrics.IncrRegistration(bankCode, observability.OutcomeSuccess)
	s.logger.Info("charge registered",
		zap.String("bank", bankCode),
		zap.String("our_number", charge.OurNumber),
	)
	return result, nil
}

// GeneratePix produces the PIX leg for a charge without going through a
// full boleto registration.
func (s *ChargeService) GeneratePix(ctx context.Context, bankCode string, charge *domain.BoletoCharge) (*domain.PixPayload, error) {
	ctx, span := tracer.Start(ctx, "ChargeService.GeneratePix")
	defer span.End()
	span.SetAttributes(attribute.String("bank.code", bankCode))

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("generate_pix", time.Since(start))
	}()

	if err := validateCharge(charge); err != nil {
		return nil, err
	}
	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return nil, err
	}

	pix, err := adapter.GeneratePixQrCode(ctx, charge)
	if err != nil {
		s.metrics.IncrBankError(bankCode)
		return nil, err
	}
	return pix, nil
}

// CancelCharge requests cancellation at the bank. The returned bool is the
// adapter's answer; the error path only covers an unknown bank code.
func (s *ChargeService) CancelCharge(ctx context.Context, bankCode, ourNumber string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ChargeService.CancelCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("bank.code", bankCode),
		attribute.String("charge.our_number", ourNumber),
	)

	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return false, err
	}

	cancelled := adapter.CancelBoleto(ctx, ourNumber)
	if cancelled {
		s.status.Delete(statusKey(bankCode, ourNumber))
	}
	return cancelled, nil
}

// ChargeStatus queries the charge state, serving repeated polls for the
// same charge from a short-lived cache.
func (s *ChargeService) ChargeStatus(ctx context.Context, bankCode, ourNumber string) (domain.ChargeStatus, error) {
	ctx, span := tracer.Start(ctx, "ChargeService.ChargeStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("bank.code", bankCode),
		attribute.String("charge.our_number", ourNumber),
	)

	key := statusKey(bankCode, ourNumber)
	if cached, ok := s.status.Get(key); ok {
		s.metrics.IncrCacheHit("status")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("status")

	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return domain.StatusUnknown, err
	}

	status, err := adapter.GetBoletoStatus(ctx, ourNumber)
	if err != nil {
		s.metrics.IncrBankError(bankCode)
		return domain.StatusUnknown, err
	}

	s.status.Set(key, status)
	return status, nil
}

// BuildRemittance renders the charges as a CNAB 240 remittance file for
// upload to the bank's file transfer channel.
func (s *ChargeService) BuildRemittance(ctx context.Context, bankCode string, charges []domain.BoletoCharge) (*domain.RemittanceFile, error) {
	_, span := tracer.Start(ctx, "ChargeService.BuildRemittance")
	defer span.End()
	span.SetAttributes(
		attribute.String("bank.code", bankCode),
		attribute.Int("charge.count", len(charges)),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("build_remittance", time.Since(start))
	}()

	for i := range charges {
		if err := validateCharge(&charges[i]); err != nil {
			return nil, err
		}
	}
	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return nil, err
	}

	content, err := adapter.GenerateRemittanceFile(charges)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	file := &domain.RemittanceFile{
		ID:          uuid.NewString(),
		BankCode:    bankCode,
		FileName:    fmt.Sprintf("remessa_%s_%s.rem", bankCode, now.Format("20060102_150405")),
		Content:     content,
		ChargeCount: len(charges),
		GeneratedAt: now,
	}
	s.logger.Info("remittance file generated",
		zap.String("bank", bankCode),
		zap.String("file", file.FileName),
		zap.Int("charges", file.ChargeCount),
	)
	return file, nil
}

// ProcessReturn extracts settled payments from a CNAB 240 return file and
// drops the status cache entries of the charges it settles.
func (s *ChargeService) ProcessReturn(ctx context.Context, bankCode, content string) ([]domain.PaymentNotification, error) {
	_, span := tracer.Start(ctx, "ChargeService.ProcessReturn")
	defer span.End()
	span.SetAttributes(attribute.String("bank.code", bankCode))

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("process_return", time.Since(start))
	}()

	if strings.TrimSpace(content) == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "return file content is required"}
	}
	adapter, err := s.banks.Resolve(bankCode)
	if err != nil {
		return nil, err
	}

	notifications, err := adapter.ProcessReturnFile(content)
	if err != nil {
		return nil, err
	}
	for _, n := range notifications {
		s.status.Delete(statusKey(bankCode, n.OurNumber))
	}

	s.metrics.AddReturnPayments(bankCode, len(notifications))
	s.logger.Info("return file processed",
		zap.String("bank", bankCode),
		zap.Int("payments", len(notifications)),
	)
	return notifications, nil
}

// Banks lists the configured bank catalogue.
func (s *ChargeService) Banks(ctx context.Context) []domain.BankInfo {
	_, span := tracer.Start(ctx, "ChargeService.Banks")
	defer span.End()

	return s.banks.Catalogue()
}

func statusKey(bankCode, ourNumber string) string {
	return bankCode + ":" + ourNumber
}
