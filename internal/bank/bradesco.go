package bank

import (
	"context"

	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// Bradesco is a placeholder until the integration contract is signed.
// Every operation fails with ErrNotImplemented; the catalogue lists the
// bank with Implemented=false so callers can tell it apart from a full
// adapter.
type Bradesco struct {
	logger *zap.Logger
}

func newBradesco(deps Deps) *Bradesco {
	return &Bradesco{logger: deps.logger()}
}

func (b *Bradesco) Info() domain.BankInfo {
	return domain.BankInfo{
		Code:        CodeBradesco,
		Name:        "Banco Bradesco S.A.",
		ShortName:   "Bradesco",
		Implemented: false,
	}
}

func (b *Bradesco) Authenticate(ctx context.Context) error {
	return &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "Authenticate"}
}

func (b *Bradesco) RegisterBoleto(ctx context.Context, charge *domain.BoletoCharge) (*domain.BoletoResult, error) {
	return nil, &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "RegisterBoleto"}
}

func (b *Bradesco) CancelBoleto(ctx context.Context, ourNumber string) bool {
	b.logger.Warn("bradesco: cancel requested on unimplemented adapter",
		zap.String("our_number", ourNumber))
	return false
}

func (b *Bradesco) GetBoletoStatus(ctx context.Context, ourNumber string) (domain.ChargeStatus, error) {
	return domain.StatusUnknown, &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "GetBoletoStatus"}
}

func (b *Bradesco) GeneratePixQrCode(ctx context.Context, charge *domain.BoletoCharge) (*domain.PixPayload, error) {
	return nil, &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "GeneratePixQrCode"}
}

func (b *Bradesco) GenerateRemittanceFile(charges []domain.BoletoCharge) (string, error) {
	return "", &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "GenerateRemittanceFile"}
}

func (b *Bradesco) ProcessReturnFile(content string) ([]domain.PaymentNotification, error) {
	return nil, &domain.ErrNotImplemented{Bank: CodeBradesco, Operation: "ProcessReturnFile"}
}
