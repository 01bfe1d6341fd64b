// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// BankAdapter is the uniform surface every bank integration exposes. The
// contract for expected failures is structural, not error-based: a declined
// registration comes back as a BoletoResult with Success=false, a cancel
// that the bank refused comes back as false, and a status code the adapter
// does not recognize maps to StatusUnknown with a nil error. Errors are
// reserved for transport, authentication and encoding problems.
type BankAdapter interface {
	// Authenticate acquires (or refreshes) the adapter's access token.
	// Callers normally never need it: every operation authenticates
	// lazily. It exists for readiness probes.
	Authenticate(ctx context.Context) error

	RegisterBoleto(ctx context.Context, charge *domain.BoletoCharge) (*domain.BoletoResult, error)
	CancelBoleto(ctx context.Context, ourNumber string) bool
	GetBoletoStatus(ctx context.Context, ourNumber string) (domain.ChargeStatus, error)
	GeneratePixQrCode(ctx context.Context, charge *domain.BoletoCharge) (*domain.PixPayload, error)

	GenerateRemittanceFile(charges []domain.BoletoCharge) (string, error)
	ProcessReturnFile(content string) ([]domain.PaymentNotification, error)

	Info() domain.BankInfo
}

// AdapterResolver maps a 3-digit bank code to its adapter.
type AdapterResolver interface {
	Resolve(bankCode string) (BankAdapter, error)
	Catalogue() []domain.BankInfo
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
