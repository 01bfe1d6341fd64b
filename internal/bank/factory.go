package bank

import (
	"sort"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/port"
)

// New builds the adapter for a 3-digit bank code. Unknown codes fail with
// ErrUnsupportedBank.
func New(bankCode string, creds domain.Credentials, deps Deps) (port.BankAdapter, error) {
	switch bankCode {
	case CodeBancoBrasil:
		return newBancoBrasil(creds, deps)
	case CodeItau:
		return newItau(creds, deps)
	case CodeBradesco:
		return newBradesco(deps), nil
	default:
		return nil, &domain.ErrUnsupportedBank{Code: bankCode}
	}
}

// Codes lists every bank code the factory knows, implemented or stubbed.
func Codes() []string {
	return []string{CodeBancoBrasil, CodeBradesco, CodeItau}
}

// Registry holds the adapters built at startup, one per configured bank,
// and implements port.AdapterResolver.
type Registry struct {
	adapters map[string]port.BankAdapter
}

// NewRegistry builds an adapter for every credential set it is given.
// Banks the factory knows but that have no credentials are left out of
// the registry (a stub like Bradesco needs none and is always present).
func NewRegistry(creds map[string]domain.Credentials, deps Deps) (*Registry, error) {
	r := &Registry{adapters: make(map[string]port.BankAdapter)}

	for code, c := range creds {
		adapter, err := New(code, c, deps)
		if err != nil {
			return nil, err
		}
		r.adapters[code] = adapter
	}
	if _, ok := r.adapters[CodeBradesco]; !ok {
		r.adapters[CodeBradesco] = newBradesco(deps)
	}
	return r, nil
}

// Resolve returns the adapter for a bank code.
func (r *Registry) Resolve(bankCode string) (port.BankAdapter, error) {
	adapter, ok := r.adapters[bankCode]
	if !ok {
		return nil, &domain.ErrUnsupportedBank{Code: bankCode}
	}
	return adapter, nil
}

// Catalogue lists the configured banks sorted by code.
func (r *Registry) Catalogue() []domain.BankInfo {
	infos := make([]domain.BankInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Code < infos[j].Code })
	return infos
}
