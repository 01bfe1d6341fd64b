package cnab

import "github.com/brandao/cobranca-gateway-go/internal/domain"

// Layout captures everything about CNAB 240 that varies between banks:
// layout version stamps for the remittance headers and the byte offsets
// of the fields the return parser extracts. Offsets are 0-based slice
// bounds into the raw 240-byte line.
type Layout struct {
	BankCode   string
	BankName   string
	Wallet     string
	WalletCode string // 1-digit carteira code, segment P position 58
	FileVer    string // file header, positions 164-166
	BatchVer   string // batch header, positions 14-16

	// Segment T.
	OurNumberStart int
	OurNumberEnd   int

	// Segment U. Same positions on every bank seen so far, kept per
	// layout anyway so a divergent bank is a table edit.
	PaidAmountStart  int
	PaidAmountEnd    int
	PaymentDateStart int
	PaymentDateEnd   int
	CreditDateStart  int
	CreditDateEnd    int

	// Movement codes on segment T that mean the charge was settled.
	SettledMovements map[string]bool
}

// Settled reports whether a segment T movement code represents payment.
func (l Layout) Settled(code string) bool {
	return l.SettledMovements[code]
}

var layouts = map[string]Layout{
	"001": {
		BankCode:         "001",
		BankName:         "BANCO DO BRASIL S.A.",
		Wallet:           "17",
		WalletCode:       "1",
		FileVer:          "084",
		BatchVer:         "042",
		OurNumberStart:   37,
		OurNumberEnd:     57,
		PaidAmountStart:  77,
		PaidAmountEnd:    92,
		PaymentDateStart: 137,
		PaymentDateEnd:   145,
		CreditDateStart:  145,
		CreditDateEnd:    153,
		SettledMovements: map[string]bool{"06": true},
	},
	"341": {
		BankCode:         "341",
		BankName:         "BANCO ITAU S.A.",
		Wallet:           "109",
		WalletCode:       "1",
		FileVer:          "080",
		BatchVer:         "030",
		OurNumberStart:   37,
		OurNumberEnd:     45,
		PaidAmountStart:  77,
		PaidAmountEnd:    92,
		PaymentDateStart: 137,
		PaymentDateEnd:   145,
		CreditDateStart:  145,
		CreditDateEnd:    153,
		SettledMovements: map[string]bool{"06": true, "17": true},
	},
}

// LayoutFor resolves the CNAB layout for a 3-digit bank code.
func LayoutFor(bankCode string) (Layout, error) {
	l, ok := layouts[bankCode]
	if !ok {
		return Layout{}, &domain.ErrUnsupportedBank{Code: bankCode}
	}
	return l, nil
}
