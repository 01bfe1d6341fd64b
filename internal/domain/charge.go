// Package domain holds the core entities of the charge gateway: boleto
// charges, payment notifications, bank metadata and the shared error types.
// No behavior beyond small helpers; everything here is transport-agnostic.
package domain

import "time"

// Payer identifies the person or company being charged.
type Payer struct {
	Name     string `json:"name"`
	Document string `json:"document"` // CPF (11 digits) or CNPJ (14 digits)
	Address  string `json:"address"`
	District string `json:"district"`
	City     string `json:"city"`
	State    string `json:"state"` // 2-letter UF
	ZipCode  string `json:"zip_code"`
}

// Discount is an optional early-payment discount on a charge.
type Discount struct {
	Amount    float64   `json:"amount,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	LimitDate time.Time `json:"limit_date"`
}

// Fine is the one-time penalty applied after the due date.
type Fine struct {
	Percent   float64   `json:"percent"`
	StartDate time.Time `json:"start_date"`
}

// Interest is the monthly interest accrued after the due date.
type Interest struct {
	MonthlyPercent float64   `json:"monthly_percent"`
	StartDate      time.Time `json:"start_date"`
}

// BoletoCharge is a charge to be registered with a bank. OurNumber is the
// caller-assigned identifier and doubles as the bank's dedupe key.
type BoletoCharge struct {
	OurNumber      string    `json:"our_number"`
	Amount         float64   `json:"amount"`
	DueDate        time.Time `json:"due_date"`
	DocumentNumber string    `json:"document_number"`
	Payer          Payer     `json:"payer"`
	Discount       *Discount `json:"discount,omitempty"`
	Fine           *Fine     `json:"fine,omitempty"`
	Interest       *Interest `json:"interest,omitempty"`
	Instructions   []string  `json:"instructions,omitempty"`
}

// HasAccessoryTerms reports whether the charge carries discount, fine or
// interest terms that need a dedicated record in the remittance file.
func (c *BoletoCharge) HasAccessoryTerms() bool {
	return c.Discount != nil || c.Fine != nil || c.Interest != nil
}

// PixPayload carries the PIX leg of a hybrid boleto.
type PixPayload struct {
	QRCodeURL string `json:"qr_code_url,omitempty"`
	CopyPaste string `json:"copy_paste,omitempty"` // EMV "copia e cola" string
	TxID      string `json:"tx_id,omitempty"`
}

// BoletoResult is the structured outcome of a registration attempt. Expected
// bank-side failures land here with Success=false instead of an error.
type BoletoResult struct {
	Success       bool        `json:"success"`
	Barcode       string      `json:"barcode,omitempty"`
	DigitableLine string      `json:"digitable_line,omitempty"`
	BoletoURL     string      `json:"boleto_url,omitempty"`
	Pix           *PixPayload `json:"pix,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	RawResponse   string      `json:"-"`
}

// ChargeStatus is the normalized lifecycle state of a registered charge.
type ChargeStatus string

const (
	StatusPending   ChargeStatus = "pending"
	StatusPaid      ChargeStatus = "paid"
	StatusCancelled ChargeStatus = "cancelled"
	StatusProtested ChargeStatus = "protested"
	StatusExpired   ChargeStatus = "expired"
	StatusUnknown   ChargeStatus = "unknown"
)

// Channels a payment notification can arrive through.
const (
	ChannelCNABReturn = "cnab_retorno"
	ChannelAPI        = "api"
)

// PaymentNotification is one settled charge extracted from a return file
// or an API callback.
type PaymentNotification struct {
	OurNumber      string     `json:"our_number"`
	AmountPaid     float64    `json:"amount_paid"`
	PaymentDate    time.Time  `json:"payment_date"`
	CreditDate     *time.Time `json:"credit_date,omitempty"`
	Authentication string     `json:"authentication,omitempty"`
	Channel        string     `json:"channel"`
}

// RemittanceFile is a generated CNAB 240 remittance ready for upload to
// the bank's file transfer channel.
type RemittanceFile struct {
	ID          string    `json:"id"`
	BankCode    string    `json:"bank_code"`
	FileName    string    `json:"file_name"`
	Content     string    `json:"content"`
	ChargeCount int       `json:"charge_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
