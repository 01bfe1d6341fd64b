package cnab_test

import (
	"errors"
	"testing"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/cnab"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

func TestPadLeft(t *testing.T) {
	got, err := cnab.PadLeft("nosso_numero", "123", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0000000123" {
		t.Errorf("expected 0000000123, got %q", got)
	}
}

func TestPadLeftOverflow(t *testing.T) {
	_, err := cnab.PadLeft("agencia", "123456", 5)
	if err == nil {
		t.Fatal("expected overflow error")
	}
	var overflow *domain.ErrEncodingOverflow
	if !errors.As(err, &overflow) {
		t.Fatalf("expected ErrEncodingOverflow, got %T", err)
	}
	if overflow.Field != "agencia" || overflow.Width != 5 {
		t.Errorf("unexpected error detail: %+v", overflow)
	}
}

func TestPadRightTruncates(t *testing.T) {
	got := cnab.PadRight("JOSE DA SILVA SAURO PEREIRA", 10)
	if got != "JOSE DA SI" {
		t.Errorf("expected truncation to 10 chars, got %q", got)
	}
	if padded := cnab.PadRight("AB", 5); padded != "AB   " {
		t.Errorf("expected space padding, got %q", padded)
	}
}

func TestOnlyDigits(t *testing.T) {
	if got := cnab.OnlyDigits("123.456.789-09"); got != "12345678909" {
		t.Errorf("expected 12345678909, got %q", got)
	}
	if got := cnab.OnlyDigits("01310-100"); got != "01310100" {
		t.Errorf("expected 01310100, got %q", got)
	}
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{19.9, "1990"},
		{0, "0"},
		{980.00, "98000"},
		{0.01, "1"},
		{1234567.89, "123456789"},
	}
	for _, tt := range tests {
		if got := cnab.Currency(tt.amount); got != tt.want {
			t.Errorf("Currency(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	d := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	if got := cnab.Date(d); got != "10012026" {
		t.Errorf("expected 10012026, got %q", got)
	}
	if got := cnab.Date(time.Time{}); got != "00000000" {
		t.Errorf("zero time should encode as 00000000, got %q", got)
	}
}

func TestClock(t *testing.T) {
	ts := time.Date(2026, 1, 10, 14, 30, 5, 0, time.UTC)
	if got := cnab.Clock(ts); got != "143005" {
		t.Errorf("expected 143005, got %q", got)
	}
}

func TestParseCents(t *testing.T) {
	got, err := cnab.ParseCents("000000000098000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 980.00 {
		t.Errorf("expected 980.00, got %v", got)
	}
	if _, err := cnab.ParseCents("12AB"); err == nil {
		t.Error("expected error for non-numeric field")
	}
}

func TestParseDate(t *testing.T) {
	got, err := cnab.ParseDate("10022026")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	zero, err := cnab.ParseDate("00000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("all-zero date should parse as zero time, got %v", zero)
	}
}

func TestLayoutFor(t *testing.T) {
	l, err := cnab.LayoutFor("001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.BankCode != "001" || l.FileVer != "084" || l.BatchVer != "042" {
		t.Errorf("unexpected layout: %+v", l)
	}
	if !l.Settled("06") {
		t.Error("movement 06 should be settled for 001")
	}
	if l.Settled("02") {
		t.Error("movement 02 should not be settled")
	}

	if _, err := cnab.LayoutFor("999"); err == nil {
		t.Error("expected error for unknown bank code")
	}
	var unsupported *domain.ErrUnsupportedBank
	_, err = cnab.LayoutFor("999")
	if !errors.As(err, &unsupported) {
		t.Errorf("expected ErrUnsupportedBank, got %T", err)
	}
}
