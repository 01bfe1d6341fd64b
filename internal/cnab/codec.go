// Package cnab implements the CNAB 240 fixed-width batch format: field
// encoding primitives, remittance file building and return file parsing.
// Field offsets that differ between banks live in per-bank Layout tables.
package cnab

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// RecordLen is the fixed line length of every CNAB 240 record.
const RecordLen = 240

// PadLeft zero-pads value to width. Overflow is a hard error: numeric and
// identifier fields go through here, and truncating those corrupts money
// or keys.
func PadLeft(field, value string, width int) (string, error) {
	if len(value) > width {
		return "", &domain.ErrEncodingOverflow{Field: field, Value: value, Width: width}
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

// PadRight space-pads value to width, truncating overflow. Only free-text
// fields (names, addresses, instructions) are encoded through here, where
// losing trailing characters is cosmetic.
func PadRight(value string, width int) string {
	if len(value) > width {
		return value[:width]
	}
	return value + strings.Repeat(" ", width-len(value))
}

// OnlyDigits strips every non-digit rune (CPF/CNPJ punctuation, CEP dashes).
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Currency converts a BRL amount into its unscaled cents string: no
// separators, no padding. Currency(19.9) == "1990", Currency(0) == "0".
func Currency(amount float64) string {
	cents := int64(math.Round(amount * 100))
	return strconv.FormatInt(cents, 10)
}

// Date formats a date as DDMMYYYY. The zero time encodes as all zeros,
// which is how CNAB marks "no date".
func Date(t time.Time) string {
	if t.IsZero() {
		return "00000000"
	}
	return t.Format("02012006")
}

// Clock formats a timestamp as HHMMSS.
func Clock(t time.Time) string {
	return t.Format("150405")
}

// ParseCents converts an unscaled integer field back into BRL.
func ParseCents(s string) (float64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cents field %q: %w", s, err)
	}
	return float64(v) / 100, nil
}

// ParseDate parses a DDMMYYYY field. All-zero fields mean "no date" and
// return the zero time with no error.
func ParseDate(s string) (time.Time, error) {
	if s == "00000000" || strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("02012006", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date field %q: %w", s, err)
	}
	return t, nil
}

// numeric encodes a digits-only identifier into a zero-padded slot.
func numeric(field, value string, width int) (string, error) {
	return PadLeft(field, OnlyDigits(value), width)
}

// amount encodes a BRL value into a zero-padded cents slot.
func amount(field string, value float64, width int) (string, error) {
	return PadLeft(field, Currency(value), width)
}

// alpha encodes free text: uppercased, space-padded, truncated.
func alpha(value string, width int) string {
	return PadRight(strings.ToUpper(value), width)
}
