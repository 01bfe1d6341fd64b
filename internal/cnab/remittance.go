package cnab

import (
	"strconv"
	"strings"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// record accumulates the fixed-width fields of one CNAB line. The first
// encoding error sticks; later fields are still appended so close can
// report a single error instead of a partial panic.
type record struct {
	b   strings.Builder
	err error
}

func (r *record) lit(s string) {
	r.b.WriteString(s)
}

func (r *record) num(field, value string, width int) {
	s, err := numeric(field, value, width)
	if err != nil && r.err == nil {
		r.err = err
	}
	r.b.WriteString(s)
}

func (r *record) amt(field string, value float64, width int) {
	s, err := amount(field, value, width)
	if err != nil && r.err == nil {
		r.err = err
	}
	r.b.WriteString(s)
}

func (r *record) txt(value string, width int) {
	r.b.WriteString(alpha(value, width))
}

func (r *record) blank(width int) {
	r.b.WriteString(strings.Repeat(" ", width))
}

func (r *record) zeros(width int) {
	r.b.WriteString(strings.Repeat("0", width))
}

func (r *record) close() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	line := r.b.String()
	if len(line) != RecordLen {
		return "", &domain.ErrEncodingOverflow{Field: "record", Value: line, Width: RecordLen}
	}
	return line, nil
}

// Builder assembles a CNAB 240 remittance file for one bank and one
// beneficiary. Clock is overridable so generated headers are stable in
// tests.
type Builder struct {
	layout Layout
	creds  domain.Credentials
	seq    int
	Clock  func() time.Time
}

// NewBuilder returns a Builder for the given layout and credentials. seq
// is the sequential remittance number stamped on the file header.
func NewBuilder(layout Layout, creds domain.Credentials, seq int) *Builder {
	return &Builder{layout: layout, creds: creds, seq: seq, Clock: time.Now}
}

// Build renders the full remittance: file header, batch header, one P and
// one Q segment per charge plus an R segment when the charge carries
// discount, fine or interest terms, then the batch and file trailers.
// Lines are CRLF-joined. An empty charge list still yields the four-record
// shell, which banks accept as a "no movement" file.
func (b *Builder) Build(charges []domain.BoletoCharge) (string, error) {
	now := b.Clock()
	lines := make([]string, 0, 4+len(charges)*3)

	fh, err := b.fileHeader(now)
	if err != nil {
		return "", err
	}
	lines = append(lines, fh)

	bh, err := b.batchHeader(now)
	if err != nil {
		return "", err
	}
	lines = append(lines, bh)

	detailSeq := 0
	var total float64
	for i := range charges {
		c := &charges[i]
		total += c.Amount

		detailSeq++
		p, err := b.segmentP(detailSeq, c, now)
		if err != nil {
			return "", err
		}
		lines = append(lines, p)

		detailSeq++
		q, err := b.segmentQ(detailSeq, c)
		if err != nil {
			return "", err
		}
		lines = append(lines, q)

		if c.HasAccessoryTerms() {
			detailSeq++
			rr, err := b.segmentR(detailSeq, c)
			if err != nil {
				return "", err
			}
			lines = append(lines, rr)
		}
	}

	// Batch count includes the batch header and trailer themselves.
	bt, err := b.batchTrailer(detailSeq+2, len(charges), total)
	if err != nil {
		return "", err
	}
	lines = append(lines, bt)

	ft, err := b.fileTrailer(detailSeq + 4)
	if err != nil {
		return "", err
	}
	lines = append(lines, ft)

	return strings.Join(lines, "\r\n") + "\r\n", nil
}

func (b *Builder) fileHeader(now time.Time) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0000")
	r.lit("0")
	r.blank(9)
	r.lit("2") // CNPJ
	r.num("cnpj_empresa", b.creds.CompanyDocument, 14)
	r.num("convenio", b.creds.Agreement, 20)
	r.num("agencia", b.creds.Agency, 5)
	r.blank(1)
	r.num("conta", b.creds.Account, 12)
	r.blank(1)
	r.blank(1)
	r.txt(b.creds.CompanyName, 30)
	r.txt(b.layout.BankName, 30)
	r.blank(10)
	r.lit("1") // remessa
	r.lit(Date(now))
	r.lit(Clock(now))
	r.num("sequencial_arquivo", strconv.Itoa(b.seq), 6)
	r.lit(b.layout.FileVer)
	r.zeros(5)
	r.blank(20)
	r.blank(20)
	r.blank(29)
	return r.close()
}

func (b *Builder) batchHeader(now time.Time) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0001")
	r.lit("1")
	r.lit("R")  // remessa
	r.lit("01") // cobrança
	r.blank(2)
	r.lit(b.layout.BatchVer)
	r.blank(1)
	r.lit("2")
	r.num("cnpj_empresa", b.creds.CompanyDocument, 15)
	r.num("convenio", b.creds.Agreement, 20)
	r.num("agencia", b.creds.Agency, 5)
	r.blank(1)
	r.num("conta", b.creds.Account, 12)
	r.blank(1)
	r.blank(1)
	r.txt(b.creds.CompanyName, 30)
	r.blank(40)
	r.blank(40)
	r.num("numero_remessa", strconv.Itoa(b.seq), 8)
	r.lit(Date(now))
	r.zeros(8)
	r.blank(33)
	return r.close()
}

func (b *Builder) segmentP(seq int, c *domain.BoletoCharge, now time.Time) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0001")
	r.lit("3")
	r.num("sequencial_registro", strconv.Itoa(seq), 5)
	r.lit("P")
	r.blank(1)
	r.lit("01") // entrada de título
	r.num("agencia", b.creds.Agency, 5)
	r.blank(1)
	r.num("conta", b.creds.Account, 12)
	r.blank(1)
	r.blank(1)
	r.num("nosso_numero", c.OurNumber, 20)
	r.lit(b.layout.WalletCode)
	r.lit("1") // cadastramento com registro
	r.lit("1") // documento tradicional
	r.lit("2") // boleto emitido pelo beneficiário
	r.lit("2") // distribuição pelo beneficiário
	r.txt(c.DocumentNumber, 15)
	r.lit(Date(c.DueDate))
	r.amt("valor_nominal", c.Amount, 15)
	r.zeros(5)
	r.blank(1)
	r.lit("02") // duplicata mercantil
	r.lit("N")
	r.lit(Date(now))
	if c.Interest != nil {
		r.lit("2") // taxa mensal
		r.lit(Date(c.Interest.StartDate))
		r.amt("juros_taxa", c.Interest.MonthlyPercent, 15)
	} else {
		r.lit("3") // isento
		r.zeros(8)
		r.zeros(15)
	}
	if c.Discount != nil {
		if c.Discount.Percent > 0 {
			r.lit("2")
			r.lit(Date(c.Discount.LimitDate))
			r.amt("desconto_percentual", c.Discount.Percent, 15)
		} else {
			r.lit("1")
			r.lit(Date(c.Discount.LimitDate))
			r.amt("desconto_valor", c.Discount.Amount, 15)
		}
	} else {
		r.lit("0")
		r.zeros(8)
		r.zeros(15)
	}
	r.zeros(15) // IOF
	r.zeros(15) // abatimento
	r.txt(c.OurNumber, 25)
	r.lit("3") // não protestar
	r.lit("00")
	r.lit("1") // baixar/devolver
	r.lit("060")
	r.lit("09") // real
	r.zeros(10)
	r.blank(1)
	return r.close()
}

func (b *Builder) segmentQ(seq int, c *domain.BoletoCharge) (string, error) {
	doc := OnlyDigits(c.Payer.Document)
	inscription := "2"
	if len(doc) == 11 {
		inscription = "1" // CPF
	}
	cep := OnlyDigits(c.Payer.ZipCode)
	for len(cep) < 8 {
		cep = "0" + cep
	}

	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0001")
	r.lit("3")
	r.num("sequencial_registro", strconv.Itoa(seq), 5)
	r.lit("Q")
	r.blank(1)
	r.lit("01")
	r.lit(inscription)
	r.num("documento_pagador", doc, 15)
	r.txt(c.Payer.Name, 40)
	r.txt(c.Payer.Address, 40)
	r.txt(c.Payer.District, 15)
	r.lit(cep[:5])
	r.lit(cep[5:8])
	r.txt(c.Payer.City, 15)
	r.txt(c.Payer.State, 2)
	r.lit("0") // sem sacador/avalista
	r.zeros(15)
	r.blank(40)
	r.zeros(3)
	r.blank(20)
	r.blank(8)
	return r.close()
}

func (b *Builder) segmentR(seq int, c *domain.BoletoCharge) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0001")
	r.lit("3")
	r.num("sequencial_registro", strconv.Itoa(seq), 5)
	r.lit("R")
	r.blank(1)
	r.lit("01")
	r.lit("0") // sem desconto 2
	r.zeros(8)
	r.zeros(15)
	r.lit("0") // sem desconto 3
	r.zeros(8)
	r.zeros(15)
	if c.Fine != nil {
		r.lit("2") // multa percentual
		r.lit(Date(c.Fine.StartDate))
		r.amt("multa_percentual", c.Fine.Percent, 15)
	} else {
		r.lit("0")
		r.zeros(8)
		r.zeros(15)
	}
	r.blank(10)
	r.blank(40)
	r.blank(40)
	r.blank(20)
	r.zeros(8)
	r.zeros(3)
	r.zeros(5)
	r.blank(1)
	r.zeros(12)
	r.blank(1)
	r.blank(1)
	r.lit("0")
	r.blank(9)
	return r.close()
}

func (b *Builder) batchTrailer(recordCount, chargeCount int, total float64) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("0001")
	r.lit("5")
	r.blank(9)
	r.num("quantidade_registros_lote", strconv.Itoa(recordCount), 6)
	r.num("quantidade_titulos", strconv.Itoa(chargeCount), 6)
	r.amt("valor_total_titulos", total, 17)
	r.zeros(6)
	r.zeros(17)
	r.zeros(6)
	r.zeros(17)
	r.zeros(6)
	r.zeros(17)
	r.blank(8)
	r.blank(117)
	return r.close()
}

func (b *Builder) fileTrailer(recordCount int) (string, error) {
	r := &record{}
	r.lit(b.layout.BankCode)
	r.lit("9999")
	r.lit("9")
	r.blank(9)
	r.num("quantidade_lotes", "1", 6)
	r.num("quantidade_registros", strconv.Itoa(recordCount), 6)
	r.zeros(6)
	r.blank(205)
	return r.close()
}
