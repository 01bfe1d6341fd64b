package cnab_test

import (
	"strings"
	"testing"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/cnab"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

func testCredentials() domain.Credentials {
	return domain.Credentials{
		BankCode:        "001",
		Agreement:       "1234567",
		Wallet:          "17",
		Agency:          "1234",
		Account:         "56789",
		CompanyName:     "ACME COBRANCAS LTDA",
		CompanyDocument: "12345678000195",
	}
}

func testCharge() domain.BoletoCharge {
	return domain.BoletoCharge{
		OurNumber:      "0000000123",
		Amount:         980.00,
		DueDate:        time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		DocumentNumber: "NF-1001",
		Payer: domain.Payer{
			Name:     "Jose da Silva",
			Document: "123.456.789-09",
			Address:  "Rua das Flores, 100",
			District: "Centro",
			City:     "Sao Paulo",
			State:    "SP",
			ZipCode:  "01310-100",
		},
	}
}

func newTestBuilder(t *testing.T, bankCode string) *cnab.Builder {
	t.Helper()
	layout, err := cnab.LayoutFor(bankCode)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	b := cnab.NewBuilder(layout, testCredentials(), 1)
	b.Clock = func() time.Time {
		return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	}
	return b
}

func buildLines(t *testing.T, b *cnab.Builder, charges []domain.BoletoCharge) []string {
	t.Helper()
	content, err := b.Build(charges)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasSuffix(content, "\r\n") {
		t.Error("file should end with CRLF")
	}
	return strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n")
}

func TestBuildEveryRecordIs240Chars(t *testing.T) {
	for _, bankCode := range []string{"001", "341"} {
		t.Run(bankCode, func(t *testing.T) {
			b := newTestBuilder(t, bankCode)
			charge := testCharge()
			charge.Fine = &domain.Fine{Percent: 2.0, StartDate: charge.DueDate.AddDate(0, 0, 1)}
			lines := buildLines(t, b, []domain.BoletoCharge{charge})
			if len(lines) != 7 {
				t.Fatalf("expected 7 records (header, batch header, P, Q, R, trailers), got %d", len(lines))
			}
			for i, line := range lines {
				if len(line) != cnab.RecordLen {
					t.Errorf("record %d has length %d, want %d", i+1, len(line), cnab.RecordLen)
				}
			}
		})
	}
}

func TestBuildSegmentPFields(t *testing.T) {
	b := newTestBuilder(t, "001")
	lines := buildLines(t, b, []domain.BoletoCharge{testCharge()})

	p := lines[2]
	if p[13] != 'P' {
		t.Fatalf("expected segment P at record 3, got %q", p[13])
	}
	if due := p[77:85]; due != "10022026" {
		t.Errorf("due date field = %q, want 10022026", due)
	}
	if amount := p[85:100]; amount != "000000000098000" {
		t.Errorf("amount field = %q, want 000000000098000", amount)
	}
	if ourNumber := p[37:57]; ourNumber != "00000000000000000123" {
		t.Errorf("our number field = %q", ourNumber)
	}
	if movement := p[15:17]; movement != "01" {
		t.Errorf("movement code = %q, want 01", movement)
	}
}

func TestBuildSegmentQFields(t *testing.T) {
	b := newTestBuilder(t, "001")
	lines := buildLines(t, b, []domain.BoletoCharge{testCharge()})

	q := lines[3]
	if q[13] != 'Q' {
		t.Fatalf("expected segment Q at record 4, got %q", q[13])
	}
	if q[17] != '1' {
		t.Errorf("11-digit document should mark payer as CPF, got %q", q[17])
	}
	if doc := q[18:33]; doc != "000012345678909" {
		t.Errorf("payer document field = %q", doc)
	}
	if name := q[33:73]; !strings.HasPrefix(name, "JOSE DA SILVA") {
		t.Errorf("payer name field = %q", name)
	}
	if cep := q[128:136]; cep != "01310100" {
		t.Errorf("cep field = %q, want 01310100", cep)
	}
}

func TestBuildSegmentROnlyWithAccessoryTerms(t *testing.T) {
	b := newTestBuilder(t, "001")

	plain := buildLines(t, b, []domain.BoletoCharge{testCharge()})
	if len(plain) != 6 {
		t.Fatalf("charge without accessory terms should produce 6 records, got %d", len(plain))
	}

	charge := testCharge()
	charge.Discount = &domain.Discount{Amount: 10.0, LimitDate: charge.DueDate.AddDate(0, 0, -5)}
	withR := buildLines(t, b, []domain.BoletoCharge{charge})
	if len(withR) != 7 {
		t.Fatalf("charge with discount should produce 7 records, got %d", len(withR))
	}
	r := withR[4]
	if r[13] != 'R' {
		t.Errorf("expected segment R at record 5, got %q", r[13])
	}
}

func TestBuildEmptyChargeListEmitsShell(t *testing.T) {
	b := newTestBuilder(t, "001")
	lines := buildLines(t, b, nil)
	if len(lines) != 4 {
		t.Fatalf("expected 4-record shell, got %d", len(lines))
	}
	if lines[0][7] != '0' || lines[1][7] != '1' || lines[2][7] != '5' || lines[3][7] != '9' {
		t.Errorf("unexpected record type sequence")
	}
}

func TestBuildTrailerCounts(t *testing.T) {
	b := newTestBuilder(t, "001")
	lines := buildLines(t, b, []domain.BoletoCharge{testCharge(), testCharge()})

	batchTrailer := lines[len(lines)-2]
	// 2 charges, 2 records each, plus batch header and trailer.
	if count := batchTrailer[17:23]; count != "000006" {
		t.Errorf("batch record count = %q, want 000006", count)
	}
	if titles := batchTrailer[23:29]; titles != "000002" {
		t.Errorf("title count = %q, want 000002", titles)
	}
	if total := batchTrailer[29:46]; total != "00000000000196000" {
		t.Errorf("total amount = %q, want 00000000000196000", total)
	}

	fileTrailer := lines[len(lines)-1]
	if count := fileTrailer[23:29]; count != "000008" {
		t.Errorf("file record count = %q, want 000008", count)
	}
}

func TestBuildLayoutVersions(t *testing.T) {
	tests := []struct {
		bankCode string
		fileVer  string
		batchVer string
	}{
		{"001", "084", "042"},
		{"341", "080", "030"},
	}
	for _, tt := range tests {
		b := newTestBuilder(t, tt.bankCode)
		lines := buildLines(t, b, nil)
		if got := lines[0][163:166]; got != tt.fileVer {
			t.Errorf("bank %s: file layout version = %q, want %q", tt.bankCode, got, tt.fileVer)
		}
		if got := lines[1][13:16]; got != tt.batchVer {
			t.Errorf("bank %s: batch layout version = %q, want %q", tt.bankCode, got, tt.batchVer)
		}
	}
}

func TestBuildOurNumberOverflow(t *testing.T) {
	b := newTestBuilder(t, "001")
	charge := testCharge()
	charge.OurNumber = strings.Repeat("9", 21)
	if _, err := b.Build([]domain.BoletoCharge{charge}); err == nil {
		t.Fatal("expected overflow error for 21-digit our number")
	}
}
