package cnab

import (
	"strings"

	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// Parser extracts settled payments from a CNAB 240 return file. It only
// looks at segment T/U pairs; every other record type is passed over.
type Parser struct {
	layout Layout
	logger *zap.Logger
}

func NewParser(layout Layout, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{layout: layout, logger: logger}
}

// Parse scans the file content line by line. A settlement is a segment T
// whose movement code is in the layout's settled set, immediately followed
// by its segment U. Short or malformed lines are skipped, and a T without
// its U is dropped whole rather than guessed at.
func (p *Parser) Parse(content string) ([]domain.PaymentNotification, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	notifications := make([]domain.PaymentNotification, 0)

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if len(line) != RecordLen {
			if strings.TrimSpace(line) != "" {
				p.logger.Debug("skipping malformed return line",
					zap.Int("line", i+1),
					zap.Int("length", len(line)))
			}
			continue
		}
		if line[7] != '3' || line[13] != 'T' {
			continue
		}

		movement := line[15:17]
		if !p.layout.Settled(movement) {
			continue
		}

		ourNumber := strings.TrimLeft(
			strings.TrimSpace(line[p.layout.OurNumberStart:p.layout.OurNumberEnd]), "0")

		if i+1 >= len(lines) || len(lines[i+1]) != RecordLen ||
			lines[i+1][7] != '3' || lines[i+1][13] != 'U' {
			p.logger.Warn("segment T without matching segment U",
				zap.Int("line", i+1),
				zap.String("our_number", ourNumber))
			continue
		}
		u := lines[i+1]
		i++

		amount, err := ParseCents(u[p.layout.PaidAmountStart:p.layout.PaidAmountEnd])
		if err != nil {
			p.logger.Warn("unreadable paid amount in segment U",
				zap.Int("line", i+1),
				zap.String("our_number", ourNumber),
				zap.Error(err))
			continue
		}
		paymentDate, err := ParseDate(u[p.layout.PaymentDateStart:p.layout.PaymentDateEnd])
		if err != nil {
			p.logger.Warn("unreadable payment date in segment U",
				zap.Int("line", i+1),
				zap.String("our_number", ourNumber),
				zap.Error(err))
			continue
		}

		n := domain.PaymentNotification{
			OurNumber:   ourNumber,
			AmountPaid:  amount,
			PaymentDate: paymentDate,
			Channel:     domain.ChannelCNABReturn,
		}
		if credit, err := ParseDate(u[p.layout.CreditDateStart:p.layout.CreditDateEnd]); err == nil && !credit.IsZero() {
			n.CreditDate = &credit
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}
