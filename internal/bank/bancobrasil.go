package bank

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/cnab"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// Bank codes (COMPE).
const (
	CodeBancoBrasil = "001"
	CodeBradesco    = "237"
	CodeItau        = "341"
)

const bbDateLayout = "02.01.2006"

// BancoBrasil integrates with the Banco do Brasil Cobrança v2 API. Boletos
// are registered as hybrid charges (indicadorPix "S"), so every successful
// registration carries the PIX leg alongside the barcode.
type BancoBrasil struct {
	creds  domain.Credentials
	rest   *restClient
	tokens *tokenSource
	layout cnab.Layout
	parser *cnab.Parser
	logger *zap.Logger

	tokenURL string
	apiURL   string
	remSeq   atomic.Int64
}

func newBancoBrasil(creds domain.Credentials, deps Deps) (*BancoBrasil, error) {
	layout, err := cnab.LayoutFor(CodeBancoBrasil)
	if err != nil {
		return nil, err
	}

	b := &BancoBrasil{
		creds:    creds,
		rest:     newRESTClient(CodeBancoBrasil, deps),
		layout:   layout,
		parser:   cnab.NewParser(layout, deps.logger()),
		logger:   deps.logger(),
		tokenURL: creds.TokenURL,
		apiURL:   creds.APIURL,
	}
	if b.tokenURL == "" {
		if creds.Environment == domain.EnvProduction {
			b.tokenURL = "https://oauth.bb.com.br/oauth/token"
		} else {
			b.tokenURL = "https://oauth.sandbox.bb.com.br/oauth/token"
		}
	}
	if b.apiURL == "" {
		if creds.Environment == domain.EnvProduction {
			b.apiURL = "https://api.bb.com.br/cobrancas/v2"
		} else {
			b.apiURL = "https://api.sandbox.bb.com.br/cobrancas/v2"
		}
	}
	b.tokens = newTokenSource(b.fetchToken)
	return b, nil
}

func (b *BancoBrasil) Info() domain.BankInfo {
	return domain.BankInfo{
		Code:        CodeBancoBrasil,
		Name:        "Banco do Brasil S.A.",
		ShortName:   "BB",
		Implemented: true,
	}
}

func (b *BancoBrasil) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"cobrancas.boletos-info cobrancas.boletos-requisicao"},
	}
	basic := base64.StdEncoding.EncodeToString([]byte(b.creds.ClientID + ":" + b.creds.ClientSecret))

	status, body, err := b.rest.execute(ctx, restRequest{
		method: http.MethodPost,
		url:    b.tokenURL,
		body:   []byte(form.Encode()),
		headers: map[string]string{
			"Authorization": "Basic " + basic,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
	})
	if err != nil {
		return "", 0, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Err: err}
	}
	if status != http.StatusOK {
		return "", 0, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Body: string(body)}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Err: err}
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

// Authenticate acquires a token eagerly. Operations authenticate lazily on
// their own; this exists for readiness probes.
func (b *BancoBrasil) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "BancoBrasil.Authenticate")
	defer span.End()

	_, err := b.tokens.Token(ctx)
	return err
}

// titleNumber composes the 20-digit numeroTituloCliente: "000" plus the
// 7-digit convênio plus the 10-digit our-number.
func (b *BancoBrasil) titleNumber(ourNumber string) (string, error) {
	agreement, err := cnab.PadLeft("convenio", cnab.OnlyDigits(b.creds.Agreement), 7)
	if err != nil {
		return "", err
	}
	seq, err := cnab.PadLeft("nosso_numero", cnab.OnlyDigits(ourNumber), 10)
	if err != nil {
		return "", err
	}
	return "000" + agreement + seq, nil
}

type bbPayer struct {
	TipoInscricao   int    `json:"tipoInscricao"`
	NumeroInscricao string `json:"numeroInscricao"`
	Nome            string `json:"nome"`
	Endereco        string `json:"endereco"`
	CEP             string `json:"cep"`
	Cidade          string `json:"cidade"`
	Bairro          string `json:"bairro"`
	UF              string `json:"uf"`
}

type bbDiscount struct {
	Tipo          int     `json:"tipo"`
	DataExpiracao string  `json:"dataExpiracao"`
	Valor         float64 `json:"valor,omitempty"`
	Porcentagem   float64 `json:"porcentagem,omitempty"`
}

type bbInterest struct {
	Tipo        int     `json:"tipo"`
	Porcentagem float64 `json:"porcentagem"`
}

type bbFine struct {
	Tipo        int     `json:"tipo"`
	Data        string  `json:"data"`
	Porcentagem float64 `json:"porcentagem"`
}

type bbRegisterRequest struct {
	NumeroConvenio      string      `json:"numeroConvenio"`
	NumeroCarteira      string      `json:"numeroCarteira"`
	NumeroVariacao      string      `json:"numeroVariacaoCarteira"`
	CodigoModalidade    int         `json:"codigoModalidade"`
	DataEmissao         string      `json:"dataEmissao"`
	DataVencimento      string      `json:"dataVencimento"`
	ValorOriginal       float64     `json:"valorOriginal"`
	CodigoAceite        string      `json:"codigoAceite"`
	CodigoTipoTitulo    int         `json:"codigoTipoTitulo"`
	DescricaoTipoTitulo string      `json:"descricaoTipoTitulo"`
	NumeroTituloBenefic string      `json:"numeroTituloBeneficiario"`
	NumeroTituloCliente string      `json:"numeroTituloCliente"`
	IndicadorPix        string      `json:"indicadorPix"`
	Pagador             bbPayer     `json:"pagador"`
	Desconto            *bbDiscount `json:"desconto,omitempty"`
	JurosMora           *bbInterest `json:"jurosMora,omitempty"`
	Multa               *bbFine     `json:"multa,omitempty"`
}

type bbQRCode struct {
	URL  string `json:"url"`
	TxID string `json:"txId"`
	EMV  string `json:"emv"`
}

type bbRegisterResponse struct {
	Numero         string    `json:"numero"`
	CodigoBarras   string    `json:"codigoBarraNumerico"`
	LinhaDigitavel string    `json:"linhaDigitavel"`
	QRCode         *bbQRCode `json:"qrCode"`
}

type bbErrorResponse struct {
	Erros []struct {
		Codigo   string `json:"codigo"`
		Mensagem string `json:"mensagem"`
	} `json:"erros"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *bbErrorResponse) message() string {
	if len(e.Erros) > 0 {
		return e.Erros[0].Mensagem
	}
	if len(e.Errors) > 0 {
		return e.Errors[0].Message
	}
	return ""
}

func (b *BancoBrasil) registerPayload(charge *domain.BoletoCharge) (*bbRegisterRequest, error) {
	title, err := b.titleNumber(charge.OurNumber)
	if err != nil {
		return nil, err
	}

	doc := cnab.OnlyDigits(charge.Payer.Document)
	inscription := 2
	if len(doc) == 11 {
		inscription = 1
	}

	req := &bbRegisterRequest{
		NumeroConvenio:      cnab.OnlyDigits(b.creds.Agreement),
		NumeroCarteira:      b.creds.Wallet,
		NumeroVariacao:      b.creds.Variation,
		CodigoModalidade:    1,
		DataEmissao:         time.Now().Format(bbDateLayout),
		DataVencimento:      charge.DueDate.Format(bbDateLayout),
		ValorOriginal:       charge.Amount,
		CodigoAceite:        "N",
		CodigoTipoTitulo:    2,
		DescricaoTipoTitulo: "DM",
		NumeroTituloBenefic: charge.DocumentNumber,
		NumeroTituloCliente: title,
		IndicadorPix:        "S",
		Pagador: bbPayer{
			TipoInscricao:   inscription,
			NumeroInscricao: doc,
			Nome:            charge.Payer.Name,
			Endereco:        charge.Payer.Address,
			CEP:             cnab.OnlyDigits(charge.Payer.ZipCode),
			Cidade:          charge.Payer.City,
			Bairro:          charge.Payer.District,
			UF:              charge.Payer.State,
		},
	}

	if d := charge.Discount; d != nil {
		if d.Percent > 0 {
			req.Desconto = &bbDiscount{Tipo: 2, DataExpiracao: d.LimitDate.Format(bbDateLayout), Porcentagem: d.Percent}
		} else {
			req.Desconto = &bbDiscount{Tipo: 1, DataExpiracao: d.LimitDate.Format(bbDateLayout), Valor: d.Amount}
		}
	}
	if j := charge.Interest; j != nil {
		req.JurosMora = &bbInterest{Tipo: 2, Porcentagem: j.MonthlyPercent}
	}
	if m := charge.Fine; m != nil {
		req.Multa = &bbFine{Tipo: 2, Data: m.StartDate.Format(bbDateLayout), Porcentagem: m.Percent}
	}
	return req, nil
}

// RegisterBoleto registers a hybrid boleto. A bank-side rejection comes
// back as a BoletoResult with Success=false and the bank's message; the
// error path is reserved for transport, auth and encoding failures.
func (b *BancoBrasil) RegisterBoleto(ctx context.Context, charge *domain.BoletoCharge) (*domain.BoletoResult, error) {
	ctx, span := tracer.Start(ctx, "BancoBrasil.RegisterBoleto")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", charge.OurNumber))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := b.registerPayload(charge)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/boletos?gw-dev-app-key=%s", b.apiURL, url.QueryEscape(b.creds.DevAppKey))
	status, respBody, err := b.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     endpoint,
		body:    body,
		headers: b.authHeaders(token),
	})
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		b.tokens.Invalidate()
		return nil, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Body: string(respBody)}
	case status >= 400:
		var bankErr bbErrorResponse
		_ = json.Unmarshal(respBody, &bankErr)
		msg := bankErr.message()
		if msg == "" {
			msg = fmt.Sprintf("registro recusado (status %d)", status)
		}
		b.logger.Warn("bb: boleto rejected",
			zap.String("our_number", charge.OurNumber),
			zap.Int("status", status),
			zap.String("message", msg),
		)
		return &domain.BoletoResult{
			Success:      false,
			ErrorMessage: msg,
			RawResponse:  string(respBody),
		}, nil
	}

	var reg bbRegisterResponse
	if err := json.Unmarshal(respBody, &reg); err != nil {
		return nil, &domain.ErrExternalService{Service: "bank/001", Err: fmt.Errorf("failed to decode registration response: %w", err)}
	}

	result := &domain.BoletoResult{
		Success:       true,
		Barcode:       reg.CodigoBarras,
		DigitableLine: reg.LinhaDigitavel,
		RawResponse:   string(respBody),
	}
	if reg.QRCode != nil {
		result.Pix = &domain.PixPayload{
			QRCodeURL: reg.QRCode.URL,
			CopyPaste: reg.QRCode.EMV,
			TxID:      reg.QRCode.TxID,
		}
	}

	b.logger.Info("bb: boleto registered",
		zap.String("our_number", charge.OurNumber),
		zap.String("title", reg.Numero),
	)
	return result, nil
}

// CancelBoleto requests a baixa for the boleto. It never returns an error:
// failures are logged and reported as false so batch cancellations keep
// going.
func (b *BancoBrasil) CancelBoleto(ctx context.Context, ourNumber string) bool {
	ctx, span := tracer.Start(ctx, "BancoBrasil.CancelBoleto")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", ourNumber))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		b.logger.Warn("bb: cancel auth failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}
	title, err := b.titleNumber(ourNumber)
	if err != nil {
		b.logger.Warn("bb: cancel encoding failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}

	payload, _ := json.Marshal(map[string]string{"numeroConvenio": cnab.OnlyDigits(b.creds.Agreement)})
	endpoint := fmt.Sprintf("%s/boletos/%s/baixar?gw-dev-app-key=%s", b.apiURL, title, url.QueryEscape(b.creds.DevAppKey))
	status, body, err := b.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     endpoint,
		body:    payload,
		headers: b.authHeaders(token),
	})
	if err != nil {
		b.logger.Warn("bb: cancel request failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}
	if status < 200 || status >= 300 {
		b.logger.Warn("bb: cancel rejected",
			zap.String("our_number", ourNumber),
			zap.Int("status", status),
			zap.String("body", string(body)),
		)
		return false
	}

	b.logger.Info("bb: boleto cancelled", zap.String("our_number", ourNumber))
	return true
}

var bbStatusTable = map[int]domain.ChargeStatus{
	1: domain.StatusPending,
	2: domain.StatusProtested,
	3: domain.StatusProtested,
	4: domain.StatusProtested,
	5: domain.StatusProtested,
	6: domain.StatusPaid,
	7: domain.StatusCancelled,
}

// GetBoletoStatus queries the charge state. Codes outside the table map to
// StatusUnknown with no error, so a new bank-side state never breaks
// polling.
func (b *BancoBrasil) GetBoletoStatus(ctx context.Context, ourNumber string) (domain.ChargeStatus, error) {
	ctx, span := tracer.Start(ctx, "BancoBrasil.GetBoletoStatus")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", ourNumber))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return domain.StatusUnknown, err
	}
	title, err := b.titleNumber(ourNumber)
	if err != nil {
		return domain.StatusUnknown, err
	}

	endpoint := fmt.Sprintf("%s/boletos/%s?gw-dev-app-key=%s&numeroConvenio=%s",
		b.apiURL, title, url.QueryEscape(b.creds.DevAppKey), cnab.OnlyDigits(b.creds.Agreement))
	status, body, err := b.rest.execute(ctx, restRequest{
		method:  http.MethodGet,
		url:     endpoint,
		headers: b.authHeaders(token),
	})
	if err != nil {
		return domain.StatusUnknown, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		b.tokens.Invalidate()
		return domain.StatusUnknown, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Body: string(body)}
	}
	if status >= 400 {
		var bankErr bbErrorResponse
		_ = json.Unmarshal(body, &bankErr)
		return domain.StatusUnknown, &domain.ErrBankRejection{
			Bank:    CodeBancoBrasil,
			Message: bankErr.message(),
			Status:  status,
			RawBody: string(body),
		}
	}

	var resp struct {
		CodigoEstado int `json:"codigoEstadoTituloCobranca"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.StatusUnknown, &domain.ErrExternalService{Service: "bank/001", Err: err}
	}

	if s, ok := bbStatusTable[resp.CodigoEstado]; ok {
		return s, nil
	}
	b.logger.Warn("bb: unmapped charge state",
		zap.String("our_number", ourNumber),
		zap.Int("codigo_estado", resp.CodigoEstado),
	)
	return domain.StatusUnknown, nil
}

// GeneratePixQrCode attaches (or regenerates) the PIX leg of an already
// registered boleto.
func (b *BancoBrasil) GeneratePixQrCode(ctx context.Context, charge *domain.BoletoCharge) (*domain.PixPayload, error) {
	ctx, span := tracer.Start(ctx, "BancoBrasil.GeneratePixQrCode")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", charge.OurNumber))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	title, err := b.titleNumber(charge.OurNumber)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{"numeroConvenio": cnab.OnlyDigits(b.creds.Agreement)})
	endpoint := fmt.Sprintf("%s/boletos/%s/gerar-pix?gw-dev-app-key=%s", b.apiURL, title, url.QueryEscape(b.creds.DevAppKey))
	status, body, err := b.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     endpoint,
		body:    payload,
		headers: b.authHeaders(token),
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		b.tokens.Invalidate()
		return nil, &domain.ErrAuthentication{Bank: CodeBancoBrasil, Body: string(body)}
	}
	if status >= 400 {
		var bankErr bbErrorResponse
		_ = json.Unmarshal(body, &bankErr)
		return nil, &domain.ErrBankRejection{
			Bank:    CodeBancoBrasil,
			Message: bankErr.message(),
			Status:  status,
			RawBody: string(body),
		}
	}

	var resp struct {
		QRCode *bbQRCode `json:"qrCode"`
		Pix    *bbQRCode `json:"pix"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ErrExternalService{Service: "bank/001", Err: err}
	}
	qr := resp.QRCode
	if qr == nil {
		qr = resp.Pix
	}
	if qr == nil {
		return nil, &domain.ErrExternalService{Service: "bank/001", Err: fmt.Errorf("pix payload missing in response")}
	}
	return &domain.PixPayload{QRCodeURL: qr.URL, CopyPaste: qr.EMV, TxID: qr.TxID}, nil
}

// GenerateRemittanceFile renders the charges as a CNAB 240 remittance in
// the bank's layout version.
func (b *BancoBrasil) GenerateRemittanceFile(charges []domain.BoletoCharge) (string, error) {
	builder := cnab.NewBuilder(b.layout, b.creds, int(b.remSeq.Add(1)))
	return builder.Build(charges)
}

// ProcessReturnFile extracts settled payments from a CNAB 240 return file.
func (b *BancoBrasil) ProcessReturnFile(content string) ([]domain.PaymentNotification, error) {
	return b.parser.Parse(content)
}

func (b *BancoBrasil) authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}
}
