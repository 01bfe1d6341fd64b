package bank

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/cnab"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

const itauDateLayout = "2006-01-02"

// Itau integrates with the Itaú Cobrança API. The connection is mutual
// TLS: when the credentials carry a client certificate, the adapter builds
// its own transport around it. Boletos are registered as "boleto_pix"
// instruments so the QR code comes back with the registration.
type Itau struct {
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

func newItau(creds domain.Credentials, deps Deps) (*Itau, error) {
	layout, err := cnab.LayoutFor(CodeItau)
	if err != nil {
		return nil, err
	}

	if creds.CertPEM != "" {
		client, err := mtlsClient(deps.client(), creds.CertPEM, creds.KeyPEM)
		if err != nil {
			return nil, &domain.ErrAuthentication{Bank: CodeItau, Err: err}
		}
		deps.HTTPClient = client
	}

	i := &Itau{
		creds:    creds,
		rest:     newRESTClient(CodeItau, deps),
		layout:   layout,
		parser:   cnab.NewParser(layout, deps.logger()),
		logger:   deps.logger(),
		tokenURL: creds.TokenURL,
		apiURL:   creds.APIURL,
	}
	if i.tokenURL == "" {
		if creds.Environment == domain.EnvProduction {
			i.tokenURL = "https://sts.itau.com.br/api/oauth/token"
		} else {
			i.tokenURL = "https://sandbox.devportal.itau.com.br/api/oauth/token"
		}
	}
	if i.apiURL == "" {
		if creds.Environment == domain.EnvProduction {
			i.apiURL = "https://api.itau.com.br/cash_management/v2"
		} else {
			i.apiURL = "https://sandbox.devportal.itau.com.br/api/cash_management/v2"
		}
	}
	i.tokens = newTokenSource(i.fetchToken)
	return i, nil
}

// mtlsClient clones the base client with a transport presenting the given
// client certificate.
func mtlsClient(base *http.Client, certPEM, keyPEM string) (*http.Client, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("invalid client certificate: %w", err)
	}
	client := *base
	client.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &client, nil
}

func (i *Itau) Info() domain.BankInfo {
	return domain.BankInfo{
		Code:        CodeItau,
		Name:        "Itaú Unibanco S.A.",
		ShortName:   "Itaú",
		Implemented: true,
	}
}

func (i *Itau) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {i.creds.ClientID},
		"client_secret": {i.creds.ClientSecret},
	}
	status, body, err := i.rest.execute(ctx, restRequest{
		method: http.MethodPost,
		url:    i.tokenURL,
		body:   []byte(form.Encode()),
		headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
	})
	if err != nil {
		return "", 0, &domain.ErrAuthentication{Bank: CodeItau, Err: err}
	}
	if status != http.StatusOK {
		return "", 0, &domain.ErrAuthentication{Bank: CodeItau, Body: string(body)}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, &domain.ErrAuthentication{Bank: CodeItau, Err: err}
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

func (i *Itau) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Itau.Authenticate")
	defer span.End()

	_, err := i.tokens.Token(ctx)
	return err
}

// beneficiaryID is the agência+conta pair Itaú uses to scope every
// cobrança call.
func (i *Itau) beneficiaryID() string {
	return cnab.OnlyDigits(i.creds.Agency) + cnab.OnlyDigits(i.creds.Account)
}

// nossoNumero is 8 digits at Itaú, unlike the 10 the other banks take.
func (i *Itau) nossoNumero(ourNumber string) (string, error) {
	return cnab.PadLeft("nosso_numero", cnab.OnlyDigits(ourNumber), 8)
}

type itauPagador struct {
	Pessoa struct {
		NomePessoa     string `json:"nome_pessoa"`
		TipoPessoa     string `json:"tipo_pessoa"`
		NumeroCadastro string `json:"numero_cadastro"`
	} `json:"pessoa"`
	Endereco struct {
		NomeLogradouro string `json:"nome_logradouro"`
		NomeBairro     string `json:"nome_bairro"`
		NomeCidade     string `json:"nome_cidade"`
		SiglaUF        string `json:"sigla_UF"`
		NumeroCEP      string `json:"numero_CEP"`
	} `json:"endereco"`
}

type itauIndividual struct {
	NumeroNossoNumero string `json:"numero_nosso_numero"`
	DataVencimento    string `json:"data_vencimento"`
	ValorTitulo       string `json:"valor_titulo"`
	TextoUsoBenefic   string `json:"texto_seu_numero,omitempty"`
}

type itauDesconto struct {
	CodigoTipoDesconto string `json:"codigo_tipo_desconto"`
	DataDesconto       string `json:"data_desconto"`
	ValorDesconto      string `json:"valor_desconto,omitempty"`
	PercentualDesconto string `json:"percentual_desconto,omitempty"`
}

type itauMulta struct {
	CodigoTipoMulta string `json:"codigo_tipo_multa"`
	PercentualMulta string `json:"percentual_multa"`
}

type itauJuros struct {
	CodigoTipoJuros string `json:"codigo_tipo_juros"`
	PercentualJuros string `json:"percentual_juros"`
}

type itauDadoBoleto struct {
	DescricaoInstrumento   string           `json:"descricao_instrumento_cobranca"`
	TipoBoleto             string           `json:"tipo_boleto"`
	CodigoCarteira         string           `json:"codigo_carteira"`
	Pagador                itauPagador      `json:"pagador"`
	DadosIndividuaisBoleto []itauIndividual `json:"dados_individuais_boleto"`
	Desconto               *itauDesconto    `json:"desconto,omitempty"`
	Multa                  *itauMulta       `json:"multa,omitempty"`
	Juros                  *itauJuros       `json:"juros,omitempty"`
}

type itauRegisterRequest struct {
	EtapaProcessoBoleto string `json:"etapa_processo_boleto"`
	Beneficiario        struct {
		IDBeneficiario string `json:"id_beneficiario"`
	} `json:"beneficiario"`
	DadoBoleto itauDadoBoleto `json:"dado_boleto"`
}

type itauQRCode struct {
	EMV  string `json:"emv"`
	TxID string `json:"txid"`
	URL  string `json:"url"`
}

type itauRegisterResponse struct {
	Data struct {
		DadosIndividuaisBoleto []struct {
			CodigoBarras         string      `json:"codigo_barras"`
			NumeroLinhaDigitavel string      `json:"numero_linha_digitavel"`
			DadosQRCode          *itauQRCode `json:"dados_qrcode"`
		} `json:"dados_individuais_boleto"`
	} `json:"data"`
}

type itauErrorResponse struct {
	Codigo   string `json:"codigo"`
	Mensagem string `json:"mensagem"`
	Campos   []struct {
		Campo    string `json:"campo"`
		Mensagem string `json:"mensagem"`
	} `json:"campos"`
}

func (e *itauErrorResponse) message() string {
	if e.Mensagem != "" {
		return e.Mensagem
	}
	if len(e.Campos) > 0 {
		return e.Campos[0].Campo + ": " + e.Campos[0].Mensagem
	}
	return ""
}

func itauAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (i *Itau) registerPayload(charge *domain.BoletoCharge) (*itauRegisterRequest, error) {
	nosso, err := i.nossoNumero(charge.OurNumber)
	if err != nil {
		return nil, err
	}

	doc := cnab.OnlyDigits(charge.Payer.Document)
	tipoPessoa := "J"
	if len(doc) == 11 {
		tipoPessoa = "F"
	}

	req := &itauRegisterRequest{EtapaProcessoBoleto: "efetivacao"}
	req.Beneficiario.IDBeneficiario = i.beneficiaryID()

	dado := itauDadoBoleto{
		DescricaoInstrumento: "boleto_pix",
		TipoBoleto:           "a vista",
		CodigoCarteira:       i.creds.Wallet,
		DadosIndividuaisBoleto: []itauIndividual{{
			NumeroNossoNumero: nosso,
			DataVencimento:    charge.DueDate.Format(itauDateLayout),
			ValorTitulo:       itauAmount(charge.Amount),
			TextoUsoBenefic:   charge.DocumentNumber,
		}},
	}
	dado.Pagador.Pessoa.NomePessoa = charge.Payer.Name
	dado.Pagador.Pessoa.TipoPessoa = tipoPessoa
	dado.Pagador.Pessoa.NumeroCadastro = doc
	dado.Pagador.Endereco.NomeLogradouro = charge.Payer.Address
	dado.Pagador.Endereco.NomeBairro = charge.Payer.District
	dado.Pagador.Endereco.NomeCidade = charge.Payer.City
	dado.Pagador.Endereco.SiglaUF = charge.Payer.State
	dado.Pagador.Endereco.NumeroCEP = cnab.OnlyDigits(charge.Payer.ZipCode)

	if d := charge.Discount; d != nil {
		if d.Percent > 0 {
			dado.Desconto = &itauDesconto{
				CodigoTipoDesconto: "02",
				DataDesconto:       d.LimitDate.Format(itauDateLayout),
				PercentualDesconto: itauAmount(d.Percent),
			}
		} else {
			dado.Desconto = &itauDesconto{
				CodigoTipoDesconto: "01",
				DataDesconto:       d.LimitDate.Format(itauDateLayout),
				ValorDesconto:      itauAmount(d.Amount),
			}
		}
	}
	if m := charge.Fine; m != nil {
		dado.Multa = &itauMulta{CodigoTipoMulta: "02", PercentualMulta: itauAmount(m.Percent)}
	}
	if j := charge.Interest; j != nil {
		dado.Juros = &itauJuros{CodigoTipoJuros: "90", PercentualJuros: itauAmount(j.MonthlyPercent)}
	}

	req.DadoBoleto = dado
	return req, nil
}

func (i *Itau) RegisterBoleto(ctx context.Context, charge *domain.BoletoCharge) (*domain.BoletoResult, error) {
	ctx, span := tracer.Start(ctx, "Itau.RegisterBoleto")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", charge.OurNumber))

	token, err := i.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := i.registerPayload(charge)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	status, respBody, err := i.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     i.apiURL + "/boletos",
		body:    body,
		headers: i.authHeaders(token),
	})
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		i.tokens.Invalidate()
		return nil, &domain.ErrAuthentication{Bank: CodeItau, Body: string(respBody)}
	case status >= 400:
		var bankErr itauErrorResponse
		_ = json.Unmarshal(respBody, &bankErr)
		msg := bankErr.message()
		if msg == "" {
			msg = fmt.Sprintf("registro recusado (status %d)", status)
		}
		i.logger.Warn("itau: boleto rejected",
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

	var reg itauRegisterResponse
	if err := json.Unmarshal(respBody, &reg); err != nil {
		return nil, &domain.ErrExternalService{Service: "bank/341", Err: fmt.Errorf("failed to decode registration response: %w", err)}
	}
	if len(reg.Data.DadosIndividuaisBoleto) == 0 {
		return nil, &domain.ErrExternalService{Service: "bank/341", Err: fmt.Errorf("registration response has no boleto data")}
	}

	boleto := reg.Data.DadosIndividuaisBoleto[0]
	result := &domain.BoletoResult{
		Success:       true,
		Barcode:       boleto.CodigoBarras,
		DigitableLine: boleto.NumeroLinhaDigitavel,
		RawResponse:   string(respBody),
	}
	if boleto.DadosQRCode != nil {
		result.Pix = &domain.PixPayload{
			QRCodeURL: boleto.DadosQRCode.URL,
			CopyPaste: boleto.DadosQRCode.EMV,
			TxID:      boleto.DadosQRCode.TxID,
		}
	}

	i.logger.Info("itau: boleto registered", zap.String("our_number", charge.OurNumber))
	return result, nil
}

func (i *Itau) CancelBoleto(ctx context.Context, ourNumber string) bool {
	ctx, span := tracer.Start(ctx, "Itau.CancelBoleto")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", ourNumber))

	token, err := i.tokens.Token(ctx)
	if err != nil {
		i.logger.Warn("itau: cancel auth failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}
	nosso, err := i.nossoNumero(ourNumber)
	if err != nil {
		i.logger.Warn("itau: cancel encoding failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}

	endpoint := fmt.Sprintf("%s/boletos/%s/%s/baixa", i.apiURL, i.beneficiaryID(), nosso)
	status, body, err := i.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     endpoint,
		headers: i.authHeaders(token),
	})
	if err != nil {
		i.logger.Warn("itau: cancel request failed", zap.String("our_number", ourNumber), zap.Error(err))
		return false
	}
	if status < 200 || status >= 300 {
		i.logger.Warn("itau: cancel rejected",
			zap.String("our_number", ourNumber),
			zap.Int("status", status),
			zap.String("body", string(body)),
		)
		return false
	}

	i.logger.Info("itau: boleto cancelled", zap.String("our_number", ourNumber))
	return true
}

var itauStatusTable = map[string]domain.ChargeStatus{
	"em aberto":               domain.StatusPending,
	"em aberto vencido":       domain.StatusExpired,
	"pago":                    domain.StatusPaid,
	"liquidado":               domain.StatusPaid,
	"baixado":                 domain.StatusCancelled,
	"baixado por solicitacao": domain.StatusCancelled,
	"em cartorio":             domain.StatusProtested,
	"protestado":              domain.StatusProtested,
}

func (i *Itau) GetBoletoStatus(ctx context.Context, ourNumber string) (domain.ChargeStatus, error) {
	ctx, span := tracer.Start(ctx, "Itau.GetBoletoStatus")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", ourNumber))

	token, err := i.tokens.Token(ctx)
	if err != nil {
		return domain.StatusUnknown, err
	}
	nosso, err := i.nossoNumero(ourNumber)
	if err != nil {
		return domain.StatusUnknown, err
	}

	endpoint := fmt.Sprintf("%s/boletos?id_beneficiario=%s&nosso_numero=%s", i.apiURL, i.beneficiaryID(), nosso)
	status, body, err := i.rest.execute(ctx, restRequest{
		method:  http.MethodGet,
		url:     endpoint,
		headers: i.authHeaders(token),
	})
	if err != nil {
		return domain.StatusUnknown, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		i.tokens.Invalidate()
		return domain.StatusUnknown, &domain.ErrAuthentication{Bank: CodeItau, Body: string(body)}
	}
	if status >= 400 {
		var bankErr itauErrorResponse
		_ = json.Unmarshal(body, &bankErr)
		return domain.StatusUnknown, &domain.ErrBankRejection{
			Bank:    CodeItau,
			Message: bankErr.message(),
			Status:  status,
			RawBody: string(body),
		}
	}

	var resp struct {
		Data []struct {
			SituacaoGeralBoleto string `json:"situacao_geral_boleto"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.StatusUnknown, &domain.ErrExternalService{Service: "bank/341", Err: err}
	}
	if len(resp.Data) == 0 {
		return domain.StatusUnknown, &domain.ErrBankRejection{
			Bank:    CodeItau,
			Message: "boleto não encontrado",
			Status:  status,
			RawBody: string(body),
		}
	}

	situacao := strings.ToLower(strings.TrimSpace(resp.Data[0].SituacaoGeralBoleto))
	if s, ok := itauStatusTable[situacao]; ok {
		return s, nil
	}
	i.logger.Warn("itau: unmapped charge state",
		zap.String("our_number", ourNumber),
		zap.String("situacao", situacao),
	)
	return domain.StatusUnknown, nil
}

func (i *Itau) GeneratePixQrCode(ctx context.Context, charge *domain.BoletoCharge) (*domain.PixPayload, error) {
	ctx, span := tracer.Start(ctx, "Itau.GeneratePixQrCode")
	defer span.End()
	span.SetAttributes(attribute.String("charge.our_number", charge.OurNumber))

	token, err := i.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	nosso, err := i.nossoNumero(charge.OurNumber)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/boletos/%s/%s/qrcode", i.apiURL, i.beneficiaryID(), nosso)
	status, body, err := i.rest.execute(ctx, restRequest{
		method:  http.MethodPost,
		url:     endpoint,
		headers: i.authHeaders(token),
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		i.tokens.Invalidate()
		return nil, &domain.ErrAuthentication{Bank: CodeItau, Body: string(body)}
	}
	if status >= 400 {
		var bankErr itauErrorResponse
		_ = json.Unmarshal(body, &bankErr)
		return nil, &domain.ErrBankRejection{
			Bank:    CodeItau,
			Message: bankErr.message(),
			Status:  status,
			RawBody: string(body),
		}
	}

	var resp struct {
		DadosQRCode *itauQRCode `json:"dados_qrcode"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ErrExternalService{Service: "bank/341", Err: err}
	}
	if resp.DadosQRCode == nil {
		return nil, &domain.ErrExternalService{Service: "bank/341", Err: fmt.Errorf("pix payload missing in response")}
	}
	return &domain.PixPayload{
		QRCodeURL: resp.DadosQRCode.URL,
		CopyPaste: resp.DadosQRCode.EMV,
		TxID:      resp.DadosQRCode.TxID,
	}, nil
}

func (i *Itau) GenerateRemittanceFile(charges []domain.BoletoCharge) (string, error) {
	builder := cnab.NewBuilder(i.layout, i.creds, int(i.remSeq.Add(1)))
	return builder.Build(charges)
}

func (i *Itau) ProcessReturnFile(content string) ([]domain.PaymentNotification, error) {
	return i.parser.Parse(content)
}

func (i *Itau) authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + token,
		"Content-Type":         "application/json",
		"x-itau-apikey":        i.creds.ClientID,
		"x-itau-correlationID": uuid.NewString(),
	}
}
