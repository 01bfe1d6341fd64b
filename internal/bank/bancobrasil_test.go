package bank_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/bank"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/infra/resilience"
	"github.com/brandao/cobranca-gateway-go/internal/port"
)

func testDeps() bank.Deps {
	return bank.Deps{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Resilience: resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond},
		Logger:     zap.NewNop(),
	}
}

func bbCredentials(tokenURL, apiURL string) domain.Credentials {
	return domain.Credentials{
		BankCode:        "001",
		Environment:     domain.EnvSandbox,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		DevAppKey:       "dev-app-key",
		Agreement:       "1234567",
		Wallet:          "17",
		Variation:       "35",
		Agency:          "1234",
		Account:         "56789",
		CompanyName:     "ACME COBRANCAS LTDA",
		CompanyDocument: "12345678000195",
		TokenURL:        tokenURL,
		APIURL:          apiURL,
	}
}

func bbTokenHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "bb-token",
			"token_type":   "Bearer",
			"expires_in":   600,
		})
	}
}

func newBBAdapter(t *testing.T, api http.Handler) port.BankAdapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/oauth/token", bbTokenHandler(t))
	mux.Handle("/", api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := bank.New("001", bbCredentials(srv.URL+"/oauth/token", srv.URL), testDeps())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func sampleCharge() *domain.BoletoCharge {
	return &domain.BoletoCharge{
		OurNumber:      "123",
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

func TestBBRegisterBoleto(t *testing.T) {
	adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/boletos" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("gw-dev-app-key") != "dev-app-key" {
			t.Error("missing gw-dev-app-key")
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer bb-token" {
			t.Errorf("authorization = %q", auth)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if title := req["numeroTituloCliente"]; title != "00012345670000000123" {
			t.Errorf("numeroTituloCliente = %v", title)
		}
		if pix := req["indicadorPix"]; pix != "S" {
			t.Errorf("indicadorPix = %v", pix)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"numero":              "00012345670000000123",
			"codigoBarraNumerico": "00193896100000980000000003319429300524200000",
			"linhaDigitavel":      "00190000090331942930205242000000389610000098000",
			"qrCode": map[string]string{
				"url":  "https://qrcode.example/abc",
				"txId": "tx-123",
				"emv":  "00020101021226870014br.gov.bcb.pix",
			},
		})
	}))

	result, err := adapter.RegisterBoleto(context.Background(), sampleCharge())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Barcode == "" || result.DigitableLine == "" {
		t.Error("barcode and digitable line should be set")
	}
	if result.Pix == nil || result.Pix.TxID != "tx-123" || !strings.HasPrefix(result.Pix.CopyPaste, "000201") {
		t.Errorf("unexpected pix payload: %+v", result.Pix)
	}
}

func TestBBRegisterBoletoRejection(t *testing.T) {
	adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"erros": []map[string]string{{
				"codigo":   "4874915",
				"mensagem": "Nosso número já incluído anteriormente.",
			}},
		})
	}))

	result, err := adapter.RegisterBoleto(context.Background(), sampleCharge())
	if err != nil {
		t.Fatalf("a bank rejection must not be an error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if !strings.Contains(result.ErrorMessage, "já incluído") {
		t.Errorf("bank message should be surfaced, got %q", result.ErrorMessage)
	}
}

func TestBBAuthenticationFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := bank.New("001", bbCredentials(srv.URL+"/oauth/token", srv.URL), testDeps())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	_, err = adapter.RegisterBoleto(context.Background(), sampleCharge())
	var authErr *domain.ErrAuthentication
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if authErr.Bank != "001" {
		t.Errorf("bank = %q", authErr.Bank)
	}
}

func TestBBGetBoletoStatus(t *testing.T) {
	tests := []struct {
		code int
		want domain.ChargeStatus
	}{
		{1, domain.StatusPending},
		{2, domain.StatusProtested},
		{5, domain.StatusProtested},
		{6, domain.StatusPaid},
		{7, domain.StatusCancelled},
		{99, domain.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("unexpected method %s", r.Method)
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"codigoEstadoTituloCobranca": tt.code,
				})
			}))

			got, err := adapter.GetBoletoStatus(context.Background(), "123")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBBCancelBoleto(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/baixar") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		if !adapter.CancelBoleto(context.Background(), "123") {
			t.Error("expected true")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"erros":[{"mensagem":"titulo ja liquidado"}]}`)
		}))
		if adapter.CancelBoleto(context.Background(), "123") {
			t.Error("expected false, cancel never errors")
		}
	})
}

func TestBBGeneratePixQrCode(t *testing.T) {
	adapter := newBBAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/gerar-pix") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"qrCode": map[string]string{
				"url":  "https://qrcode.example/abc",
				"txId": "tx-123",
				"emv":  "00020101021226870014br.gov.bcb.pix",
			},
		})
	}))

	pix, err := adapter.GeneratePixQrCode(context.Background(), sampleCharge())
	if err != nil {
		t.Fatalf("pix: %v", err)
	}
	if pix.TxID != "tx-123" || pix.QRCodeURL == "" || pix.CopyPaste == "" {
		t.Errorf("unexpected payload: %+v", pix)
	}
}

func TestBBRemittanceAndReturnFiles(t *testing.T) {
	adapter := newBBAdapter(t, http.NotFoundHandler())

	content, err := adapter.GenerateRemittanceFile([]domain.BoletoCharge{*sampleCharge()})
	if err != nil {
		t.Fatalf("remittance: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 records, got %d", len(lines))
	}
	for _, line := range lines {
		if len(line) != 240 {
			t.Fatalf("record length %d", len(line))
		}
	}

	// Feed the generated our-number field back through a synthetic return.
	tLine := []byte(strings.Repeat(" ", 240))
	copy(tLine[7:8], "3")
	copy(tLine[13:14], "T")
	copy(tLine[15:17], "06")
	copy(tLine[37:57], lines[2][37:57])
	uLine := []byte(strings.Repeat(" ", 240))
	copy(uLine[7:8], "3")
	copy(uLine[13:14], "U")
	copy(uLine[77:92], "000000000098000")
	copy(uLine[137:145], "15022026")
	copy(uLine[145:153], "00000000")

	notifications, err := adapter.ProcessReturnFile(string(tLine) + "\r\n" + string(uLine))
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].OurNumber != "123" || notifications[0].AmountPaid != 980.00 {
		t.Errorf("unexpected notification: %+v", notifications[0])
	}
}
