package domain

// Environment selects the bank endpoint set an adapter talks to.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Credentials holds everything an adapter needs to talk to one bank on
// behalf of one beneficiary company. TokenURL and APIURL override the
// adapter's defaults, mainly for tests.
type Credentials struct {
	BankCode    string
	Environment Environment

	ClientID     string
	ClientSecret string
	DevAppKey    string
	CertPEM      string // mTLS client certificate, PEM (Itaú)
	KeyPEM       string

	Agreement string // convênio / código do beneficiário
	Wallet    string
	Variation string
	Agency    string
	Account   string

	CompanyName     string
	CompanyDocument string // CNPJ

	TokenURL string
	APIURL   string
}
