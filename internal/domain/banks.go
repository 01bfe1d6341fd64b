package domain

// BankInfo is catalogue metadata for a supported bank, consumed by
// presentation layers. Metadata only, no behavior.
type BankInfo struct {
	Code        string `json:"code"` // 3-digit COMPE code
	Name        string `json:"name"`
	ShortName   string `json:"short_name"`
	LogoURL     string `json:"logo_url,omitempty"`
	Implemented bool   `json:"implemented"` // false for stub adapters pending integration
}

// GatewayMetrics is the snapshot returned by GET /v1/metrics/gateway.
type GatewayMetrics struct {
	Registrations        int64   `json:"registrations"`
	RegistrationFailures int64   `json:"registration_failures"`
	BankErrors           int64   `json:"bank_errors"`
	ErrorRate            float64 `json:"error_rate"`
	StatusCacheHitRate   float64 `json:"status_cache_hit_rate"`
	Period               string  `json:"period"`
}
