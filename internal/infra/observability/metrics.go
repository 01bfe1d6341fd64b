package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	registrations     *prometheus.CounterVec
	bankErrors        *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	returnsProcessed  *prometheus.CounterVec
}

// Registration outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cobranca_operation_duration_seconds",
				Help:    "Duration of gateway operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cobranca_registrations_total",
				Help: "Boleto registration attempts by bank and outcome.",
			},
			[]string{"bank", "outcome"},
		),
		bankErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cobranca_bank_errors_total",
				Help: "Total transport/auth errors talking to banks.",
			},
			[]string{"bank"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cobranca_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cobranca_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		returnsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cobranca_return_payments_total",
				Help: "Settled payments extracted from return files.",
			},
			[]string{"bank"},
		),
	}
}

// RecordOperationDuration records the duration of a gateway operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrRegistration increments the registration counter for a bank with an
// outcome label.
func (m *Metrics) IncrRegistration(bank, outcome string) {
	m.registrations.WithLabelValues(bank, outcome).Inc()
}

// IncrBankError increments the bank error counter.
func (m *Metrics) IncrBankError(bank string) {
	m.bankErrors.WithLabelValues(bank).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// AddReturnPayments counts settled payments extracted from a return file.
func (m *Metrics) AddReturnPayments(bank string, n int) {
	m.returnsProcessed.WithLabelValues(bank).Add(float64(n))
}

// GetGatewaySnapshot returns a snapshot of gateway metrics suitable for
// the GET /v1/metrics/gateway endpoint.
func (m *Metrics) GetGatewaySnapshot() *domain.GatewayMetrics {
	// Prometheus counters expose cumulative values; sum them across banks.
	success := m.sumCounter("cobranca_registrations_total", "outcome", OutcomeSuccess)
	rejected := m.sumCounter("cobranca_registrations_total", "outcome", OutcomeRejected)
	errored := m.sumCounter("cobranca_registrations_total", "outcome", OutcomeError)
	bankErrors := m.sumCounter("cobranca_bank_errors_total", "", "")
	statusHits := m.sumCounter("cobranca_cache_hits_total", "cache", "status")
	statusMisses := m.sumCounter("cobranca_cache_misses_total", "cache", "status")

	total := success + rejected + errored
	errorRate := float64(0)
	if total > 0 {
		errorRate = (rejected + errored) / total
	}
	hitRate := float64(0)
	if statusHits+statusMisses > 0 {
		hitRate = statusHits / (statusHits + statusMisses)
	}

	return &domain.GatewayMetrics{
		Registrations:        int64(total),
		RegistrationFailures: int64(rejected + errored),
		BankErrors:           int64(bankErrors),
		ErrorRate:            errorRate,
		StatusCacheHitRate:   hitRate,
		Period:               "all_time",
	}
}

// sumCounter gathers the registry and sums a counter family, optionally
// filtered to series where labelName has labelValue.
func (m *Metrics) sumCounter(name, labelName, labelValue string) float64 {
	families, err := m.Registry.Gather()
	if err != nil {
		return 0
	}
	var sum float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelName != "" && !hasLabel(metric, labelName, labelValue) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				sum += c.GetValue()
			}
		}
	}
	return sum
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, l := range metric.GetLabel() {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
