package bank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/infra/resilience"
)

var tracer = otel.Tracer("bank")

// Deps carries the shared infrastructure every adapter is built with.
type Deps struct {
	HTTPClient *http.Client
	Resilience resilience.Config
	Logger     *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) client() *http.Client {
	if d.HTTPClient == nil {
		return http.DefaultClient
	}
	return d.HTTPClient
}

// restClient wraps HTTP calls to one bank API with retry and circuit
// breaking. Transport failures and 5xx responses are retried; 4xx
// responses come back to the caller for classification, since a rejected
// registration must not be replayed.
type restClient struct {
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
	bankCode   string
}

func newRESTClient(bankCode string, deps Deps) *restClient {
	c := &restClient{
		httpClient: deps.client(),
		cb:         resilience.NewCircuitBreaker("bank-" + bankCode),
		cfg:        deps.Resilience,
		logger:     deps.logger(),
		bankCode:   bankCode,
	}
	if deps.Resilience.MaxConcurrency > 0 {
		c.bulkhead = resilience.NewBulkhead(deps.Resilience.MaxConcurrency)
	}
	return c
}

type restRequest struct {
	method  string
	url     string
	body    []byte
	headers map[string]string
}

// doRequest executes a single HTTP attempt against the bank.
func (c *restClient) doRequest(ctx context.Context, r restRequest) (int, []byte, error) {
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reader)
	if err != nil {
		c.logger.Error("bank: failed to create request",
			zap.String("bank", c.bankCode),
			zap.String("method", r.method),
			zap.String("url", r.url),
			zap.Error(err),
		)
		return 0, nil, err
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("bank: request failed",
			zap.String("bank", c.bankCode),
			zap.String("method", r.method),
			zap.String("url", r.url),
			zap.Error(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("bank: failed to read response body",
			zap.String("bank", c.bankCode),
			zap.String("method", r.method),
			zap.Error(err),
		)
		return 0, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("bank: non-2xx response",
			zap.String("bank", c.bankCode),
			zap.String("method", r.method),
			zap.String("url", r.url),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
	} else {
		c.logger.Debug("bank: request OK",
			zap.String("bank", c.bankCode),
			zap.String("method", r.method),
			zap.Int("status", resp.StatusCode),
		)
	}

	return resp.StatusCode, body, nil
}

// execute runs the request through the circuit breaker with bounded
// retries. On success the final status and body are returned, including
// 4xx statuses. The error path covers transport failures, exhausted 5xx
// retries and an open breaker.
func (c *restClient) execute(ctx context.Context, r restRequest) (int, []byte, error) {
	var status int
	var body []byte

	if c.bulkhead != nil {
		if err := c.bulkhead.Acquire(ctx); err != nil {
			return 0, nil, &domain.ErrExternalService{Service: "bank/" + c.bankCode, Err: err}
		}
		defer c.bulkhead.Release()
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			s, b, err := c.doRequest(ctx, r)
			if err != nil {
				return err
			}
			if s >= 500 {
				return fmt.Errorf("bank %s returned status %d: %s", c.bankCode, s, string(b))
			}
			status, body = s, b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, &domain.ErrCircuitOpen{Service: "bank/" + c.bankCode}
		}
		return 0, nil, &domain.ErrExternalService{Service: "bank/" + c.bankCode, Err: err}
	}
	return status, body, nil
}
