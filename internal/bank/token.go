// Package bank implements the per-bank adapters behind port.BankAdapter:
// OAuth token handling, the REST integrations for each supported bank, the
// CNAB plumbing and the factory that resolves a 3-digit bank code to its
// adapter.
package bank

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// tokenExpiryMargin is subtracted from the bank-reported expiry so a token
// is never presented in its final seconds of validity.
const tokenExpiryMargin = 60 * time.Second

// defaultTokenTTL is assumed when the token endpoint sends an opaque token
// with no expires_in and no decodable exp claim.
const defaultTokenTTL = 5 * time.Minute

// tokenFetch performs one OAuth exchange and returns the access token plus
// its lifetime. A zero lifetime means the endpoint did not say.
type tokenFetch func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenSource caches a single access token and refreshes it lazily. The
// refresh itself runs under singleflight so a burst of callers hitting an
// expired token performs exactly one OAuth exchange.
type tokenSource struct {
	mu      sync.RWMutex
	token   string
	expires time.Time

	fetch tokenFetch
	group singleflight.Group
	now   func() time.Time
}

func newTokenSource(fetch tokenFetch) *tokenSource {
	return &tokenSource{fetch: fetch, now: time.Now}
}

// Token returns a valid access token, performing the OAuth exchange when
// the cached one is missing or inside the expiry margin.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := t.cached(); ok {
		return tok, nil
	}

	v, err, _ := t.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we queued.
		if tok, ok := t.cached(); ok {
			return tok, nil
		}

		token, ttl, err := t.fetch(ctx)
		if err != nil {
			return "", err
		}
		if ttl <= 0 {
			ttl = jwtRemaining(token, t.now())
		}

		t.mu.Lock()
		t.token = token
		t.expires = t.now().Add(ttl)
		t.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing a fresh exchange on the next
// call. Used after a 401 from the bank.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expires = time.Time{}
	t.mu.Unlock()
}

func (t *tokenSource) cached() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.token == "" || !t.now().Before(t.expires.Add(-tokenExpiryMargin)) {
		return "", false
	}
	return t.token, true
}

// jwtRemaining extracts the lifetime of a JWT-shaped token from its exp
// claim, without verifying the signature (the bank signed it for itself,
// we only need the clock). Opaque tokens fall back to defaultTokenTTL.
func jwtRemaining(token string, now time.Time) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return defaultTokenTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTokenTTL
	}
	remaining := exp.Time.Sub(now)
	if remaining <= 0 {
		return defaultTokenTTL
	}
	return remaining
}
