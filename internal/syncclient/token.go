package syncclient

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/clock"
)

// LoginFunc fetches a fresh credential and its reported expiry, which may
// be zero.
type LoginFunc func(ctx context.Context) (token string, expires time.Time, err error)

// TokenCache holds one bearer credential and logs in again only when the
// cached one is within margin of expiring.
type TokenCache struct {
	mu       sync.Mutex
	token    string
	expires  time.Time
	margin   time.Duration
	lifetime time.Duration
	clock    clock.Clock
	login    LoginFunc
}

func NewTokenCache(login LoginFunc, margin, lifetime time.Duration, c clock.Clock) *TokenCache {
	return &TokenCache{login: login, margin: margin, lifetime: lifetime, clock: c}
}

// Token returns the cached credential, refreshing it first if needed.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.clock.Now()
	if tc.token != "" && tc.expires.After(now.Add(tc.margin)) {
		return tc.token, nil
	}
	token, expires, err := tc.login(ctx)
	if err != nil {
		return "", err
	}
	tc.token = token
	tc.expires = tc.expiry(token, expires, now)
	return tc.token, nil
}

// expiry is the earliest of the reported expiry, the token's own exp claim
// and now+lifetime.
func (tc *TokenCache) expiry(token string, reported, now time.Time) time.Time {
	exp := now.Add(tc.lifetime)
	if !reported.IsZero() && reported.Before(exp) {
		exp = reported
	}
	if claimed, err := auth.Expiry(token); err == nil && claimed.Before(exp) {
		exp = claimed
	}
	return exp
}

// Invalidate drops the cached credential so the next call logs in.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	tc.token = ""
	tc.expires = time.Time{}
	tc.mu.Unlock()
}

// Expires returns the expiry of the cached credential, or zero.
func (tc *TokenCache) Expires() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.expires
}
