package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/model"
)

type actorKey struct{}

// ActorFrom returns the authenticated caller.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

func withActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// authenticate verifies the bearer credential and stores the actor in the
// request context.
func authenticate(issuer *auth.Issuer, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, r, logger, model.Errorf(model.ErrCodeUnauthorized, "missing Authorization header"))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, r, logger, model.Errorf(model.ErrCodeUnauthorized, "invalid Authorization header format"))
			return
		}
		actor, err := issuer.Verify(token)
		if err != nil {
			logger.Debug("credential rejected", "path", r.URL.Path, "error", err)
			writeError(w, r, logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// requireRole rejects callers whose role is not listed.
func requireRole(logger *slog.Logger, roles []model.Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeError(w, r, logger, model.Errorf(model.ErrCodeUnauthorized, "authentication required"))
			return
		}
		if !auth.Allowed(actor.Role, roles...) {
			writeError(w, r, logger, model.Errorf(model.ErrCodeForbidden, "role %s may not call %s", actor.Role, r.URL.Path))
			return
		}
		next(w, r)
	})
}

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewRateLimiter returns nil when rps is not positive, which disables
// limiting.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		logger:   logger,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler limits by actor ID when authenticated, else by remote address.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if a, ok := ActorFrom(r.Context()); ok {
			key = a.ID
		}
		if !rl.limiter(key).Allow() {
			rl.logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, errorBody{errorDetail{Code: "RATE_LIMITED", Message: "too many requests"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
