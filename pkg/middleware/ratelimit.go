package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"dirhub/pkg/kvstore"
	"dirhub/pkg/observability"
)

// RateLimiter is a fixed-window request limiter backed by the shared
// key-value store, so the limit holds across replicas. It fails open:
// if the store is unreachable the request proceeds, because a rate
// limiter outage must not take the API down with it.
type RateLimiter struct {
	store  kvstore.Store
	logger *observability.Logger

	limit  int64
	window time.Duration
}

func NewRateLimiter(store kvstore.Store, logger *observability.Logger, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		logger: logger,
		limit:  limit,
		window: window,
	}
}

// Limit enforces the per-client window. Clients are keyed by user when
// authenticated, by remote IP otherwise.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:" + clientKey(r)

		count, err := rl.store.Incr(r.Context(), key)
		if err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := rl.store.Expire(r.Context(), key, rl.window); err != nil {
				rl.logger.WithError(err).Warn("failed to set rate limit window")
			}
		}

		if count > rl.limit {
			retryAfter := rl.window
			if ttl, err := rl.store.TTL(r.Context(), key); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if authCtx := GetAuthContext(r); authCtx != nil {
		return "user:" + authCtx.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// LoginThrottle locks out a credential source after repeated failed
// authentication attempts, using a SetNX lock in the shared store.
// Unlike the rate limiter it fails closed once the lock exists; while
// the store is down no lock can be read and attempts proceed.
type LoginThrottle struct {
	store  kvstore.Store
	logger *observability.Logger

	maxFailures int64
	window      time.Duration
	lockTTL     time.Duration
}

func NewLoginThrottle(store kvstore.Store, logger *observability.Logger, maxFailures int64, window, lockTTL time.Duration) *LoginThrottle {
	return &LoginThrottle{
		store:       store,
		logger:      logger,
		maxFailures: maxFailures,
		window:      window,
		lockTTL:     lockTTL,
	}
}

func (lt *LoginThrottle) failuresKey(source string) string {
	return "auth:failures:" + source
}

func (lt *LoginThrottle) lockKey(source string) string {
	return "auth:lock:" + source
}

// Locked reports whether the source is currently locked out.
func (lt *LoginThrottle) Locked(r *http.Request, source string) bool {
	_, err := lt.store.Get(r.Context(), lt.lockKey(source))
	if err != nil {
		return false
	}
	return true
}

// RecordFailure counts a failed attempt and locks the source once the
// threshold is crossed. Returns true if the source is now locked.
func (lt *LoginThrottle) RecordFailure(r *http.Request, source string) bool {
	ctx := r.Context()

	count, err := lt.store.Incr(ctx, lt.failuresKey(source))
	if err != nil {
		lt.logger.WithError(err).Warn("failed to count auth failure")
		return false
	}
	if count == 1 {
		if err := lt.store.Expire(ctx, lt.failuresKey(source), lt.window); err != nil {
			lt.logger.WithError(err).Warn("failed to set auth failure window")
		}
	}
	if count < lt.maxFailures {
		return false
	}

	locked, err := lt.store.SetNX(ctx, lt.lockKey(source),
		fmt.Sprintf("%d", time.Now().Unix()), lt.lockTTL)
	if err != nil {
		lt.logger.WithError(err).Warn("failed to acquire auth lock")
		return false
	}
	if locked {
		lt.logger.WithField("source", source).Warn("auth source locked out")
	}
	return true
}

// RecordSuccess clears the failure count for the source.
func (lt *LoginThrottle) RecordSuccess(r *http.Request, source string) {
	if err := lt.store.Del(r.Context(), lt.failuresKey(source)); err != nil {
		lt.logger.WithError(err).Warn("failed to clear auth failures")
	}
}

// Throttle wraps an authentication endpoint: locked sources get 429
// before the handler runs.
func (lt *LoginThrottle) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := clientKey(r)
		if lt.Locked(r, source) {
			w.Header().Set("Retry-After", strconv.Itoa(int(lt.lockTTL.Seconds())))
			writeJSONError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
