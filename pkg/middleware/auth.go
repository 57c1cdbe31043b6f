package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dirhub/pkg/auth"
	"dirhub/pkg/observability"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// GetAuthContext returns the authenticated identity attached to the
// request, or nil when the request is unauthenticated.
func GetAuthContext(r *http.Request) *auth.AuthContext {
	if authCtx, ok := r.Context().Value(authContextKey).(*auth.AuthContext); ok {
		return authCtx
	}
	return nil
}

// WithAuthContext attaches an identity to ctx. Exported for tests and
// for internal callers that authenticate out of band.
func WithAuthContext(ctx context.Context, authCtx *auth.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// AuthMiddleware resolves Bearer tokens to an AuthContext.
type AuthMiddleware struct {
	tokens   *auth.TokenManager
	logger   *observability.Logger
	throttle *LoginThrottle
}

func NewAuthMiddleware(tokens *auth.TokenManager, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// WithThrottle locks out sources that keep presenting bad credentials.
func (am *AuthMiddleware) WithThrottle(throttle *LoginThrottle) *AuthMiddleware {
	am.throttle = throttle
	return am
}

// Authenticate rejects requests without a valid Bearer token. With a
// throttle attached, repeated invalid tokens from one source lock it
// out before the token store is consulted again.
func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := clientKey(r)
		if am.throttle != nil && am.throttle.Locked(r, source) {
			writeJSONError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		authCtx, err := am.tokens.ValidateToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				am.logger.WithError(err).Error("token validation failed")
			}
			if am.throttle != nil {
				am.throttle.RecordFailure(r, source)
			}
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if am.throttle != nil {
			am.throttle.RecordSuccess(r, source)
		}

		ctx := WithAuthContext(r.Context(), authCtx)
		ctx = observability.WithUserID(ctx, authCtx.UserID)
		ctx = observability.WithTenantID(ctx, authCtx.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
