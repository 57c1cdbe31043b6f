package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"dirhub/pkg/auth"
	"dirhub/pkg/kvstore"
	"dirhub/pkg/observability"
)

func setupAuthTest(t *testing.T) (*AuthMiddleware, *auth.TokenManager) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := kvstore.NewRedisStore(kvstore.Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	tokens := auth.NewTokenManager(store)
	return NewAuthMiddleware(tokens, logger), tokens
}

func echoIdentity(t *testing.T, captured **auth.AuthContext) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetAuthContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate_ValidToken(t *testing.T) {
	am, tokens := setupAuthTest(t)

	_, token, err := tokens.CreateToken(context.Background(), "u1", "t1", "test", false, nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	var captured *auth.AuthContext
	handler := am.Authenticate(echoIdentity(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if captured == nil || captured.UserID != "u1" || captured.TenantID != "t1" {
		t.Errorf("Unexpected identity: %+v", captured)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	am, _ := setupAuthTest(t)

	var captured *auth.AuthContext
	handler := am.Authenticate(echoIdentity(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if captured != nil {
		t.Error("Handler ran without a token")
	}
}

func TestAuthenticate_BadSchemes(t *testing.T) {
	am, _ := setupAuthTest(t)
	handler := am.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run")
	}))

	for _, header := range []string{"Basic abc", "Bearer", "Bearer ", "dirhub_abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAuthenticate_RevokedToken(t *testing.T) {
	am, tokens := setupAuthTest(t)
	ctx := context.Background()

	_, token, err := tokens.CreateToken(ctx, "u1", "t1", "test", false, nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if err := tokens.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	handler := am.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run with a revoked token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for revoked token, got %d", rec.Code)
	}
}

func TestAuthenticate_ThrottleLocksOut(t *testing.T) {
	am, _ := setupAuthTest(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	kv, err := kvstore.NewRedisStore(kvstore.Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	am = am.WithThrottle(NewLoginThrottle(kv, logger, 2, time.Minute, 10*time.Minute))

	handler := am.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run")
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:4321"
		req.Header.Set("Authorization", "Bearer dirhub_bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on first bad token, got %d", rec.Code)
	}
	if rec := send(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on second bad token, got %d", rec.Code)
	}
	if rec := send(); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once locked, got %d", rec.Code)
	}
}

func TestGetAuthContext_Absent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if GetAuthContext(req) != nil {
		t.Error("Expected nil auth context on bare request")
	}
}
