package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dirhub/pkg/kvstore"
)

const (
	// TokenPrefix identifies tokens issued by this service.
	TokenPrefix = "dirhub_"
	// TokenLength is the number of random bytes per token (256 bits).
	TokenLength = 32

	tokenKeyPrefix     = "auth:token:"
	userTokensPrefix   = "auth:user:tokens:"
	displayPrefixChars = 8
)

// ErrInvalidToken is returned for unknown, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

func tokenKey(hash string) string { return tokenKeyPrefix + hash }

func userTokensKey(userID string) string { return userTokensPrefix + userID }

// TokenGenerator creates and hashes opaque API tokens.
// Format: dirhub_<base64url(32 random bytes)>.
type TokenGenerator struct{}

func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken returns the plaintext token, its SHA-256 hash for
// storage and a short prefix for display.
func (tg *TokenGenerator) GenerateToken() (token, tokenHash, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))
	prefix := TokenPrefix
	if len(encoded) >= displayPrefixChars {
		prefix = TokenPrefix + encoded[:displayPrefixChars]
	}

	return fullToken, hex.EncodeToString(hash[:]), prefix, nil
}

// HashToken computes the SHA-256 hash of a token for lookup.
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks prefix and encoding without touching
// storage.
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return errors.New("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// TokenManager manages the API token lifecycle against the key-value
// store. Records are kept at auth:token:{hash}; a per-user set at
// auth:user:tokens:{userID} indexes the hashes for listing.
type TokenManager struct {
	store     kvstore.Store
	generator *TokenGenerator
}

func NewTokenManager(store kvstore.Store) *TokenManager {
	return &TokenManager{
		store:     store,
		generator: NewTokenGenerator(),
	}
}

// CreateToken mints a token for the user within a tenant. The
// plaintext is returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID, tenantID, name string, isGlobal bool, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	record := &APIToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TenantID:    tenantID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		IsGlobal:    isGlobal,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	if err := tm.saveToken(ctx, record); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}
	if err := tm.store.SAdd(ctx, userTokensKey(userID), tokenHash); err != nil {
		return nil, "", fmt.Errorf("failed to index token: %w", err)
	}
	if record.ExpiresAt != nil {
		ttl := time.Until(*record.ExpiresAt)
		if ttl > 0 {
			if err := tm.store.Expire(ctx, tokenKey(tokenHash), ttl); err != nil {
				return nil, "", fmt.Errorf("failed to set token expiry: %w", err)
			}
		}
	}

	return record, token, nil
}

// ValidateToken resolves a plaintext token to an AuthContext. It
// returns ErrInvalidToken for anything that should read as 401:
// malformed, unknown, expired or revoked.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := tm.generator.HashToken(token)
	record, err := tm.loadToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !record.Valid(now) {
		return nil, ErrInvalidToken
	}

	// Last-used is advisory; a failed write must not fail the request.
	// The rewrite clears the key's TTL, so re-apply it.
	record.LastUsedAt = &now
	if err := tm.saveToken(ctx, record); err == nil && record.ExpiresAt != nil {
		if ttl := time.Until(*record.ExpiresAt); ttl > 0 {
			_ = tm.store.Expire(ctx, tokenKey(tokenHash), ttl)
		}
	}

	return &AuthContext{
		UserID:   record.UserID,
		TenantID: record.TenantID,
		TokenID:  record.ID,
		IsGlobal: record.IsGlobal,
	}, nil
}

// RevokeToken marks the token identified by its plaintext as revoked.
func (tm *TokenManager) RevokeToken(ctx context.Context, token string) error {
	tokenHash := tm.generator.HashToken(token)
	record, err := tm.loadToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	now := time.Now().UTC()
	record.RevokedAt = &now
	return tm.saveToken(ctx, record)
}

// ListUserTokens returns the user's token records, including revoked
// ones. Hashes whose record has expired out of the store are pruned
// from the index as they are encountered.
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	hashes, err := tm.store.SMembers(ctx, userTokensKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	tokens := make([]*APIToken, 0, len(hashes))
	for _, hash := range hashes {
		record, err := tm.loadToken(ctx, hash)
		if err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				_ = tm.store.SRem(ctx, userTokensKey(userID), hash)
				continue
			}
			return nil, err
		}
		tokens = append(tokens, record)
	}
	return tokens, nil
}

func (tm *TokenManager) saveToken(ctx context.Context, record *APIToken) error {
	data, err := json.Marshal(struct {
		*APIToken
		TokenHash string `json:"token_hash"`
	}{record, record.TokenHash})
	if err != nil {
		return err
	}
	return tm.store.Set(ctx, tokenKey(record.TokenHash), string(data))
}

func (tm *TokenManager) loadToken(ctx context.Context, tokenHash string) (*APIToken, error) {
	raw, err := tm.store.Get(ctx, tokenKey(tokenHash))
	if err != nil {
		return nil, err
	}
	var stored struct {
		APIToken
		TokenHash string `json:"token_hash"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("corrupt token record: %w", err)
	}
	record := stored.APIToken
	record.TokenHash = stored.TokenHash
	return &record, nil
}
