package auth

import "time"

// AuthContext is the identity attached to a request after token
// validation. TenantID is the tenant the credential was minted for;
// IsGlobal marks platform-operator credentials whose cross-tenant
// reach is still re-verified against live role data downstream.
type AuthContext struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	TokenID  string `json:"token_id,omitempty"`
	IsGlobal bool   `json:"is_global,omitempty"`
}

// APIToken is the stored record of an issued token. The plaintext is
// returned exactly once at creation; only the SHA-256 hash persists.
type APIToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TenantID    string     `json:"tenant_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	IsGlobal    bool       `json:"is_global,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Valid reports whether the token is usable at time now.
func (t *APIToken) Valid(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	return true
}
