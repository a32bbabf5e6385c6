package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// SessionStorage defines session-related database operations.
// Sessions are keyed by the hash of their token.
type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error
	// GetSessionAndUser returns the session joined with its user, with
	// RegisteredTOTP and RegisteredPasskey filled from credential presence.
	// Returns ErrSessionNotFound when no row matches.
	GetSessionAndUser(ctx context.Context, id string) (*Session, *User, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	SetSessionTwoFactorVerified(ctx context.Context, id string, verified bool) error
	ClearUserTwoFactorVerified(ctx context.Context, userID string) error
	// DeleteSessionByID is a no-op for unknown ids.
	DeleteSessionByID(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
}

// UserStorage defines user-related database operations
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// LockUser reads the user row and holds it for the rest of the
	// enclosing transaction.
	LockUser(ctx context.Context, id string) (*User, error)
	SetUserRegistered2FA(ctx context.Context, id string, registered bool, updatedAt time.Time) error
}

// OAuthAccountStorage defines OAuth link operations
type OAuthAccountStorage interface {
	CreateOAuthAccount(ctx context.Context, a *OAuthAccount) error
	GetOAuthAccount(ctx context.Context, provider Provider, providerUserID string) (*OAuthAccount, error)
}

// CredentialStorage defines second-factor credential operations
type CredentialStorage interface {
	CreateTOTPCredential(ctx context.Context, c *TOTPCredential) error
	GetTOTPCredential(ctx context.Context, userID string) (*TOTPCredential, error)
	HasTOTPCredential(ctx context.Context, userID string) (bool, error)
	DeleteTOTPCredential(ctx context.Context, userID string) (int64, error)
	// ConsumeTOTPStep records step as used for the user's credential and
	// reports false when that step or a later one was already used.
	ConsumeTOTPStep(ctx context.Context, userID string, step int64) (bool, error)
	CountPasskeys(ctx context.Context, userID string) (int64, error)
	DeletePasskey(ctx context.Context, userID, passkeyID string) (int64, error)
}

type AuthStorage interface {
	UserStorage
	OAuthAccountStorage
	CredentialStorage
	SessionStorage

	// Transaction runs fn against a storage bound to one database
	// transaction. fn's error rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx AuthStorage) error) error
}

// ============================================
// CACHE PORT
// ============================================

// Cache holds validated sessions keyed by session id
type Cache interface {
	Get(sessionID string) (*SessionValidationResult, error)
	Set(sessionID string, result *SessionValidationResult) error
	Delete(sessionID string) error
	DeleteUser(userID string) error
	Clear() error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// GEOLOCATION PORT
// ============================================

type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	ValidateSession(ctx context.Context, token string) (*SessionValidationResult, error)
	AuthenticateOAuthUser(ctx context.Context, opts OAuthUserOptions, rc RequestContext) (*UserSession, error)
	SignOut(ctx context.Context, token string) error
	SignOutEverywhere(ctx context.Context, auth *AuthContext) (int64, error)
	ListSessions(ctx context.Context, auth *AuthContext) ([]*SessionSummary, error)
	RevokeSession(ctx context.Context, auth *AuthContext, sessionID string) error

	GenerateTOTPSecret(auth *AuthContext) (*TOTPSetup, error)
	RegisterTOTP(ctx context.Context, auth *AuthContext, secret, code string) (*TwoFactorResult, error)
	VerifyTOTP(ctx context.Context, auth *AuthContext, code string) (*TwoFactorResult, error)
	DisconnectTOTP(ctx context.Context, auth *AuthContext) (*TwoFactorResult, error)
	DisconnectPasskey(ctx context.Context, auth *AuthContext, passkeyID string) (*TwoFactorResult, error)
	RecoveryCode(ctx context.Context, auth *AuthContext) (string, error)

	Endpoints() []*Endpoint
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(handler AuthHandler, basePath string, config SessionConfig) error
}
