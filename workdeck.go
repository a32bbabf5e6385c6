package workdeck

import (
	"context"
	"fmt"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/cache"
	"github.com/lborres/workdeck/pkg/crypto"
	"github.com/lborres/workdeck/pkg/log"
	"github.com/lborres/workdeck/services"
)

// interfaces
type (
	AuthStorage = core.AuthStorage
	Cache       = core.Cache
	GeoLocator  = core.GeoLocator

	HTTPAdapter = core.HTTPAdapter
	AuthHandler = core.AuthHandler
)

// structs
type (
	Config        = core.Config
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig
)

type (
	User                    = core.User
	OAuthAccount            = core.OAuthAccount
	Session                 = core.Session
	SessionValidationResult = core.SessionValidationResult
	UserSession             = core.UserSession
	AuthContext             = core.AuthContext
	RequestContext          = core.RequestContext
	OAuthUserOptions        = core.OAuthUserOptions
	Provider                = core.Provider
	CacheStats              = core.CacheStats
)

const (
	defaultBasePath  = "/api/auth"
	defaultSecretLen = 32
)

// Constructors & helpers (convenience re-exports)
var (
	NewLRUCache          = cache.NewLRUCache
	NewIPAPILocator      = services.NewIPAPILocator
	DefaultSessionConfig = core.DefaultSessionConfig
	Get2FARedirect       = core.Get2FARedirect
	ParseProvider        = core.ParseProvider
)

var (
	ErrUserNotFound = core.ErrUserNotFound
	ErrEmailTaken   = core.ErrEmailTaken
)

var (
	ErrMissingToken      = core.ErrMissingToken
	ErrInvalidAuthHeader = core.ErrInvalidAuthHeader
	ErrUnauthorized      = core.ErrUnauthorized
	ErrSessionNotFound   = core.ErrSessionNotFound
	ErrCacheNotFound     = core.ErrCacheNotFound
)

var (
	ErrUnknownProvider      = core.ErrUnknownProvider
	ErrOAuthAccountNotFound = core.ErrOAuthAccountNotFound
	ErrInvalidOAuthState    = core.ErrInvalidOAuthState
	ErrTOTPNotFound         = core.ErrTOTPNotFound
	ErrInvalidTOTPCode      = core.ErrInvalidTOTPCode
	ErrTwoFactorRequired    = core.ErrTwoFactorRequired
)

var (
	ErrDBAdapterRequired   = core.ErrDBAdapterRequired
	ErrHTTPAdapterRequired = core.ErrHTTPAdapterRequired
	ErrSecretRequired      = core.ErrSecretRequired
	ErrSecretTooShort      = core.ErrSecretTooShort
)

// Workdeck wires storage, cache and services together and serves as the
// AuthHandler behind the HTTP adapter.
type Workdeck struct {
	Sessions  *services.SessionManager
	OAuth     *services.OAuthService
	TwoFactor *services.TwoFactorService

	BasePath string
	Cache    core.Cache

	endpoints *services.EndpointRegistry
	logger    log.Logger
}

var _ core.AuthHandler = (*Workdeck)(nil)

func New(config Config) (*Workdeck, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}

	// Set Defaults

	logger := log.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	// Cached results skip the credential and revocation checks until they
	// expire, so caching only happens when the caller supplies an adapter.
	cacheAdapter := config.CacheAdapter
	if config.DisableCache {
		cacheAdapter = nil
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
		if sessionConfig.CookieName == "" {
			sessionConfig.CookieName = core.DefaultSessionCookie
		}
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	geo := config.GeoLocator
	if geo == nil {
		geo = NewIPAPILocator("")
	}

	cipher, err := crypto.NewCipher(config.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cipher: %w", err)
	}

	sessions := services.NewSessionManager(sessionConfig, config.Database, cacheAdapter, logger)
	metadata := services.NewMetadataResolver(geo, config.GeoTimeout, logger)

	w := &Workdeck{
		Sessions:  sessions,
		OAuth:     services.NewOAuthService(config.Database, sessions, metadata, cipher, logger),
		TwoFactor: services.NewTwoFactorService(config.Database, sessions, cipher, config.TOTPIssuer, logger),
		BasePath:  basePath,
		Cache:     cacheAdapter,
		endpoints: services.NewEndpointRegistry(),
		logger:    logger,
	}

	if err := config.HTTP.RegisterRoutes(w, basePath, sessions.Config()); err != nil {
		return nil, err
	}

	logger.Info().Str("basePath", basePath).Bool("cache", cacheAdapter != nil).Msg("workdeck ready")

	return w, nil
}

// RegisterPlugin advertises endpoints served outside the base set through
// Endpoints. The HTTP adapter binds routes during New, so the application
// mounts plugin handlers itself.
func (w *Workdeck) RegisterPlugin(endpoints []core.Endpoint) error {
	return w.endpoints.RegisterPlugin(endpoints)
}

func (w *Workdeck) Endpoints() []*core.Endpoint {
	return w.endpoints.Endpoints()
}

func (w *Workdeck) ValidateSession(ctx context.Context, token string) (*SessionValidationResult, error) {
	return w.Sessions.Validate(ctx, token)
}

func (w *Workdeck) AuthenticateOAuthUser(ctx context.Context, opts OAuthUserOptions, rc RequestContext) (*UserSession, error) {
	return w.OAuth.Authenticate(ctx, opts, rc)
}

func (w *Workdeck) SignOut(ctx context.Context, token string) error {
	return w.Sessions.Invalidate(ctx, token)
}

func (w *Workdeck) SignOutEverywhere(ctx context.Context, auth *AuthContext) (int64, error) {
	if !auth.Authenticated() {
		return 0, ErrUnauthorized
	}
	return w.Sessions.InvalidateUserSessions(ctx, auth.User.ID)
}

func (w *Workdeck) ListSessions(ctx context.Context, auth *AuthContext) ([]*core.SessionSummary, error) {
	return w.Sessions.ListSessions(ctx, auth)
}

func (w *Workdeck) RevokeSession(ctx context.Context, auth *AuthContext, sessionID string) error {
	if !auth.Authenticated() {
		return ErrUnauthorized
	}
	return w.Sessions.RevokeSession(ctx, auth.User.ID, sessionID)
}

func (w *Workdeck) GenerateTOTPSecret(auth *AuthContext) (*core.TOTPSetup, error) {
	return w.TwoFactor.GenerateTOTPSecret(auth)
}

func (w *Workdeck) RegisterTOTP(ctx context.Context, auth *AuthContext, secret, code string) (*core.TwoFactorResult, error) {
	return w.TwoFactor.RegisterTOTP(ctx, auth, secret, code)
}

func (w *Workdeck) VerifyTOTP(ctx context.Context, auth *AuthContext, code string) (*core.TwoFactorResult, error) {
	return w.TwoFactor.VerifyTOTP(ctx, auth, code)
}

func (w *Workdeck) DisconnectTOTP(ctx context.Context, auth *AuthContext) (*core.TwoFactorResult, error) {
	return w.TwoFactor.DisconnectTOTP(ctx, auth)
}

func (w *Workdeck) DisconnectPasskey(ctx context.Context, auth *AuthContext, passkeyID string) (*core.TwoFactorResult, error) {
	return w.TwoFactor.DisconnectPasskey(ctx, auth, passkeyID)
}

func (w *Workdeck) RecoveryCode(ctx context.Context, auth *AuthContext) (string, error) {
	return w.TwoFactor.RecoveryCode(ctx, auth)
}

// CacheStats reports cache counters, or false when the cache keeps none.
func (w *Workdeck) CacheStats() (CacheStats, bool) {
	withStats, ok := w.Cache.(core.CacheWithStats)
	if !ok {
		return CacheStats{}, false
	}
	return withStats.Stats(), true
}
