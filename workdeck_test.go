package workdeck

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/crypto"
	"github.com/lborres/workdeck/services"
)

const testSecret = "01234567890123456789012345678901"

// recordingHTTP captures what New hands to the HTTP adapter.
type recordingHTTP struct {
	handler  AuthHandler
	basePath string
	config   SessionConfig
	err      error
}

func (r *recordingHTTP) RegisterRoutes(handler AuthHandler, basePath string, config SessionConfig) error {
	r.handler = handler
	r.basePath = basePath
	r.config = config
	return r.err
}

func newTestConfig() (Config, *services.FakeStorage, *recordingHTTP) {
	storage := services.NewFakeStorage()
	adapter := &recordingHTTP{}
	return Config{
		Secret:     testSecret,
		Database:   storage,
		HTTP:       adapter,
		GeoLocator: &services.FakeGeoLocator{Location: &core.Location{City: "Oslo", Country: "Norway"}},
	}, storage, adapter
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "missing secret", mutate: func(c *Config) { c.Secret = "" }, wantErr: ErrSecretRequired},
		{name: "short secret", mutate: func(c *Config) { c.Secret = "short-secret" }, wantErr: ErrSecretTooShort},
		{name: "missing database", mutate: func(c *Config) { c.Database = nil }, wantErr: ErrDBAdapterRequired},
		{name: "missing http", mutate: func(c *Config) { c.HTTP = nil }, wantErr: ErrHTTPAdapterRequired},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			cfg, _, _ := newTestConfig()
			test.mutate(&cfg)

			// Act
			_, err := New(cfg)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestNewShouldReturnErrSecretTooShort(t *testing.T) {
	cfg, _, _ := newTestConfig()
	cfg.Secret = "short-secret"

	_, err := New(cfg)
	if !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort sentinel (errors.Is), got %v", err)
	}
	// Message should include the minimum length
	if !strings.Contains(err.Error(), "32") {
		t.Fatalf("expected error message to include minimum length, got %v", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	// Arrange
	cfg, _, adapter := newTestConfig()

	// Act
	w, err := New(cfg)

	// Assert
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if adapter.handler != w {
		t.Error("RegisterRoutes should receive the Workdeck instance")
	}
	if adapter.basePath != "/api/auth" {
		t.Errorf("basePath = %q, want /api/auth", adapter.basePath)
	}
	if adapter.config.MaxAge != 30*24*time.Hour {
		t.Errorf("MaxAge = %v, want 30 days", adapter.config.MaxAge)
	}
	if adapter.config.CookieName != core.DefaultSessionCookie {
		t.Errorf("CookieName = %q, want %q", adapter.config.CookieName, core.DefaultSessionCookie)
	}
	if _, ok := w.CacheStats(); ok {
		t.Error("caching should be off unless a cache adapter is supplied")
	}
	if got := len(w.Endpoints()); got != len(services.BaseEndpoints()) {
		t.Errorf("Endpoints() = %d, want %d", got, len(services.BaseEndpoints()))
	}
}

func TestNewUsesSuppliedCache(t *testing.T) {
	cfg, _, _ := newTestConfig()
	cfg.CacheAdapter = NewLRUCache(CacheConfig{TTL: time.Minute})

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := w.CacheStats(); !ok {
		t.Error("supplied cache should report stats")
	}
}

// Requirement: by default every validation reflects current credentials and revocations.
func TestNewDefaultValidationReadsLiveState(t *testing.T) {
	// Arrange
	cfg, storage, _ := newTestConfig()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	storage.AddUser(&User{ID: "user-1"})
	storage.AddSession(&Session{ID: crypto.HashToken("laptop"), UserID: "user-1", ExpiresAt: time.Now().Add(20 * 24 * time.Hour)})
	storage.AddSession(&Session{ID: crypto.HashToken("phone"), UserID: "user-1", ExpiresAt: time.Now().Add(20 * 24 * time.Hour)})
	ctx := context.Background()

	before, err := w.ValidateSession(ctx, "laptop")
	if err != nil || !before.Valid() {
		t.Fatalf("ValidateSession() = %+v, %v, want a valid session", before, err)
	}
	if _, err := w.ValidateSession(ctx, "phone"); err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}

	// Act
	storage.AddPasskey(&core.Passkey{ID: "pk-1", UserID: "user-1", CreatedAt: time.Now()})
	if err := storage.DeleteSessionByID(ctx, crypto.HashToken("phone")); err != nil {
		t.Fatalf("DeleteSessionByID failed: %v", err)
	}
	laptop, err := w.ValidateSession(ctx, "laptop")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	phone, err := w.ValidateSession(ctx, "phone")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}

	// Assert
	if !laptop.User.RegisteredPasskey || !laptop.User.Registered2FA {
		t.Errorf("user = %+v, want the new passkey reflected", laptop.User)
	}
	if got := Get2FARedirect(laptop.User, "/"); got != core.TwoFactorPath {
		t.Errorf("Get2FARedirect() = %q, want %q", got, core.TwoFactorPath)
	}
	if phone.Valid() {
		t.Error("a session deleted in storage should no longer validate")
	}
}

func TestNewPropagatesRouteErrors(t *testing.T) {
	cfg, _, adapter := newTestConfig()
	adapter.err = errors.New("route conflict")

	_, err := New(cfg)

	if err == nil || !strings.Contains(err.Error(), "route conflict") {
		t.Fatalf("New() error = %v, want route conflict", err)
	}
}

func TestNewShouldNotUseCacheWhenDisableCacheTrue(t *testing.T) {
	// Arrange
	cfg, storage, _ := newTestConfig()
	cfg.DisableCache = true
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	storage.AddUser(&User{ID: "user-1"})
	storage.AddSession(&Session{ID: crypto.HashToken("token"), UserID: "user-1", ExpiresAt: time.Now().Add(20 * 24 * time.Hour)})
	ctx := context.Background()

	// Act
	for i := 0; i < 3; i++ {
		if _, err := w.ValidateSession(ctx, "token"); err != nil {
			t.Fatalf("ValidateSession failed: %v", err)
		}
	}

	// Assert
	if got := storage.Calls("GetSessionAndUser"); got != 3 {
		t.Fatalf("expected every validation to hit storage with cache disabled, got %d calls", got)
	}
	if _, ok := w.CacheStats(); ok {
		t.Error("CacheStats should report no cache")
	}
}

// Requirement: an OAuth login yields a session that validates and requires 2FA only when a factor is registered.
func TestWorkdeck_OAuthLoginFlow(t *testing.T) {
	// Arrange
	cfg, storage, _ := newTestConfig()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	opts := OAuthUserOptions{Provider: core.ProviderGoogle, ProviderUserID: "g-1", Email: "ada@example.com"}

	// Act
	login, err := w.AuthenticateOAuthUser(ctx, opts, RequestContext{IPAddress: "198.51.100.1"})
	if err != nil {
		t.Fatalf("AuthenticateOAuthUser failed: %v", err)
	}
	result, err := w.ValidateSession(ctx, login.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}

	// Assert
	if !result.Valid() || result.User.ID != login.User.ID {
		t.Fatalf("ValidateSession() = %+v, want the logged in user", result)
	}
	if login.Session.Location != "Oslo, Norway" {
		t.Errorf("Location = %q, want Oslo, Norway", login.Session.Location)
	}
	if got := Get2FARedirect(result.User, "/"); got != "/" {
		t.Errorf("Get2FARedirect() = %q, want / for a user without factors", got)
	}

	auth := core.NewAuthContext(login.Token, result)
	if err := w.SignOut(ctx, auth.Token); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	after, _ := w.ValidateSession(ctx, login.Token)
	if after.Valid() {
		t.Error("session should be gone after SignOut")
	}
	if storage.SessionCount() != 0 {
		t.Errorf("SessionCount = %d, want 0", storage.SessionCount())
	}
}

func TestWorkdeck_RequiresAuthentication(t *testing.T) {
	cfg, _, _ := newTestConfig()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	if _, err := w.SignOutEverywhere(ctx, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SignOutEverywhere(nil) error = %v", err)
	}
	if err := w.RevokeSession(ctx, &AuthContext{}, "id"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("RevokeSession(empty) error = %v", err)
	}
	if _, err := w.DisconnectTOTP(ctx, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("DisconnectTOTP(nil) error = %v", err)
	}
}
