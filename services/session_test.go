package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/cache"
	"github.com/lborres/workdeck/pkg/crypto"
	"github.com/lborres/workdeck/pkg/log"
)

const day = 24 * time.Hour

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Helper function to create a SessionManager with a frozen clock
func newTestSessionManager(storage core.SessionStorage, c core.Cache) *SessionManager {
	sm := NewSessionManager(core.DefaultSessionConfig(), storage, c, log.Nop())
	sm.now = func() time.Time { return testNow }
	return sm
}

// seedSession stores a user and a session for token expiring at expiresAt.
func seedSession(storage *FakeStorage, token string, expiresAt time.Time) *core.Session {
	storage.AddUser(&core.User{ID: "user-1", Email: "ada@example.com", Username: "ada"})
	session := &core.Session{
		ID:        crypto.HashToken(token),
		UserID:    "user-1",
		ExpiresAt: expiresAt,
		CreatedAt: expiresAt.Add(-30 * day),
	}
	storage.AddSession(session)
	return session
}

// Requirement: Create stores the hash of the token, never the token, with a 30 day expiry.
func TestSessionManager_Create(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		flags   core.SessionFlags
		wantErr error
	}{
		{name: "unverified session", token: "token-a", flags: core.SessionFlags{}},
		{name: "verified session", token: "token-b", flags: core.SessionFlags{TwoFactorVerified: true}},
		{name: "empty token", token: "", wantErr: core.ErrMissingToken},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			manager := newTestSessionManager(storage, nil)
			meta := core.SessionMetadata{Browser: "Firefox", Device: "Unknown Device", OS: "Linux", Location: "Localhost", IPAddress: "127.0.0.1"}

			// Act
			session, err := manager.Create(context.Background(), test.token, "user-1", test.flags, meta)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}
			if session.ID != crypto.HashToken(test.token) {
				t.Errorf("Session.ID = %q, want hash of token", session.ID)
			}
			if session.ID == test.token {
				t.Error("Session.ID must not be the raw token")
			}
			if !session.ExpiresAt.Equal(testNow.Add(30 * day)) {
				t.Errorf("ExpiresAt = %v, want now+30d", session.ExpiresAt)
			}
			if session.TwoFactorVerified != test.flags.TwoFactorVerified {
				t.Errorf("TwoFactorVerified = %v, want %v", session.TwoFactorVerified, test.flags.TwoFactorVerified)
			}
			if stored := storage.Session(session.ID); stored == nil || stored.Browser != "Firefox" {
				t.Errorf("stored session = %+v, want persisted metadata", stored)
			}
		})
	}
}

// Requirement: a valid token resolves to its session and matching user.
func TestSessionManager_Validate_ValidToken(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	seedSession(storage, "token", testNow.Add(20*day))
	manager := newTestSessionManager(storage, nil)

	// Act
	result, err := manager.Validate(context.Background(), "token")

	// Assert
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid() {
		t.Fatal("Validate() returned an empty result for a valid token")
	}
	if result.Session.ID != crypto.HashToken("token") {
		t.Errorf("Session.ID = %q, want hash of token", result.Session.ID)
	}
	if result.User.ID != result.Session.UserID {
		t.Errorf("User.ID = %q, want %q", result.User.ID, result.Session.UserID)
	}
}

// Requirement: unknown, empty and malformed tokens all yield (nil, nil).
func TestSessionManager_Validate_UnknownToken(t *testing.T) {
	tokens := []string{"", "does-not-exist", "   ", "\x00\xff"}

	for _, token := range tokens {
		token := token
		t.Run(token, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			seedSession(storage, "token", testNow.Add(20*day))
			manager := newTestSessionManager(storage, nil)

			// Act
			result, err := manager.Validate(context.Background(), token)

			// Assert
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if result.Session != nil || result.User != nil {
				t.Errorf("Validate() = %+v, want empty result", result)
			}
		})
	}
}

// Requirement: an expired session is deleted and reported like an unknown token, also on the next call.
func TestSessionManager_Validate_Expired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
	}{
		{name: "expired yesterday", expiresAt: testNow.Add(-day)},
		{name: "expires exactly now", expiresAt: testNow},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			session := seedSession(storage, "token", test.expiresAt)
			manager := newTestSessionManager(storage, nil)

			// Act
			first, err := manager.Validate(context.Background(), "token")
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			second, err := manager.Validate(context.Background(), "token")
			if err != nil {
				t.Fatalf("second Validate() error = %v", err)
			}

			// Assert
			if first.Valid() || second.Valid() {
				t.Error("expired session should validate to an empty result")
			}
			if storage.Session(session.ID) != nil {
				t.Error("expired session should be deleted")
			}
		})
	}
}

// Requirement: sessions inside the final 15 days are extended to now+30d; others are untouched.
func TestSessionManager_Validate_Rotation(t *testing.T) {
	tests := []struct {
		name        string
		expiresAt   time.Time
		wantExpires time.Time
		wantWrites  int
	}{
		{name: "one day left rotates", expiresAt: testNow.Add(day), wantExpires: testNow.Add(30 * day), wantWrites: 1},
		{name: "exactly 15 days left rotates", expiresAt: testNow.Add(15 * day), wantExpires: testNow.Add(30 * day), wantWrites: 1},
		{name: "just over 15 days left is untouched", expiresAt: testNow.Add(15*day + time.Second), wantExpires: testNow.Add(15*day + time.Second)},
		{name: "fresh session is untouched", expiresAt: testNow.Add(29 * day), wantExpires: testNow.Add(29 * day)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			session := seedSession(storage, "token", test.expiresAt)
			manager := newTestSessionManager(storage, nil)

			// Act
			result, err := manager.Validate(context.Background(), "token")

			// Assert
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !result.Session.ExpiresAt.Equal(test.wantExpires) {
				t.Errorf("returned ExpiresAt = %v, want %v", result.Session.ExpiresAt, test.wantExpires)
			}
			if stored := storage.Session(session.ID); !stored.ExpiresAt.Equal(test.wantExpires) {
				t.Errorf("persisted ExpiresAt = %v, want %v", stored.ExpiresAt, test.wantExpires)
			}
			if got := storage.Calls("UpdateSessionExpiry"); got != test.wantWrites {
				t.Errorf("UpdateSessionExpiry calls = %d, want %d", got, test.wantWrites)
			}
		})
	}
}

// Requirement: registered2FA is recomputed from credential presence, never trusted from the stored column.
func TestSessionManager_Validate_DerivesRegistered2FA(t *testing.T) {
	tests := []struct {
		name        string
		storedFlag  bool
		withTOTP    bool
		withPasskey bool
		want        bool
	}{
		{name: "stale true with no factors", storedFlag: true, want: false},
		{name: "stale false with totp", storedFlag: false, withTOTP: true, want: true},
		{name: "passkey only", withPasskey: true, want: true},
		{name: "both", storedFlag: true, withTOTP: true, withPasskey: true, want: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			storage.AddUser(&core.User{ID: "user-1", Registered2FA: test.storedFlag})
			storage.AddSession(&core.Session{ID: crypto.HashToken("token"), UserID: "user-1", ExpiresAt: testNow.Add(20 * day), TwoFactorVerified: true})
			if test.withTOTP {
				storage.AddTOTP(&core.TOTPCredential{ID: "t1", UserID: "user-1"})
			}
			if test.withPasskey {
				storage.AddPasskey(&core.Passkey{ID: "p1", UserID: "user-1"})
			}
			manager := newTestSessionManager(storage, nil)

			// Act
			result, err := manager.Validate(context.Background(), "token")

			// Assert
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			u := result.User
			if u.Registered2FA != test.want {
				t.Errorf("Registered2FA = %v, want %v", u.Registered2FA, test.want)
			}
			if u.Registered2FA != (u.RegisteredTOTP || u.RegisteredPasskey) {
				t.Error("Registered2FA must equal RegisteredTOTP || RegisteredPasskey")
			}
			if !u.TwoFactorVerified {
				t.Error("user view should mirror the session's TwoFactorVerified flag")
			}
		})
	}
}

func TestSessionManager_Validate_StorageError(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	storage.FailOn("GetSessionAndUser", errors.New("connection refused"))
	manager := newTestSessionManager(storage, nil)

	// Act
	result, err := manager.Validate(context.Background(), "token")

	// Assert
	if err == nil {
		t.Fatal("Validate() should surface storage failures")
	}
	if result != nil {
		t.Errorf("Validate() result = %+v, want nil on error", result)
	}
}

// Requirement: with a cache, repeat validations skip storage until something invalidates the entry.
func TestSessionManager_Validate_UsesCache(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	seedSession(storage, "token", testNow.Add(20*day))
	c := cache.NewLRUCache(core.CacheConfig{TTL: time.Minute})
	manager := newTestSessionManager(storage, c)
	ctx := context.Background()

	// Act
	_, _ = manager.Validate(ctx, "token")
	_, _ = manager.Validate(ctx, "token")

	// Assert
	if got := storage.Calls("GetSessionAndUser"); got != 1 {
		t.Errorf("GetSessionAndUser calls = %d, want 1", got)
	}

	if err := manager.Invalidate(ctx, "token"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	result, _ := manager.Validate(ctx, "token")
	if result.Valid() {
		t.Error("invalidated session should not be served from cache")
	}
}

// Requirement: invalidating an unknown token is a no-op.
func TestSessionManager_Invalidate(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	session := seedSession(storage, "token", testNow.Add(20*day))
	manager := newTestSessionManager(storage, nil)
	ctx := context.Background()

	// Act & Assert
	if err := manager.Invalidate(ctx, "token"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if storage.Session(session.ID) != nil {
		t.Error("session should be deleted")
	}
	if err := manager.Invalidate(ctx, "token"); err != nil {
		t.Errorf("second Invalidate() error = %v, want nil", err)
	}
	if err := manager.Invalidate(ctx, ""); !errors.Is(err, core.ErrMissingToken) {
		t.Errorf("Invalidate(\"\") error = %v, want ErrMissingToken", err)
	}
}

func TestSessionManager_InvalidateUserSessions(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	seedSession(storage, "token-1", testNow.Add(20*day))
	storage.AddSession(&core.Session{ID: crypto.HashToken("token-2"), UserID: "user-1", ExpiresAt: testNow.Add(day)})
	storage.AddSession(&core.Session{ID: crypto.HashToken("token-3"), UserID: "user-2", ExpiresAt: testNow.Add(day)})
	manager := newTestSessionManager(storage, nil)

	// Act
	count, err := manager.InvalidateUserSessions(context.Background(), "user-1")

	// Assert
	if err != nil {
		t.Fatalf("InvalidateUserSessions() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if storage.SessionCount() != 1 {
		t.Errorf("remaining sessions = %d, want 1", storage.SessionCount())
	}
	if _, err := manager.InvalidateUserSessions(context.Background(), ""); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("empty user id error = %v, want ErrUserNotFound", err)
	}
}

// Requirement: sessions are listed with current/active/inactive status relative to the caller.
func TestSessionManager_ListSessions(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	current := seedSession(storage, "mine", testNow.Add(20*day))
	storage.AddSession(&core.Session{ID: crypto.HashToken("laptop"), UserID: "user-1", ExpiresAt: testNow.Add(day), CreatedAt: testNow.Add(-day)})
	storage.AddSession(&core.Session{ID: crypto.HashToken("old-phone"), UserID: "user-1", ExpiresAt: testNow.Add(-day), CreatedAt: testNow.Add(-40 * day)})
	manager := newTestSessionManager(storage, nil)
	auth := &core.AuthContext{Token: "mine", Session: current, User: &core.User{ID: "user-1"}}

	// Act
	summaries, err := manager.ListSessions(context.Background(), auth)

	// Assert
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	got := make(map[string]core.SessionStatus)
	for _, s := range summaries {
		got[s.ID] = s.Status
	}
	want := map[string]core.SessionStatus{
		crypto.HashToken("mine"):      core.SessionStatusCurrent,
		crypto.HashToken("laptop"):    core.SessionStatusActive,
		crypto.HashToken("old-phone"): core.SessionStatusInactive,
	}
	for id, status := range want {
		if got[id] != status {
			t.Errorf("status of %s = %q, want %q", id[:8], got[id], status)
		}
	}

	if _, err := manager.ListSessions(context.Background(), nil); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("ListSessions(nil) error = %v, want ErrUnauthorized", err)
	}
}

// Requirement: a user can only revoke their own sessions.
func TestSessionManager_RevokeSession(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		sessionID string
		wantErr   error
	}{
		{name: "own session", userID: "user-1", sessionID: crypto.HashToken("laptop")},
		{name: "someone else's session", userID: "user-2", sessionID: crypto.HashToken("laptop"), wantErr: core.ErrSessionNotFound},
		{name: "unknown session", userID: "user-1", sessionID: "nope", wantErr: core.ErrSessionNotFound},
		{name: "empty id", userID: "user-1", sessionID: "", wantErr: core.ErrSessionNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			storage := NewFakeStorage()
			seedSession(storage, "laptop", testNow.Add(day))
			manager := newTestSessionManager(storage, nil)

			// Act
			err := manager.RevokeSession(context.Background(), test.userID, test.sessionID)

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("RevokeSession() error = %v, want %v", err, test.wantErr)
			}
			stillThere := storage.Session(crypto.HashToken("laptop")) != nil
			if stillThere != (test.wantErr != nil) {
				t.Errorf("session present = %v after RevokeSession", stillThere)
			}
		})
	}
}

func TestSessionManager_SetTwoFactorVerified(t *testing.T) {
	// Arrange
	storage := NewFakeStorage()
	session := seedSession(storage, "token", testNow.Add(20*day))
	c := cache.NewLRUCache(core.CacheConfig{})
	manager := newTestSessionManager(storage, c)
	ctx := context.Background()
	_, _ = manager.Validate(ctx, "token")

	// Act
	err := manager.SetTwoFactorVerified(ctx, session.ID)

	// Assert
	if err != nil {
		t.Fatalf("SetTwoFactorVerified() error = %v", err)
	}
	result, _ := manager.Validate(ctx, "token")
	if !result.Session.TwoFactorVerified {
		t.Error("validation after SetTwoFactorVerified should see the flag")
	}
}
