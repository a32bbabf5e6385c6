package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/crypto"
)

type SessionManager struct {
	config  core.SessionConfig
	storage core.SessionStorage
	cache   core.Cache // optional, can be nil if caching is disabled
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, cache core.Cache, logger zerolog.Logger) *SessionManager {
	if config.MaxAge <= 0 {
		config.MaxAge = core.DefaultSessionMaxAge
	}
	if config.RefreshWindow <= 0 || config.RefreshWindow > config.MaxAge {
		config.RefreshWindow = config.MaxAge / 2
	}
	return &SessionManager{
		config:  config,
		storage: storage,
		cache:   cache,
		logger:  logger.With().Str("component", "sessions").Logger(),
		now:     time.Now,
	}
}

func (sm *SessionManager) Config() core.SessionConfig {
	return sm.config
}

// Create persists a session for token. The token itself is never stored.
func (sm *SessionManager) Create(ctx context.Context, token, userID string, flags core.SessionFlags, meta core.SessionMetadata) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrMissingToken
	}

	now := sm.now()
	session := &core.Session{
		ID:                crypto.HashToken(token),
		UserID:            userID,
		ExpiresAt:         now.Add(sm.config.MaxAge),
		TwoFactorVerified: flags.TwoFactorVerified,
		SessionMetadata:   meta,
		CreatedAt:         now,
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Validate resolves token to its session and user. Unknown, expired and
// malformed tokens all produce an empty result with a nil error.
func (sm *SessionManager) Validate(ctx context.Context, token string) (*core.SessionValidationResult, error) {
	if token == "" {
		return &core.SessionValidationResult{}, nil
	}

	id := crypto.HashToken(token)

	result, err := sm.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &core.SessionValidationResult{}, nil
	}

	now := sm.now()
	session := result.Session

	if !now.Before(session.ExpiresAt) {
		if err := sm.storage.DeleteSessionByID(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		sm.forget(id)
		return &core.SessionValidationResult{}, nil
	}

	if !now.Before(session.ExpiresAt.Add(-sm.config.RefreshWindow)) {
		expiresAt := now.Add(sm.config.MaxAge)
		if err := sm.storage.UpdateSessionExpiry(ctx, id, expiresAt); err != nil {
			return nil, fmt.Errorf("failed to extend session: %w", err)
		}
		session.ExpiresAt = expiresAt
		sm.logger.Debug().Str("userId", session.UserID).Time("expiresAt", expiresAt).Msg("session rotated")
		sm.remember(id, result)
	}

	result.User.DeriveRegistered2FA()
	result.User.TwoFactorVerified = session.TwoFactorVerified

	return result, nil
}

// lookup returns nil, nil when no session matches id.
func (sm *SessionManager) lookup(ctx context.Context, id string) (*core.SessionValidationResult, error) {
	if sm.cache != nil {
		if cached, err := sm.cache.Get(id); err == nil {
			return cached, nil
		}
	}

	session, user, err := sm.storage.GetSessionAndUser(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	result := &core.SessionValidationResult{Session: session, User: user}
	sm.remember(id, result)
	return result, nil
}

func (sm *SessionManager) remember(id string, result *core.SessionValidationResult) {
	if sm.cache == nil {
		return
	}
	// We don't fail the request if caching fails
	if err := sm.cache.Set(id, result); err != nil {
		sm.logger.Warn().Err(err).Msg("session cache write failed")
	}
}

func (sm *SessionManager) forget(id string) {
	if sm.cache != nil {
		_ = sm.cache.Delete(id)
	}
}

// ForgetUser drops cached sessions of userID after a change to the user's
// factors or flags.
func (sm *SessionManager) ForgetUser(userID string) {
	if sm.cache != nil {
		_ = sm.cache.DeleteUser(userID)
	}
}

// Invalidate deletes the session behind token. Unknown tokens are a no-op.
func (sm *SessionManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrMissingToken
	}

	id := crypto.HashToken(token)
	if err := sm.storage.DeleteSessionByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	sm.forget(id)
	return nil
}

// InvalidateUserSessions logs userID out everywhere.
func (sm *SessionManager) InvalidateUserSessions(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, core.ErrUserNotFound
	}

	count, err := sm.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	sm.ForgetUser(userID)
	return count, nil
}

// UserSessions returns the sessions of userID. Callers must not rely on the
// order.
func (sm *SessionManager) UserSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	sessions, err := sm.storage.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListSessions returns the caller's sessions annotated with their status.
func (sm *SessionManager) ListSessions(ctx context.Context, auth *core.AuthContext) ([]*core.SessionSummary, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	sessions, err := sm.UserSessions(ctx, auth.User.ID)
	if err != nil {
		return nil, err
	}

	now := sm.now()
	out := make([]*core.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, &core.SessionSummary{
			Session: s,
			Status:  core.GetSessionStatus(auth.Token, s, now),
		})
	}
	return out, nil
}

// RevokeSession deletes one of userID's sessions by id. Sessions of other
// users are reported as not found.
func (sm *SessionManager) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return core.ErrSessionNotFound
	}

	session, err := sm.storage.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return core.ErrSessionNotFound
	}

	if err := sm.storage.DeleteSessionByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	sm.forget(sessionID)
	return nil
}

// SetTwoFactorVerified marks one session as having passed its second factor.
func (sm *SessionManager) SetTwoFactorVerified(ctx context.Context, sessionID string) error {
	if err := sm.storage.SetSessionTwoFactorVerified(ctx, sessionID, true); err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}
	sm.forget(sessionID)
	return nil
}
