package core

import (
	"time"

	"github.com/lborres/workdeck/pkg/crypto"
)

const (
	DefaultSessionMaxAge        = 30 * 24 * time.Hour
	DefaultSessionRefreshWindow = 15 * 24 * time.Hour
	DefaultSessionCookie        = "workdeck_session"
)

type SessionConfig struct {
	// MaxAge is how far expiresAt is pushed on creation and rotation.
	MaxAge time.Duration
	// RefreshWindow is the trailing part of a session's life in which a
	// validation rotates its expiry.
	RefreshWindow time.Duration
	CookieName    string
	CookieSecure  bool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:        DefaultSessionMaxAge,
		RefreshWindow: DefaultSessionRefreshWindow,
		CookieName:    DefaultSessionCookie,
		CookieSecure:  true,
	}
}

type SessionStatus string

const (
	SessionStatusCurrent  SessionStatus = "current"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// GetSessionStatus classifies session relative to the caller's token.
func GetSessionStatus(token string, session *Session, now time.Time) SessionStatus {
	if session == nil {
		return SessionStatusInactive
	}
	if ok, _ := crypto.VerifyToken(token, session.ID); ok {
		return SessionStatusCurrent
	}
	if now.Before(session.ExpiresAt) {
		return SessionStatusActive
	}
	return SessionStatusInactive
}
