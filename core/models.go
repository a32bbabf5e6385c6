package core

import "time"

// User represents a user account in the system
//
// RegisteredTOTP and RegisteredPasskey are read from credential presence.
// Registered2FA holds the stored aggregate when loaded from UserStorage and
// the derived value everywhere else.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	EmailVerified     bool      `json:"emailVerified"`
	ProfilePictureURL string    `json:"profilePictureUrl"`
	RecoveryCode      string    `json:"-"` // sealed, base64
	Registered2FA     bool      `json:"registered2FA"`
	RegisteredTOTP    bool      `json:"registeredTOTP"`
	RegisteredPasskey bool      `json:"registeredPasskey"`
	TwoFactorVerified bool      `json:"twoFactorVerified"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasSecondFactor reports whether any second factor is registered.
func (u *User) HasSecondFactor() bool {
	return u.RegisteredTOTP || u.RegisteredPasskey
}

// DeriveRegistered2FA overwrites Registered2FA with the value computed from
// credential presence.
func (u *User) DeriveRegistered2FA() {
	u.Registered2FA = u.HasSecondFactor()
}

// OAuthAccount links an external identity to a local user.
type OAuthAccount struct {
	ID             string    `json:"id"`
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"providerUserId"`
	UserID         string    `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TOTPCredential is an enrolled authenticator. LastUsedStep is the most
// recent 30-second time step a code was accepted for.
type TOTPCredential struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Secret       string    `json:"-"` // sealed, base64
	LastUsedStep int64     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Passkey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionFlags are the mutable booleans set at session creation.
type SessionFlags struct {
	TwoFactorVerified bool
}

// SessionMetadata describes the device a session was created from.
// It is captured once and never updated.
type SessionMetadata struct {
	Browser   string `json:"browser"`
	Device    string `json:"device"`
	OS        string `json:"os"`
	Location  string `json:"location"`
	IPAddress string `json:"ipAddress"`
}

// Session represents one authenticated device/browser login.
// ID is the hash of the client's token.
type Session struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	ExpiresAt         time.Time `json:"expiresAt"`
	TwoFactorVerified bool      `json:"twoFactorVerified"`
	SessionMetadata
	CreatedAt time.Time `json:"createdAt"`
}

// SessionValidationResult is the outcome of validating a token. Both fields
// are nil when the token is unknown, expired or malformed.
type SessionValidationResult struct {
	Session *Session `json:"session"`
	User    *User    `json:"user"`
}

// Valid reports whether the result carries a session.
func (r *SessionValidationResult) Valid() bool {
	return r != nil && r.Session != nil && r.User != nil
}

// Clone returns a deep copy so cached results can't be mutated by callers.
func (r *SessionValidationResult) Clone() *SessionValidationResult {
	if r == nil {
		return nil
	}
	out := &SessionValidationResult{}
	if r.Session != nil {
		s := *r.Session
		out.Session = &s
	}
	if r.User != nil {
		u := *r.User
		out.User = &u
	}
	return out
}

// UserSession is the user-facing session established at login.
type UserSession struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Token   string   `json:"-"`
	MaxAge  int      `json:"maxAge"` // seconds
}

// SessionSummary is a session annotated with its status relative to the
// caller's token.
type SessionSummary struct {
	*Session
	Status SessionStatus `json:"status"`
}

// TOTPSetup is handed to the client to enroll an authenticator app.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// TwoFactorResult is returned by factor mutations.
type TwoFactorResult struct {
	User    *User  `json:"user"`
	Message string `json:"message"`
}

// Location is the result of an IP geolocation lookup.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}
