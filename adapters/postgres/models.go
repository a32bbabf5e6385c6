package postgres

import (
	"time"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
)

type userRecord struct {
	ID                string `gorm:"primaryKey"`
	Email             string
	Username          string
	EmailVerified     bool
	ProfilePictureURL string `gorm:"column:profile_picture_url"`
	RecoveryCode      string
	Registered2FA     bool `gorm:"column:registered_2fa"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (userRecord) TableName() string { return "users" }

func newUserRecord(u *workdeck.User) *userRecord {
	return &userRecord{
		ID:                u.ID,
		Email:             u.Email,
		Username:          u.Username,
		EmailVerified:     u.EmailVerified,
		ProfilePictureURL: u.ProfilePictureURL,
		RecoveryCode:      u.RecoveryCode,
		Registered2FA:     u.Registered2FA,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (r *userRecord) toUser() *workdeck.User {
	return &workdeck.User{
		ID:                r.ID,
		Email:             r.Email,
		Username:          r.Username,
		EmailVerified:     r.EmailVerified,
		ProfilePictureURL: r.ProfilePictureURL,
		RecoveryCode:      r.RecoveryCode,
		Registered2FA:     r.Registered2FA,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type sessionRecord struct {
	ID                string `gorm:"primaryKey"`
	UserID            string
	ExpiresAt         time.Time
	TwoFactorVerified bool
	Browser           string
	Device            string
	OS                string `gorm:"column:os"`
	Location          string
	IPAddress         string `gorm:"column:ip_address"`
	CreatedAt         time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

func newSessionRecord(s *workdeck.Session) *sessionRecord {
	return &sessionRecord{
		ID:                s.ID,
		UserID:            s.UserID,
		ExpiresAt:         s.ExpiresAt,
		TwoFactorVerified: s.TwoFactorVerified,
		Browser:           s.Browser,
		Device:            s.Device,
		OS:                s.OS,
		Location:          s.Location,
		IPAddress:         s.IPAddress,
		CreatedAt:         s.CreatedAt,
	}
}

func (r *sessionRecord) toSession() *workdeck.Session {
	return &workdeck.Session{
		ID:                r.ID,
		UserID:            r.UserID,
		ExpiresAt:         r.ExpiresAt,
		TwoFactorVerified: r.TwoFactorVerified,
		SessionMetadata: core.SessionMetadata{
			Browser:   r.Browser,
			Device:    r.Device,
			OS:        r.OS,
			Location:  r.Location,
			IPAddress: r.IPAddress,
		},
		CreatedAt: r.CreatedAt,
	}
}

type oauthAccountRecord struct {
	ID             string `gorm:"primaryKey"`
	Provider       string
	ProviderUserID string `gorm:"column:provider_user_id"`
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (oauthAccountRecord) TableName() string { return "oauth_accounts" }

type totpRecord struct {
	ID           string `gorm:"primaryKey"`
	UserID       string
	Secret       string
	LastUsedStep int64
	CreatedAt    time.Time
}

func (totpRecord) TableName() string { return "totp_credentials" }

type passkeyRecord struct {
	ID        string `gorm:"primaryKey"`
	UserID    string
	Name      string
	CreatedAt time.Time
}

func (passkeyRecord) TableName() string { return "passkeys" }
