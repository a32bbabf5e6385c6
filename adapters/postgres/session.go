package postgres

import (
	"context"
	"time"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
)

// sessionUserQuery loads a session, its user and whether the user holds a
// TOTP credential or any passkey, in one round trip.
const sessionUserQuery = `
SELECT
	s.id, s.user_id, s.expires_at, s.two_factor_verified,
	s.browser, s.device, s.os, s.location, s.ip_address, s.created_at,
	u.email, u.username, u.email_verified, u.profile_picture_url, u.registered_2fa,
	u.created_at AS user_created_at, u.updated_at AS user_updated_at,
	t.id IS NOT NULL AS registered_totp,
	p.id IS NOT NULL AS registered_passkey
FROM sessions s
INNER JOIN users u ON u.id = s.user_id
LEFT JOIN totp_credentials t ON t.user_id = u.id
LEFT JOIN LATERAL (
	SELECT id FROM passkeys WHERE user_id = u.id LIMIT 1
) p ON TRUE
WHERE s.id = ?`

type sessionUserRow struct {
	ID                string
	UserID            string
	ExpiresAt         time.Time
	TwoFactorVerified bool
	Browser           string
	Device            string
	OS                string `gorm:"column:os"`
	Location          string
	IPAddress         string `gorm:"column:ip_address"`
	CreatedAt         time.Time

	Email             string
	Username          string
	EmailVerified     bool
	ProfilePictureURL string    `gorm:"column:profile_picture_url"`
	Registered2FA     bool      `gorm:"column:registered_2fa"`
	UserCreatedAt     time.Time `gorm:"column:user_created_at"`
	UserUpdatedAt     time.Time `gorm:"column:user_updated_at"`
	RegisteredTOTP    bool      `gorm:"column:registered_totp"`
	RegisteredPasskey bool      `gorm:"column:registered_passkey"`
}

func (a *Adapter) CreateSession(ctx context.Context, session *workdeck.Session) error {
	return a.conn(ctx).Create(newSessionRecord(session)).Error
}

func (a *Adapter) GetSessionAndUser(ctx context.Context, id string) (*workdeck.Session, *workdeck.User, error) {
	var row sessionUserRow
	res := a.conn(ctx).Raw(sessionUserQuery, id).Scan(&row)
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, workdeck.ErrSessionNotFound
	}

	session := &workdeck.Session{
		ID:                row.ID,
		UserID:            row.UserID,
		ExpiresAt:         row.ExpiresAt,
		TwoFactorVerified: row.TwoFactorVerified,
		SessionMetadata: core.SessionMetadata{
			Browser:   row.Browser,
			Device:    row.Device,
			OS:        row.OS,
			Location:  row.Location,
			IPAddress: row.IPAddress,
		},
		CreatedAt: row.CreatedAt,
	}
	user := &workdeck.User{
		ID:                row.UserID,
		Email:             row.Email,
		Username:          row.Username,
		EmailVerified:     row.EmailVerified,
		ProfilePictureURL: row.ProfilePictureURL,
		Registered2FA:     row.Registered2FA,
		RegisteredTOTP:    row.RegisteredTOTP,
		RegisteredPasskey: row.RegisteredPasskey,
		CreatedAt:         row.UserCreatedAt,
		UpdatedAt:         row.UserUpdatedAt,
	}

	return session, user, nil
}

func (a *Adapter) GetSessionByID(ctx context.Context, id string) (*workdeck.Session, error) {
	var rec sessionRecord
	if err := a.conn(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, notFound(err, workdeck.ErrSessionNotFound)
	}
	return rec.toSession(), nil
}

func (a *Adapter) GetUserSessions(ctx context.Context, userID string) ([]*workdeck.Session, error) {
	var recs []sessionRecord
	if err := a.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}

	sessions := make([]*workdeck.Session, 0, len(recs))
	for i := range recs {
		sessions = append(sessions, recs[i].toSession())
	}
	return sessions, nil
}

func (a *Adapter) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	return a.conn(ctx).Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, expiresAt, id).Error
}

func (a *Adapter) SetSessionTwoFactorVerified(ctx context.Context, id string, verified bool) error {
	res := a.conn(ctx).Exec(`UPDATE sessions SET two_factor_verified = ? WHERE id = ?`, verified, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return workdeck.ErrSessionNotFound
	}
	return nil
}

func (a *Adapter) ClearUserTwoFactorVerified(ctx context.Context, userID string) error {
	return a.conn(ctx).Exec(`UPDATE sessions SET two_factor_verified = FALSE WHERE user_id = ?`, userID).Error
}

func (a *Adapter) DeleteSessionByID(ctx context.Context, id string) error {
	return a.conn(ctx).Where("id = ?", id).Delete(&sessionRecord{}).Error
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	res := a.conn(ctx).Where("user_id = ?", userID).Delete(&sessionRecord{})
	return res.RowsAffected, res.Error
}
