package postgres

import (
	"context"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
)

func (a *Adapter) CreateTOTPCredential(ctx context.Context, c *core.TOTPCredential) error {
	rec := &totpRecord{
		ID:           c.ID,
		UserID:       c.UserID,
		Secret:       c.Secret,
		LastUsedStep: c.LastUsedStep,
		CreatedAt:    c.CreatedAt,
	}
	return a.conn(ctx).Create(rec).Error
}

func (a *Adapter) GetTOTPCredential(ctx context.Context, userID string) (*core.TOTPCredential, error) {
	var rec totpRecord
	if err := a.conn(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return nil, notFound(err, workdeck.ErrTOTPNotFound)
	}
	return &core.TOTPCredential{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Secret:       rec.Secret,
		LastUsedStep: rec.LastUsedStep,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func (a *Adapter) HasTOTPCredential(ctx context.Context, userID string) (bool, error) {
	var n int64
	if err := a.conn(ctx).Model(&totpRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Adapter) DeleteTOTPCredential(ctx context.Context, userID string) (int64, error) {
	res := a.conn(ctx).Where("user_id = ?", userID).Delete(&totpRecord{})
	return res.RowsAffected, res.Error
}

// ConsumeTOTPStep is a single conditional update, so two requests racing
// with the same code can't both succeed.
func (a *Adapter) ConsumeTOTPStep(ctx context.Context, userID string, step int64) (bool, error) {
	res := a.conn(ctx).Exec(
		`UPDATE totp_credentials SET last_used_step = ? WHERE user_id = ? AND last_used_step < ?`,
		step, userID, step,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (a *Adapter) CountPasskeys(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := a.conn(ctx).Model(&passkeyRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Adapter) DeletePasskey(ctx context.Context, userID, passkeyID string) (int64, error) {
	res := a.conn(ctx).Where("id = ? AND user_id = ?", passkeyID, userID).Delete(&passkeyRecord{})
	return res.RowsAffected, res.Error
}
