package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/lborres/workdeck"
)

func (a *Adapter) CreateUser(ctx context.Context, user *workdeck.User) error {
	err := a.conn(ctx).Create(newUserRecord(user)).Error
	if isUniqueViolation(err) {
		return workdeck.ErrEmailTaken
	}
	return err
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*workdeck.User, error) {
	var rec userRecord
	if err := a.conn(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, notFound(err, workdeck.ErrUserNotFound)
	}
	return rec.toUser(), nil
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*workdeck.User, error) {
	var rec userRecord
	if err := a.conn(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		return nil, notFound(err, workdeck.ErrUserNotFound)
	}
	return rec.toUser(), nil
}

// LockUser only holds the row when called through Transaction.
func (a *Adapter) LockUser(ctx context.Context, id string) (*workdeck.User, error) {
	var rec userRecord
	err := a.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err, workdeck.ErrUserNotFound)
	}
	return rec.toUser(), nil
}

func (a *Adapter) SetUserRegistered2FA(ctx context.Context, id string, registered bool, updatedAt time.Time) error {
	res := a.conn(ctx).Exec(
		`UPDATE users SET registered_2fa = ?, updated_at = ? WHERE id = ?`,
		registered, updatedAt, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return workdeck.ErrUserNotFound
	}
	return nil
}
