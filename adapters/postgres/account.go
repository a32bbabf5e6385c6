package postgres

import (
	"context"

	"github.com/lborres/workdeck"
)

func (a *Adapter) CreateOAuthAccount(ctx context.Context, account *workdeck.OAuthAccount) error {
	rec := &oauthAccountRecord{
		ID:             account.ID,
		Provider:       account.Provider.String(),
		ProviderUserID: account.ProviderUserID,
		UserID:         account.UserID,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	}
	return a.conn(ctx).Create(rec).Error
}

func (a *Adapter) GetOAuthAccount(ctx context.Context, provider workdeck.Provider, providerUserID string) (*workdeck.OAuthAccount, error) {
	var rec oauthAccountRecord
	err := a.conn(ctx).
		Where("provider = ? AND provider_user_id = ?", provider.String(), providerUserID).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err, workdeck.ErrOAuthAccountNotFound)
	}

	return &workdeck.OAuthAccount{
		ID:             rec.ID,
		Provider:       workdeck.Provider(rec.Provider),
		ProviderUserID: rec.ProviderUserID,
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}
