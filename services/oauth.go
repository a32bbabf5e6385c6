package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/crypto"
)

// OAuthService turns a provider profile into a local user and session.
type OAuthService struct {
	storage  core.AuthStorage
	sessions *SessionManager
	metadata *MetadataResolver
	cipher   *crypto.Cipher
	codes    *crypto.NanoIDGenerator
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

func NewOAuthService(storage core.AuthStorage, sessions *SessionManager, metadata *MetadataResolver, cipher *crypto.Cipher, logger zerolog.Logger) *OAuthService {
	return &OAuthService{
		storage:  storage,
		sessions: sessions,
		metadata: metadata,
		cipher:   cipher,
		codes:    crypto.NewRecoveryCodeGenerator(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "oauth").Logger(),
		now:      time.Now,
	}
}

// Authenticate finds or creates the user owning opts.Email, links the
// provider account if needed and opens an unverified session.
//
// A second provider reporting the same email is linked to the existing
// user.
func (s *OAuthService) Authenticate(ctx context.Context, opts core.OAuthUserOptions, rc core.RequestContext) (*core.UserSession, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, core.InvalidInput("invalid oauth profile", err)
	}

	user, err := s.findOrCreateUser(ctx, opts)
	if err != nil {
		return nil, err
	}

	token, err := crypto.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	meta := s.metadata.Resolve(ctx, rc)
	session, err := s.sessions.Create(ctx, token, user.ID, core.SessionFlags{TwoFactorVerified: false}, meta)
	if err != nil {
		return nil, err
	}

	user.DeriveRegistered2FA()
	user.TwoFactorVerified = false

	s.logger.Info().
		Str("userId", user.ID).
		Str("provider", opts.Provider.String()).
		Str("location", meta.Location).
		Msg("oauth login")

	return &core.UserSession{
		User:    user,
		Session: session,
		Token:   token,
		MaxAge:  int(session.ExpiresAt.Sub(s.now()) / time.Second),
	}, nil
}

// findOrCreateUser resolves the user for opts.Email. A concurrent first
// login that creates the same email wins and this one links to its user.
func (s *OAuthService) findOrCreateUser(ctx context.Context, opts core.OAuthUserOptions) (*core.User, error) {
	for attempt := 0; ; attempt++ {
		user, err := s.storage.GetUserByEmail(ctx, opts.Email)
		switch {
		case err == nil:
			if err := s.ensureLink(ctx, s.storage, opts, user.ID); err != nil {
				return nil, err
			}
			if err := s.loadFactors(ctx, user); err != nil {
				return nil, err
			}
			return user, nil
		case !errors.Is(err, core.ErrUserNotFound):
			return nil, fmt.Errorf("failed to find user: %w", err)
		}

		user, err = s.createUser(ctx, opts)
		if errors.Is(err, core.ErrEmailTaken) && attempt == 0 {
			s.logger.Debug().Str("provider", opts.Provider.String()).Msg("email claimed by concurrent login, retrying lookup")
			continue
		}
		return user, err
	}
}

func (s *OAuthService) ensureLink(ctx context.Context, storage core.AuthStorage, opts core.OAuthUserOptions, userID string) error {
	_, err := storage.GetOAuthAccount(ctx, opts.Provider, opts.ProviderUserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrOAuthAccountNotFound) {
		return fmt.Errorf("failed to find oauth account: %w", err)
	}

	now := s.now()
	account := &core.OAuthAccount{
		ID:             uuid.NewString(),
		Provider:       opts.Provider,
		ProviderUserID: opts.ProviderUserID,
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := storage.CreateOAuthAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create oauth account: %w", err)
	}
	return nil
}

func (s *OAuthService) loadFactors(ctx context.Context, user *core.User) error {
	hasTOTP, err := s.storage.HasTOTPCredential(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to check totp: %w", err)
	}
	passkeys, err := s.storage.CountPasskeys(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to count passkeys: %w", err)
	}
	user.RegisteredTOTP = hasTOTP
	user.RegisteredPasskey = passkeys > 0
	return nil
}

func (s *OAuthService) createUser(ctx context.Context, opts core.OAuthUserOptions) (*core.User, error) {
	code, err := s.codes.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate recovery code: %w", err)
	}
	sealed, err := s.cipher.Seal(code)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt recovery code: %w", err)
	}

	now := s.now()
	user := &core.User{
		ID:                uuid.NewString(),
		Email:             opts.Email,
		Username:          opts.Username,
		EmailVerified:     true,
		ProfilePictureURL: opts.ProfilePictureURL,
		RecoveryCode:      sealed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.storage.Transaction(ctx, func(tx core.AuthStorage) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return s.ensureLink(ctx, tx, opts, user.ID)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
