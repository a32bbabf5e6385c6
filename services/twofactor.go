package services

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xlzd/gotp"

	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/crypto"
)

const (
	MsgTOTPDisconnected    = "You've successfully disconnected your TOTP setup!"
	MsgPasskeyDisconnected = "You've successfully removed your passkey!"
	MsgTOTPRegistered      = "You've successfully set up TOTP!"
	MsgTOTPVerified        = "Two-factor verification successful!"

	totpSecretLength = 32
	totpPeriod       = 30 // seconds
	defaultIssuer    = "Workdeck"
)

// TwoFactorService manages second factors and keeps the user's aggregate
// flag and the sessions' verification flags consistent with them.
type TwoFactorService struct {
	storage  core.AuthStorage
	sessions *SessionManager
	cipher   *crypto.Cipher
	issuer   string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewTwoFactorService(storage core.AuthStorage, sessions *SessionManager, cipher *crypto.Cipher, issuer string, logger zerolog.Logger) *TwoFactorService {
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &TwoFactorService{
		storage:  storage,
		sessions: sessions,
		cipher:   cipher,
		issuer:   issuer,
		logger:   logger.With().Str("component", "twofactor").Logger(),
		now:      time.Now,
	}
}

// GenerateTOTPSecret creates an enrollment secret. Nothing is stored until
// RegisterTOTP confirms a code for it.
func (s *TwoFactorService) GenerateTOTPSecret(auth *core.AuthContext) (*core.TOTPSetup, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	secret := gotp.RandomSecret(totpSecretLength)
	uri := gotp.NewDefaultTOTP(secret).ProvisioningUri(auth.User.Email, s.issuer)

	return &core.TOTPSetup{Secret: secret, URI: uri}, nil
}

// RegisterTOTP stores secret once code proves the authenticator holds it.
// The calling session counts as verified afterwards.
func (s *TwoFactorService) RegisterTOTP(ctx context.Context, auth *core.AuthContext, secret, code string) (*core.TwoFactorResult, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	secret, err := normalizeSecret(secret)
	if err != nil {
		return nil, err
	}
	step, ok := s.matchStep(secret, code)
	if !ok {
		return nil, core.ErrInvalidTOTPCode
	}

	sealed, err := s.cipher.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt totp secret: %w", err)
	}

	view := *auth.User
	err = s.storage.Transaction(ctx, func(tx core.AuthStorage) error {
		user, err := tx.LockUser(ctx, auth.User.ID)
		if err != nil {
			return err
		}

		exists, err := tx.HasTOTPCredential(ctx, user.ID)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrTOTPAlreadyRegistered
		}

		now := s.now()
		if err := tx.CreateTOTPCredential(ctx, &core.TOTPCredential{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			Secret:       sealed,
			LastUsedStep: step,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		if !user.Registered2FA {
			if err := tx.SetUserRegistered2FA(ctx, user.ID, true, now); err != nil {
				return err
			}
		}

		return tx.SetSessionTwoFactorVerified(ctx, auth.Session.ID, true)
	})
	if err != nil {
		return nil, translateTwoFactorError("failed to register totp", err)
	}

	s.sessions.ForgetUser(auth.User.ID)

	view.RegisteredTOTP = true
	view.TwoFactorVerified = true
	view.DeriveRegistered2FA()

	return &core.TwoFactorResult{User: &view, Message: MsgTOTPRegistered}, nil
}

// VerifyTOTP completes the second factor for the calling session.
func (s *TwoFactorService) VerifyTOTP(ctx context.Context, auth *core.AuthContext, code string) (*core.TwoFactorResult, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	cred, err := s.storage.GetTOTPCredential(ctx, auth.User.ID)
	if err != nil {
		return nil, translateTwoFactorError("failed to load totp", err)
	}

	secret, err := s.cipher.Open(cred.Secret)
	if err != nil {
		return nil, core.Internal("failed to decrypt totp secret", err)
	}
	step, ok := s.matchStep(secret, code)
	if !ok {
		return nil, core.ErrInvalidTOTPCode
	}
	fresh, err := s.storage.ConsumeTOTPStep(ctx, auth.User.ID, step)
	if err != nil {
		return nil, translateTwoFactorError("failed to record totp use", err)
	}
	if !fresh {
		s.logger.Warn().Str("userId", auth.User.ID).Msg("totp code reused")
		return nil, core.ErrInvalidTOTPCode
	}

	if err := s.sessions.SetTwoFactorVerified(ctx, auth.Session.ID); err != nil {
		return nil, err
	}

	view := *auth.User
	view.TwoFactorVerified = true
	view.DeriveRegistered2FA()

	return &core.TwoFactorResult{User: &view, Message: MsgTOTPVerified}, nil
}

// DisconnectTOTP removes the user's TOTP credential. When no passkey is left
// the user's aggregate flag and every session's verification flag are
// cleared in the same transaction.
func (s *TwoFactorService) DisconnectTOTP(ctx context.Context, auth *core.AuthContext) (*core.TwoFactorResult, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	view := *auth.User
	err := s.storage.Transaction(ctx, func(tx core.AuthStorage) error {
		user, err := tx.LockUser(ctx, auth.User.ID)
		if err != nil {
			return err
		}

		deleted, err := tx.DeleteTOTPCredential(ctx, user.ID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return core.ErrTOTPNotFound
		}

		passkeys, err := tx.CountPasskeys(ctx, user.ID)
		if err != nil {
			return err
		}

		view.RegisteredTOTP = false
		view.RegisteredPasskey = passkeys > 0

		if passkeys == 0 {
			view.TwoFactorVerified = false
			return s.clearSecondFactor(ctx, tx, user)
		}
		return nil
	})
	if err != nil {
		return nil, translateTwoFactorError("failed to disconnect totp", err)
	}

	s.sessions.ForgetUser(auth.User.ID)
	view.DeriveRegistered2FA()

	s.logger.Info().Str("userId", view.ID).Bool("registered2FA", view.Registered2FA).Msg("totp disconnected")

	return &core.TwoFactorResult{User: &view, Message: MsgTOTPDisconnected}, nil
}

// DisconnectPasskey removes one passkey, with the same propagation as
// DisconnectTOTP when it was the last factor.
func (s *TwoFactorService) DisconnectPasskey(ctx context.Context, auth *core.AuthContext, passkeyID string) (*core.TwoFactorResult, error) {
	if !auth.Authenticated() {
		return nil, core.ErrUnauthorized
	}
	if passkeyID == "" {
		return nil, core.InvalidInput("passkey id is required", nil)
	}

	view := *auth.User
	err := s.storage.Transaction(ctx, func(tx core.AuthStorage) error {
		user, err := tx.LockUser(ctx, auth.User.ID)
		if err != nil {
			return err
		}

		deleted, err := tx.DeletePasskey(ctx, user.ID, passkeyID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return core.ErrPasskeyNotFound
		}

		passkeys, err := tx.CountPasskeys(ctx, user.ID)
		if err != nil {
			return err
		}
		hasTOTP, err := tx.HasTOTPCredential(ctx, user.ID)
		if err != nil {
			return err
		}

		view.RegisteredPasskey = passkeys > 0
		view.RegisteredTOTP = hasTOTP

		if passkeys == 0 && !hasTOTP {
			view.TwoFactorVerified = false
			return s.clearSecondFactor(ctx, tx, user)
		}
		return nil
	})
	if err != nil {
		return nil, translateTwoFactorError("failed to disconnect passkey", err)
	}

	s.sessions.ForgetUser(auth.User.ID)
	view.DeriveRegistered2FA()

	return &core.TwoFactorResult{User: &view, Message: MsgPasskeyDisconnected}, nil
}

// clearSecondFactor runs inside a transaction once the user has no factor
// left.
func (s *TwoFactorService) clearSecondFactor(ctx context.Context, tx core.AuthStorage, user *core.User) error {
	if !user.Registered2FA {
		return nil
	}
	if err := tx.SetUserRegistered2FA(ctx, user.ID, false, s.now()); err != nil {
		return err
	}
	return tx.ClearUserTwoFactorVerified(ctx, user.ID)
}

// RecoveryCode reveals the user's recovery code. Users with a second factor
// must have verified it on this session.
func (s *TwoFactorService) RecoveryCode(ctx context.Context, auth *core.AuthContext) (string, error) {
	if !auth.Authenticated() {
		return "", core.ErrUnauthorized
	}
	if core.Get2FARedirect(auth.User, "") != "" {
		return "", core.ErrTwoFactorRequired
	}

	user, err := s.storage.GetUserByID(ctx, auth.User.ID)
	if err != nil {
		return "", translateTwoFactorError("failed to load user", err)
	}
	if user.RecoveryCode == "" {
		return "", core.InvalidState("no recovery code on file", nil)
	}

	code, err := s.cipher.Open(user.RecoveryCode)
	if err != nil {
		return "", core.Internal("failed to decrypt recovery code", err)
	}
	return code, nil
}

// matchStep accepts the current step and one step either side for clock
// drift, and returns the step the code belongs to.
func (s *TwoFactorService) matchStep(secret, code string) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return 0, false
	}

	totp := gotp.NewDefaultTOTP(secret)
	now := int(s.now().Unix())
	for _, drift := range []int{0, -totpPeriod, totpPeriod} {
		at := now + drift
		if totp.Verify(code, at) {
			return int64(at / totpPeriod), true
		}
	}
	return 0, false
}

// normalizeSecret rejects secrets gotp can't decode, since gotp panics on
// them.
func normalizeSecret(secret string) (string, error) {
	secret = strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if secret == "" {
		return "", core.ErrInvalidTOTPSecret
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret); err != nil {
		return "", core.ErrInvalidTOTPSecret
	}
	return secret, nil
}

func translateTwoFactorError(message string, err error) error {
	var statusErr *core.StatusError
	switch {
	case errors.As(err, &statusErr):
		return err
	case errors.Is(err, core.ErrTOTPNotFound),
		errors.Is(err, core.ErrTOTPAlreadyRegistered),
		errors.Is(err, core.ErrPasskeyNotFound),
		errors.Is(err, core.ErrUserNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", message, err)
	}
}
