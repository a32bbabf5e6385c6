package fiber

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
)

type sessionResponse struct {
	User     *core.User    `json:"user"`
	Session  *core.Session `json:"session"`
	Redirect string        `json:"redirect,omitempty"`
}

type registerTOTPRequest struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

type verifyTOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (a *Adapter) session(c fiber.Ctx) error {
	auth := AuthFrom(c)

	return c.Status(http.StatusOK).JSON(sessionResponse{
		User:     auth.User,
		Session:  auth.Session,
		Redirect: core.Get2FARedirect(auth.User, ""),
	})
}

func (a *Adapter) signout(c fiber.Ctx) error {
	auth := AuthFrom(c)

	if err := a.handler.SignOut(c.Context(), auth.Token); err != nil {
		return a.handleAuthError(c, err)
	}

	a.clearSessionCookie(c)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "signed out successfully",
	})
}

func (a *Adapter) signoutEverywhere(c fiber.Ctx) error {
	count, err := a.handler.SignOutEverywhere(c.Context(), AuthFrom(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}

	a.clearSessionCookie(c)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "signed out of all sessions",
		"count":   count,
	})
}

func (a *Adapter) listSessions(c fiber.Ctx) error {
	sessions, err := a.handler.ListSessions(c.Context(), AuthFrom(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"sessions": sessions})
}

func (a *Adapter) revokeSession(c fiber.Ctx) error {
	auth := AuthFrom(c)
	id := c.Params("id")

	if err := a.handler.RevokeSession(c.Context(), auth, id); err != nil {
		return a.handleAuthError(c, err)
	}

	if id == auth.Session.ID {
		a.clearSessionCookie(c)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) totpSetup(c fiber.Ctx) error {
	setup, err := a.handler.GenerateTOTPSecret(AuthFrom(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(setup)
}

func (a *Adapter) totpRegister(c fiber.Ctx) error {
	var input registerTOTPRequest
	if err := a.bind(c, &input); err != nil {
		return a.handleAuthError(c, err)
	}

	result, err := a.handler.RegisterTOTP(c.Context(), AuthFrom(c), input.Secret, input.Code)
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(result)
}

func (a *Adapter) totpVerify(c fiber.Ctx) error {
	var input verifyTOTPRequest
	if err := a.bind(c, &input); err != nil {
		return a.handleAuthError(c, err)
	}

	result, err := a.handler.VerifyTOTP(c.Context(), AuthFrom(c), input.Code)
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) totpDisconnect(c fiber.Ctx) error {
	result, err := a.handler.DisconnectTOTP(c.Context(), AuthFrom(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) passkeyDisconnect(c fiber.Ctx) error {
	result, err := a.handler.DisconnectPasskey(c.Context(), AuthFrom(c), c.Params("id"))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) recoveryCode(c fiber.Ctx) error {
	code, err := a.handler.RecoveryCode(c.Context(), AuthFrom(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"recoveryCode": code})
}

func (a *Adapter) bind(c fiber.Ctx, out any) error {
	if err := c.Bind().Body(out); err != nil {
		return core.InvalidInput("invalid request body", err)
	}
	if err := a.validate.Struct(out); err != nil {
		return core.InvalidInput("invalid request body", err)
	}
	return nil
}

// extractToken extracts the authentication token from the request.
// Checks Authorization header (Bearer token) first, then falls back to cookie.
func (a *Adapter) extractToken(c fiber.Ctx) (token string, fromCookie bool, err error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", false, workdeck.ErrInvalidAuthHeader
		}
		return strings.TrimSpace(token), false, nil
	}

	if token := c.Cookies(a.config.CookieName); token != "" {
		return token, true, nil
	}
	return "", false, workdeck.ErrMissingToken
}

func (a *Adapter) setSessionCookie(c fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     a.config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		Expires:  expiresAt,
		Secure:   a.config.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *Adapter) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   a.config.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// handleAuthError maps authentication errors to appropriate HTTP responses
func (a *Adapter) handleAuthError(c fiber.Ctx, err error) error {
	status, message, kind := mapError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(core.ErrorResponse{
		StatusCode: status,
		Message:    message,
		Kind:       kind,
	})
}

// mapError maps workdeck errors to a status code and a client-safe message.
func mapError(err error) (int, string, string) {
	var statusErr *core.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, statusErr.Message, statusErr.Kind.String()
	}

	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		return status, "internal server error", core.KindInternal.String()
	}
	return status, err.Error(), ""
}

// mapErrorToStatus maps workdeck sentinel errors to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, workdeck.ErrMissingToken),
		errors.Is(err, workdeck.ErrInvalidAuthHeader),
		errors.Is(err, workdeck.ErrUnauthorized),
		errors.Is(err, workdeck.ErrInvalidOAuthState),
		errors.Is(err, workdeck.ErrInvalidTOTPCode):
		return http.StatusUnauthorized

	case errors.Is(err, workdeck.ErrTwoFactorRequired):
		return http.StatusForbidden

	case errors.Is(err, workdeck.ErrSessionNotFound),
		errors.Is(err, workdeck.ErrUserNotFound),
		errors.Is(err, core.ErrPasskeyNotFound):
		return http.StatusNotFound

	case errors.Is(err, workdeck.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, workdeck.ErrUnknownProvider),
		errors.Is(err, workdeck.ErrTOTPNotFound),
		errors.Is(err, core.ErrTOTPAlreadyRegistered),
		errors.Is(err, core.ErrInvalidTOTPSecret),
		errors.Is(err, core.ErrProviderEmail):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrProviderExchange),
		errors.Is(err, core.ErrProviderProfile):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
