package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
)

type localsKey int

const authContextKey localsKey = iota

// AuthFrom returns the AuthContext stored by RequireSession, or nil on
// routes it does not guard.
func AuthFrom(c fiber.Ctx) *core.AuthContext {
	auth, _ := c.Locals(authContextKey).(*core.AuthContext)
	return auth
}

// RequireSession validates the caller's token and stores the resulting
// AuthContext for downstream handlers. Application routes outside the auth
// API use it the same way the protected auth endpoints do.
func (a *Adapter) RequireSession() fiber.Handler {
	return a.requireAuth
}

func (a *Adapter) requireAuth(c fiber.Ctx) error {
	token, fromCookie, err := a.extractToken(c)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	result, err := a.handler.ValidateSession(c.Context(), token)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	auth := core.NewAuthContext(token, result)
	if !auth.Authenticated() {
		if fromCookie {
			a.clearSessionCookie(c)
		}
		return a.handleAuthError(c, workdeck.ErrUnauthorized)
	}

	// keep the cookie in step with sliding expiry
	if fromCookie {
		a.setSessionCookie(c, token, auth.Session.ExpiresAt)
	}

	c.Locals(authContextKey, auth)
	return c.Next()
}

// RequireTwoFactor sends users whose session still owes a second factor to
// core.TwoFactorPath. It must run after RequireSession.
func (a *Adapter) RequireTwoFactor() fiber.Handler {
	return func(c fiber.Ctx) error {
		auth := AuthFrom(c)
		if !auth.Authenticated() {
			return a.handleAuthError(c, workdeck.ErrUnauthorized)
		}

		if target := core.Get2FARedirect(auth.User, ""); target != "" {
			return c.Redirect().Status(http.StatusSeeOther).To(target)
		}
		return c.Next()
	}
}
