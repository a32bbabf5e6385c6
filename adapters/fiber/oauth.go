package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/services"
)

const (
	stateCookieName = "workdeck_oauth_state"
	stateTTL        = 10 * time.Minute
)

// OAuthConfig is the client registration of one provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint and APIBaseURL replace the provider's public URLs.
	Endpoint   *oauth2.Endpoint
	APIBaseURL string
}

type profileFunc func(ctx context.Context, client *http.Client, apiBase string) (core.OAuthUserOptions, error)

type oauthProvider struct {
	config  *oauth2.Config
	apiBase string
	profile profileFunc
}

func newOAuthProvider(p core.Provider, cfg OAuthConfig) (*oauthProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oauth client for %s is missing credentials", p)
	}

	provider := &oauthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}

	switch p {
	case core.ProviderGoogle:
		provider.config.Endpoint = endpoints.Google
		provider.apiBase = "https://www.googleapis.com"
		provider.profile = googleProfile
		if len(provider.config.Scopes) == 0 {
			provider.config.Scopes = []string{"openid", "email", "profile"}
		}
	case core.ProviderGitHub:
		provider.config.Endpoint = endpoints.GitHub
		provider.apiBase = "https://api.github.com"
		provider.profile = githubProfile
		if len(provider.config.Scopes) == 0 {
			provider.config.Scopes = []string{"read:user", "user:email"}
		}
	default:
		return nil, fmt.Errorf("%w: %q", workdeck.ErrUnknownProvider, p)
	}

	if cfg.Endpoint != nil {
		provider.config.Endpoint = *cfg.Endpoint
	}
	if cfg.APIBaseURL != "" {
		provider.apiBase = cfg.APIBaseURL
	}

	return provider, nil
}

func (a *Adapter) provider(c fiber.Ctx) (core.Provider, *oauthProvider, error) {
	p, err := core.ParseProvider(c.Params("provider"))
	if err != nil {
		return "", nil, err
	}
	provider, ok := a.providers[p]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s is not enabled", workdeck.ErrUnknownProvider, p)
	}
	return p, provider, nil
}

func (a *Adapter) oauthStart(c fiber.Ctx) error {
	p, provider, err := a.provider(c)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	nonce, signed, err := a.state.Issue(p)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(stateTTL / time.Second),
		Secure:   a.config.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect().Status(http.StatusFound).To(provider.config.AuthCodeURL(nonce))
}

func (a *Adapter) oauthCallback(c fiber.Ctx) error {
	p, provider, err := a.provider(c)
	if err != nil {
		return a.handleAuthError(c, err)
	}

	signed := c.Cookies(stateCookieName)
	c.Cookie(&fiber.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1, Expires: time.Unix(0, 0), HTTPOnly: true})

	if reason := c.Query("error"); reason != "" {
		return a.handleAuthError(c, core.Unauthorized("authorization was not granted", errors.New(reason)))
	}
	if err := a.state.Verify(signed, p, c.Query("state")); err != nil {
		return a.handleAuthError(c, err)
	}

	code := c.Query("code")
	if code == "" {
		return a.handleAuthError(c, core.InvalidInput("missing authorization code", nil))
	}

	ctx := c.Context()
	token, err := provider.config.Exchange(ctx, code)
	if err != nil {
		return a.handleAuthError(c, fmt.Errorf("%w: %v", core.ErrProviderExchange, err))
	}

	opts, err := provider.profile(ctx, provider.config.Client(ctx, token), provider.apiBase)
	if err != nil {
		return a.handleAuthError(c, err)
	}
	opts.Provider = p

	result, err := a.handler.AuthenticateOAuthUser(ctx, opts, requestContext(c))
	if err != nil {
		return a.handleAuthError(c, err)
	}

	a.setSessionCookie(c, result.Token, result.Session.ExpiresAt)

	return c.Redirect().Status(http.StatusFound).To(core.Get2FARedirect(result.User, a.afterPath))
}

func requestContext(c fiber.Ctx) core.RequestContext {
	ip := services.ClientIP(c.Get(fiber.HeaderXForwardedFor))
	if ip == "" {
		ip = c.IP()
	}
	return core.RequestContext{
		IPAddress: ip,
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func googleProfile(ctx context.Context, client *http.Client, apiBase string) (core.OAuthUserOptions, error) {
	var info googleUserInfo
	if err := getJSON(ctx, client, apiBase+"/oauth2/v2/userinfo", &info); err != nil {
		return core.OAuthUserOptions{}, err
	}
	if info.Email == "" || !info.VerifiedEmail {
		return core.OAuthUserOptions{}, core.ErrProviderEmail
	}

	return core.OAuthUserOptions{
		Provider:          core.ProviderGoogle,
		ProviderUserID:    info.ID,
		Email:             info.Email,
		Username:          info.Name,
		ProfilePictureURL: info.Picture,
	}, nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubProfile needs /user/emails since /user hides private addresses.
func githubProfile(ctx context.Context, client *http.Client, apiBase string) (core.OAuthUserOptions, error) {
	var user githubUser
	if err := getJSON(ctx, client, apiBase+"/user", &user); err != nil {
		return core.OAuthUserOptions{}, err
	}

	var emails []githubEmail
	if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
		return core.OAuthUserOptions{}, err
	}

	email := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			email = e.Email
			break
		}
		if email == "" {
			email = e.Email
		}
	}
	if email == "" {
		return core.OAuthUserOptions{}, core.ErrProviderEmail
	}

	return core.OAuthUserOptions{
		Provider:          core.ProviderGitHub,
		ProviderUserID:    strconv.FormatInt(user.ID, 10),
		Email:             email,
		Username:          user.Login,
		ProfilePictureURL: user.AvatarURL,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderProfile, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderProfile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", core.ErrProviderProfile, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderProfile, err)
	}
	return nil
}

type stateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// stateSigner issues the OAuth state. The nonce travels in the provider
// round trip; the signed claims holding it travel in a cookie.
type stateSigner struct {
	key []byte
	now func() time.Time
}

func newStateSigner(secret string) *stateSigner {
	return &stateSigner{key: []byte(secret), now: time.Now}
}

func (s *stateSigner) Issue(p core.Provider) (nonce, signed string, err error) {
	now := s.now()
	nonce = uuid.NewString()

	claims := &stateClaims{
		Provider: p.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return nonce, signed, nil
}

func (s *stateSigner) Verify(signed string, p core.Provider, nonce string) error {
	if signed == "" || nonce == "" {
		return workdeck.ErrInvalidOAuthState
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return workdeck.ErrInvalidOAuthState
	}

	if claims.Provider != p.String() || claims.ID != nonce {
		return workdeck.ErrInvalidOAuthState
	}
	return nil
}
