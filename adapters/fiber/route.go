package fiber

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/lborres/workdeck"
	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/services"
)

type Options struct {
	// Providers holds the OAuth client of every enabled provider.
	Providers map[core.Provider]OAuthConfig
	// StateSecret signs the OAuth state cookie. Required when Providers is
	// not empty.
	StateSecret string
	// AfterLoginPath is where a finished login lands unless a second factor
	// is pending. Defaults to "/".
	AfterLoginPath string
	Logger         *zerolog.Logger
}

type Adapter struct {
	app       *fiber.App
	handler   workdeck.AuthHandler
	config    workdeck.SessionConfig
	providers map[core.Provider]*oauthProvider
	state     *stateSigner
	afterPath string
	validate  *validator.Validate
	logger    zerolog.Logger
}

var _ workdeck.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App, opts Options) (*Adapter, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	afterPath := opts.AfterLoginPath
	if afterPath == "" {
		afterPath = "/"
	}

	a := &Adapter{
		app:       app,
		providers: make(map[core.Provider]*oauthProvider, len(opts.Providers)),
		afterPath: afterPath,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "http").Logger(),
	}

	if len(opts.Providers) > 0 {
		if opts.StateSecret == "" {
			return nil, fmt.Errorf("%w: oauth state secret", workdeck.ErrSecretRequired)
		}
		a.state = newStateSigner(opts.StateSecret)
	}
	for p, cfg := range opts.Providers {
		provider, err := newOAuthProvider(p, cfg)
		if err != nil {
			return nil, err
		}
		a.providers[p] = provider
	}

	return a, nil
}

func (a *Adapter) RegisterRoutes(handler workdeck.AuthHandler, basePath string, config workdeck.SessionConfig) error {
	a.handler = handler
	a.config = config

	api := a.app.Group(basePath)
	handlers := a.handlers()

	for _, ep := range handler.Endpoints() {
		h, ok := handlers[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("no fiber handler for operation %q (%s %s)", ep.Metadata.OperationID, ep.Method, ep.Path)
		}

		chain := []any{h}
		if ep.Metadata.Protected {
			chain = []any{a.requireAuth, h}
		}

		switch ep.Method {
		case http.MethodGet:
			api.Get(ep.Path, chain[0], chain[1:]...)
		case http.MethodPost:
			api.Post(ep.Path, chain[0], chain[1:]...)
		case http.MethodDelete:
			api.Delete(ep.Path, chain[0], chain[1:]...)
		default:
			return fmt.Errorf("unsupported method %s for %s", ep.Method, ep.Path)
		}
	}

	return nil
}

func (a *Adapter) handlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpOAuthStart:        a.oauthStart,
		services.OpOAuthCallback:     a.oauthCallback,
		services.OpGetSession:        a.session,
		services.OpSignOut:           a.signout,
		services.OpSignOutEverywhere: a.signoutEverywhere,
		services.OpListSessions:      a.listSessions,
		services.OpRevokeSession:     a.revokeSession,
		services.OpTOTPSetup:         a.totpSetup,
		services.OpTOTPRegister:      a.totpRegister,
		services.OpTOTPVerify:        a.totpVerify,
		services.OpTOTPDisconnect:    a.totpDisconnect,
		services.OpPasskeyDisconnect: a.passkeyDisconnect,
		services.OpRecoveryCode:      a.recoveryCode,
	}
}
