package services

import (
	"fmt"
	"sort"

	"github.com/lborres/workdeck/core"
)

// Operation ids shared by every HTTP adapter.
const (
	OpOAuthStart        = "oauthStart"
	OpOAuthCallback     = "oauthCallback"
	OpGetSession        = "getSession"
	OpSignOut           = "signOut"
	OpSignOutEverywhere = "signOutEverywhere"
	OpListSessions      = "listSessions"
	OpRevokeSession     = "revokeSession"
	OpTOTPSetup         = "totpSetup"
	OpTOTPRegister      = "totpRegister"
	OpTOTPVerify        = "totpVerify"
	OpTOTPDisconnect    = "totpDisconnect"
	OpPasskeyDisconnect = "passkeyDisconnect"
	OpRecoveryCode      = "recoveryCode"
)

// BaseEndpoints returns framework-agnostic endpoint definitions
// for all core authentication endpoints.
//
// Adapters look up their handler by OperationID, so several frameworks can
// share the same table.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/oauth/:provider",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpOAuthStart,
				Description: "Redirect to the OAuth provider's consent screen",
			},
		},
		{
			Path:   "/oauth/:provider/callback",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpOAuthCallback,
				Description: "Complete the OAuth flow, link the account and open a session",
			},
		},
		{
			Path:   "/session",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpGetSession,
				Description: "Get the current user's session data",
				Protected:   true,
			},
		},
		{
			Path:   "/sign-out",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignOut,
				Description: "Sign out the current user and invalidate the session",
				Protected:   true,
			},
		},
		{
			Path:   "/sign-out-all",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignOutEverywhere,
				Description: "Invalidate every session of the current user",
				Protected:   true,
			},
		},
		{
			Path:   "/sessions",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpListSessions,
				Description: "List the current user's sessions with their status",
				Protected:   true,
			},
		},
		{
			Path:   "/sessions/:id",
			Method: "DELETE",
			Metadata: core.EndpointMetadata{
				OperationID: OpRevokeSession,
				Description: "Revoke one of the current user's sessions",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/totp/setup",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpTOTPSetup,
				Description: "Generate a TOTP secret and provisioning URI",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/totp",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpTOTPRegister,
				Description: "Confirm a TOTP code and store the secret",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/totp/verify",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpTOTPVerify,
				Description: "Verify a TOTP code for the current session",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/totp",
			Method: "DELETE",
			Metadata: core.EndpointMetadata{
				OperationID: OpTOTPDisconnect,
				Description: "Disconnect the user's TOTP setup",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/passkeys/:id",
			Method: "DELETE",
			Metadata: core.EndpointMetadata{
				OperationID: OpPasskeyDisconnect,
				Description: "Remove one of the user's passkeys",
				Protected:   true,
			},
		},
		{
			Path:   "/2fa/recovery-code",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpRecoveryCode,
				Description: "Reveal the user's recovery code",
				Protected:   true,
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a new registry with all base authentication endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	base := BaseEndpoints()
	for i := range base {
		// base endpoints are unique by construction
		_ = reg.register(&base[i])
	}

	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := endpointKey(ep)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	return nil
}

// RegisterPlugin registers additional endpoints. If any of them conflicts
// with a registered endpoint or with another in the batch, none are added.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		key := endpointKey(&endpoints[i])

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", endpoints[i].Method, endpoints[i].Path)
		}
		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", endpoints[i].Method, endpoints[i].Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[endpointKey(&ep)] = &ep
	}

	return nil
}

// Endpoints returns all registered endpoints ordered by path then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}
