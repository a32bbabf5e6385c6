package core

// RequestContext carries the request facts the core needs. Adapters build it
// from the transport.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// AuthContext is the resolved session for one request. Middleware produces
// it once and handlers pass it into every operation that acts on the caller.
type AuthContext struct {
	Token   string
	Session *Session
	User    *User
}

// NewAuthContext builds an AuthContext from a valid validation result, or
// returns nil.
func NewAuthContext(token string, result *SessionValidationResult) *AuthContext {
	if !result.Valid() {
		return nil
	}
	return &AuthContext{Token: token, Session: result.Session, User: result.User}
}

func (a *AuthContext) Authenticated() bool {
	return a != nil && a.Session != nil && a.User != nil
}
