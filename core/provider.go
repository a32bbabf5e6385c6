package core

import (
	"fmt"
	"strings"
)

// Provider is an OAuth identity provider. The set is closed; adding a
// provider means adding a constant here and to Providers.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

var Providers = []Provider{ProviderGoogle, ProviderGitHub}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// OAuthUserOptions is the already-authenticated profile returned by a
// provider.
type OAuthUserOptions struct {
	Provider          Provider `validate:"required,oneof=google github"`
	ProviderUserID    string   `validate:"required"`
	Email             string   `validate:"required,email"`
	Username          string
	ProfilePictureURL string `validate:"omitempty,url"`
}
