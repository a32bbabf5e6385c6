package core

import "testing"

// Requirement: users with an unverified second factor go to the challenge; everyone else gets the default.
func TestGet2FARedirect(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{name: "nil user", user: nil, want: "/dashboard"},
		{name: "no factor, unverified", user: &User{}, want: "/dashboard"},
		{name: "no factor, verified", user: &User{TwoFactorVerified: true}, want: "/dashboard"},
		{name: "passkey, unverified", user: &User{RegisteredPasskey: true}, want: TwoFactorPath},
		{name: "totp, unverified", user: &User{RegisteredTOTP: true}, want: TwoFactorPath},
		{name: "both, unverified", user: &User{RegisteredTOTP: true, RegisteredPasskey: true}, want: TwoFactorPath},
		{name: "passkey, verified", user: &User{RegisteredPasskey: true, TwoFactorVerified: true}, want: "/dashboard"},
		{name: "stale aggregate flag ignored", user: &User{Registered2FA: true}, want: "/dashboard"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			got := Get2FARedirect(test.user, "/dashboard")

			// Assert
			if got != test.want {
				t.Errorf("Get2FARedirect() = %q, want %q", got, test.want)
			}
		})
	}
}
