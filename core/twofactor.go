package core

// TwoFactorPath is where users with an unverified second factor are sent.
const TwoFactorPath = "/auth/two-factor"

// Get2FARedirect returns TwoFactorPath when user has a registered factor that
// the current session has not verified, and defaultPath otherwise.
func Get2FARedirect(user *User, defaultPath string) string {
	if user == nil {
		return defaultPath
	}
	if user.HasSecondFactor() && !user.TwoFactorVerified {
		return TwoFactorPath
	}
	return defaultPath
}
