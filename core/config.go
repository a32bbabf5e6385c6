package core

import (
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Secret string

	Database AuthStorage

	HTTP HTTPAdapter

	// Optional config
	// CacheAdapter enables session caching. A cached validation can lag
	// behind passkey changes made outside workdeck and revocations made by
	// other instances for up to the cache TTL.
	CacheAdapter  Cache
	DisableCache  bool
	SessionConfig *SessionConfig
	BasePath      string
	GeoLocator    GeoLocator
	// GeoTimeout bounds the geolocation lookup made on every login.
	GeoTimeout time.Duration
	TOTPIssuer string
	Logger     *zerolog.Logger
}
