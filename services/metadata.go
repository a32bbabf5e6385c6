package services

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"

	"github.com/lborres/workdeck/core"
)

const (
	unknownBrowser  = "Unknown Browser"
	unknownDevice   = "Unknown Device"
	unknownOS       = "Unknown OS"
	unknownLocation = "Unknown"
	localhost       = "Localhost"

	defaultGeoTimeout = 2 * time.Second
)

// MetadataResolver derives session metadata from the request. Geolocation is
// best effort: a slow or failing lookup yields "Unknown" and never an error.
type MetadataResolver struct {
	geo     core.GeoLocator // optional
	timeout time.Duration
	logger  zerolog.Logger
}

func NewMetadataResolver(geo core.GeoLocator, timeout time.Duration, logger zerolog.Logger) *MetadataResolver {
	if timeout <= 0 {
		timeout = defaultGeoTimeout
	}
	return &MetadataResolver{
		geo:     geo,
		timeout: timeout,
		logger:  logger.With().Str("component", "metadata").Logger(),
	}
}

func (r *MetadataResolver) Resolve(ctx context.Context, rc core.RequestContext) core.SessionMetadata {
	ua := useragent.Parse(rc.UserAgent)
	ip := ClientIP(rc.IPAddress)

	return core.SessionMetadata{
		Browser:   orDefault(ua.Name, unknownBrowser),
		Device:    orDefault(ua.Device, unknownDevice),
		OS:        orDefault(ua.OS, unknownOS),
		Location:  r.locate(ctx, ip),
		IPAddress: ip,
	}
}

func (r *MetadataResolver) locate(ctx context.Context, ip string) string {
	if isLoopback(ip) {
		return localhost
	}
	if r.geo == nil || ip == "" {
		return unknownLocation
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := r.geo.Locate(ctx, ip)
	if err != nil || loc == nil {
		r.logger.Warn().Err(err).Str("ip", ip).Msg("geolocation failed, using fallback")
		return unknownLocation
	}

	return fmt.Sprintf("%s, %s", orDefault(loc.City, unknownLocation), orDefault(loc.Country, unknownLocation))
}

// ClientIP picks the first address of an X-Forwarded-For style list.
func ClientIP(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(first)
}

func isLoopback(ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
