package domain

import (
	"context"
	"log/slog"
)

// SiteName looks up a human-readable place name for the radar site. It
// degrades to an empty name when geocoder is nil or the lookup fails.
func SiteName(ctx context.Context, site Site, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil {
		return ""
	}

	result, err := geocoder.ReverseGeocode(ctx, site.Lat, site.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"site_id", site.ID,
			"lat", site.Lat,
			"lon", site.Lon,
			"error", err,
		)
		return ""
	}
	if result.PlaceName != "" {
		return result.PlaceName
	}
	return result.FormattedAddress
}
