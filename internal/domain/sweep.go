package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidSweep marks a sweep whose structure cannot be regridded.
	ErrInvalidSweep = errors.New("invalid sweep")

	// ErrRetryable marks a failure of the environment rather than the input,
	// such as a full disk. Retrying the same sweep later can succeed.
	ErrRetryable = errors.New("retryable")
)

// ParseRawSweep decodes a RawEvent's value into a Sweep and validates its
// shape. A missing scan time falls back to the message timestamp and a
// missing ID is derived from site, scan time and elevation.
func ParseRawSweep(raw RawEvent) (Sweep, error) {
	var s Sweep
	if err := json.Unmarshal(raw.Value, &s); err != nil {
		return Sweep{}, fmt.Errorf("parse raw sweep: %w", err)
	}

	s.Site.ID = strings.TrimSpace(s.Site.ID)
	if s.ScanTime.IsZero() {
		s.ScanTime = raw.Timestamp
	}
	s.ScanTime = s.ScanTime.UTC()

	if err := ValidateSweep(s); err != nil {
		return Sweep{}, err
	}
	if s.ID == "" {
		s.ID = SweepID(s.Site.ID, s.ScanTime, s.Elevation)
	}
	return s, nil
}

// ValidateSweep checks that every moment matches the ray × bin geometry and
// that the geometry itself is usable.
func ValidateSweep(s Sweep) error {
	if s.Site.ID == "" {
		return fmt.Errorf("%w: missing site id", ErrInvalidSweep)
	}
	if !finite(s.Site.Lat) || math.Abs(s.Site.Lat) > 90 || !finite(s.Site.Lon) || math.Abs(s.Site.Lon) > 180 {
		return fmt.Errorf("%w: site %s at (%v, %v)", ErrInvalidSweep, s.Site.ID, s.Site.Lat, s.Site.Lon)
	}
	if !finite(s.Site.Alt) {
		return fmt.Errorf("%w: site altitude %v", ErrInvalidSweep, s.Site.Alt)
	}
	if !finite(s.Elevation) || s.Elevation < -90 || s.Elevation > 90 {
		return fmt.Errorf("%w: elevation %v", ErrInvalidSweep, s.Elevation)
	}
	if len(s.Azimuths) == 0 || len(s.Ranges) == 0 {
		return fmt.Errorf("%w: %d rays x %d bins", ErrInvalidSweep, len(s.Azimuths), len(s.Ranges))
	}
	for i, az := range s.Azimuths {
		if !finite(az) {
			return fmt.Errorf("%w: azimuth %d is %v", ErrInvalidSweep, i, az)
		}
	}
	for i, r := range s.Ranges {
		if !finite(r) || r < 0 {
			return fmt.Errorf("%w: range %d is %v", ErrInvalidSweep, i, r)
		}
	}
	if len(s.Moments) == 0 {
		return fmt.Errorf("%w: no moments", ErrInvalidSweep)
	}

	seen := make(map[string]bool, len(s.Moments))
	for _, m := range s.Moments {
		if m.Name == "" {
			return fmt.Errorf("%w: moment without name", ErrInvalidSweep)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate moment %s", ErrInvalidSweep, m.Name)
		}
		seen[m.Name] = true

		if len(m.Data) != len(s.Azimuths) {
			return fmt.Errorf("%w: moment %s has %d rays, want %d", ErrInvalidSweep, m.Name, len(m.Data), len(s.Azimuths))
		}
		for i, ray := range m.Data {
			if len(ray) != len(s.Ranges) {
				return fmt.Errorf("%w: moment %s ray %d has %d bins, want %d", ErrInvalidSweep, m.Name, i, len(ray), len(s.Ranges))
			}
		}
	}
	return nil
}

// SweepID returns the deterministic ID of a sweep.
func SweepID(siteID string, scanTime time.Time, elevation float64) string {
	input := fmt.Sprintf("%s|%s|%.2f", siteID, scanTime.UTC().Format(time.RFC3339), elevation)
	hash := sha256.Sum256([]byte(input))
	return strings.ToLower(siteID) + "-" + hex.EncodeToString(hash[:8])
}

// ProductID returns the deterministic ID of a raster of one moment of a sweep
// on a grid.
func ProductID(sweepID, moment string, g Grid) string {
	input := fmt.Sprintf("%s|%s|%s|%d|%d|%g|%g|%g|%g", sweepID, moment, g.CRS, g.Rows, g.Cols,
		g.Bounds.Min[0], g.Bounds.Min[1], g.Bounds.Max[0], g.Bounds.Max[1])
	hash := sha256.Sum256([]byte(input))
	return strings.ToLower(moment) + "-" + hex.EncodeToString(hash[:8])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
