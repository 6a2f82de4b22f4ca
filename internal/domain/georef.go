package domain

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadius is the mean earth radius in metres.
	EarthRadius = 6371000.0

	// EffectiveRadiusFactor scales the earth radius to account for standard
	// atmospheric refraction of the radar beam.
	EffectiveRadiusFactor = 4.0 / 3.0
)

// BeamGeometry returns the ground distance along the earth's surface and the
// height above the antenna of a bin at slant range r (metres) and elevation
// elevDeg (degrees).
func BeamGeometry(r, elevDeg float64) (ground, height float64) {
	ka := EffectiveRadiusFactor * EarthRadius
	theta := toRad(elevDeg)
	height = math.Sqrt(r*r+ka*ka+2*r*ka*math.Sin(theta)) - ka
	ground = ka * math.Asin(r*math.Cos(theta)/(ka+height))
	return ground, height
}

// Georeference places every bin of the sweep on the site plane. The result
// has one point per bin, ray-major (index i*len(Ranges)+j), in metres east
// and north of the antenna.
func Georeference(s *Sweep) []orb.Point {
	ground := make([]float64, len(s.Ranges))
	for j, r := range s.Ranges {
		ground[j], _ = BeamGeometry(r, s.Elevation)
	}

	pts := make([]orb.Point, 0, s.Bins())
	for _, az := range s.Azimuths {
		sin, cos := math.Sincos(toRad(az))
		for _, g := range ground {
			pts = append(pts, orb.Point{g * sin, g * cos})
		}
	}
	return pts
}

// MaxGroundRange returns the ground distance of the farthest bin.
func (s *Sweep) MaxGroundRange() float64 {
	var maxGround float64
	for _, r := range s.Ranges {
		if g, _ := BeamGeometry(r, s.Elevation); g > maxGround {
			maxGround = g
		}
	}
	return maxGround
}

// SiteFrame converts between geographic coordinates and the plane tangent at
// a radar site (spherical azimuthal equidistant projection, metres).
type SiteFrame struct {
	lon0, lat0       float64 // radians
	sinLat0, cosLat0 float64
}

// NewSiteFrame returns the frame centred on site.
func NewSiteFrame(site Site) SiteFrame {
	lat0 := toRad(site.Lat)
	return SiteFrame{
		lon0:    toRad(site.Lon),
		lat0:    lat0,
		sinLat0: math.Sin(lat0),
		cosLat0: math.Cos(lat0),
	}
}

// Forward maps (lon, lat) in degrees to plane coordinates in metres.
func (f SiteFrame) Forward(lon, lat float64) orb.Point {
	phi := toRad(lat)
	dLon := toRad(lon) - f.lon0
	sinPhi, cosPhi := math.Sincos(phi)
	sinDLon, cosDLon := math.Sincos(dLon)

	// Haversine central angle; stable for the short distances of a radar sweep.
	h := math.Pow(math.Sin((phi-f.lat0)/2), 2) + f.cosLat0*cosPhi*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	if c == 0 {
		return orb.Point{0, 0}
	}

	az := math.Atan2(sinDLon*cosPhi, f.cosLat0*sinPhi-f.sinLat0*cosPhi*cosDLon)
	d := EarthRadius * c
	return orb.Point{d * math.Sin(az), d * math.Cos(az)}
}

// Inverse maps plane coordinates in metres back to (lon, lat) in degrees.
func (f SiteFrame) Inverse(p orb.Point) (lon, lat float64) {
	c := math.Hypot(p[0], p[1]) / EarthRadius
	if c == 0 {
		return toDeg(f.lon0), toDeg(f.lat0)
	}
	az := math.Atan2(p[0], p[1])
	sinC, cosC := math.Sincos(c)

	phi := math.Asin(f.sinLat0*cosC + f.cosLat0*sinC*math.Cos(az))
	lambda := f.lon0 + math.Atan2(math.Sin(az)*sinC*f.cosLat0, cosC-f.sinLat0*math.Sin(phi))
	return normLon(toDeg(lambda)), toDeg(phi)
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// normLon wraps a longitude into [-180, 180).
func normLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
