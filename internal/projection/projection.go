// Package projection converts grid coordinates between a configured
// coordinate reference system and geographic longitude/latitude.
package projection

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom/proj"
)

// LonLat is the proj4 definition of geographic WGS-84 coordinates in degrees.
const LonLat = "+proj=longlat +datum=WGS84 +no_defs"

// Projection transforms between one CRS and longitude/latitude degrees.
type Projection struct {
	def        string
	geographic bool
	toLonLat   proj.Transformer
	fromLonLat proj.Transformer
}

// Parse builds a Projection from a proj4 definition string.
func Parse(def string) (*Projection, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		def = LonLat
	}
	if isGeographic(def) {
		return &Projection{def: def, geographic: true}, nil
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse projection %q: %w", def, err)
	}
	ll, err := proj.Parse(LonLat)
	if err != nil {
		return nil, fmt.Errorf("parse projection %q: %w", LonLat, err)
	}
	to, err := sr.NewTransform(ll)
	if err != nil {
		return nil, fmt.Errorf("projection %q to lon/lat: %w", def, err)
	}
	from, err := ll.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("projection lon/lat to %q: %w", def, err)
	}
	// Unknown projection names only surface when a transform runs.
	x, y, err := from(0, 0)
	if err == nil {
		_, _, err = to(x, y)
	}
	if err != nil {
		return nil, fmt.Errorf("projection %q: %w", def, err)
	}
	return &Projection{def: def, toLonLat: to, fromLonLat: from}, nil
}

// Definition returns the proj4 string the projection was parsed from.
func (p *Projection) Definition() string { return p.def }

// Geographic reports whether grid coordinates are longitude/latitude degrees.
func (p *Projection) Geographic() bool { return p.geographic }

// ToLonLat converts grid coordinates to longitude/latitude degrees.
func (p *Projection) ToLonLat(x, y float64) (lon, lat float64, err error) {
	if p.geographic {
		return x, y, nil
	}
	return p.toLonLat(x, y)
}

// FromLonLat converts longitude/latitude degrees to grid coordinates.
func (p *Projection) FromLonLat(lon, lat float64) (x, y float64, err error) {
	if p.geographic {
		return lon, lat, nil
	}
	return p.fromLonLat(lon, lat)
}

func isGeographic(def string) bool {
	for _, f := range strings.Fields(def) {
		switch f {
		case "+proj=longlat", "+proj=latlong", "+proj=lonlat", "+proj=latlon":
			return true
		}
	}
	return strings.EqualFold(def, "EPSG:4326")
}
