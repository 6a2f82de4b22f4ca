package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"github.com/paulmach/orb"
)

// GridSpec is the configured output grid. A zero Bounds means "fit the grid
// around each sweep's coverage".
type GridSpec struct {
	CRS        string
	Bounds     orb.Bound
	Resolution float64
}

// HasBounds reports whether the grid is pinned to fixed bounds.
func (s GridSpec) HasBounds() bool {
	return s.Bounds != orb.Bound{}
}

// Resolve returns the grid for a sweep. Fixed bounds win; otherwise the grid
// is centred on center and extends halfX and halfY on either side, all in
// grid CRS units.
func (s GridSpec) Resolve(center orb.Point, halfX, halfY float64) (Grid, error) {
	if s.HasBounds() {
		return NewGrid(s.CRS, s.Bounds, s.Resolution)
	}
	if !finite(halfX) || !finite(halfY) || halfX <= 0 || halfY <= 0 {
		return Grid{}, fmt.Errorf("%w: extent %v x %v around %v", ErrInvalidGrid, halfX, halfY, center)
	}
	b := orb.Bound{
		Min: orb.Point{center[0] - halfX, center[1] - halfY},
		Max: orb.Point{center[0] + halfX, center[1] + halfY},
	}
	return NewGrid(s.CRS, b, s.Resolution)
}

// GeometryKey fingerprints everything a resampling plan depends on: the
// sweep's bin geometry, the output grid and the cutoff distance. Sweeps of
// the same site and scan strategy share a key, so their plans are reused.
func GeometryKey(s *Sweep, g Grid, maxDist float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|", s.Site.ID, g.CRS, g.Rows, g.Cols)
	writeFloats(h, s.Site.Lat, s.Site.Lon, s.Elevation, maxDist, g.DX, g.DY)
	ext := g.Extent()
	writeFloats(h, ext[:]...)
	writeFloats(h, s.Azimuths...)
	writeFloats(h, s.Ranges...)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func writeFloats(h hash.Hash, vs ...float64) {
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
}
