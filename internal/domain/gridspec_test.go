package domain

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSpec_ResolveFixedBounds(t *testing.T) {
	spec := GridSpec{
		CRS:        lonLat,
		Bounds:     orb.Bound{Min: orb.Point{-99, 34}, Max: orb.Point{-96, 36}},
		Resolution: 0.5,
	}
	require.True(t, spec.HasBounds())

	// The centre is ignored when bounds are pinned.
	g, err := spec.Resolve(orb.Point{10, 10}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Cols)
	assert.Equal(t, 4, g.Rows)
	assert.Equal(t, [4]float64{-99, 34, -96, 36}, g.Extent())
}

func TestGridSpec_ResolveAroundCenter(t *testing.T) {
	spec := GridSpec{CRS: "+proj=merc", Resolution: 1000}
	require.False(t, spec.HasBounds())

	g, err := spec.Resolve(orb.Point{5000, -2000}, 10000, 5000)
	require.NoError(t, err)
	assert.Equal(t, 20, g.Cols)
	assert.Equal(t, 10, g.Rows)
	assert.Equal(t, [4]float64{-5000, -7000, 15000, 3000}, g.Extent())
}

func TestGridSpec_ResolveRejectsEmptyExtent(t *testing.T) {
	spec := GridSpec{CRS: lonLat, Resolution: 0.1}
	_, err := spec.Resolve(orb.Point{0, 0}, 0, 1)
	require.ErrorIs(t, err, ErrInvalidGrid)
}

func TestGeometryKey(t *testing.T) {
	s := testSweep()
	g, err := NewGrid(lonLat, orb.Bound{Min: orb.Point{-98, 35}, Max: orb.Point{-97, 36}}, 0.1)
	require.NoError(t, err)

	key := GeometryKey(&s, g, 1000)
	assert.Len(t, key, 32)

	// Scan time and data do not affect geometry.
	other := testSweep()
	other.ScanTime = other.ScanTime.Add(5 * time.Minute)
	other.Moments[0].Data[0][0] = 60
	assert.Equal(t, key, GeometryKey(&other, g, 1000))

	assert.NotEqual(t, key, GeometryKey(&s, g, 2000), "cutoff changes the plan")

	shifted := testSweep()
	shifted.Azimuths[1] += 0.5
	assert.NotEqual(t, key, GeometryKey(&shifted, g, 1000), "azimuths change the plan")

	g2, err := NewGrid(lonLat, orb.Bound{Min: orb.Point{-98, 35}, Max: orb.Point{-97, 36}}, 0.05)
	require.NoError(t, err)
	assert.NotEqual(t, key, GeometryKey(&s, g2, 1000), "grid changes the plan")
}

func TestNewProductEvent(t *testing.T) {
	p := RasterProduct{
		ID:          "dbzh-0123456789abcdef",
		SiteID:      "KTLX",
		Moment:      "DBZH",
		ProcessedAt: time.Date(2024, 5, 20, 22, 1, 0, 0, time.UTC),
	}
	ev, err := NewProductEvent(p)
	require.NoError(t, err)

	assert.Equal(t, []byte(p.ID), ev.Key)
	assert.Equal(t, "DBZH", ev.Headers["moment"])
	assert.Equal(t, "KTLX", ev.Headers["site_id"])
	assert.Equal(t, "2024-05-20T22:01:00Z", ev.Headers["processed_at"])
	assert.Contains(t, string(ev.Value), `"id":"dbzh-0123456789abcdef"`)
}
