package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSiteName(t *testing.T) {
	site := Site{ID: testSiteID, Lat: 35.333, Lon: -97.278}

	t.Run("nil geocoder", func(t *testing.T) {
		assert.Empty(t, SiteName(context.Background(), site, nil, discardLogger()))
	})

	t.Run("place name preferred", func(t *testing.T) {
		g := &mockGeocoder{result: GeocodingResult{PlaceName: "Norman", FormattedAddress: "Norman, Oklahoma, United States"}}
		assert.Equal(t, "Norman", SiteName(context.Background(), site, g, discardLogger()))
		assert.Equal(t, 1, g.calls)
	})

	t.Run("falls back to formatted address", func(t *testing.T) {
		g := &mockGeocoder{result: GeocodingResult{FormattedAddress: "Cleveland County, Oklahoma"}}
		assert.Equal(t, "Cleveland County, Oklahoma", SiteName(context.Background(), site, g, discardLogger()))
	})

	t.Run("error degrades to empty", func(t *testing.T) {
		g := &mockGeocoder{err: errors.New("timeout")}
		assert.Empty(t, SiteName(context.Background(), site, g, discardLogger()))
	})
}
