package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/radar-regrid/internal/domain"
)

// Regridder resamples a parsed sweep into raster products.
type Regridder interface {
	Regrid(ctx context.Context, s *domain.Sweep) ([]domain.RasterProduct, error)
}

// SweepTransformer implements Transformer: parse, optional site geocoding,
// then regrid.
type SweepTransformer struct {
	regridder Regridder
	geocoder  domain.Geocoder
	logger    *slog.Logger
}

// NewTransformer creates a SweepTransformer. Pass a nil geocoder to disable
// site name enrichment.
func NewTransformer(regridder Regridder, geocoder domain.Geocoder, logger *slog.Logger) *SweepTransformer {
	return &SweepTransformer{
		regridder: regridder,
		geocoder:  geocoder,
		logger:    logger,
	}
}

func (t *SweepTransformer) Transform(ctx context.Context, raw domain.RawEvent) ([]domain.RasterProduct, error) {
	sweep, err := domain.ParseRawSweep(raw)
	if err != nil {
		return nil, err
	}

	products, err := t.regridder.Regrid(ctx, &sweep)
	if err != nil {
		return nil, fmt.Errorf("regrid sweep %s: %w", sweep.ID, err)
	}

	name := domain.SiteName(ctx, sweep.Site, t.geocoder, t.logger)
	for i := range products {
		products[i].SiteName = name
	}

	t.logger.Debug("sweep regridded",
		"sweep_id", sweep.ID,
		"site", sweep.Site.ID,
		"scan_time", sweep.ScanTime,
		"products", len(products),
	)
	return products, nil
}
