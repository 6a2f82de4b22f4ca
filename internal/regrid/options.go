package regrid

import (
	"github.com/couchcryptid/radar-regrid/internal/config"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/raster"
)

// OptionsFromConfig maps service settings onto regridder options. An empty
// RasterFormats leaves Writer nil so no files are written.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Grid: domain.GridSpec{
			CRS:        cfg.GridCRS,
			Bounds:     cfg.GridBounds,
			Resolution: cfg.GridResolution,
		},
		MaxDistance: cfg.RegridMaxDistance,
		Workers:     cfg.RegridWorkers,
		CacheSize:   cfg.ResamplerCacheSize,
		NoData:      cfg.RasterNoData,
		OutputDir:   cfg.OutputDir,
	}
	if cfg.RasterFormats != "" {
		w, err := raster.ParseFormats(cfg.RasterFormats)
		if err != nil {
			return Options{}, err
		}
		opts.Writer = w
	}
	return opts, nil
}
