// Command rasterize regrids sweep JSON files offline and checks every
// product: grid shape, coverage, and that each valid cell carries a value
// present in the source moment.
//
// Usage:
//
//	go run ./cmd/rasterize \
//	  -res 0.005 -bounds=-98.5,34.5,-96,36.2 \
//	  -formats asc,png -out output \
//	  data/mock/ktlx_synthetic_sweep.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/config"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/observability"
	"github.com/couchcryptid/radar-regrid/internal/projection"
	"github.com/couchcryptid/radar-regrid/internal/raster"
	"github.com/couchcryptid/radar-regrid/internal/regrid"
)

// phase tracks pass/fail for one sweep file.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	crs := flag.String("crs", projection.LonLat, "output grid CRS (PROJ string or EPSG code)")
	bounds := flag.String("bounds", "", "output extent minx,miny,maxx,maxy; empty fits each sweep")
	res := flag.Float64("res", 0.01, "cell size in grid CRS units")
	maxDist := flag.String("max-distance", "1000", "resampling cutoff in metres, or inf")
	formats := flag.String("formats", "asc,png", "raster formats, or none")
	out := flag.String("out", "output", "raster output directory")
	nodata := flag.Float64("nodata", -9999, "raster no-data value")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.NewLogger(&config.Config{LogLevel: "info", LogFormat: *logFormat})

	opts, err := options(*crs, *bounds, *res, *maxDist, *formats, *out, *nodata)
	if err != nil {
		logger.Error("invalid flags", "error", err)
		os.Exit(2)
	}
	r, err := regrid.New(opts, observability.NewMetricsForTesting(), logger)
	if err != nil {
		logger.Error("failed to create regridder", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := 0
	for _, path := range flag.Args() {
		ph := run(ctx, r, path, logger)
		if ph.passed() {
			fmt.Printf("PASS %s\n", ph.name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", ph.name)
		for _, e := range ph.errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d sweeps failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func options(crs, bounds string, res float64, maxDist, formats, out string, nodata float64) (regrid.Options, error) {
	opts := regrid.Options{
		Grid:      domain.GridSpec{CRS: crs, Resolution: res},
		Workers:   runtime.NumCPU(),
		CacheSize: 4,
		NoData:    nodata,
		OutputDir: out,
	}
	if bounds != "" {
		b, err := config.ParseBounds(bounds)
		if err != nil {
			return opts, fmt.Errorf("-bounds: %w", err)
		}
		opts.Grid.Bounds = b
	}
	d, err := strconv.ParseFloat(maxDist, 64)
	if err != nil {
		return opts, fmt.Errorf("-max-distance: %w", err)
	}
	opts.MaxDistance = d
	if formats != "" && formats != "none" {
		w, err := raster.ParseFormats(formats)
		if err != nil {
			return opts, fmt.Errorf("-formats: %w", err)
		}
		opts.Writer = w
	}
	return opts, nil
}

func run(ctx context.Context, r *regrid.Regridder, path string, logger *slog.Logger) *phase {
	ph := &phase{name: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		ph.errorf("read: %v", err)
		return ph
	}
	info, _ := os.Stat(path)
	raw := domain.RawEvent{Value: data}
	if info != nil {
		raw.Timestamp = info.ModTime()
	}
	sweep, err := domain.ParseRawSweep(raw)
	if err != nil {
		ph.errorf("parse: %v", err)
		return ph
	}

	start := time.Now()
	rasters, err := r.Rasters(ctx, &sweep)
	if err != nil {
		ph.errorf("regrid: %v", err)
		return ph
	}
	for _, ras := range rasters {
		m, _ := sweep.Moment(ras.Name)
		checkRaster(ph, ras, m)
	}

	products, err := r.Regrid(ctx, &sweep)
	if err != nil {
		ph.errorf("write: %v", err)
		return ph
	}
	logger.Info("sweep regridded",
		"file", path, "sweep_id", sweep.ID, "products", len(products),
		"duration", time.Since(start).Round(time.Millisecond))
	for _, p := range products {
		logger.Info("product",
			"moment", p.Moment, "rows", p.Rows, "cols", p.Cols,
			"valid_cells", p.ValidCells, "coverage", p.Coverage, "files", p.Files)
	}
	return ph
}

// checkRaster verifies the grid shape and that nearest-neighbour output only
// repeats source values.
func checkRaster(ph *phase, ras *raster.Raster, m domain.Moment) {
	g := ras.Grid
	if len(ras.Cells) != g.Rows*g.Cols {
		ph.errorf("%s: %d cells for %dx%d grid", ras.Name, len(ras.Cells), g.Rows, g.Cols)
	}
	if g.Bounds.Max[0] <= g.Bounds.Min[0] || g.Bounds.Max[1] <= g.Bounds.Min[1] {
		ph.errorf("%s: empty extent %v", ras.Name, g.Bounds)
	}

	source := map[float64]bool{}
	for _, ray := range m.Data {
		for _, v := range ray {
			if !m.Missing(v) {
				source[v] = true
			}
		}
	}
	foreign := 0
	for _, c := range ras.Cells {
		if c.Valid && !source[c.Value] {
			foreign++
		}
	}
	if foreign > 0 {
		ph.errorf("%s: %d cells hold values absent from the sweep", ras.Name, foreign)
	}

	st := ras.Stats()
	if st.Valid == 0 {
		ph.errorf("%s: no valid cells", ras.Name)
	}
}
