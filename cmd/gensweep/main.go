// Command gensweep writes a synthetic single-elevation radar sweep with one
// convective cell and a uniform wind field. With -products-out it also runs
// the sweep through the regridder so downstream consumers get a matching
// product fixture.
//
// Usage:
//
//	go run ./cmd/gensweep \
//	  -out data/mock/ktlx_synthetic_sweep.json \
//	  -products-out data/mock/ktlx_synthetic_products.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/observability"
	"github.com/couchcryptid/radar-regrid/internal/projection"
	"github.com/couchcryptid/radar-regrid/internal/raster"
	"github.com/couchcryptid/radar-regrid/internal/regrid"
	"github.com/jonboulle/clockwork"
)

const nodata = -32768

var scanTime = time.Date(2024, time.May, 6, 22, 30, 12, 0, time.UTC)

// cell is a Gaussian reflectivity core in polar coordinates.
type cell struct {
	azimuth float64 // degrees
	rng     float64 // metres
	radius  float64 // metres
	peak    float64 // dBZ
}

type params struct {
	site      domain.Site
	elevation float64
	rays      int
	bins      int
	firstGate float64
	gate      float64
	storm     cell
	windSpeed float64 // m/s
	windDir   float64 // degrees the wind blows from
	seed      uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var p params
	flag.StringVar(&p.site.ID, "site", "KTLX", "radar site identifier")
	flag.Float64Var(&p.site.Lat, "lat", 35.3331, "site latitude")
	flag.Float64Var(&p.site.Lon, "lon", -97.2778, "site longitude")
	flag.Float64Var(&p.site.Alt, "alt", 370, "site altitude in metres")
	flag.Float64Var(&p.elevation, "elevation", 0.5, "sweep elevation angle in degrees")
	flag.IntVar(&p.rays, "rays", 360, "number of rays")
	flag.IntVar(&p.bins, "bins", 400, "number of range gates")
	flag.Float64Var(&p.firstGate, "first-gate", 2125, "range of the first gate centre in metres")
	flag.Float64Var(&p.gate, "gate", 250, "gate spacing in metres")
	flag.Float64Var(&p.storm.azimuth, "storm-az", 225, "storm core azimuth in degrees")
	flag.Float64Var(&p.storm.rng, "storm-range", 45000, "storm core range in metres")
	flag.Float64Var(&p.storm.radius, "storm-radius", 12000, "storm core radius in metres")
	flag.Float64Var(&p.storm.peak, "storm-peak", 62, "storm core reflectivity in dBZ")
	flag.Float64Var(&p.windSpeed, "wind-speed", 18, "environmental wind speed in m/s")
	flag.Float64Var(&p.windDir, "wind-dir", 240, "direction the wind blows from in degrees")
	flag.Uint64Var(&p.seed, "seed", 1, "noise seed")
	out := flag.String("out", "", "output path for the sweep JSON")
	productsOut := flag.String("products-out", "", "optional output path for the regridded product JSON")
	rasterDir := flag.String("raster-dir", "", "optional directory for raster files when -products-out is set")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if p.rays < 1 || p.bins < 1 || p.gate <= 0 {
		return fmt.Errorf("invalid geometry: %d rays x %d bins, gate %v", p.rays, p.bins, p.gate)
	}

	sweep := generate(p)
	if err := domain.ValidateSweep(sweep); err != nil {
		return err
	}
	if err := writeJSON(*out, sweep); err != nil {
		return fmt.Errorf("writing sweep: %w", err)
	}
	log.Printf("wrote sweep: %s (%d rays x %d bins)", *out, p.rays, p.bins)

	if *productsOut == "" {
		return nil
	}

	// Fixed clock so ProcessedAt is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(scanTime.Add(90 * time.Second)))
	defer domain.SetClock(nil)

	products, err := regridSweep(sweep, *rasterDir)
	if err != nil {
		return err
	}
	if err := writeJSON(*productsOut, products); err != nil {
		return fmt.Errorf("writing products: %w", err)
	}
	for _, pr := range products {
		log.Printf("%s: %dx%d, %d valid cells (%.1f%%)", pr.Moment, pr.Cols, pr.Rows, pr.ValidCells, 100*pr.Coverage)
	}
	return nil
}

func generate(p params) domain.Sweep {
	rng := rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15))

	azimuths := make([]float64, p.rays)
	step := 360 / float64(p.rays)
	for i := range azimuths {
		azimuths[i] = (float64(i) + 0.5) * step
	}
	ranges := make([]float64, p.bins)
	for j := range ranges {
		ranges[j] = p.firstGate + float64(j)*p.gate
	}

	dbz := make([][]float64, p.rays)
	vel := make([][]float64, p.rays)
	coreX, coreY := polarToXY(p.storm.azimuth, p.storm.rng)
	windTo := (p.windDir + 180) * math.Pi / 180
	u, v := p.windSpeed*math.Sin(windTo), p.windSpeed*math.Cos(windTo)

	for i, az := range azimuths {
		dbz[i] = make([]float64, p.bins)
		vel[i] = make([]float64, p.bins)
		a := az * math.Pi / 180
		radial := u*math.Sin(a) + v*math.Cos(a)
		for j, r := range ranges {
			x, y := polarToXY(az, r)
			d2 := (x-coreX)*(x-coreX) + (y-coreY)*(y-coreY)
			z := p.storm.peak*math.Exp(-d2/(2*p.storm.radius*p.storm.radius)) + rng.NormFloat64()*1.5

			if z < 5 {
				dbz[i][j] = nodata
				vel[i][j] = nodata
				continue
			}
			dbz[i][j] = round(z, 1)
			vel[i][j] = round(radial+rng.NormFloat64()*0.8, 1)
		}
	}

	s := domain.Sweep{
		Site:      p.site,
		ScanTime:  scanTime,
		Elevation: p.elevation,
		Azimuths:  azimuths,
		Ranges:    ranges,
		Moments: []domain.Moment{
			{Name: "DBZH", Units: "dBZ", NoData: domain.NoDataMarker(nodata), Data: dbz},
			{Name: "VRADH", Units: "m/s", NoData: domain.NoDataMarker(nodata), Data: vel},
		},
	}
	s.ID = domain.SweepID(s.Site.ID, s.ScanTime, s.Elevation)
	return s
}

func regridSweep(s domain.Sweep, rasterDir string) ([]domain.RasterProduct, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := regrid.Options{
		Grid:        domain.GridSpec{CRS: projection.LonLat, Resolution: 0.01},
		MaxDistance: 1000,
		Workers:     4,
		CacheSize:   1,
		NoData:      -9999,
	}
	if rasterDir != "" {
		opts.OutputDir = rasterDir
		opts.Writer = raster.MultiWriter{raster.ASCIIGridWriter{Precision: 1}, raster.PNGWriter{}}
	}
	r, err := regrid.New(opts, observability.NewMetricsForTesting(), logger)
	if err != nil {
		return nil, err
	}
	return r.Regrid(context.Background(), &s)
}

// polarToXY returns east/north offsets for a point on the ground plane.
func polarToXY(azimuth, rng float64) (x, y float64) {
	a := azimuth * math.Pi / 180
	return rng * math.Sin(a), rng * math.Cos(a)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
