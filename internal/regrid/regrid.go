// Package regrid turns radar sweeps into raster products.
package regrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/cache"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/observability"
	"github.com/couchcryptid/radar-regrid/internal/projection"
	"github.com/couchcryptid/radar-regrid/internal/raster"
	"github.com/couchcryptid/radar-regrid/internal/resample"
	"github.com/paulmach/orb"
)

// Options configures a Regridder.
type Options struct {
	Grid        domain.GridSpec
	MaxDistance float64 // metres in the site plane; +Inf disables the cutoff
	Workers     int
	CacheSize   int
	NoData      float64

	// OutputDir and Writer control raster files. Either left empty means
	// products are computed but nothing is written.
	OutputDir string
	Writer    raster.Writer
}

// Regridder resamples every moment of a sweep onto the configured grid.
// Plans are cached per sweep geometry, so repeated scans of the same site
// and scan strategy skip the index build. Safe for concurrent use.
type Regridder struct {
	spec    domain.GridSpec
	proj    *projection.Projection
	opts    Options
	plans   *cache.LRU[string, *cellPlan]
	metrics *observability.Metrics
	logger  *slog.Logger
}

// cellPlan is a resampling plan over the grid cells that project into the
// site plane. cells maps plan positions back to grid cells and is nil when
// every cell projects.
type cellPlan struct {
	plan  *resample.Plan
	cells []int32
}

// New validates the options and parses the grid CRS.
func New(opts Options, metrics *observability.Metrics, logger *slog.Logger) (*Regridder, error) {
	if math.IsNaN(opts.MaxDistance) || opts.MaxDistance < 0 {
		return nil, fmt.Errorf("regrid: max distance %v", opts.MaxDistance)
	}
	if !(opts.Grid.Resolution > 0) {
		return nil, fmt.Errorf("regrid: resolution %v", opts.Grid.Resolution)
	}
	proj, err := projection.Parse(opts.Grid.CRS)
	if err != nil {
		return nil, err
	}
	opts.Grid.CRS = proj.Definition()
	opts.Workers = max(opts.Workers, 1)

	return &Regridder{
		spec:    opts.Grid,
		proj:    proj,
		opts:    opts,
		plans:   cache.New[string, *cellPlan](opts.CacheSize),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Regrid resamples every moment of s and returns one product per moment in
// sweep order.
func (r *Regridder) Regrid(ctx context.Context, s *domain.Sweep) ([]domain.RasterProduct, error) {
	start := time.Now()

	rasters, err := r.Rasters(ctx, s)
	if err != nil {
		return nil, err
	}

	dir := ""
	if r.opts.OutputDir != "" && r.opts.Writer != nil {
		dir = filepath.Join(r.opts.OutputDir, strings.ToLower(s.Site.ID))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w: %w", domain.ErrRetryable, err)
		}
	}

	products := make([]domain.RasterProduct, 0, len(rasters))
	for _, ras := range rasters {
		var files []string
		if dir != "" {
			files, err = r.opts.Writer.Write(ctx, dir, fileBase(s, ras.Name), ras)
			if err != nil {
				return nil, fmt.Errorf("write %s raster: %w: %w", ras.Name, domain.ErrRetryable, err)
			}
		}
		st := ras.Stats()
		if st.Collisions > 0 {
			r.logger.Warn("valid cells equal the raster nodata value",
				"sweep_id", s.ID, "moment", ras.Name,
				"nodata", ras.NoData, "cells", st.Collisions)
		}
		p := newProduct(s, ras, st, files)
		r.metrics.RasterCoverage.Observe(p.Coverage)
		products = append(products, p)

		r.logger.Debug("moment regridded",
			"sweep_id", s.ID, "moment", ras.Name,
			"valid_cells", p.ValidCells, "coverage", p.Coverage)
	}

	r.metrics.RegridDuration.Observe(time.Since(start).Seconds())
	return products, nil
}

// Rasters resamples every moment of s without writing anything.
func (r *Regridder) Rasters(ctx context.Context, s *domain.Sweep) ([]*raster.Raster, error) {
	g, err := r.Grid(s)
	if err != nil {
		return nil, err
	}
	cp, err := r.plan(s, g)
	if err != nil {
		return nil, err
	}

	out := make([]*raster.Raster, 0, len(s.Moments))
	for _, m := range s.Moments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := cp.apply(momentSamples(m), g.Len())
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", m.Name, err)
		}
		ras, err := raster.New(g, cells, r.opts.NoData, m.Name, m.Units)
		if err != nil {
			return nil, err
		}
		out = append(out, ras)
	}
	return out, nil
}

// Grid returns the output grid for s. Fixed bounds are used as configured;
// otherwise the grid covers the sweep's ground range around the site.
func (r *Regridder) Grid(s *domain.Sweep) (domain.Grid, error) {
	if r.spec.HasBounds() {
		return r.spec.Resolve(orb.Point{}, 0, 0)
	}
	b, err := r.coverage(s)
	if err != nil {
		return domain.Grid{}, err
	}
	return r.spec.Resolve(b.Center(), (b.Max[0]-b.Min[0])/2, (b.Max[1]-b.Min[1])/2)
}

// coverageSteps is the number of points traced around the range circle.
const coverageSteps = 72

// coverage returns the bound, in grid CRS units, of the circle swept by the
// farthest bin.
func (r *Regridder) coverage(s *domain.Sweep) (orb.Bound, error) {
	reach := s.MaxGroundRange()
	if !(reach > 0) {
		return orb.Bound{}, fmt.Errorf("%w: sweep %s has no ground range", domain.ErrInvalidGrid, s.ID)
	}
	frame := domain.NewSiteFrame(s.Site)

	ring := make(orb.MultiPoint, 0, coverageSteps)
	for k := 0; k < coverageSteps; k++ {
		theta := 2 * math.Pi * float64(k) / coverageSteps
		lon, lat := frame.Inverse(orb.Point{reach * math.Sin(theta), reach * math.Cos(theta)})
		x, y, err := r.proj.FromLonLat(lon, lat)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("project coverage of %s: %w", s.ID, err)
		}
		ring = append(ring, orb.Point{x, y})
	}
	return ring.Bound(), nil
}

// plan returns the cached plan for the sweep geometry on g, building it on a miss.
func (r *Regridder) plan(s *domain.Sweep, g domain.Grid) (*cellPlan, error) {
	key := domain.GeometryKey(s, g, r.opts.MaxDistance)
	if cp, ok := r.plans.Get(key); ok {
		r.metrics.ResamplerCache.WithLabelValues("hit").Inc()
		return cp, nil
	}
	r.metrics.ResamplerCache.WithLabelValues("miss").Inc()

	start := time.Now()
	res, err := resample.Build(domain.Georeference(s), r.opts.MaxDistance)
	if err != nil {
		return nil, fmt.Errorf("build resampler for %s: %w", s.ID, err)
	}

	query, cells := r.queryPoints(s.Site, g)
	plan, err := res.PlanConcurrent(query, r.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", s.ID, err)
	}

	cp := &cellPlan{plan: plan, cells: cells}
	r.plans.Put(key, cp)
	r.logger.Info("resampling plan built",
		"site", s.Site.ID,
		"bins", res.Len(),
		"cells", g.Len(),
		"covered", plan.Covered(),
		"duration", time.Since(start),
	)
	return cp, nil
}

// queryPoints maps grid cell centres into the site plane. Cells that fail to
// project are left out and reported through the returned index.
func (r *Regridder) queryPoints(site domain.Site, g domain.Grid) ([]orb.Point, []int32) {
	frame := domain.NewSiteFrame(site)
	centers := g.Centers()

	query := make([]orb.Point, 0, len(centers))
	var cells []int32
	for i, c := range centers {
		lon, lat, err := r.proj.ToLonLat(c[0], c[1])
		if err != nil || math.IsNaN(lon) || math.IsNaN(lat) {
			if cells == nil {
				cells = make([]int32, i, len(centers))
				for j := range cells {
					cells[j] = int32(j)
				}
			}
			continue
		}
		query = append(query, frame.Forward(lon, lat))
		if cells != nil {
			cells = append(cells, int32(i))
		}
	}
	return query, cells
}

func (cp *cellPlan) apply(values []resample.Sample, n int) ([]resample.Sample, error) {
	got, err := cp.plan.ApplySamples(values)
	if err != nil {
		return nil, err
	}
	if cp.cells == nil {
		return got, nil
	}
	out := make([]resample.Sample, n)
	for k, cell := range cp.cells {
		out[cell] = got[k]
	}
	return out, nil
}

// momentSamples flattens a moment ray-major, marking missing bins as NoData.
func momentSamples(m domain.Moment) []resample.Sample {
	n := 0
	for _, ray := range m.Data {
		n += len(ray)
	}
	out := make([]resample.Sample, 0, n)
	for _, ray := range m.Data {
		for _, v := range ray {
			if m.Missing(v) {
				out = append(out, resample.NoData)
				continue
			}
			out = append(out, resample.Sample{Value: v, Valid: true})
		}
	}
	return out
}

func newProduct(s *domain.Sweep, ras *raster.Raster, st raster.Stats, files []string) domain.RasterProduct {
	g := ras.Grid
	p := domain.RasterProduct{
		ID:          domain.ProductID(s.ID, ras.Name, g),
		SweepID:     s.ID,
		SiteID:      s.Site.ID,
		Moment:      ras.Name,
		Units:       ras.Units,
		ScanTime:    s.ScanTime,
		Elevation:   s.Elevation,
		CRS:         g.CRS,
		Bounds:      g.Extent(),
		Rows:        g.Rows,
		Cols:        g.Cols,
		CellSizeX:   g.DX,
		CellSizeY:   g.DY,
		NoData:      ras.NoData,
		ValidCells:  st.Valid,
		Coverage:    st.Coverage,
		Files:       files,
		ProcessedAt: domain.Now(),
	}
	if st.Valid > 0 {
		lo, hi := st.Min, st.Max
		p.Min, p.Max = &lo, &hi
	}
	return p
}

// fileBase names a product's files: site, scan time, elevation and moment.
func fileBase(s *domain.Sweep, moment string) string {
	return fmt.Sprintf("%s_%s_el%s_%s",
		strings.ToLower(s.Site.ID),
		s.ScanTime.UTC().Format("20060102T150405Z"),
		strings.ReplaceAll(fmt.Sprintf("%.1f", s.Elevation), ".", "p"),
		strings.ToLower(moment),
	)
}
