// Package raster assembles resampled grids and writes them to disk.
package raster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/radar-regrid/internal/domain"
	"github.com/couchcryptid/radar-regrid/internal/resample"
	"gonum.org/v1/gonum/floats"
)

// ErrUnknownFormat is returned by ParseFormats for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown raster format")

// Raster is one moment resampled onto a grid. Cells are row-major with row 0
// at the northern edge.
type Raster struct {
	Grid   domain.Grid
	Cells  []resample.Sample
	NoData float64
	Name   string
	Units  string
}

// New wraps resampled cells. It fails when the cell count does not match the grid.
func New(g domain.Grid, cells []resample.Sample, nodata float64, name, units string) (*Raster, error) {
	if len(cells) != g.Len() {
		return nil, fmt.Errorf("raster %s: %d cells for a %d x %d grid", name, len(cells), g.Rows, g.Cols)
	}
	return &Raster{Grid: g, Cells: cells, NoData: nodata, Name: name, Units: units}, nil
}

// At returns the cell at row r, column c.
func (r *Raster) At(row, col int) resample.Sample {
	return r.Cells[row*r.Grid.Cols+col]
}

// Values returns the cells as plain numbers with NoData cells replaced by the
// raster's NoData value.
func (r *Raster) Values() []float64 {
	out := make([]float64, len(r.Cells))
	for i, c := range r.Cells {
		if c.Valid {
			out[i] = c.Value
		} else {
			out[i] = r.NoData
		}
	}
	return out
}

// Stats summarises the valid cells of a raster.
type Stats struct {
	Valid    int
	Coverage float64
	Min, Max float64 // meaningful only when Valid > 0
	// Collisions counts valid cells whose value equals the NoData value.
	// Written rasters cannot tell those cells apart from NoData.
	Collisions int
}

// Stats computes the valid cell count, coverage and value range.
func (r *Raster) Stats() Stats {
	valid := make([]float64, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c.Valid {
			valid = append(valid, c.Value)
		}
	}
	st := Stats{Valid: len(valid)}
	for _, v := range valid {
		if v == r.NoData {
			st.Collisions++
		}
	}
	if len(r.Cells) > 0 {
		st.Coverage = float64(len(valid)) / float64(len(r.Cells))
	}
	if len(valid) > 0 {
		st.Min = floats.Min(valid)
		st.Max = floats.Max(valid)
	}
	return st
}

// Writer persists a raster under dir using base as the file stem and returns
// the paths it wrote.
type Writer interface {
	Write(ctx context.Context, dir, base string, r *Raster) ([]string, error)
}

// MultiWriter writes every raster with each of its writers in order.
type MultiWriter []Writer

func (m MultiWriter) Write(ctx context.Context, dir, base string, r *Raster) ([]string, error) {
	var files []string
	for _, w := range m {
		written, err := w.Write(ctx, dir, base, r)
		if err != nil {
			return files, err
		}
		files = append(files, written...)
	}
	return files, nil
}

// ParseFormats builds a writer from a comma-separated list of format names:
// "asc" (ESRI ASCII grid) and "png" (georeferenced preview).
func ParseFormats(s string) (MultiWriter, error) {
	var mw MultiWriter
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "asc", "aaigrid":
			mw = append(mw, ASCIIGridWriter{})
		case "png":
			mw = append(mw, PNGWriter{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
		}
	}
	if len(mw) == 0 {
		return nil, fmt.Errorf("%w: no formats in %q", ErrUnknownFormat, s)
	}
	return mw, nil
}
