package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidGrid marks a grid definition that cannot be rasterised.
var ErrInvalidGrid = errors.New("invalid grid")

// maxGridCells caps the size of a single output raster.
const maxGridCells = 64 << 20

// Grid is a north-up raster grid. Bounds are the outer cell edges.
type Grid struct {
	CRS    string
	Bounds orb.Bound
	Rows   int
	Cols   int
	DX, DY float64
}

// NewGrid lays out square cells of size res over bounds. The upper-left
// corner is kept and the bounds grow east and south to a whole number of
// cells.
func NewGrid(crs string, bounds orb.Bound, res float64) (Grid, error) {
	if !finite(res) || res <= 0 {
		return Grid{}, fmt.Errorf("%w: resolution %v", ErrInvalidGrid, res)
	}
	for _, v := range []float64{bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1]} {
		if !finite(v) {
			return Grid{}, fmt.Errorf("%w: bounds %v", ErrInvalidGrid, bounds)
		}
	}
	w, h := bounds.Max[0]-bounds.Min[0], bounds.Max[1]-bounds.Min[1]
	if w <= 0 || h <= 0 {
		return Grid{}, fmt.Errorf("%w: empty bounds %v", ErrInvalidGrid, bounds)
	}

	// The epsilon keeps an exact multiple like 1.0/0.1 from gaining a cell.
	// The cap is checked in floating point so huge extents cannot wrap int.
	fc, fr := max(math.Ceil(w/res-1e-9), 1), max(math.Ceil(h/res-1e-9), 1)
	if !finite(fc) || !finite(fr) || fc*fr > maxGridCells {
		return Grid{}, fmt.Errorf("%w: %.0f x %.0f cells exceeds %d", ErrInvalidGrid, fr, fc, maxGridCells)
	}
	cols, rows := int(fc), int(fr)

	minX, maxY := bounds.Min[0], bounds.Max[1]
	return Grid{
		CRS: crs,
		Bounds: orb.Bound{
			Min: orb.Point{minX, maxY - float64(rows)*res},
			Max: orb.Point{minX + float64(cols)*res, maxY},
		},
		Rows: rows,
		Cols: cols,
		DX:   res,
		DY:   res,
	}, nil
}

// Len returns the number of cells.
func (g Grid) Len() int { return g.Rows * g.Cols }

// Centers returns the cell centres row-major: row 0 is the northern edge,
// columns run west to east.
func (g Grid) Centers() []orb.Point {
	xs := axis(g.Cols, g.Bounds.Min[0]+g.DX/2, g.Bounds.Max[0]-g.DX/2)
	ys := axis(g.Rows, g.Bounds.Max[1]-g.DY/2, g.Bounds.Min[1]+g.DY/2)

	pts := make([]orb.Point, 0, g.Len())
	for _, y := range ys {
		for _, x := range xs {
			pts = append(pts, orb.Point{x, y})
		}
	}
	return pts
}

// Cell returns the row and column containing p, or false when p is outside.
func (g Grid) Cell(p orb.Point) (row, col int, ok bool) {
	if !g.Bounds.Contains(p) {
		return 0, 0, false
	}
	col = min(int((p[0]-g.Bounds.Min[0])/g.DX), g.Cols-1)
	row = min(int((g.Bounds.Max[1]-p[1])/g.DY), g.Rows-1)
	return row, col, true
}

// Extent returns the bounds as min x, min y, max x, max y.
func (g Grid) Extent() [4]float64 {
	return [4]float64{g.Bounds.Min[0], g.Bounds.Min[1], g.Bounds.Max[0], g.Bounds.Max[1]}
}

func axis(n int, first, last float64) []float64 {
	if n == 1 {
		return []float64{first}
	}
	return floats.Span(make([]float64, n), first, last)
}
