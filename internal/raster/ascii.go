package raster

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ASCIIGridWriter writes ESRI ASCII grids (.asc). Rows are written north to
// south, so the grid's row-major cell order maps straight onto the file.
type ASCIIGridWriter struct {
	// Precision is the number of decimals per cell. Zero or negative writes
	// the shortest form that round-trips.
	Precision int
}

func (w ASCIIGridWriter) Write(ctx context.Context, dir, base string, r *Raster) ([]string, error) {
	path := filepath.Join(dir, base+".asc")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create ascii grid: %w", err)
	}

	if err := w.encode(ctx, f, r); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close ascii grid: %w", err)
	}
	return []string{path}, nil
}

func (w ASCIIGridWriter) encode(ctx context.Context, f *os.File, r *Raster) error {
	g := r.Grid
	bw := bufio.NewWriter(f)

	fmt.Fprintf(bw, "ncols %d\n", g.Cols)
	fmt.Fprintf(bw, "nrows %d\n", g.Rows)
	fmt.Fprintf(bw, "xllcorner %s\n", formatFloat(g.Bounds.Min[0], -1))
	fmt.Fprintf(bw, "yllcorner %s\n", formatFloat(g.Bounds.Min[1], -1))
	if g.DX == g.DY {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(g.DX, -1))
	} else {
		fmt.Fprintf(bw, "dx %s\n", formatFloat(g.DX, -1))
		fmt.Fprintf(bw, "dy %s\n", formatFloat(g.DY, -1))
	}
	nodata := formatFloat(r.NoData, -1)
	fmt.Fprintf(bw, "NODATA_value %s\n", nodata)

	prec := w.Precision
	if prec <= 0 {
		prec = -1
	}
	buf := make([]byte, 0, 32)
	for row := 0; row < g.Rows; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			c := r.At(row, col)
			if !c.Valid {
				bw.WriteString(nodata)
				continue
			}
			buf = strconv.AppendFloat(buf[:0], c.Value, 'f', prec, 64)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write ascii grid: %w", err)
	}
	return nil
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
