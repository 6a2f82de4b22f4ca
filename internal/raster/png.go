package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

// PNGWriter writes a colour-mapped preview (.png) with an ESRI world file
// (.pgw). NoData cells are fully transparent.
type PNGWriter struct {
	// Ranges pins the colour scale per moment name. Moments without an entry
	// are scaled to their own min and max.
	Ranges map[string][2]float64
}

// DefaultRanges are the display ranges of common radar moments.
var DefaultRanges = map[string][2]float64{
	"DBZH":  {-10, 70},
	"DBZ":   {-10, 70},
	"TH":    {-10, 70},
	"VRADH": {-30, 30},
	"VRAD":  {-30, 30},
	"WRADH": {0, 10},
	"ZDR":   {-2, 6},
	"RHOHV": {0.7, 1.05},
	"KDP":   {-1, 5},
}

func (w PNGWriter) Write(ctx context.Context, dir, base string, r *Raster) ([]string, error) {
	img, err := w.render(ctx, r)
	if err != nil {
		return nil, err
	}

	pngPath := filepath.Join(dir, base+".png")
	f, err := os.Create(pngPath)
	if err != nil {
		return nil, fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(pngPath)
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close png: %w", err)
	}

	worldPath := filepath.Join(dir, base+".pgw")
	if err := os.WriteFile(worldPath, worldFile(r), 0o644); err != nil {
		return nil, fmt.Errorf("write world file: %w", err)
	}
	return []string{pngPath, worldPath}, nil
}

func (w PNGWriter) render(ctx context.Context, r *Raster) (*image.NRGBA, error) {
	lo, hi := w.scale(r)
	g := r.Grid
	img := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for row := 0; row < g.Rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < g.Cols; col++ {
			c := r.At(row, col)
			if !c.Valid {
				continue // zero NRGBA is transparent
			}
			img.SetNRGBA(col, row, ramp((c.Value-lo)/(hi-lo)))
		}
	}
	return img, nil
}

func (w PNGWriter) scale(r *Raster) (lo, hi float64) {
	ranges := w.Ranges
	if ranges == nil {
		ranges = DefaultRanges
	}
	if rg, ok := ranges[r.Name]; ok && rg[1] > rg[0] {
		return rg[0], rg[1]
	}
	st := r.Stats()
	if st.Valid == 0 || st.Max <= st.Min {
		return st.Min, st.Min + 1
	}
	return st.Min, st.Max
}

// rampStops is a blue-green-yellow-red scale.
var rampStops = []color.NRGBA{
	{R: 0x2c, G: 0x7b, B: 0xb6, A: 0xff},
	{R: 0x00, G: 0xa6, B: 0x5e, A: 0xff},
	{R: 0xff, G: 0xe0, B: 0x3b, A: 0xff},
	{R: 0xf4, G: 0x6d, B: 0x23, A: 0xff},
	{R: 0xd7, G: 0x19, B: 0x1c, A: 0xff},
}

// ramp maps t in [0, 1] onto the colour scale; values outside are clamped.
func ramp(t float64) color.NRGBA {
	switch {
	case math.IsNaN(t) || t <= 0:
		return rampStops[0]
	case t >= 1:
		return rampStops[len(rampStops)-1]
	}
	pos := t * float64(len(rampStops)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := rampStops[i], rampStops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5) }
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// worldFile returns the six-line affine transform anchored on the centre of
// the upper-left pixel.
func worldFile(r *Raster) []byte {
	g := r.Grid
	return fmt.Appendf(nil, "%s\n0\n0\n%s\n%s\n%s\n",
		formatFloat(g.DX, -1),
		formatFloat(-g.DY, -1),
		formatFloat(g.Bounds.Min[0]+g.DX/2, -1),
		formatFloat(g.Bounds.Max[1]-g.DY/2, -1),
	)
}
