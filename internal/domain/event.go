package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Site is the location of a radar antenna.
type Site struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"` // degrees north
	Lon float64 `json:"lon"` // degrees east
	Alt float64 `json:"alt"` // metres above sea level
}

// Moment is one measured quantity of a sweep, e.g. reflectivity (DBZH).
type Moment struct {
	Name   string      `json:"name"`
	Units  string      `json:"units"`
	NoData *float64    `json:"nodata,omitempty"` // nil when the moment has no marker
	Data   [][]float64 `json:"data"`             // [ray][bin]
}

// Missing reports whether v marks a bin without a reading: NaN, or the
// moment's NoData marker when it has one. Without a marker every finite
// value, zero included, is a reading.
func (m Moment) Missing(v float64) bool {
	return math.IsNaN(v) || (m.NoData != nil && v == *m.NoData)
}

// NoDataMarker returns a pointer to v for Moment.NoData.
func NoDataMarker(v float64) *float64 { return &v }

// Sweep is a single elevation scan of one radar.
type Sweep struct {
	ID        string    `json:"id"`
	Site      Site      `json:"site"`
	ScanTime  time.Time `json:"scan_time"`
	Elevation float64   `json:"elevation"` // degrees
	Azimuths  []float64 `json:"azimuths"`  // degrees clockwise from north, one per ray
	Ranges    []float64 `json:"ranges"`    // bin centre slant range, metres
	Moments   []Moment  `json:"moments"`
}

// Bins returns the number of bins in the sweep (rays × range gates).
func (s *Sweep) Bins() int {
	return len(s.Azimuths) * len(s.Ranges)
}

// Moment returns the moment with the given name.
func (s *Sweep) Moment(name string) (Moment, bool) {
	for _, m := range s.Moments {
		if m.Name == name {
			return m, true
		}
	}
	return Moment{}, false
}

// RasterProduct describes one regridded moment. It is the payload published
// to the sink topic and the row stored in the product catalog.
type RasterProduct struct {
	ID        string    `json:"id"`
	SweepID   string    `json:"sweep_id"`
	SiteID    string    `json:"site_id"`
	SiteName  string    `json:"site_name,omitempty"`
	Moment    string    `json:"moment"`
	Units     string    `json:"units,omitempty"`
	ScanTime  time.Time `json:"scan_time"`
	Elevation float64   `json:"elevation"`

	CRS       string     `json:"crs"`
	Bounds    [4]float64 `json:"bounds"` // min x, min y, max x, max y
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	CellSizeX float64    `json:"cell_size_x"`
	CellSizeY float64    `json:"cell_size_y"`
	NoData    float64    `json:"nodata"`

	ValidCells int      `json:"valid_cells"`
	Coverage   float64  `json:"coverage"` // fraction of cells with data
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`

	Files       []string  `json:"files"`
	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is a serialized message ready for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// NewProductEvent serializes a product for the sink topic, keyed by product ID.
func NewProductEvent(p RasterProduct) (OutputEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize raster product: %w", err)
	}
	return OutputEvent{
		Key:   []byte(p.ID),
		Value: data,
		Headers: map[string]string{
			"site_id":      p.SiteID,
			"moment":       p.Moment,
			"processed_at": p.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
