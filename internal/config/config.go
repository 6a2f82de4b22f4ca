package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/projection"
	"github.com/couchcryptid/radar-regrid/internal/raster"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/paulmach/orb"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Output grid. A zero GridBounds fits the grid around each sweep.
	GridCRS        string
	GridBounds     orb.Bound
	GridResolution float64

	// Resampling.
	RegridMaxDistance  float64 // metres; +Inf disables the cutoff
	RegridWorkers      int
	ResamplerCacheSize int

	// Raster output. An empty RasterFormats disables file output.
	OutputDir     string
	RasterFormats string
	RasterNoData  float64

	CatalogDSN string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	grid, err := parseGrid()
	if err != nil {
		return nil, err
	}

	maxDistance, err := parseFloat("REGRID_MAX_DISTANCE", "1000")
	if err != nil || math.IsNaN(maxDistance) || maxDistance < 0 {
		return nil, errors.New("invalid REGRID_MAX_DISTANCE: must be a non-negative number of metres or inf")
	}

	workers, err := parsePositiveInt("REGRID_WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("RESAMPLER_CACHE_SIZE", 32)
	if err != nil {
		return nil, err
	}

	formats := strings.TrimSpace(sharedcfg.EnvOrDefault("RASTER_FORMATS", "asc,png"))
	if strings.EqualFold(formats, "none") {
		formats = ""
	}
	if formats != "" {
		if _, err := raster.ParseFormats(formats); err != nil {
			return nil, fmt.Errorf("invalid RASTER_FORMATS: %w", err)
		}
	}

	nodata, err := parseFloat("RASTER_NODATA", "-9999")
	if err != nil || math.IsNaN(nodata) || math.IsInf(nodata, 0) {
		return nil, errors.New("invalid RASTER_NODATA: must be a finite number")
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-radar-sweeps"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "radar-raster-products"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "radar-regrid"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		GridCRS:        grid.crs,
		GridBounds:     grid.bounds,
		GridResolution: grid.resolution,

		RegridMaxDistance:  maxDistance,
		RegridWorkers:      workers,
		ResamplerCacheSize: cacheSize,

		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		RasterFormats: formats,
		RasterNoData:  nodata,

		CatalogDSN: sharedcfg.EnvOrDefault("CATALOG_DSN", "file:radar-regrid.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

type gridSettings struct {
	crs        string
	bounds     orb.Bound
	resolution float64
}

// parseGrid reads GRID_CRS, GRID_BOUNDS and GRID_RESOLUTION. The default
// resolution suits the default longitude/latitude grid.
func parseGrid() (gridSettings, error) {
	proj, err := projection.Parse(sharedcfg.EnvOrDefault("GRID_CRS", projection.LonLat))
	if err != nil {
		return gridSettings{}, fmt.Errorf("invalid GRID_CRS: %w", err)
	}

	res, err := parseFloat("GRID_RESOLUTION", "0.01")
	if err != nil || math.IsNaN(res) || math.IsInf(res, 0) || res <= 0 {
		return gridSettings{}, errors.New("invalid GRID_RESOLUTION: must be a positive number in grid CRS units")
	}

	var bounds orb.Bound
	if s := os.Getenv("GRID_BOUNDS"); s != "" {
		bounds, err = ParseBounds(s)
		if err != nil {
			return gridSettings{}, fmt.Errorf("invalid GRID_BOUNDS: %w", err)
		}
	}
	return gridSettings{crs: proj.Definition(), bounds: bounds, resolution: res}, nil
}

// ParseBounds reads "minx,miny,maxx,maxy".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("want minx,miny,maxx,maxy, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, fmt.Errorf("bad coordinate %q", p)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("empty extent %q", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func parseFloat(key, def string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(sharedcfg.EnvOrDefault(key, def)), 64)
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
