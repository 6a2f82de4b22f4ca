// Package catalog records raster products in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/domain"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned by Get when no product has the requested ID.
var ErrNotFound = errors.New("product not found")

// DefaultLimit and MaxLimit bound List results.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store is a SQLite-backed product catalog. It implements
// pipeline.BatchLoader; loading the same product twice overwrites the row.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness verifies the database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

const upsertProduct = `
INSERT INTO products (
    id, sweep_id, site_id, site_name, moment, units, scan_time, elevation, crs,
    min_x, min_y, max_x, max_y, n_rows, n_cols, cell_size_x, cell_size_y, nodata,
    valid_cells, coverage, min_value, max_value, files, processed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    sweep_id = excluded.sweep_id,
    site_id = excluded.site_id,
    site_name = excluded.site_name,
    moment = excluded.moment,
    units = excluded.units,
    scan_time = excluded.scan_time,
    elevation = excluded.elevation,
    crs = excluded.crs,
    min_x = excluded.min_x,
    min_y = excluded.min_y,
    max_x = excluded.max_x,
    max_y = excluded.max_y,
    n_rows = excluded.n_rows,
    n_cols = excluded.n_cols,
    cell_size_x = excluded.cell_size_x,
    cell_size_y = excluded.cell_size_y,
    nodata = excluded.nodata,
    valid_cells = excluded.valid_cells,
    coverage = excluded.coverage,
    min_value = excluded.min_value,
    max_value = excluded.max_value,
    files = excluded.files,
    processed_at = excluded.processed_at`

// LoadBatch upserts products in one transaction.
func (s *Store) LoadBatch(ctx context.Context, products []domain.RasterProduct) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertProduct)
	if err != nil {
		return fmt.Errorf("prepare catalog upsert: %w", err)
	}
	defer stmt.Close()

	for i := range products {
		p := &products[i]
		files, err := json.Marshal(nonNil(p.Files))
		if err != nil {
			return fmt.Errorf("encode files of %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.SweepID, p.SiteID, p.SiteName, p.Moment, p.Units,
			p.ScanTime.UnixNano(), p.Elevation, p.CRS,
			p.Bounds[0], p.Bounds[1], p.Bounds[2], p.Bounds[3],
			p.Rows, p.Cols, p.CellSizeX, p.CellSizeY, p.NoData,
			p.ValidCells, p.Coverage, nullFloat(p.Min), nullFloat(p.Max),
			string(files), p.ProcessedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

// Filter narrows a List query. Zero fields match everything.
type Filter struct {
	SiteID string
	Moment string
	Since  time.Time // scan time, inclusive
	Until  time.Time // scan time, exclusive
	Limit  int
}

const selectProducts = `
SELECT id, sweep_id, site_id, site_name, moment, units, scan_time, elevation, crs,
       min_x, min_y, max_x, max_y, n_rows, n_cols, cell_size_x, cell_size_y, nodata,
       valid_cells, coverage, min_value, max_value, files, processed_at
FROM products`

// List returns products matching f, newest scan first.
func (s *Store) List(ctx context.Context, f Filter) ([]domain.RasterProduct, error) {
	var (
		where []string
		args  []any
	)
	if f.SiteID != "" {
		where = append(where, "site_id = ?")
		args = append(args, f.SiteID)
	}
	if f.Moment != "" {
		where = append(where, "moment = ?")
		args = append(args, f.Moment)
	}
	if !f.Since.IsZero() {
		where = append(where, "scan_time >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		where = append(where, "scan_time < ?")
		args = append(args, f.Until.UnixNano())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var q strings.Builder
	q.WriteString(selectProducts)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY scan_time DESC, id LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RasterProduct, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// Get returns the product with the given ID.
func (s *Store) Get(ctx context.Context, id string) (domain.RasterProduct, error) {
	row := s.db.QueryRowContext(ctx, selectProducts+" WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RasterProduct{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (domain.RasterProduct, error) {
	var (
		p                  domain.RasterProduct
		scanNs, processed  int64
		minValue, maxValue sql.NullFloat64
		files              string
	)
	err := sc.Scan(
		&p.ID, &p.SweepID, &p.SiteID, &p.SiteName, &p.Moment, &p.Units,
		&scanNs, &p.Elevation, &p.CRS,
		&p.Bounds[0], &p.Bounds[1], &p.Bounds[2], &p.Bounds[3],
		&p.Rows, &p.Cols, &p.CellSizeX, &p.CellSizeY, &p.NoData,
		&p.ValidCells, &p.Coverage, &minValue, &maxValue,
		&files, &processed,
	)
	if err != nil {
		return domain.RasterProduct{}, err
	}
	p.ScanTime = time.Unix(0, scanNs).UTC()
	p.ProcessedAt = time.Unix(0, processed).UTC()
	if minValue.Valid {
		p.Min = &minValue.Float64
	}
	if maxValue.Valid {
		p.Max = &maxValue.Float64
	}
	if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
		return domain.RasterProduct{}, fmt.Errorf("decode files of %s: %w", p.ID, err)
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
