package catalog

import (
	"context"
	"database/sql"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
    id           TEXT PRIMARY KEY,
    sweep_id     TEXT NOT NULL,
    site_id      TEXT NOT NULL,
    site_name    TEXT NOT NULL DEFAULT '',
    moment       TEXT NOT NULL,
    units        TEXT NOT NULL DEFAULT '',
    scan_time    INTEGER NOT NULL,
    elevation    REAL NOT NULL,
    crs          TEXT NOT NULL,
    min_x        REAL NOT NULL,
    min_y        REAL NOT NULL,
    max_x        REAL NOT NULL,
    max_y        REAL NOT NULL,
    n_rows       INTEGER NOT NULL,
    n_cols       INTEGER NOT NULL,
    cell_size_x  REAL NOT NULL,
    cell_size_y  REAL NOT NULL,
    nodata       REAL NOT NULL,
    valid_cells  INTEGER NOT NULL,
    coverage     REAL NOT NULL,
    min_value    REAL,
    max_value    REAL,
    files        TEXT NOT NULL DEFAULT '[]',
    processed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS products_site_time ON products(site_id, scan_time);
CREATE INDEX IF NOT EXISTS products_moment_time ON products(moment, scan_time);
`

// EnsureSchema creates the products table and its indexes if they do not
// already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, productsSchema)
	return err
}
