package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL,
    config_digest TEXT NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
    id       TEXT PRIMARY KEY,
    run_id   INTEGER NOT NULL REFERENCES runs(id),
    path     TEXT NOT NULL,
    seed     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS particles (
    image_id      TEXT NOT NULL REFERENCES images(id),
    idx           INTEGER NOT NULL,
    name          TEXT NOT NULL,
    class         TEXT NOT NULL,
    kind          TEXT NOT NULL,
    diameter      REAL NOT NULL,
    spline_length REAL NOT NULL,
    mask          TEXT NOT NULL,
    PRIMARY KEY (image_id, idx)
);
`

// Catalog is a run-wide SQLite index of generated images and particles.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir catalog dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// BeginRun registers a generation run and returns its id.
func (c *Catalog) BeginRun(ctx context.Context, name, configDigest string, created time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (name, config_digest, created_at) VALUES (?, ?, ?)`,
		name, configDigest, created.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// AddImage stores an image and its particle records in one transaction.
// Re-adding an image id replaces the previous rows.
func (c *Catalog) AddImage(ctx context.Context, runID int64, imageID, path string, seed uint64, records []Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM particles WHERE image_id = ?`, imageID); err != nil {
		return fmt.Errorf("clear particles: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO images (id, run_id, path, seed) VALUES (?, ?, ?, ?)`,
		imageID, runID, path, int64(seed)); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO particles (image_id, idx, name, class, kind, diameter, spline_length, mask)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        `, imageID, r.Index, r.Name, r.Class, r.Kind, r.Diameter, r.SplineLength, r.Mask); err != nil {
			return fmt.Errorf("insert particle %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

// ClassCounts returns the number of particles per class across all images.
func (c *Catalog) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT class, COUNT(*) FROM particles GROUP BY class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		counts[class] = n
	}
	return counts, rows.Err()
}

// Images returns the image ids of a run in insertion order.
func (c *Catalog) Images(ctx context.Context, runID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM images WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
