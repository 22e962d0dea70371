package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// registry is the bucket existence/creation-time ledger and the
// multipart-upload-to-staging-directory mapping (spec.md §5: "the
// multipart-upload table is a mapping from UploadId to staging directory
// metadata"), backed by a small embedded-migration SQLite database — the
// one piece of persistent state that isn't just files under the storage
// root. Grounded on the teacher's pkg/core/server.go initSchema/
// withTransaction pattern.
type registry struct {
	db *sql.DB
}

// openRegistry opens (creating if necessary) the SQLite database at path
// and applies all embedded migrations in lexicographic order.
func openRegistry(ctx context.Context, path string) (*registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: serialize writers ourselves

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &registry{db: db}, nil
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	var paths []string
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk migrations: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content, readErr := migrationsFS.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", path, readErr)
		}
		slog.Debug("running migration", "path", path)
		if _, execErr := db.ExecContext(ctx, string(content)); execErr != nil {
			return fmt.Errorf("apply migration %s: %w", path, execErr)
		}
	}
	return nil
}

func (r *registry) Close() error { return r.db.Close() }

// withTransaction runs fn within a database transaction, rolling back on
// any returned error.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *registry) bucketExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&count)
	return count > 0, err
}

// createBucket inserts a new bucket row, returning false if it already
// existed.
func (r *registry) createBucket(ctx context.Context, name string, now time.Time) (created bool, err error) {
	err = withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO buckets(name, created_at) VALUES(?, ?)`, name, now)
		if execErr != nil {
			return execErr
		}
		rows, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		created = rows > 0
		return nil
	})
	return created, err
}

func (r *registry) deleteBucket(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name)
	return err
}

func (r *registry) listBuckets(ctx context.Context) ([]BucketInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, created_at FROM buckets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BucketInfo
	for rows.Next() {
		var b BucketInfo
		if err := rows.Scan(&b.Name, &b.Created); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// createMultipartUpload records a new upload-id-to-(bucket,key) mapping.
func (r *registry) createMultipartUpload(ctx context.Context, uploadID, bucket, key string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO multipart_uploads(upload_id, bucket, key, initiated) VALUES(?, ?, ?, ?)`,
		uploadID, bucket, key, now)
	return err
}

type multipartUploadRow struct {
	UploadID  string
	Bucket    string
	Key       string
	Initiated time.Time
}

func (r *registry) getMultipartUpload(ctx context.Context, uploadID string) (*multipartUploadRow, error) {
	var row multipartUploadRow
	err := r.db.QueryRowContext(ctx,
		`SELECT upload_id, bucket, key, initiated FROM multipart_uploads WHERE upload_id = ?`, uploadID,
	).Scan(&row.UploadID, &row.Bucket, &row.Key, &row.Initiated)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *registry) deleteMultipartUpload(ctx context.Context, uploadID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE upload_id = ?`, uploadID)
	return err
}

func (r *registry) listMultipartUploads(ctx context.Context, bucket string) ([]multipartUploadRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT upload_id, bucket, key, initiated FROM multipart_uploads WHERE bucket = ? ORDER BY key, upload_id`,
		bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []multipartUploadRow
	for rows.Next() {
		var row multipartUploadRow
		if err := rows.Scan(&row.UploadID, &row.Bucket, &row.Key, &row.Initiated); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
