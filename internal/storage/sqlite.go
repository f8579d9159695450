package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the SQLite asset store.
type DB struct {
	db *sql.DB
}

var _ AssetStore = (*DB)(nil)

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			modify_time INTEGER NOT NULL,
			feature BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS video_frames (
			path TEXT NOT NULL,
			frame_time INTEGER NOT NULL,
			modify_time INTEGER NOT NULL,
			feature BLOB NOT NULL,
			PRIMARY KEY (path, frame_time)
		);
	`
	_, err := db.Exec(schema)
	return err
}

// ImageByPath returns the image stored under path, or nil.
func (d *DB) ImageByPath(ctx context.Context, path string) (*ImageRecord, error) {
	var rec ImageRecord
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT id, path, modify_time, feature FROM images WHERE path = ?`, path,
	).Scan(&rec.ID, &rec.Path, &rec.ModifyTime, &blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying image %s: %w", path, err)
	}
	if rec.Feature, err = decodeFeature(blob); err != nil {
		return nil, fmt.Errorf("image %s: %w", path, err)
	}
	return &rec, nil
}

// ImageModifyTime returns the stored modify time of the image at path.
func (d *DB) ImageModifyTime(ctx context.Context, path string) (int64, bool, error) {
	return d.modifyTime(ctx, `SELECT modify_time FROM images WHERE path = ?`, path)
}

// VideoModifyTime returns the modify time recorded on the video's frames.
func (d *DB) VideoModifyTime(ctx context.Context, path string) (int64, bool, error) {
	return d.modifyTime(ctx, `SELECT modify_time FROM video_frames WHERE path = ? LIMIT 1`, path)
}

func (d *DB) modifyTime(ctx context.Context, query, path string) (int64, bool, error) {
	var mt int64
	err := d.db.QueryRowContext(ctx, query, path).Scan(&mt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying modify time of %s: %w", path, err)
	}
	return mt, true, nil
}

// InsertImage adds an image record and returns its id.
func (d *DB) InsertImage(ctx context.Context, path string, modifyTime int64, feature []float32) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO images (path, modify_time, feature) VALUES (?, ?, ?)`,
		path, modifyTime, encodeFeature(feature))
	if err != nil {
		return 0, fmt.Errorf("inserting image %s: %w", path, err)
	}
	return res.LastInsertId()
}

// DeleteImage removes the image stored under path.
func (d *DB) DeleteImage(ctx context.Context, path string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM images WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting image %s: %w", path, err)
	}
	return nil
}

// ListImages returns every image with its feature, ordered by id.
func (d *DB) ListImages(ctx context.Context) ([]ImageRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, path, modify_time, feature FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var recs []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.ModifyTime, &blob); err != nil {
			return nil, err
		}
		if rec.Feature, err = decodeFeature(blob); err != nil {
			return nil, fmt.Errorf("image %d: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ImageFeature returns the feature of image id, or nil if there is none.
func (d *DB) ImageFeature(ctx context.Context, id int64) ([]float32, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx, `SELECT feature FROM images WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying image %d: %w", id, err)
	}
	return decodeFeature(blob)
}

// ImagePath returns the path of image id, or "" if there is none.
func (d *DB) ImagePath(ctx context.Context, id int64) (string, error) {
	var path string
	err := d.db.QueryRowContext(ctx, `SELECT path FROM images WHERE id = ?`, id).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("querying image %d: %w", id, err)
	}
	return path, nil
}

// InsertVideoFrames replaces the frames of path in a single transaction.
func (d *DB) InsertVideoFrames(ctx context.Context, path string, modifyTime int64, frames []Frame) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM video_frames WHERE path = ?`, path); err != nil {
		return fmt.Errorf("clearing frames of %s: %w", path, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO video_frames (path, frame_time, modify_time, feature)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing frame insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.ExecContext(ctx, path, f.Time, modifyTime, encodeFeature(f.Feature)); err != nil {
			return fmt.Errorf("inserting frame %d of %s: %w", f.Time, path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing frames of %s: %w", path, err)
	}
	return nil
}

// DeleteVideo removes every frame of path.
func (d *DB) DeleteVideo(ctx context.Context, path string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM video_frames WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting video %s: %w", path, err)
	}
	return nil
}

// ListVideoPaths returns the distinct video paths in path order.
func (d *DB) ListVideoPaths(ctx context.Context) ([]string, error) {
	return d.queryPaths(ctx, `SELECT DISTINCT path FROM video_frames ORDER BY path`)
}

// VideoFrames returns the frames of path ordered by frame time.
func (d *DB) VideoFrames(ctx context.Context, path string) ([]Frame, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT frame_time, feature FROM video_frames WHERE path = ? ORDER BY frame_time`, path)
	if err != nil {
		return nil, fmt.Errorf("querying frames of %s: %w", path, err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var blob []byte
		if err := rows.Scan(&f.Time, &blob); err != nil {
			return nil, err
		}
		if f.Feature, err = decodeFeature(blob); err != nil {
			return nil, fmt.Errorf("frame %d of %s: %w", f.Time, path, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// VideoExists reports whether any frame of path is stored.
func (d *DB) VideoExists(ctx context.Context, path string) (bool, error) {
	_, ok, err := d.VideoModifyTime(ctx, path)
	return ok, err
}

// SearchImagesByPath returns images whose path contains substr, ordered by id.
func (d *DB) SearchImagesByPath(ctx context.Context, substr string) ([]ImageRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, path, modify_time FROM images WHERE path LIKE ? ESCAPE '\' ORDER BY id`,
		likePattern(substr))
	if err != nil {
		return nil, fmt.Errorf("searching images by path: %w", err)
	}
	defer rows.Close()

	var recs []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.ModifyTime); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SearchVideosByPath returns distinct video paths containing substr.
func (d *DB) SearchVideosByPath(ctx context.Context, substr string) ([]string, error) {
	return d.queryPaths(ctx,
		`SELECT DISTINCT path FROM video_frames WHERE path LIKE ? ESCAPE '\' ORDER BY path`,
		likePattern(substr))
}

func (d *DB) queryPaths(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Reconcile deletes images and videos whose path is not in keep.
func (d *DB) Reconcile(ctx context.Context, keep map[string]struct{}) (Reconciled, error) {
	imagePaths, err := d.queryPaths(ctx, `SELECT path FROM images`)
	if err != nil {
		return Reconciled{}, err
	}
	videoPaths, err := d.ListVideoPaths(ctx)
	if err != nil {
		return Reconciled{}, err
	}
	staleImages := stalePaths(imagePaths, keep)
	staleVideos := stalePaths(videoPaths, keep)
	if len(staleImages) == 0 && len(staleVideos) == 0 {
		return Reconciled{}, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Reconciled{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range staleImages {
		if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE path = ?`, p); err != nil {
			return Reconciled{}, fmt.Errorf("deleting image %s: %w", p, err)
		}
	}
	for _, p := range staleVideos {
		if _, err := tx.ExecContext(ctx, `DELETE FROM video_frames WHERE path = ?`, p); err != nil {
			return Reconciled{}, fmt.Errorf("deleting video %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Reconciled{}, fmt.Errorf("committing reconcile: %w", err)
	}
	return Reconciled{Images: len(staleImages), Videos: len(staleVideos)}, nil
}

// Counts returns the number of images, videos and video frames.
func (d *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(DISTINCT path) FROM video_frames),
			(SELECT COUNT(*) FROM video_frames)
	`).Scan(&c.Images, &c.Videos, &c.VideoFrames)
	if err != nil {
		return Counts{}, fmt.Errorf("counting assets: %w", err)
	}
	return c, nil
}
