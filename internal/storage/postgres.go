package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is the PostgreSQL asset store. Features are pgvector columns.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ AssetStore = (*Postgres)(nil)

// OpenPostgres connects to the database at url and creates the schema for
// features of the given dimensions.
func OpenPostgres(ctx context.Context, url string, dims int) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS images (
			id BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			modify_time BIGINT NOT NULL,
			feature vector(%[1]d) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS video_frames (
			path TEXT NOT NULL,
			frame_time INTEGER NOT NULL,
			modify_time BIGINT NOT NULL,
			feature vector(%[1]d) NOT NULL,
			PRIMARY KEY (path, frame_time)
		);
	`, dims)
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// ImageByPath returns the image stored under path, or nil.
func (s *Postgres) ImageByPath(ctx context.Context, path string) (*ImageRecord, error) {
	var rec ImageRecord
	var v pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT id, path, modify_time, feature FROM images WHERE path = $1`, path,
	).Scan(&rec.ID, &rec.Path, &rec.ModifyTime, &v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying image %s: %w", path, err)
	}
	rec.Feature = v.Slice()
	return &rec, nil
}

// ImageModifyTime returns the stored modify time of the image at path.
func (s *Postgres) ImageModifyTime(ctx context.Context, path string) (int64, bool, error) {
	return s.modifyTime(ctx, `SELECT modify_time FROM images WHERE path = $1`, path)
}

// VideoModifyTime returns the modify time recorded on the video's frames.
func (s *Postgres) VideoModifyTime(ctx context.Context, path string) (int64, bool, error) {
	return s.modifyTime(ctx, `SELECT modify_time FROM video_frames WHERE path = $1 LIMIT 1`, path)
}

func (s *Postgres) modifyTime(ctx context.Context, query, path string) (int64, bool, error) {
	var mt int64
	err := s.pool.QueryRow(ctx, query, path).Scan(&mt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying modify time of %s: %w", path, err)
	}
	return mt, true, nil
}

// InsertImage adds an image record and returns its id.
func (s *Postgres) InsertImage(ctx context.Context, path string, modifyTime int64, feature []float32) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO images (path, modify_time, feature) VALUES ($1, $2, $3) RETURNING id`,
		path, modifyTime, pgvector.NewVector(feature),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting image %s: %w", path, err)
	}
	return id, nil
}

// DeleteImage removes the image stored under path.
func (s *Postgres) DeleteImage(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM images WHERE path = $1`, path); err != nil {
		return fmt.Errorf("deleting image %s: %w", path, err)
	}
	return nil
}

// ListImages returns every image with its feature, ordered by id.
func (s *Postgres) ListImages(ctx context.Context) ([]ImageRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, path, modify_time, feature FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var recs []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		var v pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.ModifyTime, &v); err != nil {
			return nil, err
		}
		rec.Feature = v.Slice()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ImageFeature returns the feature of image id, or nil if there is none.
func (s *Postgres) ImageFeature(ctx context.Context, id int64) ([]float32, error) {
	var v pgvector.Vector
	err := s.pool.QueryRow(ctx, `SELECT feature FROM images WHERE id = $1`, id).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying image %d: %w", id, err)
	}
	return v.Slice(), nil
}

// ImagePath returns the path of image id, or "" if there is none.
func (s *Postgres) ImagePath(ctx context.Context, id int64) (string, error) {
	var path string
	err := s.pool.QueryRow(ctx, `SELECT path FROM images WHERE id = $1`, id).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("querying image %d: %w", id, err)
	}
	return path, nil
}

// InsertVideoFrames replaces the frames of path in a single transaction.
func (s *Postgres) InsertVideoFrames(ctx context.Context, path string, modifyTime int64, frames []Frame) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM video_frames WHERE path = $1`, path); err != nil {
		return fmt.Errorf("clearing frames of %s: %w", path, err)
	}

	batch := &pgx.Batch{}
	for _, f := range frames {
		batch.Queue(
			`INSERT INTO video_frames (path, frame_time, modify_time, feature) VALUES ($1, $2, $3, $4)`,
			path, f.Time, modifyTime, pgvector.NewVector(f.Feature))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting frames of %s: %w", path, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing frames of %s: %w", path, err)
	}
	return nil
}

// DeleteVideo removes every frame of path.
func (s *Postgres) DeleteVideo(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM video_frames WHERE path = $1`, path); err != nil {
		return fmt.Errorf("deleting video %s: %w", path, err)
	}
	return nil
}

// ListVideoPaths returns the distinct video paths in path order.
func (s *Postgres) ListVideoPaths(ctx context.Context) ([]string, error) {
	return s.queryPaths(ctx, `SELECT DISTINCT path FROM video_frames ORDER BY path`)
}

// VideoFrames returns the frames of path ordered by frame time.
func (s *Postgres) VideoFrames(ctx context.Context, path string) ([]Frame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_time, feature FROM video_frames WHERE path = $1 ORDER BY frame_time`, path)
	if err != nil {
		return nil, fmt.Errorf("querying frames of %s: %w", path, err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		var v pgvector.Vector
		if err := rows.Scan(&f.Time, &v); err != nil {
			return nil, err
		}
		f.Feature = v.Slice()
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// VideoExists reports whether any frame of path is stored.
func (s *Postgres) VideoExists(ctx context.Context, path string) (bool, error) {
	_, ok, err := s.VideoModifyTime(ctx, path)
	return ok, err
}

// SearchImagesByPath returns images whose path contains substr, ordered by
// id. Matching is case-insensitive like SQLite's LIKE.
func (s *Postgres) SearchImagesByPath(ctx context.Context, substr string) ([]ImageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, path, modify_time FROM images WHERE path ILIKE $1 ESCAPE '\' ORDER BY id`,
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
func (s *Postgres) SearchVideosByPath(ctx context.Context, substr string) ([]string, error) {
	return s.queryPaths(ctx,
		`SELECT DISTINCT path FROM video_frames WHERE path ILIKE $1 ESCAPE '\' ORDER BY path`,
		likePattern(substr))
}

func (s *Postgres) queryPaths(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *Postgres) Reconcile(ctx context.Context, keep map[string]struct{}) (Reconciled, error) {
	imagePaths, err := s.queryPaths(ctx, `SELECT path FROM images`)
	if err != nil {
		return Reconciled{}, err
	}
	videoPaths, err := s.ListVideoPaths(ctx)
	if err != nil {
		return Reconciled{}, err
	}
	staleImages := stalePaths(imagePaths, keep)
	staleVideos := stalePaths(videoPaths, keep)
	if len(staleImages) == 0 && len(staleVideos) == 0 {
		return Reconciled{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Reconciled{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM images WHERE path = ANY($1)`, staleImages); err != nil {
		return Reconciled{}, fmt.Errorf("deleting stale images: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM video_frames WHERE path = ANY($1)`, staleVideos); err != nil {
		return Reconciled{}, fmt.Errorf("deleting stale videos: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Reconciled{}, fmt.Errorf("committing reconcile: %w", err)
	}
	return Reconciled{Images: len(staleImages), Videos: len(staleVideos)}, nil
}

// Counts returns the number of images, videos and video frames.
func (s *Postgres) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
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
