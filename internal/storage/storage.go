// Package storage persists image and video-frame embeddings.
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ImageRecord is one indexed image. Feature is nil when a query does not load it.
type ImageRecord struct {
	ID         int64
	Path       string
	ModifyTime int64 // unix seconds
	Feature    []float32
}

// Frame is one sampled video frame's embedding. Time is in seconds.
type Frame struct {
	Time    int
	Feature []float32
}

// Counts summarizes the store contents.
type Counts struct {
	Images      int `json:"total_images"`
	Videos      int `json:"total_videos"`
	VideoFrames int `json:"total_video_frames"`
}

// Reconciled reports what Reconcile removed.
type Reconciled struct {
	Images int
	Videos int
}

// AssetStore is the persistence contract used by the scanner and the search
// engine. Lookups of unknown keys return zero values, not errors.
type AssetStore interface {
	// ImageByPath returns the record for path, or nil.
	ImageByPath(ctx context.Context, path string) (*ImageRecord, error)
	// ImageModifyTime returns the stored modify time for path.
	ImageModifyTime(ctx context.Context, path string) (int64, bool, error)
	// InsertImage adds an image and returns its id.
	InsertImage(ctx context.Context, path string, modifyTime int64, feature []float32) (int64, error)
	DeleteImage(ctx context.Context, path string) error
	// ListImages returns every image with its feature, ordered by id.
	ListImages(ctx context.Context) ([]ImageRecord, error)
	// ImageFeature returns the feature of image id, or nil.
	ImageFeature(ctx context.Context, id int64) ([]float32, error)
	// ImagePath returns the path of image id, or "".
	ImagePath(ctx context.Context, id int64) (string, error)

	// VideoModifyTime returns the modify time stored on the video's frames.
	VideoModifyTime(ctx context.Context, path string) (int64, bool, error)
	// InsertVideoFrames replaces all frames of path in one transaction.
	InsertVideoFrames(ctx context.Context, path string, modifyTime int64, frames []Frame) error
	DeleteVideo(ctx context.Context, path string) error
	// ListVideoPaths returns the distinct video paths in path order.
	ListVideoPaths(ctx context.Context) ([]string, error)
	// VideoFrames returns the frames of path ordered by time.
	VideoFrames(ctx context.Context, path string) ([]Frame, error)
	VideoExists(ctx context.Context, path string) (bool, error)

	// SearchImagesByPath returns images whose path contains substr, ordered
	// by id, without features.
	SearchImagesByPath(ctx context.Context, substr string) ([]ImageRecord, error)
	// SearchVideosByPath returns distinct video paths containing substr.
	SearchVideosByPath(ctx context.Context, substr string) ([]string, error)

	// Reconcile deletes every image and video whose path is not in keep.
	Reconcile(ctx context.Context, keep map[string]struct{}) (Reconciled, error)
	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// encodeFeature packs a vector as little-endian float32s.
func encodeFeature(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeFeature(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("feature blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// likePattern builds a LIKE pattern matching substr literally, using \ as
// the escape character.
func likePattern(substr string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(substr) + "%"
}

// stalePaths returns the members of paths that are not in keep.
func stalePaths(paths []string, keep map[string]struct{}) []string {
	var stale []string
	for _, p := range paths {
		if _, ok := keep[p]; !ok {
			stale = append(stale, p)
		}
	}
	return stale
}
