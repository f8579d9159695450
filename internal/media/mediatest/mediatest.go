// Package mediatest provides fixtures for code that reads media files.
package mediatest

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/matsen/mediasearch/internal/media"
)

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// WriteImage writes a solid-color PNG at dir/name, creating parent
// directories, and returns its path.
func WriteImage(t testing.TB, dir, name string, w, h int, c color.Color) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory for %s: %v", name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, Solid(w, h, c)); err != nil {
		t.Fatalf("encoding %s: %v", name, err)
	}
	return path
}

// Extractor is a media.FrameExtractor that serves scripted frames instead of
// running ffmpeg. Videos without a script yield media.ErrNoFrames.
type Extractor struct {
	mu     sync.Mutex
	videos map[string][]color.Color
	errs   map[string]error
	calls  map[string]int

	// Block, when non-nil, is received from before any frame is produced.
	Block chan struct{}
}

// NewExtractor returns an empty Extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		videos: make(map[string][]color.Color),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetFrames scripts path to yield one solid 64×64 frame per color.
func (e *Extractor) SetFrames(path string, colors ...color.Color) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videos[path] = colors
}

// SetError makes extraction of path fail with err.
func (e *Extractor) SetError(path string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[path] = err
}

// Calls returns how many times path was extracted.
func (e *Extractor) Calls(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

// ExtractFrames implements media.FrameExtractor.
func (e *Extractor) ExtractFrames(ctx context.Context, path string, interval int, fn func(media.Frame) error) error {
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	e.calls[path]++
	colors, ok := e.videos[path]
	err := e.errs[path]
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return media.ErrNoFrames
	}
	for i, c := range colors {
		if err := fn(media.Frame{Time: i * interval, Image: Solid(64, 64, c)}); err != nil {
			return err
		}
	}
	return nil
}

var _ media.FrameExtractor = (*Extractor)(nil)
