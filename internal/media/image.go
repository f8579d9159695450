// Package media decodes image files and samples frames from videos.
package media

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	// ErrImageTooSmall is returned when an image is narrower or shorter than the limits allow.
	ErrImageTooSmall = errors.New("image too small")

	// ErrImageTooLarge is returned when an image has more pixels than the limits allow.
	ErrImageTooLarge = errors.New("image too large")
)

// Limits bounds the images accepted for embedding. Zero fields are unchecked.
type Limits struct {
	MinWidth  int
	MinHeight int
	MaxPixels int64
}

// Check validates image dimensions against the limits.
func (l Limits) Check(width, height int) error {
	if width < l.MinWidth || height < l.MinHeight {
		return fmt.Errorf("%w: %dx%d, minimum %dx%d", ErrImageTooSmall, width, height, l.MinWidth, l.MinHeight)
	}
	if l.MaxPixels > 0 && int64(width)*int64(height) > l.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, width, height, l.MaxPixels)
	}
	return nil
}

// LoadImage decodes the image at path, applying EXIF orientation. The header
// is checked against limits before the pixels are decoded.
func LoadImage(path string, limits Limits) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	if err := limits.Check(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
