package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP covers

	"media-worker/internal/filesystem"
	"media-worker/internal/logging"
)

const (
	// MaxImageDimension is the largest width or height decoded at full size.
	MaxImageDimension = 4096

	// MaxImagePixels caps decoded area (~80MB as RGBA).
	MaxImagePixels = 20_000_000

	// MaxSourcePixels rejects sources whose header alone rules out a pure Go
	// decode.
	MaxSourcePixels = 250_000_000
)

// ErrImageTooLarge is returned for images whose header exceeds MaxSourcePixels.
var ErrImageTooLarge = errors.New("image too large to decode")

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions reads only the image header.
func GetImageDimensions(ctx context.Context, path string) (*ImageDimensions, error) {
	file, err := filesystem.OpenWithRetry(ctx, path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}
	return &ImageDimensions{Width: config.Width, Height: config.Height}, nil
}

// LoadImageConstrained loads an image, downscaling it when it exceeds
// maxDimension on either side or maxPixels in area. The header is checked
// first so an oversized source is refused before it is decoded.
func LoadImageConstrained(ctx context.Context, path string, maxDimension, maxPixels int) (image.Image, error) {
	dims, err := GetImageDimensions(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if int64(dims.Width)*int64(dims.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrImageTooLarge, path, dims.Width, dims.Height)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	b := img.Bounds()
	w, h := ConstrainedSize(b.Dx(), b.Dy(), maxDimension, maxPixels)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}
	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// ConstrainedSize scales width x height down, preserving aspect ratio, until
// both limits hold.
func ConstrainedSize(width, height, maxDimension, maxPixels int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	w, h := width, height
	if w > maxDimension || h > maxDimension {
		if w >= h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}
	if w*h > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(w*h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return max(w, 1), max(h, 1)
}
