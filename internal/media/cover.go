package media

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"media-worker/internal/logging"
)

// coverNames are checked, in order, next to a video. "<stem>" is the video
// file name without its extension.
var coverNames = []string{
	"<stem>.jpg", "<stem>.jpeg", "<stem>.png", "<stem>.webp",
	"<stem>-poster.jpg", "<stem>-thumb.jpg",
	"poster.jpg", "folder.jpg", "cover.jpg",
}

// FindCover returns the first cover image sitting next to videoPath.
func FindCover(videoPath string) (string, bool) {
	dir := filepath.Dir(videoPath)
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	for _, name := range coverNames {
		p := filepath.Join(dir, strings.ReplaceAll(name, "<stem>", stem))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// LoadCover loads a cover image fitted within width x height, preferring
// libvips and falling back to a constrained pure-Go decode.
func LoadCover(ctx context.Context, path string, width, height int) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := ShrinkWithVips(path, width, height)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips failed for cover %s, falling back: %v", path, err)
	}
	img, err := LoadImageConstrained(ctx, path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return nil, err
	}
	return imaging.Fit(img, width, height, imaging.Lanczos), nil
}
