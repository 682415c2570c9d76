package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// DecodeFrame decodes a single frame written by ffmpeg to a pipe (PNG or
// MJPEG).
func DecodeFrame(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Grid pastes frames left to right, top to bottom into a columns-wide sheet
// of cellWidth x cellHeight tiles. Each frame is resized to fill its cell.
func Grid(frames []image.Image, columns, cellWidth, cellHeight int) *image.NRGBA {
	if columns <= 0 {
		columns = 1
	}
	rows := (len(frames) + columns - 1) / columns
	sheet := imaging.New(columns*cellWidth, max(rows, 1)*cellHeight, color.Black)
	for i, f := range frames {
		if f == nil {
			continue
		}
		tile := imaging.Resize(f, cellWidth, cellHeight, imaging.Lanczos)
		pt := image.Pt((i%columns)*cellWidth, (i/columns)*cellHeight)
		sheet = imaging.Paste(sheet, tile, pt)
	}
	return sheet
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
