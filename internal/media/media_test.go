package media

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	return imaging.New(w, h, c)
}

func TestGridLayout(t *testing.T) {
	frames := []image.Image{
		solid(40, 30, color.White),
		solid(40, 30, color.Black),
		solid(80, 60, color.White),
	}

	sheet := Grid(frames, 2, 20, 10)
	assert.Equal(t, 40, sheet.Bounds().Dx())
	assert.Equal(t, 20, sheet.Bounds().Dy())

	r, _, _, _ := sheet.At(5, 5).RGBA()
	assert.Greater(t, r, uint32(0xf000), "first tile is white")
	r, _, _, _ = sheet.At(25, 5).RGBA()
	assert.Less(t, r, uint32(0x1000), "second tile is black")
	r, _, _, _ = sheet.At(5, 15).RGBA()
	assert.Greater(t, r, uint32(0xf000), "third tile wraps to the second row")
}

func TestEncodeDecodeFrame(t *testing.T) {
	data, err := EncodePNG(solid(8, 6, color.White))
	require.NoError(t, err)

	img, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	jpg, err := EncodeJPEG(img, 80)
	require.NoError(t, err)
	_, err = DecodeFrame(jpg)
	assert.NoError(t, err)

	_, err = DecodeFrame(nil)
	assert.Error(t, err)
	_, err = DecodeFrame([]byte("garbage"))
	assert.Error(t, err)
}

func TestConstrainedSize(t *testing.T) {
	w, h := ConstrainedSize(800, 600, 4096, 20_000_000)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	w, h = ConstrainedSize(8000, 4000, 4096, 20_000_000)
	assert.Equal(t, 4096, w)
	assert.Equal(t, 2048, h)

	w, h = ConstrainedSize(4000, 4000, 4096, 4_000_000)
	assert.InDelta(t, 2000, w, 1)
	assert.InDelta(t, 2000, h, 1)
}

func TestFindAndLoadCover(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "Movie (2020).mkv")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))

	_, ok := FindCover(video)
	assert.False(t, ok)

	folder := filepath.Join(dir, "folder.jpg")
	require.NoError(t, imaging.Save(solid(300, 200, color.White), folder))
	p, ok := FindCover(video)
	require.True(t, ok)
	assert.Equal(t, folder, p)

	own := filepath.Join(dir, "Movie (2020).png")
	require.NoError(t, imaging.Save(solid(300, 200, color.White), own))
	p, ok = FindCover(video)
	require.True(t, ok)
	assert.Equal(t, own, p, "a cover named after the video wins")

	img, err := LoadCover(context.Background(), p, 150, 150)
	require.NoError(t, err)
	assert.Equal(t, 150, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestGetImageDimensions(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, imaging.Save(solid(64, 48, color.Black), p))

	dims, err := GetImageDimensions(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 64, dims.Width)
	assert.Equal(t, 48, dims.Height)

	_, err = GetImageDimensions(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestLoadImageConstrained(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, imaging.Save(solid(400, 100, color.White), p))

	img, err := LoadImageConstrained(context.Background(), p, 200, MaxImagePixels)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = LoadImageConstrained(context.Background(), filepath.Join(t.TempDir(), "none.png"), 200, MaxImagePixels)
	assert.Error(t, err)
}
