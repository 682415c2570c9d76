package artifacts

import (
	"context"
	"fmt"
	"image"

	"media-worker/internal/ffmpeg"
	"media-worker/internal/media"
)

// frameAt grabs the frame at the given offset, scaled to width (0 keeps the
// source size).
func (g *Generator) frameAt(ctx context.Context, src string, at float64, width int) (image.Image, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if at > 0 {
		args = append(args, "-ss", ffmpeg.Timestamp(at))
	}
	args = append(args, "-i", src, "-frames:v", "1")
	if width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", width))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "png", "-")

	out, err := g.ff.FFmpeg(ctx, args...)
	if err != nil {
		return nil, err
	}
	return media.DecodeFrame(out)
}

// spread returns n offsets evenly spaced across the middle of a video,
// skipping the first and last `margin` fraction of it.
func spread(duration float64, n int, margin float64) []float64 {
	if n <= 0 {
		return nil
	}
	span := duration * (1 - 2*margin)
	out := make([]float64, n)
	for i := range out {
		out[i] = duration*margin + span*(float64(i)+0.5)/float64(n)
	}
	return out
}
