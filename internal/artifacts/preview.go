package artifacts

import (
	"fmt"

	"media-worker/internal/filesystem"
	"media-worker/internal/harness"
)

type previewDetail struct {
	Segments int     `json:"segments"`
	Duration float64 `json:"duration"`
}

// preview encodes a short silent clip stitched from evenly spaced segments.
// Videos too short to sample are taken from the start instead.
func (g *Generator) preview(jc *harness.JobContext, rel, src string, p Params) (*previewDetail, error) {
	ctx := jc.Context()
	pr, err := g.requireDuration(ctx, rel, src)
	if err != nil {
		return nil, err
	}

	segments := p.PreviewSegments
	length := float64(segments) * p.PreviewSegmentDuration
	scale := fmt.Sprintf("scale=%d:-2", p.PreviewWidth)

	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", src}
	if pr.Duration <= length*2 {
		segments = 1
		length = min(length, pr.Duration)
		args = append(args, "-t", fmt.Sprintf("%.3f", length), "-vf", scale)
	} else {
		interval := pr.Duration / float64(segments)
		filter := fmt.Sprintf("select='lt(mod(t\\,%.3f)\\,%.3f)',setpts=N/FRAME_RATE/TB,%s",
			interval, p.PreviewSegmentDuration, scale)
		args = append(args, "-vf", filter)
	}

	dest := g.store.Path(KindPreview, rel)
	tmp := filesystem.TempPath(dest)
	args = append(args,
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "28",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmp,
	)

	jc.SetTotal(1)
	if _, err := g.ff.FFmpeg(ctx, args...); err != nil {
		filesystem.Discard(tmp)
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	if err := filesystem.Commit(tmp, dest); err != nil {
		return nil, err
	}
	return &previewDetail{Segments: segments, Duration: length}, nil
}
