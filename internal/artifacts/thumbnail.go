package artifacts

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"media-worker/internal/harness"
	"media-worker/internal/media"
)

// thumbnailOffset is where in the video the frame is taken, as a fraction
// of its length. The opening seconds are often black.
const thumbnailOffset = 0.1

type thumbnailDetail struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Source string `json:"source"`
}

func (g *Generator) thumbnail(jc *harness.JobContext, rel, src string, p Params) (*thumbnailDetail, error) {
	ctx := jc.Context()
	var img image.Image
	source := "frame"

	if cover, ok := media.FindCover(src); ok {
		var err error
		img, err = media.LoadCover(ctx, cover, p.ThumbnailWidth, p.ThumbnailWidth*4)
		if err != nil {
			jc.Log().Warn("cover %s unusable, falling back to a frame: %v", cover, err)
			img = nil
		} else {
			source = "cover"
		}
	}

	if img == nil {
		pr, err := g.requireDuration(ctx, rel, src)
		if err != nil {
			return nil, err
		}
		img, err = g.frameAt(ctx, src, pr.Duration*thumbnailOffset, p.ThumbnailWidth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			jc.Log().Debug("frame at %.1fs failed, retrying from the start: %v", pr.Duration*thumbnailOffset, err)
			img, err = g.frameAt(ctx, src, 0, p.ThumbnailWidth)
			if err != nil {
				return nil, fmt.Errorf("extract frame: %w", err)
			}
		}
	}

	if img.Bounds().Dx() > p.ThumbnailWidth {
		img = imaging.Resize(img, p.ThumbnailWidth, 0, imaging.Lanczos)
	}
	data, err := media.EncodeJPEG(img, 85)
	if err != nil {
		return nil, err
	}
	if err := g.writeSidecar(KindThumbnail, rel, 0, data); err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &thumbnailDetail{Width: b.Dx(), Height: b.Dy(), Source: source}, nil
}
