package artifacts

import "fmt"

// Params tunes generation. Zero fields take the defaults below.
type Params struct {
	// Force regenerates even when the artifact already exists.
	Force bool `json:"force,omitempty"`

	ThumbnailWidth int `json:"thumbnail_width,omitempty"`

	PreviewSegments        int     `json:"preview_segments,omitempty"`
	PreviewSegmentDuration float64 `json:"preview_segment_duration,omitempty"`
	PreviewWidth           int     `json:"preview_width,omitempty"`

	SpriteColumns int `json:"sprite_columns,omitempty"`
	SpriteRows    int `json:"sprite_rows,omitempty"`
	SpriteWidth   int `json:"sprite_width,omitempty"`

	HeatmapWidth  int `json:"heatmap_width,omitempty"`
	HeatmapHeight int `json:"heatmap_height,omitempty"`
}

const (
	defaultThumbnailWidth         = 320
	defaultPreviewSegments        = 12
	defaultPreviewSegmentDuration = 0.75
	defaultPreviewWidth           = 640
	defaultSpriteColumns          = 9
	defaultSpriteRows             = 9
	defaultSpriteWidth            = 160
	defaultHeatmapWidth           = 1000
	defaultHeatmapHeight          = 24

	maxSpriteFrames = 400
	maxWidth        = 3840
)

func (p Params) withDefaults() Params {
	if p.ThumbnailWidth <= 0 {
		p.ThumbnailWidth = defaultThumbnailWidth
	}
	if p.PreviewSegments <= 0 {
		p.PreviewSegments = defaultPreviewSegments
	}
	if p.PreviewSegmentDuration <= 0 {
		p.PreviewSegmentDuration = defaultPreviewSegmentDuration
	}
	if p.PreviewWidth <= 0 {
		p.PreviewWidth = defaultPreviewWidth
	}
	if p.SpriteColumns <= 0 {
		p.SpriteColumns = defaultSpriteColumns
	}
	if p.SpriteRows <= 0 {
		p.SpriteRows = defaultSpriteRows
	}
	if p.SpriteWidth <= 0 {
		p.SpriteWidth = defaultSpriteWidth
	}
	if p.HeatmapWidth <= 0 {
		p.HeatmapWidth = defaultHeatmapWidth
	}
	if p.HeatmapHeight <= 0 {
		p.HeatmapHeight = defaultHeatmapHeight
	}
	return p
}

// Validate rejects parameters no worker could honor.
func (p Params) Validate() error {
	p = p.withDefaults()
	for name, w := range map[string]int{
		"thumbnail_width": p.ThumbnailWidth,
		"preview_width":   p.PreviewWidth,
		"sprite_width":    p.SpriteWidth,
		"heatmap_width":   p.HeatmapWidth,
	} {
		if w > maxWidth {
			return fmt.Errorf("%w: %s %d exceeds %d", ErrInvalidParams, name, w, maxWidth)
		}
	}
	if n := p.SpriteColumns * p.SpriteRows; n > maxSpriteFrames {
		return fmt.Errorf("%w: sprite grid %dx%d exceeds %d frames", ErrInvalidParams, p.SpriteColumns, p.SpriteRows, maxSpriteFrames)
	}
	return nil
}
