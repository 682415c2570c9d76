package artifacts

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"media-worker/internal/harness"
	"media-worker/internal/media"
)

type spritesDetail struct {
	Frames     int `json:"frames"`
	Columns    int `json:"columns"`
	CellWidth  int `json:"cell_width"`
	CellHeight int `json:"cell_height"`
}

// sprites extracts columns x rows frames one ffmpeg call at a time, composes
// them into a sheet and writes a WebVTT index of the tiles.
func (g *Generator) sprites(jc *harness.JobContext, rel, src string, p Params) (*spritesDetail, error) {
	ctx := jc.Context()
	pr, err := g.requireDuration(ctx, rel, src)
	if err != nil {
		return nil, err
	}

	n := p.SpriteColumns * p.SpriteRows
	step := pr.Duration / float64(n)
	jc.SetTotal(int64(n))

	frames := make([]image.Image, 0, n)
	for i, at := range spread(pr.Duration, n, 0) {
		if err := jc.Checkpoint(); err != nil {
			return nil, err
		}
		img, err := g.frameAt(ctx, src, at, p.SpriteWidth)
		if err != nil {
			return nil, fmt.Errorf("sprite frame %d: %w", i, err)
		}
		frames = append(frames, img)
		jc.Add(1)
	}

	b := frames[0].Bounds()
	cellW := p.SpriteWidth
	cellH := max(cellW*b.Dy()/max(b.Dx(), 1), 1)
	sheet := media.Grid(frames, p.SpriteColumns, cellW, cellH)

	data, err := media.EncodeJPEG(sheet, 80)
	if err != nil {
		return nil, err
	}
	if err := g.writeSidecar(KindSprites, rel, 0, data); err != nil {
		return nil, err
	}
	vtt := spriteVTT(filepath.Base(g.store.Path(KindSprites, rel)), n, p.SpriteColumns, cellW, cellH, step)
	if err := g.writeSidecar(KindSprites, rel, 1, []byte(vtt)); err != nil {
		return nil, err
	}
	return &spritesDetail{Frames: n, Columns: p.SpriteColumns, CellWidth: cellW, CellHeight: cellH}, nil
}

// spriteVTT builds the WebVTT cue list mapping time ranges to tiles of the
// named sheet.
func spriteVTT(sheet string, n, columns, cellW, cellH int, step float64) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n")
	for i := 0; i < n; i++ {
		x := (i % columns) * cellW
		y := (i / columns) * cellH
		fmt.Fprintf(&sb, "\n%s --> %s\n%s#xywh=%d,%d,%d,%d\n",
			vttTime(step*float64(i)), vttTime(step*float64(i+1)), sheet, x, y, cellW, cellH)
	}
	return sb.String()
}

// vttTime formats seconds as HH:MM:SS.mmm.
func vttTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
