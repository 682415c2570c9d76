package artifacts

import (
	"fmt"
	"image"
	"image/color"

	"media-worker/internal/harness"
	"media-worker/internal/media"
)

const (
	heatmapFrameW     = 32
	heatmapFrameH     = 18
	heatmapFrameBytes = heatmapFrameW * heatmapFrameH
	heatmapMaxFPS     = 10.0
)

type heatmapDetail struct {
	Samples int     `json:"samples"`
	Peak    float64 `json:"peak"`
	Mean    float64 `json:"mean"`
}

// heatmap samples tiny grayscale frames across the video, measures how much
// each differs from the one before, and paints that motion curve as a strip.
func (g *Generator) heatmap(jc *harness.JobContext, rel, src string, p Params) (*heatmapDetail, error) {
	ctx := jc.Context()
	pr, err := g.requireDuration(ctx, rel, src)
	if err != nil {
		return nil, err
	}

	samples := max(p.HeatmapWidth/4, 2)
	fps := min(float64(samples)/pr.Duration, heatmapMaxFPS)
	raw, err := g.ff.FFmpeg(ctx,
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-an",
		"-vf", fmt.Sprintf("fps=%.6f,scale=%d:%d,format=gray", fps, heatmapFrameW, heatmapFrameH),
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}

	series := motionSeries(raw, heatmapFrameBytes)
	if len(series) == 0 {
		return nil, fmt.Errorf("too few frames for a heatmap (%d bytes)", len(raw))
	}
	data, err := media.EncodePNG(renderHeatmap(series, p.HeatmapWidth, p.HeatmapHeight))
	if err != nil {
		return nil, err
	}
	if err := g.writeSidecar(KindHeatmap, rel, 0, data); err != nil {
		return nil, err
	}

	d := &heatmapDetail{Samples: len(series)}
	for _, v := range series {
		d.Peak = max(d.Peak, v)
		d.Mean += v
	}
	d.Mean /= float64(len(series))
	return d, nil
}

// motionSeries returns, for each frame after the first, the mean absolute
// pixel difference from its predecessor scaled to [0, 1]. A trailing
// partial frame is ignored.
func motionSeries(raw []byte, frameBytes int) []float64 {
	n := len(raw) / frameBytes
	if n < 2 {
		return nil
	}
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		prev := raw[(i-1)*frameBytes : i*frameBytes]
		cur := raw[i*frameBytes : (i+1)*frameBytes]
		var sum int
		for j := range cur {
			d := int(cur[j]) - int(prev[j])
			if d < 0 {
				d = -d
			}
			sum += d
		}
		out = append(out, float64(sum)/float64(frameBytes*255))
	}
	return out
}

// renderHeatmap paints series across width columns, normalized to its peak.
func renderHeatmap(series []float64, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	peak := 0.0
	for _, v := range series {
		peak = max(peak, v)
	}
	for x := 0; x < width; x++ {
		v := series[x*len(series)/width]
		if peak > 0 {
			v /= peak
		}
		c := heatColor(v)
		for y := 0; y < height; y++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// heatColor maps [0, 1] onto blue, green, yellow, red.
func heatColor(v float64) color.NRGBA {
	v = min(max(v, 0), 1)
	stops := []color.NRGBA{
		{0, 0, 160, 255},
		{0, 180, 0, 255},
		{240, 220, 0, 255},
		{220, 0, 0, 255},
	}
	pos := v * float64(len(stops)-1)
	i := min(int(pos), len(stops)-2)
	t := pos - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.NRGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}
