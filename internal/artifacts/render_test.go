package artifacts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVTTTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00.000"},
		{-3, "00:00:00.000"},
		{1.5, "00:00:01.500"},
		{61.0004, "00:01:01.000"},
		{3723.25, "01:02:03.250"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vttTime(tt.in), "vttTime(%v)", tt.in)
	}
}

func TestSpriteVTT(t *testing.T) {
	vtt := spriteVTT("abc.jpg", 4, 2, 160, 90, 10)
	lines := strings.Split(vtt, "\n")
	require.Equal(t, "WEBVTT", lines[0])

	assert.Contains(t, vtt, "00:00:00.000 --> 00:00:10.000\nabc.jpg#xywh=0,0,160,90\n")
	assert.Contains(t, vtt, "00:00:10.000 --> 00:00:20.000\nabc.jpg#xywh=160,0,160,90\n")
	assert.Contains(t, vtt, "00:00:20.000 --> 00:00:30.000\nabc.jpg#xywh=0,90,160,90\n")
	assert.Contains(t, vtt, "00:00:30.000 --> 00:00:40.000\nabc.jpg#xywh=160,90,160,90\n")
	assert.Equal(t, 4, strings.Count(vtt, "-->"))
}

func TestSpread(t *testing.T) {
	assert.Nil(t, spread(100, 0, 0))

	got := spread(100, 4, 0)
	assert.InDeltaSlice(t, []float64{12.5, 37.5, 62.5, 87.5}, got, 1e-9)

	got = spread(100, 2, 0.05)
	assert.InDeltaSlice(t, []float64{27.5, 72.5}, got, 1e-9)
	for _, at := range spread(100, 25, 0.05) {
		assert.GreaterOrEqual(t, at, 5.0)
		assert.LessOrEqual(t, at, 95.0)
	}
}

func TestMotionSeries(t *testing.T) {
	frame := func(v byte) []byte {
		f := make([]byte, 4)
		for i := range f {
			f[i] = v
		}
		return f
	}
	var raw []byte
	raw = append(raw, frame(0)...)
	raw = append(raw, frame(255)...)
	raw = append(raw, frame(255)...)
	raw = append(raw, 1, 2) // partial trailing frame

	got := motionSeries(raw, 4)
	assert.InDeltaSlice(t, []float64{1, 0}, got, 1e-9)

	assert.Nil(t, motionSeries(frame(9), 4))
}

func TestHeatColorAndRender(t *testing.T) {
	low := heatColor(0)
	high := heatColor(1)
	assert.Greater(t, low.B, low.R)
	assert.Greater(t, high.R, high.B)
	assert.Equal(t, heatColor(-1), low)
	assert.Equal(t, heatColor(2), high)

	img := renderHeatmap([]float64{0, 0.5}, 10, 3)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	assert.Equal(t, low, img.NRGBAAt(0, 0))
	assert.Equal(t, high, img.NRGBAAt(9, 2), "series is normalized to its peak")

	flat := renderHeatmap([]float64{0, 0}, 4, 1)
	assert.Equal(t, low, flat.NRGBAAt(3, 0))
}
