//go:build unix

package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-worker/internal/ffmpeg"
	"media-worker/internal/harness"
	"media-worker/internal/hashindex"
	"media-worker/internal/jobs"
	"media-worker/internal/keylock"
	"media-worker/internal/limiter"
	"media-worker/internal/procs"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 320, "height": 180, "avg_frame_rate": "25/1"},
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"format_name": "mov,mp4", "duration": "120.0", "size": "1000", "bit_rate": "800"}
}`

// fakeTools writes stand-in ffmpeg/ffprobe scripts. ffmpeg pipes a fixed
// frame (or raw gray frames) to stdout, or writes a stub file to its last
// argument; every call is logged.
func fakeTools(t *testing.T) (dir string, cfg ffmpeg.Config) {
	t.Helper()
	dir = t.TempDir()

	require.NoError(t, imaging.Save(imaging.New(320, 180, color.NRGBA{90, 120, 200, 255}), filepath.Join(dir, "frame.png")))

	raw := make([]byte, 0, heatmapFrameBytes*6)
	for i := 0; i < 6; i++ {
		for j := 0; j < heatmapFrameBytes; j++ {
			raw = append(raw, byte(i*40))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.bin"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe.json"), []byte(probeJSON), 0o644))

	ff := fmt.Sprintf(`#!/bin/sh
echo "$*" >> %[1]s/ffmpeg.log
for a; do last=$a; done
case "$*" in
  *rawvideo*) cat %[1]s/raw.bin ;;
  *) if [ "$last" = "-" ]; then cat %[1]s/frame.png; else printf 'stub' > "$last"; fi ;;
esac
`, dir)
	probe := fmt.Sprintf(`#!/bin/sh
echo "$*" >> %[1]s/ffprobe.log
case "$*" in
  *-show_format*) cat %[1]s/probe.json ;;
  *) if [ -f %[1]s/has-subs ]; then echo 2; fi ;;
esac
`, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ff), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(probe), 0o755))

	return dir, ffmpeg.Config{
		FFmpegPath:   filepath.Join(dir, "ffmpeg"),
		FFprobePath:  filepath.Join(dir, "ffprobe"),
		Timeout:      10 * time.Second,
		ProbeTimeout: 10 * time.Second,
		WaitDelay:    time.Second,
	}
}

func callCount(t *testing.T, dir, tool string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, tool+".log"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

type genFixture struct {
	gen   *Generator
	h     *harness.Harness
	jobs  *jobs.Registry
	index *hashindex.Store
	tools string
	media string
}

func newGenFixture(t *testing.T) *genFixture {
	t.Helper()
	tools, cfg := fakeTools(t)

	mediaDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mediaDir, "shows"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "shows", "ep1.mp4"), []byte("not really a video"), 0o644))

	ctx := context.Background()
	index, err := hashindex.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	pr := procs.New()
	reg := jobs.New(jobs.DefaultConfig())
	h := harness.New(harness.DefaultConfig(), reg, keylock.New(nil), limiter.New(2), pr)
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })

	gen := NewGenerator(mediaDir, NewStore(t.TempDir()), ffmpeg.NewRunner(cfg, pr), index)
	return &genFixture{gen: gen, h: h, jobs: reg, index: index, tools: tools, media: mediaDir}
}

func (f *genFixture) run(t *testing.T, kind, rel string, p Params) (*Output, jobs.Job, error) {
	t.Helper()
	res, err := f.h.Wrap(context.Background(), kind, rel, f.gen.Func(kind, p))
	j, ok := f.jobs.Get(res.JobID)
	require.True(t, ok)
	if err != nil {
		return nil, j, err
	}
	out, ok := res.Value.(*Output)
	require.True(t, ok, "result is %T", res.Value)
	return out, j, nil
}

func TestMetadataWritesSidecar(t *testing.T) {
	f := newGenFixture(t)

	out, j, err := f.run(t, KindMetadata, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StateDone, j.State)
	assert.False(t, out.Cached)

	data, err := os.ReadFile(f.gen.Store().Path(KindMetadata, "shows/ep1.mp4"))
	require.NoError(t, err)
	var pr ffmpeg.ProbeResult
	require.NoError(t, json.Unmarshal(data, &pr))
	assert.InDelta(t, 120.0, pr.Duration, 1e-9)
	assert.Equal(t, 320, pr.Width)
	assert.Equal(t, "h264", pr.VideoCodec)
}

func TestExistingArtifactIsCached(t *testing.T) {
	f := newGenFixture(t)

	_, _, err := f.run(t, KindThumbnail, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	calls := callCount(t, f.tools, "ffmpeg")
	require.Equal(t, 1, calls)

	out, _, err := f.run(t, KindThumbnail, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, calls, callCount(t, f.tools, "ffmpeg"))

	out, _, err = f.run(t, KindThumbnail, "shows/ep1.mp4", Params{Force: true})
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, calls+1, callCount(t, f.tools, "ffmpeg"))
}

func TestThumbnailFromFrame(t *testing.T) {
	f := newGenFixture(t)

	out, _, err := f.run(t, KindThumbnail, "shows/ep1.mp4", Params{ThumbnailWidth: 160})
	require.NoError(t, err)
	d, ok := out.Detail.(*thumbnailDetail)
	require.True(t, ok)
	assert.Equal(t, "frame", d.Source)
	assert.Equal(t, 160, d.Width)
	assert.Equal(t, 90, d.Height)

	img, err := imaging.Open(f.gen.Store().Path(KindThumbnail, "shows/ep1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
}

func TestThumbnailPrefersCover(t *testing.T) {
	f := newGenFixture(t)
	cover := filepath.Join(f.media, "shows", "ep1.jpg")
	require.NoError(t, imaging.Save(imaging.New(600, 900, color.White), cover))

	out, _, err := f.run(t, KindThumbnail, "shows/ep1.mp4", Params{ThumbnailWidth: 200})
	require.NoError(t, err)
	d := out.Detail.(*thumbnailDetail)
	assert.Equal(t, "cover", d.Source)
	assert.Equal(t, 200, d.Width)
	assert.Equal(t, 300, d.Height)
	assert.Zero(t, callCount(t, f.tools, "ffmpeg"))
}

func TestSpritesWritesSheetAndIndex(t *testing.T) {
	f := newGenFixture(t)

	out, j, err := f.run(t, KindSprites, "shows/ep1.mp4", Params{SpriteColumns: 3, SpriteRows: 2, SpriteWidth: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 6, j.Total)
	assert.EqualValues(t, 6, j.Processed)
	assert.Equal(t, 6, callCount(t, f.tools, "ffmpeg"))
	require.Len(t, out.Files, 2)

	sheet, err := imaging.Open(out.Files[0])
	require.NoError(t, err)
	assert.Equal(t, 300, sheet.Bounds().Dx())
	assert.Equal(t, 2*56, sheet.Bounds().Dy())

	vtt, err := os.ReadFile(out.Files[1])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(vtt), "WEBVTT\n"))
	assert.Equal(t, 6, strings.Count(string(vtt), "-->"))
	assert.Contains(t, string(vtt), "00:01:40.000 --> 00:02:00.000\n"+filepath.Base(out.Files[0])+"#xywh=200,56,100,56")
}

func TestPreviewCommitsEncodedFile(t *testing.T) {
	f := newGenFixture(t)

	out, _, err := f.run(t, KindPreview, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	data, err := os.ReadFile(out.Files[0])
	require.NoError(t, err)
	assert.Equal(t, "stub", string(data))

	entries, err := os.ReadDir(filepath.Dir(out.Files[0]))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp output was renamed into place")

	d := out.Detail.(*previewDetail)
	assert.Equal(t, defaultPreviewSegments, d.Segments)
}

func TestPhashStoresCurrentEntry(t *testing.T) {
	f := newGenFixture(t)
	ctx := context.Background()
	rel := "shows/ep1.mp4"

	exists, err := f.gen.Exists(ctx, KindPhash, rel)
	require.NoError(t, err)
	assert.False(t, exists)

	out, j, err := f.run(t, KindPhash, rel, Params{})
	require.NoError(t, err)
	assert.EqualValues(t, phashFrames, j.Total)
	assert.Equal(t, phashFrames, callCount(t, f.tools, "ffmpeg"))
	assert.Empty(t, out.Files)

	e, err := f.index.Get(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, hashindex.AlgorithmPHash, e.Algorithm)
	assert.Equal(t, fmt.Sprintf("%016x", e.Hash), out.Detail.(*phashDetail).Hash)

	exists, err = f.gen.Exists(ctx, KindPhash, rel)
	require.NoError(t, err)
	assert.True(t, exists)

	// Rewriting the file invalidates the entry.
	require.NoError(t, os.WriteFile(filepath.Join(f.media, "shows", "ep1.mp4"), []byte("a different video"), 0o644))
	exists, err = f.gen.Exists(ctx, KindPhash, rel)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHeatmapFromRawFrames(t *testing.T) {
	f := newGenFixture(t)

	out, _, err := f.run(t, KindHeatmap, "shows/ep1.mp4", Params{HeatmapWidth: 50, HeatmapHeight: 4})
	require.NoError(t, err)
	d := out.Detail.(*heatmapDetail)
	assert.Equal(t, 5, d.Samples)
	assert.InDelta(t, 40.0/255, d.Peak, 1e-9)

	img, err := imaging.Open(out.Files[0])
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestSubtitles(t *testing.T) {
	f := newGenFixture(t)

	out, _, err := f.run(t, KindSubtitles, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	assert.Equal(t, "none", out.Detail.(*subtitlesDetail).Source)
	data, err := os.ReadFile(out.Files[0])
	require.NoError(t, err)
	assert.Equal(t, emptyVTT, string(data))

	require.NoError(t, os.WriteFile(filepath.Join(f.tools, "has-subs"), nil, 0o644))
	out, _, err = f.run(t, KindSubtitles, "shows/ep1.mp4", Params{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "embedded", out.Detail.(*subtitlesDetail).Source)

	require.NoError(t, os.WriteFile(filepath.Join(f.media, "shows", "ep1.srt"), []byte("1\n"), 0o644))
	out, _, err = f.run(t, KindSubtitles, "shows/ep1.mp4", Params{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "external", out.Detail.(*subtitlesDetail).Source)
}

func TestFacesStub(t *testing.T) {
	f := newGenFixture(t)

	out, _, err := f.run(t, KindFaces, "shows/ep1.mp4", Params{})
	require.NoError(t, err)
	data, err := os.ReadFile(out.Files[0])
	require.NoError(t, err)
	var report faceReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 320, report.Width)
	assert.NotNil(t, report.Detections)
	assert.Empty(t, report.Detections)
}

func TestRunErrors(t *testing.T) {
	f := newGenFixture(t)

	_, j, err := f.run(t, "waveform", "shows/ep1.mp4", Params{})
	require.Error(t, err)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Contains(t, j.Error, ErrUnsupportedKind.Error())

	_, j, err = f.run(t, KindThumbnail, "shows/missing.mp4", Params{})
	require.Error(t, err)
	assert.Equal(t, jobs.StateFailed, j.State)

	_, _, err = f.run(t, KindSprites, "shows/ep1.mp4", Params{SpriteColumns: 100, SpriteRows: 100})
	assert.Error(t, err)

	_, err = f.gen.Exists(context.Background(), "waveform", "shows/ep1.mp4")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestSpritesCanceledMidway(t *testing.T) {
	f := newGenFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	res, err := f.h.Wrap(ctx, KindSprites, "shows/ep1.mp4", func(jc *harness.JobContext) (any, error) {
		cancel()
		return f.gen.Run(jc, KindSprites, jc.Target(), Params{SpriteColumns: 2, SpriteRows: 2})
	})
	require.Error(t, err)
	j, _ := f.jobs.Get(res.JobID)
	assert.Equal(t, jobs.StateCanceled, j.State)
	assert.False(t, f.gen.Store().Exists(KindSprites, "shows/ep1.mp4"))
}
