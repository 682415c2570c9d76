package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-worker/internal/filesystem"
	"media-worker/internal/harness"
)

const emptyVTT = "WEBVTT\n\n"

type subtitlesDetail struct {
	Source string `json:"source"`
}

// subtitles produces a WebVTT track from a sidecar .srt/.vtt next to the
// video, else from the first embedded subtitle stream. Videos with neither
// get an empty track so they count as covered.
func (g *Generator) subtitles(jc *harness.JobContext, rel, src string) (*subtitlesDetail, error) {
	ctx := jc.Context()
	dest := g.store.Path(KindSubtitles, rel)

	input, source := "", ""
	if ext, ok := externalSubtitles(src); ok {
		input, source = ext, "external"
	} else {
		out, err := g.ff.FFprobe(ctx,
			"-v", "error",
			"-select_streams", "s",
			"-show_entries", "stream=index",
			"-of", "csv=p=0",
			src,
		)
		if err != nil {
			return nil, fmt.Errorf("list subtitle streams: %w", err)
		}
		if strings.TrimSpace(string(out)) != "" {
			input, source = src, "embedded"
		}
	}

	if input == "" {
		if err := g.writeSidecar(KindSubtitles, rel, 0, []byte(emptyVTT)); err != nil {
			return nil, err
		}
		return &subtitlesDetail{Source: "none"}, nil
	}

	tmp := filesystem.TempPath(dest)
	_, err := g.ff.FFmpeg(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-map", "0:s:0",
		"-c:s", "webvtt",
		"-f", "webvtt",
		tmp,
	)
	if err != nil {
		filesystem.Discard(tmp)
		return nil, fmt.Errorf("extract subtitles: %w", err)
	}
	if err := filesystem.Commit(tmp, dest); err != nil {
		return nil, err
	}
	return &subtitlesDetail{Source: source}, nil
}

// externalSubtitles finds <stem>.srt or <stem>.vtt beside the video.
func externalSubtitles(src string) (string, bool) {
	stem := strings.TrimSuffix(src, filepath.Ext(src))
	for _, ext := range []string{".vtt", ".srt", ".en.srt", ".en.vtt"} {
		if info, err := os.Stat(stem + ext); err == nil && info.Mode().IsRegular() {
			return stem + ext, true
		}
	}
	return "", false
}
