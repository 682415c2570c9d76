package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the artifact workers use.
type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	FrameRate  float64 `json:"frame_rate"`
	BitRate    int64   `json:"bit_rate"`
	Size       int64   `json:"size"`
	Format     string  `json:"format"`
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe on path and parses its JSON report.
func (r *Runner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := r.FFprobe(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe's -print_format json output. A report without a
// video stream is an error.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	res := &ProbeResult{Format: raw.Format.FormatName}
	res.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	res.Size, _ = strconv.ParseInt(raw.Format.Size, 10, 64)
	res.BitRate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)

	foundVideo := false
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			res.VideoCodec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseRate(s.RFrameRate)
			}
			if res.Duration == 0 {
				res.Duration, _ = strconv.ParseFloat(s.Duration, 64)
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("no video stream: %w", ErrFailed)
	}
	return res, nil
}

// parseRate converts "30000/1001" or "25" to frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Timestamp formats seconds the way ffmpeg's -ss accepts them.
func Timestamp(seconds float64) string {
	return strconv.FormatFloat(max(seconds, 0), 'f', 3, 64)
}
