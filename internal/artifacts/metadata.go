package artifacts

import (
	"encoding/json"
	"fmt"

	"media-worker/internal/ffmpeg"
	"media-worker/internal/harness"
)

func (g *Generator) metadata(jc *harness.JobContext, rel, src string) (*ffmpeg.ProbeResult, error) {
	pr, err := g.ff.Probe(jc.Context(), src)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rel, err)
	}
	data, err := json.MarshalIndent(pr, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := g.writeSidecar(KindMetadata, rel, 0, data); err != nil {
		return nil, err
	}
	return pr, nil
}
