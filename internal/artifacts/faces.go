package artifacts

import (
	"encoding/json"

	"media-worker/internal/harness"
)

// faceReport is the faces sidecar. No detector is bundled, so Detections is
// always empty; the file marks the video as processed for coverage.
type faceReport struct {
	Version    int             `json:"version"`
	Detector   string          `json:"detector"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detections []faceDetection `json:"detections"`
}

type faceDetection struct {
	Time       float64 `json:"time"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Confidence float64 `json:"confidence"`
}

func (g *Generator) faces(jc *harness.JobContext, rel, src string) (*faceReport, error) {
	pr, err := g.probe(jc.Context(), rel, src)
	if err != nil {
		return nil, err
	}
	report := &faceReport{
		Version:    1,
		Detector:   "none",
		Width:      pr.Width,
		Height:     pr.Height,
		Detections: []faceDetection{},
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := g.writeSidecar(KindFaces, rel, 0, data); err != nil {
		return nil, err
	}
	return report, nil
}
