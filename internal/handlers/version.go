package handlers

import (
	"net/http"

	"media-worker/internal/startup"
)

// VersionResponse is the build information plus the tool check that decides
// whether video artifacts can be produced at all.
type VersionResponse struct {
	startup.BuildInfo
	FFmpeg bool `json:"ffmpeg"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		FFmpeg:    h.engine.FFmpegAvailable(),
	})
}
