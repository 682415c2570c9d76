package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"media-worker/internal/filesystem"
	"media-worker/internal/mediatypes"

	"github.com/gorilla/mux"
)

// GetArtifact serves a generated sidecar file. ?part=1 selects a secondary
// file, such as the WebVTT index of a sprite sheet.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	files, err := h.engine.ArtifactFiles(vars["kind"], vars["path"])
	if err != nil {
		writeEngineError(w, err)
		return
	}

	part := 0
	if v := r.URL.Query().Get("part"); v != "" {
		part, err = strconv.Atoi(v)
		if err != nil || part < 0 || part >= len(files) {
			writeJSONError(w, "invalid part", http.StatusBadRequest)
			return
		}
	}
	path := files[part]

	f, err := filesystem.OpenWithRetry(r.Context(), path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, "artifact not generated", http.StatusNotFound)
			return
		}
		writeEngineError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		writeJSONError(w, "artifact not generated", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mediatypes.ContentType(path))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
