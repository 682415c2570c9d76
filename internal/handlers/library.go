package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"media-worker/internal/artifacts"
	"media-worker/internal/coverage"
	"media-worker/internal/dupes"
)

// DuplicatesResponse is one page of duplicate clusters.
type DuplicatesResponse struct {
	dupes.Page
	Files int `json:"files"`
	Pairs int `json:"pairs"`
}

// GetDuplicates clusters perceptually similar videos.
//
// Query: scope (library subdirectory), recursive (default true), page,
// size, and either min_similarity in (0, 1] or threshold in bits.
func (h *Handlers) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var opts dupes.Options
	var err error
	if v := q.Get("min_similarity"); v != "" {
		if opts.MinSimilarity, err = strconv.ParseFloat(v, 64); err != nil {
			writeJSONError(w, "invalid min_similarity", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("threshold"); v != "" {
		if opts.Threshold, err = strconv.Atoi(v); err != nil {
			writeJSONError(w, "invalid threshold", http.StatusBadRequest)
			return
		}
	}
	if err := opts.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	recursive := true
	if v := q.Get("recursive"); v != "" {
		if recursive, err = strconv.ParseBool(v); err != nil {
			writeJSONError(w, "invalid recursive", http.StatusBadRequest)
			return
		}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))

	report, err := h.engine.Duplicates(r.Context(), q.Get("scope"), recursive, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, DuplicatesResponse{
		Page:  dupes.Paginate(report.Clusters, page, size),
		Files: report.Files,
		Pairs: len(report.Pairs),
	})
}

// CoverageResponse lists artifact coverage per kind.
type CoverageResponse struct {
	Base    string              `json:"base"`
	Counts  []coverage.Count    `json:"counts"`
	Missing map[string][]string `json:"missing,omitempty"`
}

// GetCoverage reports how many library videos have each artifact.
// ?kinds= limits the kinds; ?missing=true includes the missing paths.
func (h *Handlers) GetCoverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kinds, err := artifacts.ParseKinds(q.Get("kinds"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	base := strings.Trim(q.Get("base"), "/")

	missing, counts, err := h.engine.Coverage(r.Context(), base, kinds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	resp := CoverageResponse{Base: base, Counts: counts}
	if withMissing, _ := strconv.ParseBool(q.Get("missing")); withMissing {
		resp.Missing = missing
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

// GetScheduler returns the idle scheduler status.
func (h *Handlers) GetScheduler(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, h.engine.IdleStatus())
}
