package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"media-worker/internal/artifacts"
	"media-worker/internal/jobs"
	"media-worker/internal/logging"

	"github.com/gorilla/mux"
)

const maxRequestBody = 1 << 20

// SubmitRequest is the body of POST /api/jobs. Type is accepted as an alias
// for Kind.
type SubmitRequest struct {
	Kind   string           `json:"kind"`
	Type   string           `json:"type"`
	Target string           `json:"target"`
	Params artifacts.Params `json:"params"`
	// Sync runs the job in the request and returns its result.
	Sync bool `json:"sync"`
}

// SubmitResponse is returned for both submission modes.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Skipped bool   `json:"skipped"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobResponse is a job snapshot with its progress percentage.
type JobResponse struct {
	jobs.Job
	Percent *float64 `json:"percent,omitempty"`
}

func newJobResponse(j jobs.Job) JobResponse {
	r := JobResponse{Job: j}
	if p := j.Percent(); p >= 0 {
		r.Percent = &p
	}
	return r
}

// SubmitJob queues an artifact job, or runs it inline when sync is set.
// A live job for the same file and kind is returned with skipped=true.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = req.Type
	}
	if kind == "" || req.Target == "" {
		writeJSONError(w, "kind and target are required", http.StatusBadRequest)
		return
	}

	if req.Sync {
		res, err := h.engine.Generate(r.Context(), kind, req.Target, req.Params)
		if err != nil {
			if res.JobID == "" {
				writeEngineError(w, err)
				return
			}
			logging.Debug("sync job %s failed: %v", res.JobID, err)
			setJobID(w, res.JobID)
			writeJSONStatus(w, statusFor(err), SubmitResponse{JobID: res.JobID, Error: err.Error()})
			return
		}
		setJobID(w, res.JobID)
		writeJSONStatus(w, http.StatusOK, SubmitResponse{JobID: res.JobID, Skipped: res.Skipped, Result: res.Value})
		return
	}

	sub, err := h.engine.Submit(kind, req.Target, req.Params)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	code := http.StatusAccepted
	if sub.Skipped {
		code = http.StatusOK
	}
	setJobID(w, sub.JobID)
	writeJSONStatus(w, code, SubmitResponse{JobID: sub.JobID, Skipped: sub.Skipped})
}

// ListJobs returns jobs selected by ?filter= (queued, running, active,
// recent or all; default active).
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := jobs.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list := h.engine.ListJobs(filter)
	out := make([]JobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, newJobResponse(j))
	}
	writeJSONStatus(w, http.StatusOK, out)
}

// GetJob returns one job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.engine.Job(mux.Vars(r)["id"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	setJobID(w, j.ID)
	writeJSONStatus(w, http.StatusOK, newJobResponse(j))
}

// CancelJob requests cancellation and returns the job as it stands.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.Cancel(id); err != nil {
		writeEngineError(w, err)
		return
	}
	setJobID(w, id)
	j, err := h.engine.Job(id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "canceled"})
		return
	}
	writeJSONStatus(w, http.StatusAccepted, newJobResponse(j))
}
