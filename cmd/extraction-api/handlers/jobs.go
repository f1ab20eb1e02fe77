package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/extraction"
	"github.com/doculens/extraction-engine/internal/observability"
)

// JobsHandler handles asynchronous job submission and tracking.
type JobsHandler struct {
	logger   *observability.Logger
	engine   *extraction.Engine
	maxBytes int64
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(logger *observability.Logger, engine *extraction.Engine) *JobsHandler {
	return &JobsHandler{logger: logger, engine: engine, maxBytes: 64 << 20}
}

// JobStatusDTO is the job status response.
type JobStatusDTO struct {
	JobID  string                   `json:"job_id"`
	State  domain.JobState          `json:"state"`
	Result *domain.ExtractionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// Submit enqueues an extraction and returns the job ID immediately.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	doc, opts, ok := readDocument(w, r, h.maxBytes)
	if !ok {
		return
	}

	job, err := h.engine.Submit(r.Context(), doc, opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, JobStatusDTO{JobID: job.ID, State: job.State()})
}

// Status reports the job state, with the result once terminal.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.engine.Job(chi.URLParam(r, "jobID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}

	status := JobStatusDTO{JobID: job.ID, State: job.State()}
	if status.State.Terminal() {
		result, err := job.Result()
		status.Result = result
		if err != nil {
			status.Error = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// Cancel requests cancellation of a running job. Cancelling a terminal
// job is a no-op.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.engine.Job(chi.URLParam(r, "jobID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}

	job.Cancel()
	writeJSON(w, http.StatusOK, JobStatusDTO{JobID: job.ID, State: job.State()})
}
