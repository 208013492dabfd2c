package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/queue"
	"github.com/vaibhavdavedev/datashelf/internal/signing"
)

// maxIntakeBody caps the signed intake payload at 1 MiB.
const maxIntakeBody = 1 << 20

// JobHandler serves the signed job intake plus the job admin surface on
// the worker process.
type JobHandler struct {
	queue  interfaces.JobQueue
	signer *signing.Signer
	logger arbor.ILogger
}

// NewJobHandler creates the job handlers.
func NewJobHandler(jobQueue interfaces.JobQueue, signer *signing.Signer, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queue:  jobQueue,
		signer: signer,
		logger: logger,
	}
}

// intakeResponse is the signed intake response shape.
type intakeResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message"`
}

// IntakeHandler accepts a signed job submission: POST /jobs.
// 401 on signature mismatch, 400 on malformed body, 413 over the cap.
func (h *JobHandler) IntakeHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIntakeBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	if len(body) > maxIntakeBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds 1 MiB")
		return
	}

	if err := h.signer.Verify(r.Method, requestURL(r), r.Header, body); err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected unsigned job submission")
		writeError(w, http.StatusUnauthorized, "unauthorized", "signature verification failed")
		return
	}

	var req models.JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed job payload")
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), req)
	if err != nil {
		if models.IsValidationError(err) {
			writeDomainError(w, err)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to enqueue job from intake")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue job")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intakeResponse{
		Success: true,
		JobID:   jobID,
		Message: "job accepted",
	})
}

// GetJobHandler returns a job by id: GET /jobs/{id}.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !common.IsUUID(id) {
		writeDomainError(w, models.NewValidationError("id", "id must be a UUID"))
		return
	}

	job, err := h.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeDomainError(w, models.NewNotFoundError("job", id))
			return
		}
		writeDomainError(w, err)
		return
	}
	writeData(w, job, false, false)
}

// StatsHandler returns job counts by status: GET /jobs/stats.
func (h *JobHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, stats, false, false)
}

// RequeueHandler forces a failed job back to queued: POST /jobs/{id}/requeue.
func (h *JobHandler) RequeueHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !common.IsUUID(id) {
		writeDomainError(w, models.NewValidationError("id", "id must be a UUID"))
		return
	}

	err := h.queue.Requeue(r.Context(), id)
	switch {
	case err == nil:
		writeData(w, map[string]string{"status": "queued"}, false, false)
	case errors.Is(err, queue.ErrJobNotFound):
		writeDomainError(w, models.NewNotFoundError("job", id))
	case errors.Is(err, queue.ErrNotRequeueable):
		writeDomainError(w, models.NewValidationError("id", "job has exhausted its attempts"))
	default:
		writeDomainError(w, err)
	}
}

// requestURL reconstructs the URL the client signed. Signers use the full
// target URL; the verifier rebuilds it from the host-relative request.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
