package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/queue"
	"github.com/vaibhavdavedev/datashelf/internal/signing"
)

const intakeSecret = "intake-secret"

// stubQueue records enqueues and serves canned jobs.
type stubQueue struct {
	enqueued []models.JobRequest
	job      *models.Job
	stats    models.JobStats
}

func (q *stubQueue) Enqueue(ctx context.Context, req models.JobRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	q.enqueued = append(q.enqueued, req)
	return "job-1", nil
}
func (q *stubQueue) Dequeue(ctx context.Context, workerID string) (*models.Job, error) {
	return nil, nil
}
func (q *stubQueue) Complete(ctx context.Context, jobID string, result models.JobResult) error {
	return nil
}
func (q *stubQueue) Fail(ctx context.Context, jobID string, jobErr error) error { return nil }
func (q *stubQueue) Requeue(ctx context.Context, jobID string) error {
	if q.job == nil || q.job.ID != jobID {
		return queue.ErrJobNotFound
	}
	if q.job.Attempts >= q.job.MaxAttempts {
		return queue.ErrNotRequeueable
	}
	return nil
}
func (q *stubQueue) ReleaseWorkerLocks(ctx context.Context, workerID string) (int, error) {
	return 0, nil
}
func (q *stubQueue) SweepExpiredLeases(ctx context.Context) (int, error) { return 0, nil }
func (q *stubQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if q.job != nil && q.job.ID == jobID {
		return q.job, nil
	}
	return nil, queue.ErrJobNotFound
}
func (q *stubQueue) Stats(ctx context.Context) (*models.JobStats, error) {
	return &q.stats, nil
}

func newIntakeServer(q *stubQueue) *httptest.Server {
	handler := NewJobHandler(q, signing.New(intakeSecret, 0), common.GetLogger())

	r := chi.NewRouter()
	r.Post("/jobs", handler.IntakeHandler)
	r.Get("/jobs/stats", handler.StatsHandler)
	r.Get("/jobs/{id}", handler.GetJobHandler)
	r.Post("/jobs/{id}/requeue", handler.RequeueHandler)

	return httptest.NewServer(r)
}

func postSigned(t *testing.T, serverURL, secret string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, serverURL+"/jobs", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, signing.New(secret, 0).Sign(req, body))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestIntakeAcceptsSignedJob(t *testing.T) {
	q := &stubQueue{}
	server := newIntakeServer(q)
	defer server.Close()

	body, _ := json.Marshal(models.JobRequest{
		Type:      "product",
		TargetURL: "https://shop.example.com/product/1",
		Priority:  3,
	})

	resp := postSigned(t, server.URL, intakeSecret, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result intakeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "job-1", result.JobID)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, 3, q.enqueued[0].Priority)
}

func TestIntakeRejectsBadSignature(t *testing.T) {
	q := &stubQueue{}
	server := newIntakeServer(q)
	defer server.Close()

	body := []byte(`{"type":"product","target_url":"https://shop.example.com/p/1"}`)
	resp := postSigned(t, server.URL, "wrong-secret", body)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, q.enqueued)
}

func TestIntakeRejectsUnsignedRequest(t *testing.T) {
	server := newIntakeServer(&stubQueue{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/jobs", "application/json",
		strings.NewReader(`{"type":"product","target_url":"https://shop.example.com/p/1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntakeRejectsMalformedBody(t *testing.T) {
	server := newIntakeServer(&stubQueue{})
	defer server.Close()

	body := []byte(`{not json`)
	resp := postSigned(t, server.URL, intakeSecret, body)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntakeRejectsOversizedBody(t *testing.T) {
	server := newIntakeServer(&stubQueue{})
	defer server.Close()

	body := bytes.Repeat([]byte("x"), maxIntakeBody+1)
	resp := postSigned(t, server.URL, intakeSecret, body)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestIntakeRejectsInvalidJobType(t *testing.T) {
	server := newIntakeServer(&stubQueue{})
	defer server.Close()

	body := []byte(`{"type":"listing","target_url":"https://shop.example.com/p/1"}`)
	resp := postSigned(t, server.URL, intakeSecret, body)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobAndStats(t *testing.T) {
	jobID := "3a4f2d38-9f1c-4f5e-9f34-8d1a2b3c4d5e"
	q := &stubQueue{
		job:   &models.Job{ID: jobID, Type: models.JobTypeProduct, Status: models.JobStatusFailed, Attempts: 1, MaxAttempts: 3},
		stats: models.JobStats{Queued: 2, Failed: 1},
	}
	server := newIntakeServer(q)
	defer server.Close()

	resp, err := http.Get(server.URL + "/jobs/" + jobID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/jobs/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data models.JobStats `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, 2, envelope.Data.Queued)

	// Requeue succeeds while attempts remain.
	resp, err = http.Post(server.URL+"/jobs/"+jobID+"/requeue", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
