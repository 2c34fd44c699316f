package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPWorkerClient_SubmitGeneration(t *testing.T) {
	var received SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewHTTPWorkerClient(server.URL+"/", time.Second, time.Second)
	jobID, err := client.SubmitGeneration(context.Background(), SubmitRequest{
		CardID:      "card-1",
		StudentNo:   "S001",
		CardConfig:  map[string]string{"race": "elf"},
		CallbackURL: "http://backend.local/api/internal/generation-callback",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	// The gateway assigns the job id and sends it with the payload.
	assert.Equal(t, jobID, received.JobID)
	assert.Equal(t, "card-1", received.CardID)
	assert.Equal(t, "elf", received.CardConfig["race"])
}

func TestHTTPWorkerClient_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPWorkerClient(server.URL, time.Second, time.Second)
	_, err := client.SubmitGeneration(context.Background(), SubmitRequest{CardID: "card-1"})
	assert.Error(t, err)
}

func TestHTTPWorkerClient_CheckJobStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/job-1", r.URL.Path)
		json.NewEncoder(w).Encode(JobStatus{JobID: "job-1", Status: "rendering"})
	}))
	defer server.Close()

	client := NewHTTPWorkerClient(server.URL, time.Second, time.Second)
	status, err := client.CheckJobStatus(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, "job-1", status.JobID)
	assert.Equal(t, "rendering", status.Status)
}

func TestHTTPWorkerClient_CheckJobStatusDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	server.Close() // connection refused

	client := NewHTTPWorkerClient(server.URL, time.Second, time.Second)
	_, err := client.CheckJobStatus(context.Background(), "job-1")
	assert.Error(t, err)
}
