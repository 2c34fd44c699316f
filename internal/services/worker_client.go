package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPWorkerClient is the live WorkerGateway implementation that talks to
// the ai-worker host over HTTP.
type HTTPWorkerClient struct {
	baseURL      string
	submitClient *http.Client
	pollClient   *http.Client
}

// NewHTTPWorkerClient creates a client for the worker at baseURL. Submit
// and poll calls are bounded by their own timeouts so a stalled worker
// cannot hang a caller.
func NewHTTPWorkerClient(baseURL string, submitTimeout, pollTimeout time.Duration) *HTTPWorkerClient {
	return &HTTPWorkerClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		submitClient: &http.Client{Timeout: submitTimeout},
		pollClient:   &http.Client{Timeout: pollTimeout},
	}
}

func (c *HTTPWorkerClient) SubmitGeneration(ctx context.Context, req SubmitRequest) (string, error) {
	req.JobID = uuid.New().String()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.submitClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to submit generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("worker rejected generation: status code %d", resp.StatusCode)
	}

	return req.JobID, nil
}

func (c *HTTPWorkerClient) CheckJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.pollClient.Do(httpReq)
	if err != nil {
		return JobStatus{}, fmt.Errorf("failed to check job status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("failed to check job status: status code %d", resp.StatusCode)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return JobStatus{}, fmt.Errorf("failed to decode job status: %w", err)
	}
	return status, nil
}
