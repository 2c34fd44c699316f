package services

import "context"

// SubmitRequest is the payload sent to the generation worker. JobID is
// assigned by the gateway implementation; everything else is supplied by
// the fulfillment coordinator.
type SubmitRequest struct {
	JobID           string            `json:"job_id"`
	CardID          string            `json:"card_id"`
	StudentNo       string            `json:"student_id"`
	StudentNickname string            `json:"student_nickname"`
	CardConfig      map[string]string `json:"card_config"`
	LearningData    LearningData      `json:"learning_data"`
	StyleHint       string            `json:"style_hint"`
	CallbackURL     string            `json:"callback_url"`
}

// JobStatus is the worker's view of a generation job, used only as a
// best-effort liveness hint. The stored card row stays authoritative.
type JobStatus struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	ImagePath     string `json:"image_path,omitempty"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

// GenerationCallback is the worker-initiated completion report, correlated
// by job id and card id. Delivery is at-least-once; application must be
// idempotent.
type GenerationCallback struct {
	JobID         string `json:"job_id"`
	CardID        string `json:"card_id"`
	Status        string `json:"status"`
	ImagePath     string `json:"image_path,omitempty"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Callback status values reported by the worker.
const (
	CallbackStatusCompleted = "completed"
	CallbackStatusFailed    = "failed"
)

// WorkerGateway abstracts the external image generation worker. The live
// HTTP client and the in-process simulator are interchangeable behind it;
// selection happens once at process start.
type WorkerGateway interface {
	// SubmitGeneration hands a job to the worker and returns its job id.
	// Transport errors and non-2xx responses surface as errors.
	SubmitGeneration(ctx context.Context, req SubmitRequest) (string, error)
	// CheckJobStatus polls the worker for a job's live status.
	CheckJobStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// CallbackSink receives generation outcomes. The fulfillment service
// implements it; the simulated worker drives it directly while the real
// worker reaches the same application path through the internal HTTP
// callback endpoint.
type CallbackSink interface {
	ApplyCallback(ctx context.Context, cb GenerationCallback) error
}
