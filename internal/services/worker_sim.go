package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"scholaverse/backend/internal/logging"
)

// SimulatedWorker is a WorkerGateway for development without a real
// ai-worker host. It accepts every submission, then after a randomized
// delay delivers a completed outcome to the callback sink, exercising the
// same application path a real worker would hit over HTTP. Job state is
// in-memory only and disappears on restart.
type SimulatedWorker struct {
	sink     CallbackSink
	logger   *logging.Logger
	minDelay time.Duration
	maxDelay time.Duration

	mu   sync.Mutex
	jobs map[string]*simJob

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type simJob struct {
	cardID        string
	status        string
	imagePath     string
	thumbnailPath string
	generatedAt   string
}

// NewSimulatedWorker creates a simulator that completes jobs after a
// random delay in [minDelay, maxDelay). The callback sink is set
// separately via SetSink because the coordinator that consumes callbacks
// is itself constructed with the gateway.
func NewSimulatedWorker(logger *logging.Logger, minDelay, maxDelay time.Duration) *SimulatedWorker {
	if maxDelay <= minDelay {
		maxDelay = minDelay + time.Second
	}
	return &SimulatedWorker{
		logger:   logger,
		minDelay: minDelay,
		maxDelay: maxDelay,
		jobs:     make(map[string]*simJob),
		done:     make(chan struct{}),
	}
}

// SetSink wires the callback destination. Must be called before the first
// submission.
func (w *SimulatedWorker) SetSink(sink CallbackSink) {
	w.sink = sink
}

func (w *SimulatedWorker) SubmitGeneration(ctx context.Context, req SubmitRequest) (string, error) {
	jobID := uuid.New().String()

	w.mu.Lock()
	w.jobs[jobID] = &simJob{cardID: req.CardID, status: "generating"}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.complete(jobID, req.CardID)

	w.logger.Info("simulated worker: job %s accepted for card %s", jobID, req.CardID)
	return jobID, nil
}

func (w *SimulatedWorker) CheckJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	job, ok := w.jobs[jobID]
	if !ok {
		return JobStatus{JobID: jobID, Status: "not_found", Error: "job " + jobID + " not found"}, nil
	}
	return JobStatus{
		JobID:         jobID,
		Status:        job.status,
		ImagePath:     job.imagePath,
		ThumbnailPath: job.thumbnailPath,
		GeneratedAt:   job.generatedAt,
	}, nil
}

// Shutdown cancels pending completion timers and waits for in-flight
// callbacks to finish. Safe to call more than once.
func (w *SimulatedWorker) Shutdown() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *SimulatedWorker) complete(jobID, cardID string) {
	defer w.wg.Done()

	delay := w.minDelay + rand.N(w.maxDelay-w.minDelay)
	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	generatedAt := time.Now().UTC().Format(time.RFC3339)
	imagePath := fmt.Sprintf("/students/%s/cards/card_%s.png", cardID, cardID)
	thumbnailPath := fmt.Sprintf("/students/%s/cards/card_%s_thumb.png", cardID, cardID)

	w.mu.Lock()
	if job, ok := w.jobs[jobID]; ok {
		job.status = CallbackStatusCompleted
		job.imagePath = imagePath
		job.thumbnailPath = thumbnailPath
		job.generatedAt = generatedAt
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := w.sink.ApplyCallback(ctx, GenerationCallback{
		JobID:         jobID,
		CardID:        cardID,
		Status:        CallbackStatusCompleted,
		ImagePath:     imagePath,
		ThumbnailPath: thumbnailPath,
		GeneratedAt:   generatedAt,
	})
	if err != nil {
		w.logger.Error("simulated worker: callback for job %s failed: %v", jobID, err)
		return
	}
	w.logger.Info("simulated worker: job %s completed", jobID)
}
