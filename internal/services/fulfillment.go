package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"scholaverse/backend/internal/logging"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/pkg/models"
)

var (
	// ErrWorkerUnavailable indicates the gateway could not accept the
	// submission. The card row exists and is marked failed; the caller may
	// retry later with a fresh submission.
	ErrWorkerUnavailable = errors.New("generation worker unavailable")
	// ErrUnknownCard indicates a callback referenced a card id that does
	// not resolve. Logged and acknowledged, never retried by this service.
	ErrUnknownCard = errors.New("unknown card")
)

const styleHint = "16-bit pixel art, fantasy RPG character card"

// FulfillmentService orchestrates card generation: it builds the request,
// creates the card record, submits the job, and applies worker callbacks.
// It owns the latest-card invariant together with the repository.
type FulfillmentService struct {
	repo          repository.Repository
	worker        WorkerGateway
	builder       ConfigBuilder
	logger        *logging.Logger
	workerBaseURL string
	callbackURL   string
	submitTimeout time.Duration

	submitted metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewFulfillmentService creates a new FulfillmentService. workerBaseURL is
// used to translate worker-relative image paths into caller-addressable
// proxy URLs; callbackURL is where the worker reports outcomes.
func NewFulfillmentService(repo repository.Repository, worker WorkerGateway, builder ConfigBuilder,
	logger *logging.Logger, workerBaseURL, callbackURL string, submitTimeout time.Duration) *FulfillmentService {
	meter := otel.Meter("scholaverse/backend/fulfillment")
	submitted, _ := meter.Int64Counter("cards.generation.submitted")
	completed, _ := meter.Int64Counter("cards.generation.completed")
	failed, _ := meter.Int64Counter("cards.generation.failed")

	return &FulfillmentService{
		repo:          repo,
		worker:        worker,
		builder:       builder,
		logger:        logger,
		workerBaseURL: strings.TrimRight(workerBaseURL, "/"),
		callbackURL:   callbackURL,
		submitTimeout: submitTimeout,
		submitted:     submitted,
		completed:     completed,
		failed:        failed,
	}
}

// SubmitGeneration creates a new pending card for the student, retires the
// previous latest card in the same transaction, and hands the job to the
// worker. On gateway failure the card is marked failed and
// ErrWorkerUnavailable is returned; the failed attempt stays visible in
// history and is not retried automatically.
func (s *FulfillmentService) SubmitGeneration(ctx context.Context, student *models.Student) (*models.Card, error) {
	config, learning, err := s.builder.Build(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		ID:          uuid.New().String(),
		StudentID:   student.ID,
		Status:      models.CardStatusPending,
		Config:      config,
		BorderStyle: config["border"],
	}
	if lvl, err := strconv.Atoi(config["level"]); err == nil {
		card.Level = lvl
	}

	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	jobID, err := s.worker.SubmitGeneration(submitCtx, SubmitRequest{
		CardID:          card.ID,
		StudentNo:       student.StudentNo,
		StudentNickname: student.DisplayName(),
		CardConfig:      config,
		LearningData:    learning,
		StyleHint:       styleHint,
		CallbackURL:     s.callbackURL,
	})
	if err != nil {
		s.logger.Error("failed to submit generation for card %s: %v", card.ID, err)
		s.failed.Add(ctx, 1)
		if _, failErr := s.repo.FailCard(ctx, card.ID, "worker submission failed: "+err.Error()); failErr != nil {
			s.logger.Error("failed to mark card %s failed: %v", card.ID, failErr)
		}
		card.Status = models.CardStatusFailed
		return card, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	if err := s.repo.MarkCardSubmitted(ctx, card.ID, jobID); err != nil {
		// The job is already running; the callback will still land on the
		// pending row, so surface the error without failing the card.
		s.logger.Error("failed to mark card %s submitted: %v", card.ID, err)
		return card, err
	}

	card.Status = models.CardStatusGenerating
	card.JobID = jobID
	s.submitted.Add(ctx, 1)
	s.logger.Info("card %s submitted for generation (job %s)", card.ID, jobID)
	return card, nil
}

// ApplyCallback records a worker outcome on the referenced card. It is
// idempotent: once a card is terminal, later callbacks (duplicates or
// out-of-order deliveries) are logged and ignored, never overwriting the
// first terminal write.
func (s *FulfillmentService) ApplyCallback(ctx context.Context, cb GenerationCallback) error {
	card, err := s.repo.GetCard(ctx, cb.CardID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s (job %s)", ErrUnknownCard, cb.CardID, cb.JobID)
	}
	if err != nil {
		return err
	}

	if cb.Status == CallbackStatusCompleted {
		applied, err := s.repo.CompleteCard(ctx, card.ID,
			s.imagePathToURL(cb.ImagePath), s.imagePathToURL(cb.ThumbnailPath),
			parseGeneratedAt(cb.GeneratedAt))
		if err != nil {
			return err
		}
		if !applied {
			s.logger.Info("ignoring callback for card %s: already terminal (job %s)", card.ID, cb.JobID)
			return nil
		}
		s.completed.Add(ctx, 1)
		s.logger.Info("card %s generation completed (job %s)", card.ID, cb.JobID)
		return nil
	}

	reason := cb.Error
	if reason == "" {
		reason = "generation failed"
	}
	applied, err := s.repo.FailCard(ctx, card.ID, reason)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("ignoring callback for card %s: already terminal (job %s)", card.ID, cb.JobID)
		return nil
	}
	s.failed.Add(ctx, 1)
	s.logger.Warn("card %s generation failed (job %s): %s", card.ID, cb.JobID, reason)
	return nil
}

// imagePathToURL converts a worker-relative image path into a proxy URL via
// the worker's /api/images/ endpoint. An empty path yields an empty URL.
func (s *FulfillmentService) imagePathToURL(imagePath string) string {
	if imagePath == "" {
		return ""
	}
	return s.workerBaseURL + "/api/images/" + strings.TrimLeft(imagePath, "/")
}

// parseGeneratedAt falls back to the time the callback is processed when
// the worker's timestamp is missing or unparsable, so completed cards
// always carry a completion time.
func parseGeneratedAt(value string) time.Time {
	if value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
