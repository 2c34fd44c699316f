package services

import (
	"context"
	"encoding/json"
	"time"

	"scholaverse/backend/internal/cache"
	"scholaverse/backend/internal/logging"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/pkg/models"
)

// CardStatusView is the point-in-time status served to a polling caller.
type CardStatusView struct {
	CardID       string            `json:"card_id"`
	StudentID    string            `json:"student_id"`
	Status       models.CardStatus `json:"status"`
	ImageURL     string            `json:"image_url,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	GeneratedAt  *time.Time        `json:"generated_at,omitempty"`

	// WorkerStatus is the live worker state, attached best-effort while the
	// card is still non-terminal. Display only; never written back.
	WorkerStatus string `json:"worker_status,omitempty"`
}

// StatusService serves card status reads. The stored card row is the
// system of record; the worker poll is an optimization that can only
// decorate a response. Terminal views are immutable and may be served
// from cache.
type StatusService struct {
	repo        repository.Repository
	worker      WorkerGateway
	cache       cache.Cache
	logger      *logging.Logger
	pollTimeout time.Duration
	cacheTTL    time.Duration
}

// NewStatusService creates a new StatusService.
func NewStatusService(repo repository.Repository, worker WorkerGateway, statusCache cache.Cache,
	logger *logging.Logger, pollTimeout, cacheTTL time.Duration) *StatusService {
	return &StatusService{
		repo:        repo,
		worker:      worker,
		cache:       statusCache,
		logger:      logger,
		pollTimeout: pollTimeout,
		cacheTTL:    cacheTTL,
	}
}

// GetStatus returns the status of a card owned by the given student.
// Unknown ids and cards owned by someone else both yield
// repository.ErrNotFound. Reads never mutate stored state, and a gateway
// outage degrades to the stored view rather than an error.
func (s *StatusService) GetStatus(ctx context.Context, cardID, studentID string) (*CardStatusView, error) {
	key := "card_status:" + cardID
	if data, err := s.cache.Get(ctx, key); err == nil {
		var view CardStatusView
		if json.Unmarshal(data, &view) == nil && view.StudentID == studentID {
			return &view, nil
		}
	}

	card, err := s.repo.GetCardForStudent(ctx, cardID, studentID)
	if err != nil {
		return nil, err
	}

	view := &CardStatusView{
		CardID:       card.ID,
		StudentID:    card.StudentID,
		Status:       card.Status,
		ImageURL:     card.ImageURL,
		ThumbnailURL: card.ThumbnailURL,
		ErrorMessage: card.ErrorMessage,
		GeneratedAt:  card.GeneratedAt,
	}

	if card.Status.IsTerminal() {
		if data, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.logger.Debug("failed to cache status for card %s: %v", cardID, err)
			}
		}
		return view, nil
	}

	if card.JobID != "" {
		pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
		defer cancel()
		live, err := s.worker.CheckJobStatus(pollCtx, card.JobID)
		if err != nil {
			s.logger.Debug("live status check for job %s failed: %v", card.JobID, err)
			return view, nil
		}
		view.WorkerStatus = live.Status
	}

	return view, nil
}
