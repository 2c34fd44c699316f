package repository

import (
	"context"
	"errors"
	"time"

	"scholaverse/backend/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row. Ownership-scoped
// lookups return it for rows owned by someone else as well, so callers
// cannot distinguish "missing" from "not yours".
var ErrNotFound = errors.New("record not found")

// Repository is the persistence boundary for cards, roster students and
// the learning inputs that feed card generation.
type Repository interface {
	// CreateCard inserts a new pending card as the student's latest.
	// Clearing the previous latest holder and inserting the new row happen
	// in one transaction, serialized per student, so at most one card per
	// student is ever marked latest.
	CreateCard(ctx context.Context, card *models.Card) error
	// GetCard retrieves a card regardless of owner. Used by the internal
	// callback path, which is correlated by card id rather than requester.
	GetCard(ctx context.Context, id string) (*models.Card, error)
	// GetCardForStudent retrieves a card only if the student owns it.
	GetCardForStudent(ctx context.Context, id, studentID string) (*models.Card, error)
	// GetLatestCard returns the student's current card.
	GetLatestCard(ctx context.Context, studentID string) (*models.Card, error)
	// ListCards returns all of a student's cards, newest first.
	ListCards(ctx context.Context, studentID string) ([]*models.Card, error)
	// ListLatestCompletedCards returns every student's latest completed
	// card, highest level first.
	ListLatestCompletedCards(ctx context.Context) ([]*models.Card, error)
	// MarkCardSubmitted advances a pending card to generating and records
	// the worker job id.
	MarkCardSubmitted(ctx context.Context, id, jobID string) error
	// CompleteCard records a completed outcome. It only applies while the
	// card is non-terminal and reports whether a row was updated, so
	// duplicate callback deliveries are no-ops.
	CompleteCard(ctx context.Context, id, imageURL, thumbnailURL string, generatedAt time.Time) (bool, error)
	// FailCard records a failed outcome under the same non-terminal guard.
	FailCard(ctx context.Context, id, reason string) (bool, error)

	GetStudent(ctx context.Context, id string) (*models.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*models.Student, error)
	CreateStudent(ctx context.Context, student *models.Student) error

	// ListAttributeConfigs returns the student's unlocked attribute
	// choices as an attribute type -> value map.
	ListAttributeConfigs(ctx context.Context, studentID string) (map[string]string, error)
	ListLearningRecords(ctx context.Context, studentID string) ([]*models.LearningRecord, error)
	UpsertAttributeConfig(ctx context.Context, cfg *models.AttributeConfig) error
	UpsertLearningRecord(ctx context.Context, rec *models.LearningRecord) error

	Ping(ctx context.Context) error
}
