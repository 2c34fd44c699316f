// Package models defines the domain models for the card service
package models

import (
	"time"
)

// CardStatus represents the lifecycle state of a generated card
type CardStatus string

const (
	CardStatusPending    CardStatus = "pending"
	CardStatusGenerating CardStatus = "generating"
	CardStatusCompleted  CardStatus = "completed"
	CardStatusFailed     CardStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s CardStatus) IsTerminal() bool {
	return s == CardStatusCompleted || s == CardStatusFailed
}

// Card represents one generation attempt for a student. The config snapshot
// is immutable once the row is created; status, job id and output fields are
// written only by the submission path and the callback path.
type Card struct {
	ID           string            `json:"id"`
	StudentID    string            `json:"student_id"`
	Status       CardStatus        `json:"status"`
	Config       map[string]string `json:"config"`
	JobID        string            `json:"job_id,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	BorderStyle  string            `json:"border_style,omitempty"`
	Level        int               `json:"level"`

	// IsLatest marks the single card per student shown as their current
	// result. The repository flips the previous holder in the same
	// transaction that inserts a new card.
	IsLatest bool `json:"is_latest"`

	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
